// Package corpus reads the three files of a Cranfield-style test collection:
// the documents, the queries and the relevance judgments.
//
// Documents and queries use the SMART marker format. A line starting with
// ".I <id>" opens a record; ".T", ".A", ".B" and ".W" open the title, author,
// bibliography and text sections of that record:
//
//	.I 1
//	.T
//	experimental investigation of the aerodynamics of a
//	wing in a slipstream .
//	.A
//	brenckmann,m.
//	.B
//	j. ae. scs. 25, 1958, 324.
//	.W
//	experimental investigation of the aerodynamics of a
//	wing in a slipstream .
//
// Section lines are joined with single spaces.
package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/wizenheimer/cranrank"
)

// ErrMalformed marks input that does not follow the expected file format.
var ErrMalformed = errors.New("malformed input")

// ParseError locates a format problem in an input file.
type ParseError struct {
	Source string // File name, or "input" for readers
	Line   int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Source, e.Line, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return ErrMalformed
}

const maxLineSize = 1 << 20

// record is one ".I" block with the lines of each section.
type record struct {
	id       string
	line     int
	sections map[byte][]string
}

func (r *record) text(section byte) string {
	return strings.Join(r.sections[section], " ")
}

// readRecords splits SMART-formatted input into records.
func readRecords(r io.Reader, source string) ([]*record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		records []*record
		current *record
		section byte
		lineNo  int
	)

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), " \t\r")

		if strings.HasPrefix(line, ".I") && (len(line) == 2 || line[2] == ' ' || line[2] == '\t') {
			id := strings.TrimSpace(line[2:])
			if id == "" {
				return nil, &ParseError{Source: source, Line: lineNo, Msg: "record marker without id"}
			}
			current = &record{id: id, line: lineNo, sections: make(map[byte][]string)}
			records = append(records, current)
			section = 0
			continue
		}

		if marker, rest, ok := sectionMarker(line); ok {
			if current == nil {
				return nil, &ParseError{Source: source, Line: lineNo, Msg: fmt.Sprintf("section .%c before first .I", marker)}
			}
			section = marker
			if rest != "" {
				current.sections[section] = append(current.sections[section], rest)
			}
			continue
		}

		content := strings.TrimSpace(line)
		if content == "" {
			continue
		}
		if current == nil || section == 0 {
			return nil, &ParseError{Source: source, Line: lineNo, Msg: "text outside of a section"}
		}
		current.sections[section] = append(current.sections[section], content)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return records, nil
}

// sectionMarker recognizes ".T", ".A", ".B" and ".W", optionally followed by
// text on the same line.
func sectionMarker(line string) (byte, string, bool) {
	if len(line) < 2 || line[0] != '.' {
		return 0, "", false
	}
	switch line[1] {
	case 'T', 'A', 'B', 'W':
	default:
		return 0, "", false
	}
	if len(line) > 2 && line[2] != ' ' && line[2] != '\t' {
		return 0, "", false
	}
	return line[1], strings.TrimSpace(line[2:]), true
}

// ═══════════════════════════════════════════════════════════════════════════════
// DOCUMENTS
// ═══════════════════════════════════════════════════════════════════════════════

// LoadDocuments parses a document collection. Title comes from .T and Body
// from .W; authors and bibliography are skipped.
func LoadDocuments(r io.Reader) ([]cranrank.Document, error) {
	return loadDocuments(r, "input")
}

// LoadDocumentsFile opens path and parses it with LoadDocuments.
func LoadDocumentsFile(path string) ([]cranrank.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return loadDocuments(f, path)
}

func loadDocuments(r io.Reader, source string) ([]cranrank.Document, error) {
	records, err := readRecords(r, source)
	if err != nil {
		return nil, err
	}

	docs := make([]cranrank.Document, 0, len(records))
	for _, rec := range records {
		id, err := strconv.Atoi(rec.id)
		if err != nil {
			return nil, &ParseError{Source: source, Line: rec.line, Msg: fmt.Sprintf("document id %q is not a number", rec.id)}
		}
		docs = append(docs, cranrank.Document{
			ID:    id,
			Title: rec.text('T'),
			Body:  rec.text('W'),
		})
	}
	return docs, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ═══════════════════════════════════════════════════════════════════════════════

// QueryOptions controls how query ids are assigned.
type QueryOptions struct {
	// Sequential numbers queries 1..n in file order instead of using their
	// .I ids. The Cranfield judgments refer to queries by ordinal, while the
	// ids in cran.qry skip numbers.
	Sequential bool
}

// LoadQueries parses a query file into query id → text. Numeric ids are
// normalized, so ".I 001" becomes "1".
func LoadQueries(r io.Reader, opts QueryOptions) (map[string]string, error) {
	return loadQueries(r, "input", opts)
}

// LoadQueriesFile opens path and parses it with LoadQueries.
func LoadQueriesFile(path string, opts QueryOptions) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return loadQueries(f, path, opts)
}

func loadQueries(r io.Reader, source string, opts QueryOptions) (map[string]string, error) {
	records, err := readRecords(r, source)
	if err != nil {
		return nil, err
	}

	queries := make(map[string]string, len(records))
	for i, rec := range records {
		id := NormalizeID(rec.id)
		if opts.Sequential {
			id = strconv.Itoa(i + 1)
		}
		if _, dup := queries[id]; dup {
			return nil, &ParseError{Source: source, Line: rec.line, Msg: fmt.Sprintf("duplicate query id %q", id)}
		}
		queries[id] = rec.text('W')
	}
	return queries, nil
}

// NormalizeID strips leading zeros from numeric ids and leaves others as is.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if n, err := strconv.Atoi(id); err == nil && n >= 0 {
		return strconv.Itoa(n)
	}
	return id
}

// ═══════════════════════════════════════════════════════════════════════════════
// RELEVANCE JUDGMENTS
// ═══════════════════════════════════════════════════════════════════════════════

// Format identifies a judgment file layout.
type Format int

const (
	// FormatTriple is "qid iteration docid"; the middle column is ignored.
	FormatTriple Format = iota
	// FormatTREC is "qid iteration docid relevance"; only relevance > 0 counts.
	FormatTREC
	// FormatCranfield is "qid docid grade"; every listed pair is relevant.
	FormatCranfield
)

func (f Format) String() string {
	switch f {
	case FormatTriple:
		return "triple"
	case FormatTREC:
		return "trec"
	case FormatCranfield:
		return "cranfield"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat maps a configuration name to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "triple":
		return FormatTriple, nil
	case "trec", "qrels":
		return FormatTREC, nil
	case "cranfield", "cranqrel":
		return FormatCranfield, nil
	default:
		return FormatTriple, fmt.Errorf("unknown judgment format %q", name)
	}
}

// LoadJudgments parses whitespace-separated relevance judgments. Blank lines
// are skipped; any other line with the wrong shape is an error.
func LoadJudgments(r io.Reader, format Format) (cranrank.Judgments, error) {
	return loadJudgments(r, "input", format)
}

// LoadJudgmentsFile opens path and parses it with LoadJudgments.
func LoadJudgmentsFile(path string, format Format) (cranrank.Judgments, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return loadJudgments(f, path, format)
}

func loadJudgments(r io.Reader, source string, format Format) (cranrank.Judgments, error) {
	var (
		columns  int
		docCol   int
		gradeCol = -1
	)
	switch format {
	case FormatTriple:
		columns, docCol = 3, 2
	case FormatTREC:
		columns, docCol, gradeCol = 4, 2, 3
	case FormatCranfield:
		columns, docCol = 3, 1
	default:
		return nil, fmt.Errorf("unknown judgment format %v", format)
	}

	judgments := cranrank.NewJudgments()
	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != columns {
			return nil, &ParseError{Source: source, Line: lineNo, Msg: fmt.Sprintf("want %d columns for %s format, got %d", columns, format, len(fields))}
		}

		docID, err := strconv.Atoi(fields[docCol])
		if err != nil {
			return nil, &ParseError{Source: source, Line: lineNo, Msg: fmt.Sprintf("document id %q is not a number", fields[docCol])}
		}

		if gradeCol >= 0 {
			grade, err := strconv.Atoi(fields[gradeCol])
			if err != nil {
				return nil, &ParseError{Source: source, Line: lineNo, Msg: fmt.Sprintf("relevance %q is not a number", fields[gradeCol])}
			}
			if grade <= 0 {
				continue
			}
		}

		judgments.Add(NormalizeID(fields[0]), docID)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return judgments, nil
}
