package cranrank

import (
	"log/slog"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════════
// QUERY PROCESSING
// ═══════════════════════════════════════════════════════════════════════════════
// A query becomes an ordered list of clauses. A clause is either a single term
// or a phrase (several terms that must appear at consecutive positions).
//
// STRING QUERIES:
// ---------------
// Query strings have no operator syntax. Every reserved character of the
// classic query grammar
//
//	\ + - && || ! ( ) { } [ ] ^ " ~ * ? : /
//
// is plain text, so "heat-transfer (laminar)" means the terms heat, transfer
// and laminar. Each analyzed term becomes one term clause. Clauses are not a
// boolean filter: a document matching any clause is a candidate, and clauses
// it does not match contribute nothing to its score.
//
// PROGRAMMATIC QUERIES:
// ---------------------
// Phrase clauses come from QueryBuilder, since the quote character is literal
// in query strings:
//
//	q, err := NewQueryBuilder(analyzer).
//	    Phrase("boundary layer").
//	    Term("heat transfer").
//	    Build()
// ═══════════════════════════════════════════════════════════════════════════════

// Clause is one scoring unit of a query.
type Clause struct {
	Terms []string // One term, or a phrase of adjacent terms
}

// IsPhrase reports whether the clause requires adjacency.
func (c Clause) IsPhrase() bool {
	return len(c.Terms) > 1
}

// String joins the clause terms with spaces.
func (c Clause) String() string {
	return strings.Join(c.Terms, " ")
}

// ParsedQuery is the structured form of a query.
type ParsedQuery struct {
	Raw     string   // Original text, kept for logging
	Clauses []Clause // Never empty for a successfully parsed query
}

// Terms flattens all clause terms in order.
func (q ParsedQuery) Terms() []string {
	var terms []string
	for _, c := range q.Clauses {
		terms = append(terms, c.Terms...)
	}
	return terms
}

// QueryParser turns raw query strings into ParsedQuery values using the same
// analyzer the index was built with.
type QueryParser struct {
	analyzer *Analyzer
}

// NewQueryParser creates a parser around an analyzer.
func NewQueryParser(analyzer *Analyzer) *QueryParser {
	if analyzer == nil {
		analyzer = NewDefaultAnalyzer()
	}
	return &QueryParser{analyzer: analyzer}
}

// Parse converts a raw query into clauses
//
// ALGORITHM:
// ----------
//  1. Trim surrounding whitespace
//  2. Strip a leading run of '*' and '?' (leading wildcards are not supported)
//  3. Analyze the remainder; reserved characters are literal
//  4. One term clause per analyzed term, duplicates kept
//  5. Zero clauses → *QueryError wrapping ErrNoClauses
//
// EXAMPLE:
// --------
//
//	"**the boundary-layer?" → [boundari] [layer]
//	"the of and"            → QueryError (only stopwords)
func (p *QueryParser) Parse(raw string) (ParsedQuery, error) {
	text := StripLeadingWildcards(strings.TrimSpace(raw))

	terms := p.analyzer.Analyze(text)
	if len(terms) == 0 {
		return ParsedQuery{}, &QueryError{Query: raw, Err: ErrNoClauses}
	}

	clauses := make([]Clause, len(terms))
	for i, term := range terms {
		clauses[i] = Clause{Terms: []string{term}}
	}

	slog.Debug("query parsed",
		slog.String("escaped", EscapeQuery(text)),
		slog.Int("clauses", len(clauses)))

	return ParsedQuery{Raw: raw, Clauses: clauses}, nil
}

// StripLeadingWildcards removes a leading run of '*' and '?' characters.
func StripLeadingWildcards(s string) string {
	return strings.TrimLeft(s, "*?")
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`+`, `\+`,
	`-`, `\-`,
	`&&`, `\&&`,
	`||`, `\||`,
	`!`, `\!`,
	`(`, `\(`,
	`)`, `\)`,
	`{`, `\{`,
	`}`, `\}`,
	`[`, `\[`,
	`]`, `\]`,
	`^`, `\^`,
	`"`, `\"`,
	`~`, `\~`,
	`*`, `\*`,
	`?`, `\?`,
	`:`, `\:`,
	`/`, `\/`,
)

// EscapeQuery backslash-escapes every reserved character of the classic query
// grammar. Parse treats those characters as literal text anyway; the escaped
// form is what a classic query parser would need to see the same thing.
func EscapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

// ═══════════════════════════════════════════════════════════════════════════════
// QUERY BUILDER
// ═══════════════════════════════════════════════════════════════════════════════

// QueryBuilder assembles a ParsedQuery clause by clause.
type QueryBuilder struct {
	analyzer *Analyzer
	raw      []string
	clauses  []Clause
}

// NewQueryBuilder creates a new query builder
func NewQueryBuilder(analyzer *Analyzer) *QueryBuilder {
	if analyzer == nil {
		analyzer = NewDefaultAnalyzer()
	}
	return &QueryBuilder{analyzer: analyzer}
}

// Term adds one term clause per analyzed term of text.
//
//	qb.Term("heated plates")  // two clauses: [heat] [plate]
func (qb *QueryBuilder) Term(text string) *QueryBuilder {
	qb.raw = append(qb.raw, text)
	for _, term := range qb.analyzer.Analyze(text) {
		qb.clauses = append(qb.clauses, Clause{Terms: []string{term}})
	}
	return qb
}

// Phrase adds a single clause whose analyzed terms must be adjacent. A phrase
// that analyzes to one term degrades to a term clause; one that analyzes to
// nothing adds nothing.
//
//	qb.Phrase("boundary layer")  // one clause: [boundari layer]
func (qb *QueryBuilder) Phrase(text string) *QueryBuilder {
	qb.raw = append(qb.raw, `"`+text+`"`)
	terms := qb.analyzer.Analyze(text)
	if len(terms) > 0 {
		qb.clauses = append(qb.clauses, Clause{Terms: terms})
	}
	return qb
}

// Build returns the assembled query, or a *QueryError when no clause survived
// analysis.
func (qb *QueryBuilder) Build() (ParsedQuery, error) {
	raw := strings.Join(qb.raw, " ")
	if len(qb.clauses) == 0 {
		return ParsedQuery{}, &QueryError{Query: raw, Err: ErrNoClauses}
	}
	clauses := make([]Clause, len(qb.clauses))
	copy(clauses, qb.clauses)
	return ParsedQuery{Raw: raw, Clauses: clauses}, nil
}
