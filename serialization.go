package cranrank

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/RoaringBitmap/roaring"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SERIALIZATION: Index Snapshots
// ═══════════════════════════════════════════════════════════════════════════════
// Building the Cranfield index takes a fraction of a second, but a snapshot
// lets an experiment rerun every model against exactly the same index bytes.
//
// BINARY FORMAT (little endian):
// ------------------------------
// [Header]
//   - Magic: "CRNK"
//   - Version: uint16
//   - MinTokenLength: uint32
//   - EnableStopwords: uint8
//   - Stemmer: uint8
//
// [Documents] (ascending DocID)
//   - NumDocs: uint32
//   - For each: DocID uint32, Title string, Body string, Length uint32
//
// [Posting Lists] (lexical term order)
//   - NumTerms: uint32
//   - For each: Term string, NumPostings uint32
//   - For each posting: DocID uint32, NumPositions uint32, Positions uint32...
//
// Strings are [length: uint32][bytes]. Frequencies are not stored: a posting's
// frequency is its number of positions. Bitmaps, document statistics and the
// average length are derived again on load.
//
// Because every section is written in sorted order, encoding the same index
// twice yields identical bytes.
// ═══════════════════════════════════════════════════════════════════════════════

const (
	snapshotMagic   = "CRNK"
	snapshotVersion = uint16(1)
)

// Encode serializes the index into the snapshot format.
func (idx *InvertedIndex) Encode() ([]byte, error) {
	e := newIndexEncoder(new(bytes.Buffer))

	if err := e.encodeHeader(idx.analyzer.Config()); err != nil {
		return nil, err
	}
	if err := e.encodeDocuments(idx); err != nil {
		return nil, err
	}
	if err := e.write(uint32(len(idx.postings))); err != nil {
		return nil, err
	}
	for _, term := range idx.Terms() {
		if err := e.encodeTerm(term, idx.postings[term]); err != nil {
			return nil, err
		}
	}
	return e.buffer.Bytes(), nil
}

// indexEncoder accumulates the serialized index.
type indexEncoder struct {
	buffer *bytes.Buffer
}

func newIndexEncoder(buffer *bytes.Buffer) *indexEncoder {
	return &indexEncoder{buffer: buffer}
}

func (e *indexEncoder) encodeHeader(cfg AnalyzerConfig) error {
	if _, err := e.buffer.WriteString(snapshotMagic); err != nil {
		return err
	}
	stopwords := uint8(0)
	if cfg.EnableStopwords {
		stopwords = 1
	}
	return e.write(snapshotVersion, uint32(cfg.MinTokenLength), stopwords, uint8(cfg.Stemmer))
}

func (e *indexEncoder) encodeDocuments(idx *InvertedIndex) error {
	ids := idx.DocIDs()
	if err := e.write(uint32(len(ids))); err != nil {
		return err
	}
	for _, id := range ids {
		doc := idx.docs[id]
		if err := e.write(uint32(doc.ID)); err != nil {
			return err
		}
		if err := e.writeString(doc.Title); err != nil {
			return err
		}
		if err := e.writeString(doc.Body); err != nil {
			return err
		}
		if err := e.write(uint32(doc.Length)); err != nil {
			return err
		}
	}
	return nil
}

// encodeTerm writes one term and its posting list
//
// Example: "cat" → [{Doc1 pos [0]}, {Doc3 pos [0 4]}]
//
//	[3]['c','a','t'] [2]  [1][1][0]  [3][2][0][4]
//	 term             n    doc1       doc3
func (e *indexEncoder) encodeTerm(term string, pl PostingList) error {
	if err := e.writeString(term); err != nil {
		return err
	}
	if err := e.write(uint32(len(pl))); err != nil {
		return err
	}
	for _, p := range pl {
		if err := e.write(uint32(p.DocID), uint32(len(p.Positions))); err != nil {
			return err
		}
		for _, pos := range p.Positions {
			if err := e.write(uint32(pos)); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeString writes a length-prefixed string
//
// Example: "quick" (5 characters)
//
//	Binary: [0x05, 0x00, 0x00, 0x00, 'q', 'u', 'i', 'c', 'k']
func (e *indexEncoder) writeString(s string) error {
	if err := e.write(uint32(len(s))); err != nil {
		return err
	}
	_, err := e.buffer.WriteString(s)
	return err
}

func (e *indexEncoder) write(values ...any) error {
	for _, v := range values {
		if err := binary.Write(e.buffer, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// DESERIALIZATION
// ═══════════════════════════════════════════════════════════════════════════════

// Decode rebuilds an index from a snapshot produced by Encode. Any structural
// problem is reported as an error wrapping ErrCorruptSnapshot.
//
// RECONSTRUCTION STEPS:
// ---------------------
//  1. Check magic and version, rebuild the analyzer
//  2. Read documents into docs
//  3. Read posting lists, checking DocID order and that every DocID is known
//  4. Rebuild bitmaps, per-document statistics and avgDocLength
func Decode(data []byte) (*InvertedIndex, error) {
	d := &indexDecoder{reader: bytes.NewReader(data)}

	analyzer, err := d.decodeHeader()
	if err != nil {
		return nil, err
	}

	idx := &InvertedIndex{
		analyzer: analyzer,
		postings: make(map[string]PostingList),
		bitmaps:  make(map[string]*roaring.Bitmap),
		docs:     make(map[int]*Document),
		stats:    make(map[int]DocumentStats),
	}

	if err := d.decodeDocuments(idx); err != nil {
		return nil, err
	}

	numTerms, err := d.readCount(8)
	if err != nil {
		return nil, err
	}
	for i := 0; i < numTerms; i++ {
		if err := d.decodeTerm(idx); err != nil {
			return nil, err
		}
	}

	if d.reader.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptSnapshot, d.reader.Len())
	}

	idx.finish()
	return idx, nil
}

type indexDecoder struct {
	reader *bytes.Reader
}

func (d *indexDecoder) decodeHeader() (*Analyzer, error) {
	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(d.reader, magic); err != nil || string(magic) != snapshotMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptSnapshot)
	}

	var version uint16
	if err := d.read(&version); err != nil {
		return nil, err
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, version)
	}

	var (
		minLength uint32
		stopwords uint8
		stemmer   uint8
	)
	if err := d.read(&minLength, &stopwords, &stemmer); err != nil {
		return nil, err
	}
	if StemmerKind(stemmer) > StemmerNone {
		return nil, fmt.Errorf("%w: unknown stemmer %d", ErrCorruptSnapshot, stemmer)
	}

	return NewAnalyzer(AnalyzerConfig{
		MinTokenLength:  int(minLength),
		EnableStopwords: stopwords == 1,
		Stemmer:         StemmerKind(stemmer),
	}), nil
}

func (d *indexDecoder) decodeDocuments(idx *InvertedIndex) error {
	numDocs, err := d.readCount(16)
	if err != nil {
		return err
	}
	for i := 0; i < numDocs; i++ {
		var id uint32
		if err := d.read(&id); err != nil {
			return err
		}
		title, err := d.readString()
		if err != nil {
			return err
		}
		body, err := d.readString()
		if err != nil {
			return err
		}
		var length uint32
		if err := d.read(&length); err != nil {
			return err
		}

		if id == 0 {
			return fmt.Errorf("%w: document id 0", ErrCorruptSnapshot)
		}
		if _, exists := idx.docs[int(id)]; exists {
			return fmt.Errorf("%w: document %d listed twice", ErrCorruptSnapshot, id)
		}
		idx.docs[int(id)] = &Document{ID: int(id), Title: title, Body: body, Length: int(length)}
		idx.stats[int(id)] = DocumentStats{Length: int(length)}
		idx.totalDocs++
		idx.totalLength += int64(length)
	}
	return nil
}

func (d *indexDecoder) decodeTerm(idx *InvertedIndex) error {
	term, err := d.readString()
	if err != nil {
		return err
	}
	if _, exists := idx.postings[term]; exists {
		return fmt.Errorf("%w: term %q listed twice", ErrCorruptSnapshot, term)
	}

	numPostings, err := d.readCount(8)
	if err != nil {
		return err
	}

	pl := make(PostingList, 0, numPostings)
	bitmap := roaring.NewBitmap()
	for i := 0; i < numPostings; i++ {
		var docID uint32
		if err := d.read(&docID); err != nil {
			return err
		}
		if _, known := idx.docs[int(docID)]; !known {
			return fmt.Errorf("%w: term %q references unknown document %d", ErrCorruptSnapshot, term, docID)
		}
		if len(pl) > 0 && pl[len(pl)-1].DocID >= int(docID) {
			return fmt.Errorf("%w: postings of %q out of order", ErrCorruptSnapshot, term)
		}

		numPositions, err := d.readCount(4)
		if err != nil {
			return err
		}
		positions := make([]int, numPositions)
		for j := range positions {
			var pos uint32
			if err := d.read(&pos); err != nil {
				return err
			}
			positions[j] = int(pos)
		}
		if !sort.IntsAreSorted(positions) {
			return fmt.Errorf("%w: positions of %q in document %d out of order", ErrCorruptSnapshot, term, docID)
		}

		pl = append(pl, Posting{DocID: int(docID), Freq: numPositions, Positions: positions})
		bitmap.Add(docID)

		s := idx.stats[int(docID)]
		s.UniqueTerms++
		idx.stats[int(docID)] = s
	}

	idx.postings[term] = pl
	idx.bitmaps[term] = bitmap
	return nil
}

func (d *indexDecoder) read(values ...any) error {
	for _, v := range values {
		if err := binary.Read(d.reader, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
	}
	return nil
}

// readCount reads a uint32 element count and rejects counts that cannot fit
// in the remaining input given the minimum encoded size of one element.
func (d *indexDecoder) readCount(minElemSize int) (int, error) {
	var n uint32
	if err := d.read(&n); err != nil {
		return 0, err
	}
	if int64(n)*int64(minElemSize) > int64(d.reader.Len()) {
		return 0, fmt.Errorf("%w: count %d exceeds remaining input", ErrCorruptSnapshot, n)
	}
	return int(n), nil
}

func (d *indexDecoder) readString() (string, error) {
	n, err := d.readCount(1)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.reader, buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return string(buf), nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// FILES
// ═══════════════════════════════════════════════════════════════════════════════

// SaveSnapshot encodes idx and writes it to path. The file is written to a
// temporary name in the same directory and renamed, so readers never observe
// a partial snapshot.
func SaveSnapshot(path string, idx *InvertedIndex) error {
	data, err := idx.Encode()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// LoadSnapshot reads and decodes the snapshot at path.
func LoadSnapshot(path string) (*InvertedIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	idx, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", path, err)
	}
	return idx, nil
}
