// Package cranrank implements an inverted-index search engine with pluggable
// scoring models and a Mean Average Precision evaluation harness.
//
// ═══════════════════════════════════════════════════════════════════════════════
// WHAT IS AN INVERTED INDEX?
// ═══════════════════════════════════════════════════════════════════════════════
// An inverted index maps every term to the documents that contain it, the way
// the index at the back of a book maps words to pages.
//
// Example: Given these documents:
//   Doc 1: "the cat sat"
//   Doc 2: "the dog sat down"
//   Doc 3: "cats and dogs"
//
// The inverted index would look like:
//   "cat"  → [Doc1 tf=1 pos=[0], Doc3 tf=1 pos=[0]]
//   "sat"  → [Doc1 tf=1 pos=[1], Doc2 tf=1 pos=[1]]
//   "dog"  → [Doc2 tf=1 pos=[0], Doc3 tf=1 pos=[1]]
//   "down" → [Doc2 tf=1 pos=[2]]
//
// Term frequencies drive scoring, positions drive phrase matching, and the
// number of postings per term is its document frequency.
// ═══════════════════════════════════════════════════════════════════════════════
package cranrank

import (
	"log/slog"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring"
)

// Document is one unit of the corpus. Length is filled in by Build with the
// number of normalized terms in Title and Body.
type Document struct {
	ID     int
	Title  string
	Body   string
	Length int
}

// Posting records one term's occurrences inside one document.
type Posting struct {
	DocID     int
	Freq      int   // Number of occurrences of the term in the document
	Positions []int // Ascending token positions
}

// PostingList is ordered by ascending DocID with no duplicate DocID.
type PostingList []Posting

// DocIDs returns the document ids of the list in order.
func (pl PostingList) DocIDs() []int {
	ids := make([]int, len(pl))
	for i, p := range pl {
		ids[i] = p.DocID
	}
	return ids
}

// Find returns the posting for docID using binary search.
func (pl PostingList) Find(docID int) (Posting, bool) {
	i := sort.Search(len(pl), func(i int) bool { return pl[i].DocID >= docID })
	if i < len(pl) && pl[i].DocID == docID {
		return pl[i], true
	}
	return Posting{}, false
}

// DocumentStats stores statistics about a single document
type DocumentStats struct {
	Length      int // Number of terms in the document
	UniqueTerms int // Number of distinct terms, i.e. its contribution to Σ df
}

// ═══════════════════════════════════════════════════════════════════════════════
// CORE DATA STRUCTURE: InvertedIndex
// ═══════════════════════════════════════════════════════════════════════════════
//
//	InvertedIndex
//	├── postings: map[string]PostingList        (POSITION-LEVEL)
//	│   └── "cat" → [{Doc1, tf, [0]}, {Doc3, tf, [0]}]
//	├── bitmaps:  map[string]*roaring.Bitmap    (DOCUMENT-LEVEL)
//	│   └── "cat" → {1, 3}
//	├── docs:     map[int]*Document
//	└── stats:    map[int]DocumentStats
//
// Posting lists answer "how often and where", bitmaps answer "which documents"
// and make candidate unions and phrase prefilters cheap.
//
// There is no mutex: nothing is written after Build returns, so any number of
// goroutines may read concurrently.
// ═══════════════════════════════════════════════════════════════════════════════
type InvertedIndex struct {
	analyzer *Analyzer

	postings map[string]PostingList
	bitmaps  map[string]*roaring.Bitmap

	docs  map[int]*Document
	stats map[int]DocumentStats

	totalDocs    int
	totalLength  int64
	avgDocLength float64
}

// Build indexes documents with the given analyzer and returns a frozen index.
//
// STEP-BY-STEP:
// -------------
//  1. Reject ids outside [1, MaxUint32] and ids seen before
//  2. Analyze title + body into positioned tokens
//  3. Group tokens by term: frequency and position list per term
//  4. Append one posting per distinct term to that term's list
//  5. Sort every posting list by DocID and compute avgDocLength
//
// Documents may arrive in any order; step 5 restores DocID order.
func Build(documents []Document, analyzer *Analyzer) (*InvertedIndex, error) {
	if analyzer == nil {
		analyzer = NewDefaultAnalyzer()
	}

	idx := &InvertedIndex{
		analyzer: analyzer,
		postings: make(map[string]PostingList),
		bitmaps:  make(map[string]*roaring.Bitmap),
		docs:     make(map[int]*Document, len(documents)),
		stats:    make(map[int]DocumentStats, len(documents)),
	}

	for _, doc := range documents {
		if err := idx.add(doc); err != nil {
			return nil, err
		}
	}

	idx.finish()

	slog.Info("index built",
		slog.Int("documents", idx.totalDocs),
		slog.Int("terms", len(idx.postings)),
		slog.Float64("avgDocLength", idx.avgDocLength))

	return idx, nil
}

func (idx *InvertedIndex) add(doc Document) error {
	if doc.ID < 1 || uint64(doc.ID) > math.MaxUint32 {
		return &IndexError{DocID: doc.ID, Err: ErrInvalidDocID}
	}
	if _, exists := idx.docs[doc.ID]; exists {
		return &IndexError{DocID: doc.ID, Err: ErrDuplicateDocID}
	}

	tokens := idx.analyzer.Tokens(doc.Title + "\n" + doc.Body)

	perTerm := make(map[string]*Posting)
	for _, token := range tokens {
		p, exists := perTerm[token.Term]
		if !exists {
			p = &Posting{DocID: doc.ID, Positions: make([]int, 0, 2)}
			perTerm[token.Term] = p
		}
		p.Freq++
		p.Positions = append(p.Positions, token.Position)
	}

	for term, p := range perTerm {
		idx.postings[term] = append(idx.postings[term], *p)
		bitmap, exists := idx.bitmaps[term]
		if !exists {
			bitmap = roaring.NewBitmap()
			idx.bitmaps[term] = bitmap
		}
		bitmap.Add(uint32(doc.ID))
	}

	stored := doc
	stored.Length = len(tokens)
	idx.docs[doc.ID] = &stored
	idx.stats[doc.ID] = DocumentStats{Length: len(tokens), UniqueTerms: len(perTerm)}
	idx.totalDocs++
	idx.totalLength += int64(len(tokens))
	return nil
}

func (idx *InvertedIndex) finish() {
	for term, pl := range idx.postings {
		sort.Slice(pl, func(i, j int) bool { return pl[i].DocID < pl[j].DocID })
		idx.postings[term] = pl
	}
	for _, bitmap := range idx.bitmaps {
		bitmap.RunOptimize()
	}
	if idx.totalDocs > 0 {
		idx.avgDocLength = float64(idx.totalLength) / float64(idx.totalDocs)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOOKUPS
// ═══════════════════════════════════════════════════════════════════════════════
// All lookups are map hits. Slices and bitmaps returned here belong to the
// index and must not be modified.

// Analyzer returns the analyzer the index was built with. Queries must use it
// to stay symmetric with the indexed terms.
func (idx *InvertedIndex) Analyzer() *Analyzer {
	return idx.analyzer
}

// Postings returns the posting list for an analyzed term, or nil.
func (idx *InvertedIndex) Postings(term string) PostingList {
	return idx.postings[term]
}

// DocumentFrequency returns the number of documents containing term.
func (idx *InvertedIndex) DocumentFrequency(term string) int {
	return len(idx.postings[term])
}

// DocLength returns the number of terms in a document, 0 if unknown.
func (idx *InvertedIndex) DocLength(docID int) int {
	return idx.stats[docID].Length
}

// DocStats returns length and distinct-term statistics for a document.
func (idx *InvertedIndex) DocStats(docID int) (DocumentStats, bool) {
	s, ok := idx.stats[docID]
	return s, ok
}

// Document returns a copy of the stored document.
func (idx *InvertedIndex) Document(docID int) (Document, bool) {
	doc, ok := idx.docs[docID]
	if !ok {
		return Document{}, false
	}
	return *doc, true
}

// TotalDocs returns the number of indexed documents.
func (idx *InvertedIndex) TotalDocs() int {
	return idx.totalDocs
}

// AvgDocLength returns the mean document length in terms.
func (idx *InvertedIndex) AvgDocLength() float64 {
	return idx.avgDocLength
}

// Terms returns the vocabulary in lexical order.
func (idx *InvertedIndex) Terms() []string {
	terms := make([]string, 0, len(idx.postings))
	for term := range idx.postings {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// DocIDs returns all indexed document ids in ascending order.
func (idx *InvertedIndex) DocIDs() []int {
	ids := make([]int, 0, len(idx.docs))
	for id := range idx.docs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// docBitmap returns the document bitmap for a term, or nil.
func (idx *InvertedIndex) docBitmap(term string) *roaring.Bitmap {
	return idx.bitmaps[term]
}
