package cranrank

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"
)

// DefaultTopK is the number of results a Searcher returns unless told otherwise.
const DefaultTopK = 50

// ═══════════════════════════════════════════════════════════════════════════════
// SCORING MODELS
// ═══════════════════════════════════════════════════════════════════════════════
// Every model here factors into a term-frequency part and a rarity part:
//
//	score(doc) = Σ over matched clauses  TF(tf, docLen) × IDF(df)
//
// so a Scorer only has to supply those two functions. Candidate generation,
// phrase matching, tie-breaking and truncation live in the Searcher and are
// identical for every model, which keeps rankings comparable.
//
// For a phrase clause tf is the number of times the whole phrase occurs and
// the rarity part is the sum of the IDFs of its terms.
// ═══════════════════════════════════════════════════════════════════════════════

// Scorer is a pluggable ranking function.
type Scorer interface {
	Name() string
	IDF(df, totalDocs int) float64
	TF(tf float64, docLen int, avgDocLen float64) float64
}

// ═══════════════════════════════════════════════════════════════════════════════
// BM25
// ═══════════════════════════════════════════════════════════════════════════════
// For each term in the query:
//
//	score += IDF(term) * (TF * (k1 + 1)) / (TF + k1 * (1 - b + b * (docLen / avgDocLen)))
//	IDF    = ln(1 + (N - df + 0.5) / (df + 0.5))
//
// k1 controls how quickly repeated occurrences stop paying off, b how strongly
// long documents are pulled back toward the average.
// ═══════════════════════════════════════════════════════════════════════════════

// BM25Parameters holds the tuning parameters for BM25 algorithm
type BM25Parameters struct {
	K1 float64 // Term frequency saturation (typical: 1.2-2.0)
	B  float64 // Length normalization (typical: 0.75)
}

// DefaultBM25Parameters returns the standard BM25 parameters
func DefaultBM25Parameters() BM25Parameters {
	return BM25Parameters{
		K1: 1.2,
		B:  0.75,
	}
}

// BM25 is the Okapi BM25 probabilistic model.
type BM25 struct {
	Params BM25Parameters
}

// NewBM25 creates a BM25 scorer with the given parameters.
func NewBM25(params BM25Parameters) *BM25 {
	return &BM25{Params: params}
}

func (s *BM25) Name() string { return "bm25" }

// IDF never goes negative, even for a term present in every document.
func (s *BM25) IDF(df, totalDocs int) float64 {
	if df <= 0 {
		return 0
	}
	n := float64(totalDocs)
	d := float64(df)
	return math.Log(1 + (n-d+0.5)/(d+0.5))
}

func (s *BM25) TF(tf float64, docLen int, avgDocLen float64) float64 {
	if tf <= 0 {
		return 0
	}
	k1, b := s.Params.K1, s.Params.B
	lengthRatio := 1.0
	if avgDocLen > 0 {
		lengthRatio = float64(docLen) / avgDocLen
	}
	return (tf * (k1 + 1)) / (tf + k1*(1-b+b*lengthRatio))
}

// ═══════════════════════════════════════════════════════════════════════════════
// CLASSIC TF-IDF
// ═══════════════════════════════════════════════════════════════════════════════
//
//	score += sqrt(tf) * (1 + ln(N / (df + 1)))
//
// No saturation and no length normalization, so it rewards long documents and
// repeated terms more than BM25 does.
// ═══════════════════════════════════════════════════════════════════════════════

// TFIDF is the classic vector-space weighting.
type TFIDF struct{}

// NewTFIDF creates a classic TF-IDF scorer.
func NewTFIDF() *TFIDF {
	return &TFIDF{}
}

func (s *TFIDF) Name() string { return "tfidf" }

func (s *TFIDF) IDF(df, totalDocs int) float64 {
	if df <= 0 {
		return 0
	}
	return 1 + math.Log(float64(totalDocs)/float64(df+1))
}

func (s *TFIDF) TF(tf float64, _ int, _ float64) float64 {
	if tf <= 0 {
		return 0
	}
	return math.Sqrt(tf)
}

// ScorerByName returns the scorer registered under name ("bm25" or "tfidf").
func ScorerByName(name string, params BM25Parameters) (Scorer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bm25":
		return NewBM25(params), nil
	case "tfidf", "tf-idf", "classic":
		return NewTFIDF(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScorer, name)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// RANKING
// ═══════════════════════════════════════════════════════════════════════════════

// ScoredResult is one ranked document.
type ScoredResult struct {
	DocID int
	Score float64
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithTopK caps the number of results; k <= 0 returns every candidate.
func WithTopK(k int) SearcherOption {
	return func(s *Searcher) {
		s.topK = k
	}
}

// Searcher ranks documents of one index with one scoring model. It is safe for
// concurrent use because it only reads the index.
type Searcher struct {
	index  *InvertedIndex
	parser *QueryParser
	scorer Scorer
	topK   int
}

// NewSearcher creates a searcher whose query parser shares the index analyzer.
func NewSearcher(index *InvertedIndex, scorer Scorer, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		index:  index,
		parser: NewQueryParser(index.Analyzer()),
		scorer: scorer,
		topK:   DefaultTopK,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scorer returns the scoring model of the searcher.
func (s *Searcher) Scorer() Scorer {
	return s.scorer
}

// Parser returns the query parser of the searcher.
func (s *Searcher) Parser() *QueryParser {
	return s.parser
}

// Search parses raw and ranks the index against it.
func (s *Searcher) Search(raw string) ([]ScoredResult, error) {
	q, err := s.parser.Parse(raw)
	if err != nil {
		return nil, err
	}
	return s.Rank(q), nil
}

// Rank scores every candidate document for q
//
// ALGORITHM:
// ----------
//  1. Match every clause: per-document clause frequency and the clause IDF
//  2. Candidates = union of the matched-document bitmaps of all clauses
//  3. score(doc) = Σ clauses TF(freq) × IDF
//  4. Sort by score desc, DocID asc; keep the top K
//
// EXAMPLE:
// --------
// Query [cat] [dog] over
//
//	Doc1 "the cat sat"   → matches [cat]
//	Doc2 "the dog sat"   → matches [dog]
//	Doc3 "cats and dogs" → matches [cat] and [dog]
//
// Candidates are {1, 2, 3} and Doc3 collects two contributions, so it ranks
// first under every model.
func (s *Searcher) Rank(q ParsedQuery) []ScoredResult {
	matches := s.matchClauses(q)
	candidates := unionCandidates(matches)

	n := s.index.TotalDocs()
	avgDocLen := s.index.AvgDocLength()

	idfs := make([]float64, len(matches))
	for i, m := range matches {
		idfs[i] = m.idf(s.scorer, n)
	}

	results := make([]ScoredResult, 0, candidates.GetCardinality())
	iter := candidates.Iterator()
	for iter.HasNext() {
		docID := int(iter.Next())
		docLen := s.index.DocLength(docID)

		score := 0.0
		for i, m := range matches {
			tf := m.freqs[docID]
			if tf == 0 {
				continue
			}
			score += s.scorer.TF(float64(tf), docLen, avgDocLen) * idfs[i]
		}
		results = append(results, ScoredResult{DocID: docID, Score: score})
	}

	sortResults(results)
	results = limitResults(results, s.topK)

	slog.Debug("query ranked",
		slog.String("scorer", s.scorer.Name()),
		slog.String("query", q.Raw),
		slog.Int("candidates", int(candidates.GetCardinality())),
		slog.Int("results", len(results)))

	return results
}

// Candidates returns the ascending ids of every document that matches at
// least one clause of q. The set does not depend on the scoring model.
func (s *Searcher) Candidates(q ParsedQuery) []int {
	arr := unionCandidates(s.matchClauses(q)).ToArray()
	ids := make([]int, len(arr))
	for i, id := range arr {
		ids[i] = int(id)
	}
	return ids
}

// clauseMatch is the evaluated form of one clause.
type clauseMatch struct {
	dfs   []int           // Document frequency of every clause term
	docs  *roaring.Bitmap // Documents where the clause matches
	freqs map[int]int     // DocID → clause frequency (> 0)
}

func (m clauseMatch) idf(scorer Scorer, totalDocs int) float64 {
	sum := 0.0
	for _, df := range m.dfs {
		sum += scorer.IDF(df, totalDocs)
	}
	return sum
}

func (s *Searcher) matchClauses(q ParsedQuery) []clauseMatch {
	matches := make([]clauseMatch, 0, len(q.Clauses))
	for _, c := range q.Clauses {
		if c.IsPhrase() {
			matches = append(matches, s.matchPhrase(c.Terms))
		} else if len(c.Terms) == 1 {
			matches = append(matches, s.matchTerm(c.Terms[0]))
		}
	}
	return matches
}

func (s *Searcher) matchTerm(term string) clauseMatch {
	pl := s.index.Postings(term)
	m := clauseMatch{
		dfs:   []int{len(pl)},
		docs:  roaring.NewBitmap(),
		freqs: make(map[int]int, len(pl)),
	}
	if bitmap := s.index.docBitmap(term); bitmap != nil {
		m.docs = bitmap
	}
	for _, p := range pl {
		m.freqs[p.DocID] = p.Freq
	}
	return m
}

// matchPhrase finds the documents where terms occur at consecutive positions
//
// ALGORITHM:
// ----------
//  1. Intersect the term bitmaps: only documents holding every term can match
//  2. For each such document, count start positions p of the first term such
//     that term i occurs at p+i for every i
//  3. Documents with a count of zero are dropped
//
// Example: "boundari layer" in "layer boundari layer" (positions 0 1 2)
//
//	boundari at 1, layer at 2 → one occurrence starting at 1
func (s *Searcher) matchPhrase(terms []string) clauseMatch {
	m := clauseMatch{
		dfs:   make([]int, len(terms)),
		docs:  roaring.NewBitmap(),
		freqs: make(map[int]int),
	}

	bitmaps := make([]*roaring.Bitmap, len(terms))
	lists := make([]PostingList, len(terms))
	for i, term := range terms {
		m.dfs[i] = s.index.DocumentFrequency(term)
		bitmaps[i] = s.index.docBitmap(term)
		lists[i] = s.index.Postings(term)
		if bitmaps[i] == nil {
			return m
		}
	}

	iter := roaring.FastAnd(bitmaps...).Iterator()
	for iter.HasNext() {
		docID := int(iter.Next())
		positions := make([][]int, len(terms))
		for i, pl := range lists {
			p, _ := pl.Find(docID)
			positions[i] = p.Positions
		}
		if freq := countPhrase(positions); freq > 0 {
			m.freqs[docID] = freq
			m.docs.Add(uint32(docID))
		}
	}
	return m
}

// countPhrase counts start positions where positions[i] contains start+i for
// every i. Each position slice is ascending.
func countPhrase(positions [][]int) int {
	if len(positions) == 0 {
		return 0
	}
	count := 0
	for _, start := range positions[0] {
		matched := true
		for i := 1; i < len(positions); i++ {
			if !containsSorted(positions[i], start+i) {
				matched = false
				break
			}
		}
		if matched {
			count++
		}
	}
	return count
}

func containsSorted(values []int, target int) bool {
	i := sort.SearchInts(values, target)
	return i < len(values) && values[i] == target
}

func unionCandidates(matches []clauseMatch) *roaring.Bitmap {
	bitmaps := make([]*roaring.Bitmap, 0, len(matches))
	for _, m := range matches {
		bitmaps = append(bitmaps, m.docs)
	}
	if len(bitmaps) == 0 {
		return roaring.NewBitmap()
	}
	return roaring.FastOr(bitmaps...)
}

// sortResults orders by descending score; equal scores fall back to ascending
// DocID so rankings are reproducible run to run.
func sortResults(results []ScoredResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
}

// limitResults returns at most maxResults items; maxResults <= 0 keeps all.
func limitResults(results []ScoredResult, maxResults int) []ScoredResult {
	if maxResults <= 0 || len(results) <= maxResults {
		return results
	}
	return results[:maxResults]
}
