package cranrank

import (
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"
)

// catDogCorpus is the three-document corpus used throughout the tests.
//
//	Doc1 → [cat sat]
//	Doc2 → [dog sat down]
//	Doc3 → [cat dog]
func catDogCorpus() []Document {
	return []Document{
		{ID: 1, Body: "the cat sat"},
		{ID: 2, Body: "the dog sat down"},
		{ID: 3, Body: "cats and dogs"},
	}
}

func buildTestIndex(t testing.TB, docs []Document) *InvertedIndex {
	t.Helper()
	idx, err := Build(docs, NewDefaultAnalyzer())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return idx
}

// ═══════════════════════════════════════════════════════════════════════════════
// BUILD TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestBuild_Postings(t *testing.T) {
	idx := buildTestIndex(t, catDogCorpus())

	tests := []struct {
		term string
		want PostingList
	}{
		{"cat", PostingList{{DocID: 1, Freq: 1, Positions: []int{0}}, {DocID: 3, Freq: 1, Positions: []int{0}}}},
		{"dog", PostingList{{DocID: 2, Freq: 1, Positions: []int{0}}, {DocID: 3, Freq: 1, Positions: []int{1}}}},
		{"sat", PostingList{{DocID: 1, Freq: 1, Positions: []int{1}}, {DocID: 2, Freq: 1, Positions: []int{1}}}},
		{"down", PostingList{{DocID: 2, Freq: 1, Positions: []int{2}}}},
		{"the", nil},
	}

	for _, tt := range tests {
		got := idx.Postings(tt.term)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Postings(%q) = %v, want %v", tt.term, got, tt.want)
		}
		if df := idx.DocumentFrequency(tt.term); df != len(tt.want) {
			t.Errorf("DocumentFrequency(%q) = %d, want %d", tt.term, df, len(tt.want))
		}
	}
}

func TestBuild_Statistics(t *testing.T) {
	idx := buildTestIndex(t, catDogCorpus())

	if idx.TotalDocs() != 3 {
		t.Errorf("TotalDocs() = %d, want 3", idx.TotalDocs())
	}

	wantLengths := map[int]int{1: 2, 2: 3, 3: 2}
	for id, want := range wantLengths {
		if got := idx.DocLength(id); got != want {
			t.Errorf("DocLength(%d) = %d, want %d", id, got, want)
		}
		doc, ok := idx.Document(id)
		if !ok || doc.Length != want {
			t.Errorf("Document(%d).Length = %d, want %d", id, doc.Length, want)
		}
	}

	if got, want := idx.AvgDocLength(), 7.0/3.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("AvgDocLength() = %f, want %f", got, want)
	}

	if idx.DocLength(99) != 0 {
		t.Errorf("DocLength(99) = %d, want 0", idx.DocLength(99))
	}
}

func TestBuild_DocumentFrequencySum(t *testing.T) {
	idx := buildTestIndex(t, catDogCorpus())

	sumDF := 0
	for _, term := range idx.Terms() {
		sumDF += idx.DocumentFrequency(term)
	}

	sumUnique := 0
	for _, id := range idx.DocIDs() {
		s, ok := idx.DocStats(id)
		if !ok {
			t.Fatalf("DocStats(%d) missing", id)
		}
		sumUnique += s.UniqueTerms
	}

	if sumDF != sumUnique {
		t.Errorf("Σ df = %d, Σ distinct terms = %d", sumDF, sumUnique)
	}
}

func TestBuild_TitleAndBody(t *testing.T) {
	idx := buildTestIndex(t, []Document{{ID: 7, Title: "Heat", Body: "transfer"}})

	if p, ok := idx.Postings("heat").Find(7); !ok || p.Positions[0] != 0 {
		t.Errorf("heat posting = %+v, want position 0", p)
	}
	if p, ok := idx.Postings("transfer").Find(7); !ok || p.Positions[0] != 1 {
		t.Errorf("transfer posting = %+v, want position 1", p)
	}
}

func TestBuild_RepeatedTerm(t *testing.T) {
	idx := buildTestIndex(t, []Document{{ID: 1, Body: "flow over flow near flow"}})

	p, ok := idx.Postings("flow").Find(1)
	if !ok {
		t.Fatal("flow not indexed")
	}
	if p.Freq != 3 {
		t.Errorf("Freq = %d, want 3", p.Freq)
	}
	if !reflect.DeepEqual(p.Positions, []int{0, 2, 4}) {
		t.Errorf("Positions = %v, want [0 2 4]", p.Positions)
	}
}

func TestBuild_InputOrderIndependent(t *testing.T) {
	docs := catDogCorpus()
	reversed := []Document{docs[2], docs[0], docs[1]}

	a := buildTestIndex(t, docs)
	b := buildTestIndex(t, reversed)

	for _, term := range a.Terms() {
		if !reflect.DeepEqual(a.Postings(term), b.Postings(term)) {
			t.Errorf("Postings(%q) differ: %v vs %v", term, a.Postings(term), b.Postings(term))
		}
	}
}

func TestBuild_EmptyCorpus(t *testing.T) {
	idx := buildTestIndex(t, nil)

	if idx.TotalDocs() != 0 {
		t.Errorf("TotalDocs() = %d, want 0", idx.TotalDocs())
	}
	if idx.AvgDocLength() != 0 {
		t.Errorf("AvgDocLength() = %f, want 0", idx.AvgDocLength())
	}
	if len(idx.Terms()) != 0 {
		t.Errorf("Terms() = %v, want empty", idx.Terms())
	}
}

func TestBuild_EmptyDocument(t *testing.T) {
	idx := buildTestIndex(t, []Document{{ID: 1}, {ID: 2, Body: "wing"}})

	if idx.TotalDocs() != 2 {
		t.Errorf("TotalDocs() = %d, want 2", idx.TotalDocs())
	}
	if idx.DocLength(1) != 0 {
		t.Errorf("DocLength(1) = %d, want 0", idx.DocLength(1))
	}
	if idx.AvgDocLength() != 0.5 {
		t.Errorf("AvgDocLength() = %f, want 0.5", idx.AvgDocLength())
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// ERROR TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestBuild_DuplicateID(t *testing.T) {
	docs := append(catDogCorpus(), Document{ID: 2, Body: "again"})

	idx, err := Build(docs, nil)
	if idx != nil {
		t.Error("Build() returned an index alongside an error")
	}

	var indexErr *IndexError
	if !errors.As(err, &indexErr) {
		t.Fatalf("Build() error = %v, want *IndexError", err)
	}
	if indexErr.DocID != 2 {
		t.Errorf("IndexError.DocID = %d, want 2", indexErr.DocID)
	}
	if !errors.Is(err, ErrDuplicateDocID) {
		t.Errorf("Build() error = %v, want ErrDuplicateDocID", err)
	}
}

func TestBuild_InvalidID(t *testing.T) {
	for _, id := range []int{0, -4} {
		_, err := Build([]Document{{ID: id, Body: "wing"}}, nil)
		if !errors.Is(err, ErrInvalidDocID) {
			t.Errorf("Build(id=%d) error = %v, want ErrInvalidDocID", id, err)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOOKUP TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestInvertedIndex_TermsAndDocIDs(t *testing.T) {
	idx := buildTestIndex(t, catDogCorpus())

	wantTerms := []string{"cat", "dog", "down", "sat"}
	if got := idx.Terms(); !reflect.DeepEqual(got, wantTerms) {
		t.Errorf("Terms() = %v, want %v", got, wantTerms)
	}

	wantIDs := []int{1, 2, 3}
	if got := idx.DocIDs(); !reflect.DeepEqual(got, wantIDs) {
		t.Errorf("DocIDs() = %v, want %v", got, wantIDs)
	}
}

func TestPostingList_Find(t *testing.T) {
	pl := PostingList{{DocID: 2, Freq: 1}, {DocID: 5, Freq: 3}, {DocID: 9, Freq: 2}}

	if p, ok := pl.Find(5); !ok || p.Freq != 3 {
		t.Errorf("Find(5) = %+v, %v; want Freq 3", p, ok)
	}
	for _, missing := range []int{1, 3, 10} {
		if _, ok := pl.Find(missing); ok {
			t.Errorf("Find(%d) found a posting", missing)
		}
	}
	if got := pl.DocIDs(); !reflect.DeepEqual(got, []int{2, 5, 9}) {
		t.Errorf("DocIDs() = %v", got)
	}
}

func TestInvertedIndex_ConcurrentReads(t *testing.T) {
	idx := buildTestIndex(t, catDogCorpus())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if idx.DocumentFrequency("cat") != 2 {
					t.Error("DocumentFrequency(cat) != 2")
					return
				}
				_ = idx.Postings("dog")
				_ = idx.DocLength(3)
			}
		}()
	}
	wg.Wait()
}

// ═══════════════════════════════════════════════════════════════════════════════
// BENCHMARKS
// ═══════════════════════════════════════════════════════════════════════════════

func BenchmarkBuild(b *testing.B) {
	docs := make([]Document, 500)
	for i := range docs {
		docs[i] = Document{
			ID:    i + 1,
			Title: "boundary layer on a flat plate",
			Body:  "the laminar boundary layer of a heated plate in supersonic flow with pressure gradient",
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Build(docs, nil); err != nil {
			b.Fatal(err)
		}
	}
}
