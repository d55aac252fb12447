package cranrank

import (
	"bytes"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ROUND TRIP TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestEncodeDecode_RoundTrip(t *testing.T) {
	docs := append(catDogCorpus(),
		Document{ID: 12, Title: "Boundary layer", Body: "boundary layer in a boundary layer"},
		Document{ID: 40},
	)
	original := buildTestIndex(t, docs)

	data, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	restored, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if restored.TotalDocs() != original.TotalDocs() {
		t.Errorf("TotalDocs() = %d, want %d", restored.TotalDocs(), original.TotalDocs())
	}
	if restored.AvgDocLength() != original.AvgDocLength() {
		t.Errorf("AvgDocLength() = %f, want %f", restored.AvgDocLength(), original.AvgDocLength())
	}
	if !reflect.DeepEqual(restored.Terms(), original.Terms()) {
		t.Errorf("Terms() = %v, want %v", restored.Terms(), original.Terms())
	}
	if restored.Analyzer().Config() != original.Analyzer().Config() {
		t.Errorf("analyzer config = %+v, want %+v", restored.Analyzer().Config(), original.Analyzer().Config())
	}

	for _, term := range original.Terms() {
		if !reflect.DeepEqual(restored.Postings(term), original.Postings(term)) {
			t.Errorf("Postings(%q) = %v, want %v", term, restored.Postings(term), original.Postings(term))
		}
	}
	for _, id := range original.DocIDs() {
		ws, _ := original.DocStats(id)
		gs, ok := restored.DocStats(id)
		if !ok || gs != ws {
			t.Errorf("DocStats(%d) = %+v, want %+v", id, gs, ws)
		}
		wd, _ := original.Document(id)
		gd, _ := restored.Document(id)
		if gd != wd {
			t.Errorf("Document(%d) = %+v, want %+v", id, gd, wd)
		}
	}

	for _, scorer := range []Scorer{NewBM25(DefaultBM25Parameters()), NewTFIDF()} {
		want, _ := NewSearcher(original, scorer).Search("boundary cat dog")
		got, _ := NewSearcher(restored, scorer).Search("boundary cat dog")
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s: restored ranking %v, want %v", scorer.Name(), got, want)
		}
	}
}

func TestEncode_Deterministic(t *testing.T) {
	idx := buildTestIndex(t, catDogCorpus())

	first, err := idx.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, _ := idx.Encode()
		if !bytes.Equal(first, again) {
			t.Fatal("Encode() is not deterministic")
		}
	}

	restored, err := Decode(first)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	reencoded, _ := restored.Encode()
	if !bytes.Equal(first, reencoded) {
		t.Error("Encode(Decode(data)) != data")
	}
}

func TestEncodeDecode_AnalyzerConfig(t *testing.T) {
	cfg := AnalyzerConfig{MinTokenLength: 3, EnableStopwords: false, Stemmer: StemmerPorter}
	idx, err := Build(catDogCorpus(), NewAnalyzer(cfg))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	data, _ := idx.Encode()
	restored, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if restored.Analyzer().Config() != cfg {
		t.Errorf("analyzer config = %+v, want %+v", restored.Analyzer().Config(), cfg)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// CORRUPTION TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestDecode_Corrupt(t *testing.T) {
	idx := buildTestIndex(t, catDogCorpus())
	data, _ := idx.Encode()

	badMagic := append([]byte("XXXX"), data[4:]...)
	badVersion := append([]byte{}, data...)
	badVersion[4] = 99
	trailing := append(append([]byte{}, data...), 0)

	tests := map[string][]byte{
		"empty":       nil,
		"bad magic":   badMagic,
		"bad version": badVersion,
		"truncated":   data[:len(data)-3],
		"header only": data[:10],
		"trailing":    trailing,
	}

	for name, input := range tests {
		if _, err := Decode(input); !errors.Is(err, ErrCorruptSnapshot) {
			t.Errorf("%s: Decode() error = %v, want ErrCorruptSnapshot", name, err)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// FILE TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestSaveLoadSnapshot(t *testing.T) {
	idx := buildTestIndex(t, catDogCorpus())
	path := filepath.Join(t.TempDir(), "nested", "index.snap")

	if err := SaveSnapshot(path, idx); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if !reflect.DeepEqual(loaded.Terms(), idx.Terms()) {
		t.Errorf("Terms() = %v, want %v", loaded.Terms(), idx.Terms())
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if len(matches) != 0 {
		t.Errorf("temporary files left behind: %v", matches)
	}
}

func TestLoadSnapshot_Missing(t *testing.T) {
	if _, err := LoadSnapshot(filepath.Join(t.TempDir(), "absent.snap")); err == nil {
		t.Error("LoadSnapshot() of a missing file succeeded")
	}
}
