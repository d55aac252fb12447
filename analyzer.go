// ═══════════════════════════════════════════════════════════════════════════════
// TEXT ANALYSIS
// ═══════════════════════════════════════════════════════════════════════════════
// Every piece of text that enters the engine, documents and queries alike, goes
// through the same Analyzer. Index terms and query terms only line up because
// both sides were normalized by identical code.
//
// ANALYSIS PIPELINE (fixed order):
// --------------------------------
//  1. Tokenization      → split on anything that is not a letter or digit
//  2. Lowercasing       → "Boundary" → "boundary"
//  3. Stop word removal → drop "the", "of", "and", ...
//  4. Length filtering  → drop tokens shorter than MinTokenLength
//  5. Stemming          → "layers" → "layer", "heated" → "heat"
//
// EXAMPLE:
// --------
// Input:  "The Boundary Layers of heated plates"
// Step 1: ["The", "Boundary", "Layers", "of", "heated", "plates"]
// Step 2: ["the", "boundary", "layers", "of", "heated", "plates"]
// Step 3: ["boundary", "layers", "heated", "plates"]
// Step 5: ["boundari", "layer", "heat", "plate"]
//
// The stop set is the classic 33-word English list used by Lucene's
// StandardAnalyzer; "down", "first" and "system" are kept.
// ═══════════════════════════════════════════════════════════════════════════════

package cranrank

import (
	"fmt"
	"strings"
	"unicode"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
	snowballeng "github.com/kljensen/snowball/english"
)

// StemmerKind selects the stemming algorithm applied as the last analysis step.
type StemmerKind int

const (
	// StemmerSnowball is the Porter2 (English Snowball) stemmer.
	StemmerSnowball StemmerKind = iota
	// StemmerPorter is the original 1980 Porter stemmer.
	StemmerPorter
	// StemmerNone disables stemming.
	StemmerNone
)

// String returns the configuration name of the stemmer.
func (k StemmerKind) String() string {
	switch k {
	case StemmerSnowball:
		return "snowball"
	case StemmerPorter:
		return "porter"
	case StemmerNone:
		return "none"
	default:
		return fmt.Sprintf("stemmer(%d)", int(k))
	}
}

// ParseStemmer maps a configuration name to a StemmerKind.
func ParseStemmer(name string) (StemmerKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "snowball", "porter2":
		return StemmerSnowball, nil
	case "porter":
		return StemmerPorter, nil
	case "none", "off":
		return StemmerNone, nil
	default:
		return StemmerNone, fmt.Errorf("%w: %q", ErrUnknownStemmer, name)
	}
}

// AnalyzerConfig holds configuration options for text analysis
type AnalyzerConfig struct {
	MinTokenLength  int         // Minimum token length to keep (default: 1)
	EnableStopwords bool        // Whether to remove stopwords (default: true)
	Stemmer         StemmerKind // Stemming algorithm (default: snowball)
}

// DefaultConfig returns the standard analyzer configuration
func DefaultConfig() AnalyzerConfig {
	return AnalyzerConfig{
		MinTokenLength:  1,
		EnableStopwords: true,
		Stemmer:         StemmerSnowball,
	}
}

// Token is a normalized term and its position in the normalized token
// sequence of the text it came from.
type Token struct {
	Term     string
	Position int
}

// Analyzer turns raw text into normalized terms. It holds no mutable state,
// so one Analyzer can be shared by any number of goroutines.
type Analyzer struct {
	config AnalyzerConfig
}

// NewAnalyzer creates an analyzer for the given configuration.
func NewAnalyzer(config AnalyzerConfig) *Analyzer {
	if config.MinTokenLength < 1 {
		config.MinTokenLength = 1
	}
	return &Analyzer{config: config}
}

// NewDefaultAnalyzer creates an analyzer with DefaultConfig.
func NewDefaultAnalyzer() *Analyzer {
	return NewAnalyzer(DefaultConfig())
}

// Config returns the configuration the analyzer was built with.
func (a *Analyzer) Config() AnalyzerConfig {
	return a.config
}

// Analyze transforms raw text into normalized terms
//
// Example:
//
//	NewDefaultAnalyzer().Analyze("The cat sat on the mats")
//	// Returns: ["cat", "sat", "mat"]
func (a *Analyzer) Analyze(text string) []string {
	tokens := tokenize(text)
	tokens = lowercaseFilter(tokens)

	if a.config.EnableStopwords {
		tokens = stopwordFilter(tokens)
	}

	tokens = lengthFilter(tokens, a.config.MinTokenLength)

	return stemmerFilter(tokens, a.config.Stemmer)
}

// Tokens analyzes text and attaches sequence positions to each surviving term.
// Positions count normalized terms only, so removed stopwords leave no gaps.
func (a *Analyzer) Tokens(text string) []Token {
	terms := a.Analyze(text)
	tokens := make([]Token, len(terms))
	for i, term := range terms {
		tokens[i] = Token{Term: term, Position: i}
	}
	return tokens
}

// tokenize splits text into individual words
//
// Any rune that is not a letter or a number is a delimiter:
//
//	"hello-world"  → ["hello", "world"]
//	"mach 2.5"     → ["mach", "2", "5"]
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func lowercaseFilter(tokens []string) []string {
	r := make([]string, len(tokens))
	for i, token := range tokens {
		r[i] = strings.ToLower(token)
	}
	return r
}

func stopwordFilter(tokens []string) []string {
	r := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !IsStopword(token) {
			r = append(r, token)
		}
	}
	return r
}

// lengthFilter counts runes, not bytes, so accented words are not penalized.
func lengthFilter(tokens []string, minLength int) []string {
	if minLength <= 1 {
		return tokens
	}
	r := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if len([]rune(token)) >= minLength {
			r = append(r, token)
		}
	}
	return r
}

// stemmerFilter reduces words to their root form
//
//	["layers", "heated", "plates"] → ["layer", "heat", "plate"]
//
// Snowball is called with stemStopWords=false; its own tiny stop list only
// matters for words our stop set already let through, such as "very".
func stemmerFilter(tokens []string, kind StemmerKind) []string {
	if kind == StemmerNone {
		return tokens
	}
	r := make([]string, 0, len(tokens))
	for _, token := range tokens {
		var stem string
		switch kind {
		case StemmerPorter:
			stem = porterstemmer.StemString(token)
		default:
			stem = snowballeng.Stem(token, false)
		}
		if stem != "" {
			r = append(r, stem)
		}
	}
	return r
}

// IsStopword reports whether a lowercased token is in the English stop set.
func IsStopword(token string) bool {
	_, exists := englishStopwords[token]
	return exists
}

var englishStopwords = map[string]struct{}{
	"a":     {},
	"an":    {},
	"and":   {},
	"are":   {},
	"as":    {},
	"at":    {},
	"be":    {},
	"but":   {},
	"by":    {},
	"for":   {},
	"if":    {},
	"in":    {},
	"into":  {},
	"is":    {},
	"it":    {},
	"no":    {},
	"not":   {},
	"of":    {},
	"on":    {},
	"or":    {},
	"such":  {},
	"that":  {},
	"the":   {},
	"their": {},
	"then":  {},
	"there": {},
	"these": {},
	"they":  {},
	"this":  {},
	"to":    {},
	"was":   {},
	"will":  {},
	"with":  {},
}
