package cranrank

import (
	"errors"
	"fmt"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ERROR DEFINITIONS
// ═══════════════════════════════════════════════════════════════════════════════
// Sentinels say WHAT went wrong and can be matched with errors.Is. The three
// typed errors say WHERE (which document, which query, which evaluation) and
// can be matched with errors.As. Each typed error fails only the single call
// that produced it; the caller decides whether to skip or abort.
var (
	ErrDuplicateDocID    = errors.New("duplicate document id")
	ErrInvalidDocID      = errors.New("document id out of range")
	ErrNoClauses         = errors.New("query has no searchable terms")
	ErrNoQueries         = errors.New("no queries to evaluate")
	ErrNoScorableQueries = errors.New("every query failed")
	ErrUnknownScorer     = errors.New("unknown scoring model")
	ErrUnknownStemmer    = errors.New("unknown stemmer")
	ErrCorruptSnapshot   = errors.New("corrupt index snapshot")
)

// IndexError reports a document that could not be indexed.
type IndexError struct {
	DocID int
	Err   error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index: document %d: %v", e.DocID, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

// QueryError reports a query string that could not be turned into clauses.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %q: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// EvaluationError reports an evaluation that could not produce a MAP value.
type EvaluationError struct {
	Err error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation: %v", e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}
