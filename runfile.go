package cranrank

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RUN FILES
// ═══════════════════════════════════════════════════════════════════════════════
// Rankings are written in the six-column TREC run format understood by
// trec_eval:
//
//	query-id Q0 document-id rank score run-tag
//
// Example:
//
//	1 Q0 184 1 11.2387 cranrank-bm25
//	1 Q0 29 2 10.0954 cranrank-bm25
//
// Ranks start at 1. Q0 is a literal placeholder column.
// ═══════════════════════════════════════════════════════════════════════════════

// WriteRun writes the ranking of one query.
func WriteRun(w io.Writer, queryID string, results []ScoredResult, runTag string) error {
	for i, r := range results {
		if _, err := fmt.Fprintf(w, "%s Q0 %d %d %.4f %s\n", queryID, r.DocID, i+1, r.Score, runTag); err != nil {
			return err
		}
	}
	return nil
}

// WriteRuns writes every ranking of eval in natural query-id order.
func WriteRuns(w io.Writer, eval *Evaluation, runTag string) error {
	bw := bufio.NewWriter(w)
	for _, id := range eval.QueryIDs() {
		if err := WriteRun(bw, id, eval.Rankings[id], runTag); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteRunFile replaces the file at path with the rankings of eval.
func WriteRunFile(path string, eval *Evaluation, runTag string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create run file: %w", err)
	}

	if err := WriteRuns(f, eval, runTag); err != nil {
		f.Close()
		return fmt.Errorf("write run file %s: %w", path, err)
	}
	return f.Close()
}
