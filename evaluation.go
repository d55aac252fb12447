package cranrank

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EVALUATION: Mean Average Precision
// ═══════════════════════════════════════════════════════════════════════════════
// Average Precision rewards a ranking for placing relevant documents early.
// Walking the ranking top-down, every time a relevant document shows up the
// precision at that rank is recorded:
//
//	AP = (Σ precision@rank over relevant hits) / |relevant documents|
//
// The denominator is every document judged relevant, retrieved or not, so a
// short ranking that misses relevant documents is penalized.
//
// EXAMPLE:
// --------
// Relevant: {2, 5}    Ranking: [5, 1, 2, 9]
//
//	rank 1: doc 5 relevant → precision 1/1 = 1.000
//	rank 2: doc 1
//	rank 3: doc 2 relevant → precision 2/3 = 0.667
//	rank 4: doc 9
//
//	AP = (1.000 + 0.667) / 2 = 0.833
//
// MAP is the arithmetic mean of AP over all queries.
// ═══════════════════════════════════════════════════════════════════════════════

// Judgments maps a query id to the set of document ids judged relevant.
type Judgments map[string]map[int]struct{}

// NewJudgments creates an empty judgment set.
func NewJudgments() Judgments {
	return make(Judgments)
}

// Add marks docID relevant for queryID.
func (j Judgments) Add(queryID string, docID int) {
	rel, ok := j[queryID]
	if !ok {
		rel = make(map[int]struct{})
		j[queryID] = rel
	}
	rel[docID] = struct{}{}
}

// Relevant returns the relevant set of a query, nil if it has none.
func (j Judgments) Relevant(queryID string) map[int]struct{} {
	return j[queryID]
}

// IsRelevant reports whether docID is judged relevant for queryID.
func (j Judgments) IsRelevant(queryID string, docID int) bool {
	_, ok := j[queryID][docID]
	return ok
}

// AveragePrecision computes AP for one ranking. A query without judgments, or
// with an empty relevant set, scores 0.
func AveragePrecision(queryID string, ranked []ScoredResult, judgments Judgments) float64 {
	relevant := judgments.Relevant(queryID)
	if len(relevant) == 0 {
		return 0
	}

	hits := 0
	sum := 0.0
	for i, r := range ranked {
		if _, ok := relevant[r.DocID]; ok {
			hits++
			sum += float64(hits) / float64(i+1)
		}
	}
	return sum / float64(len(relevant))
}

// Ranker produces a ranking for a raw query. *Searcher implements it.
type Ranker interface {
	Search(raw string) ([]ScoredResult, error)
}

// QueryOutcome describes one evaluated query; it is handed to the observer
// registered with WithObserver.
type QueryOutcome struct {
	QueryID  string
	AP       float64
	Results  int
	Duration time.Duration
	Err      error
}

type evalOptions struct {
	workers  int
	observer func(QueryOutcome)
}

// EvalOption configures MeanAveragePrecision.
type EvalOption func(*evalOptions)

// WithWorkers bounds the number of queries ranked concurrently. n <= 0 means
// one worker per CPU.
func WithWorkers(n int) EvalOption {
	return func(o *evalOptions) {
		o.workers = n
	}
}

// WithObserver registers fn to be called once per query as it completes. Calls
// may come from several goroutines at once.
func WithObserver(fn func(QueryOutcome)) EvalOption {
	return func(o *evalOptions) {
		o.observer = fn
	}
}

// Evaluation is the outcome of a MAP run.
type Evaluation struct {
	MAP      float64
	PerQuery map[string]float64        // AP of every query that ranked
	Rankings map[string][]ScoredResult // Ranking of every query that ranked
	Failed   map[string]error          // Queries that could not be ranked
}

// QueryIDs returns the ids of ranked queries in natural order ("2" < "10").
func (e *Evaluation) QueryIDs() []string {
	ids := make([]string, 0, len(e.PerQuery))
	for id := range e.PerQuery {
		ids = append(ids, id)
	}
	SortQueryIDs(ids)
	return ids
}

// MeanAveragePrecision ranks every query with ranker and averages the AP
//
// ALGORITHM:
// ----------
//  1. Empty query set → *EvaluationError(ErrNoQueries)
//  2. Rank queries on a bounded worker pool; each worker records its query
//     under a mutex, keyed by query id
//  3. A query whose ranking fails goes to Failed and is left out of the mean
//  4. Sum AP in natural query-id order and divide by the number of ranked
//     queries; none ranked → *EvaluationError(ErrNoScorableQueries)
//
// Summing in a fixed order makes the result identical run to run no matter
// how the workers interleave.
func MeanAveragePrecision(ctx context.Context, queries map[string]string, judgments Judgments, ranker Ranker, opts ...EvalOption) (*Evaluation, error) {
	if len(queries) == 0 {
		return nil, &EvaluationError{Err: ErrNoQueries}
	}

	o := evalOptions{workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers <= 0 {
		o.workers = runtime.GOMAXPROCS(0)
	}

	ids := make([]string, 0, len(queries))
	for id := range queries {
		ids = append(ids, id)
	}
	SortQueryIDs(ids)

	eval := &Evaluation{
		PerQuery: make(map[string]float64, len(ids)),
		Rankings: make(map[string][]ScoredResult, len(ids)),
		Failed:   make(map[string]error),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for _, id := range ids {
		id := id
		text := queries[id]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			start := time.Now()
			ranked, err := ranker.Search(text)
			outcome := QueryOutcome{QueryID: id, Duration: time.Since(start), Err: err}

			if err == nil {
				outcome.AP = AveragePrecision(id, ranked, judgments)
				outcome.Results = len(ranked)
			}

			mu.Lock()
			if err != nil {
				eval.Failed[id] = err
			} else {
				eval.PerQuery[id] = outcome.AP
				eval.Rankings[id] = ranked
			}
			mu.Unlock()

			if o.observer != nil {
				o.observer(outcome)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(eval.PerQuery) == 0 {
		return nil, &EvaluationError{Err: ErrNoScorableQueries}
	}

	sum := 0.0
	for _, id := range ids {
		if ap, ok := eval.PerQuery[id]; ok {
			sum += ap
		}
	}
	eval.MAP = sum / float64(len(eval.PerQuery))

	if len(eval.Failed) > 0 {
		slog.Warn("queries skipped",
			slog.Int("failed", len(eval.Failed)),
			slog.Int("ranked", len(eval.PerQuery)))
	}

	return eval, nil
}

// SortQueryIDs orders ids naturally: numeric ids by value, then any other ids
// lexically.
func SortQueryIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return lessQueryID(ids[i], ids[j])
	})
}

func lessQueryID(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		if na != nb {
			return na < nb
		}
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
