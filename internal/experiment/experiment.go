// Package experiment runs a complete retrieval experiment: obtain the index,
// rank every query under every configured model, write one TREC run file per
// model and report MAP.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/wizenheimer/cranrank"
	"github.com/wizenheimer/cranrank/internal/config"
	"github.com/wizenheimer/cranrank/internal/corpus"
	"github.com/wizenheimer/cranrank/internal/logger"
	"github.com/wizenheimer/cranrank/internal/metrics"
)

// ModelReport summarizes one scoring model.
type ModelReport struct {
	Name    string
	MAP     float64
	Queries int // Queries that ranked
	Failed  int // Queries that could not be ranked
	RunFile string
}

// Report summarizes a run.
type Report struct {
	Documents int
	Terms     int
	Snapshot  bool // Index came from a snapshot instead of being built
	Models    []ModelReport
}

// Run executes the experiment described by cfg and prints a MAP table to out.
func Run(ctx context.Context, cfg *config.Config, out io.Writer) (*Report, error) {
	log := logger.WithComponent("experiment")
	m := metrics.New()

	idx, fromSnapshot, err := obtainIndex(cfg, m, log)
	if err != nil {
		return nil, err
	}

	queries, err := corpus.LoadQueriesFile(cfg.Paths.Queries, corpus.QueryOptions{Sequential: cfg.Corpus.SequentialQueryIDs})
	if err != nil {
		return nil, fmt.Errorf("loading queries: %w", err)
	}
	format, err := cfg.JudgmentFormat()
	if err != nil {
		return nil, err
	}
	judgments, err := corpus.LoadJudgmentsFile(cfg.Paths.Judgments, format)
	if err != nil {
		return nil, fmt.Errorf("loading judgments: %w", err)
	}
	log.Info("collection loaded",
		slog.Int("queries", len(queries)),
		slog.Int("judgedQueries", len(judgments)))

	report := &Report{
		Documents: idx.TotalDocs(),
		Terms:     len(idx.Terms()),
		Snapshot:  fromSnapshot,
	}

	for _, name := range cfg.Search.Models {
		mr, err := evaluateModel(ctx, cfg, idx, queries, judgments, name, m, log)
		if err != nil {
			return nil, err
		}
		report.Models = append(report.Models, mr)
	}

	if err := printReport(out, report); err != nil {
		return nil, err
	}

	if cfg.Metrics.Textfile != "" {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			return nil, fmt.Errorf("writing metrics: %w", err)
		}
	}

	return report, nil
}

// obtainIndex loads the snapshot when one exists and was built with the
// configured analyzer; otherwise it builds the index and saves a snapshot if
// a path is configured.
func obtainIndex(cfg *config.Config, m *metrics.Metrics, log *slog.Logger) (*cranrank.InvertedIndex, bool, error) {
	analyzerCfg, err := cfg.AnalyzerConfig()
	if err != nil {
		return nil, false, err
	}
	start := time.Now()

	if path := cfg.Paths.Snapshot; path != "" {
		idx, err := cranrank.LoadSnapshot(path)
		switch {
		case err == nil && idx.Analyzer().Config() == cranrank.NewAnalyzer(analyzerCfg).Config():
			m.ObserveIndex(idx, time.Since(start))
			log.Info("index loaded from snapshot", slog.String("path", path))
			return idx, true, nil
		case err == nil:
			log.Warn("snapshot built with a different analyzer, rebuilding", slog.String("path", path))
		case errors.Is(err, os.ErrNotExist):
		default:
			log.Warn("snapshot unreadable, rebuilding", slog.String("path", path), slog.Any("error", err))
		}
	}

	docs, err := corpus.LoadDocumentsFile(cfg.Paths.Documents)
	if err != nil {
		return nil, false, fmt.Errorf("loading documents: %w", err)
	}
	idx, err := cranrank.Build(docs, cranrank.NewAnalyzer(analyzerCfg))
	if err != nil {
		return nil, false, fmt.Errorf("building index: %w", err)
	}
	m.ObserveIndex(idx, time.Since(start))

	if path := cfg.Paths.Snapshot; path != "" {
		if err := cranrank.SaveSnapshot(path, idx); err != nil {
			return nil, false, fmt.Errorf("saving snapshot: %w", err)
		}
		log.Info("snapshot saved", slog.String("path", path))
	}
	return idx, false, nil
}

func evaluateModel(
	ctx context.Context,
	cfg *config.Config,
	idx *cranrank.InvertedIndex,
	queries map[string]string,
	judgments cranrank.Judgments,
	name string,
	m *metrics.Metrics,
	log *slog.Logger,
) (ModelReport, error) {
	scorer, err := cranrank.ScorerByName(name, cfg.BM25Parameters())
	if err != nil {
		return ModelReport{}, err
	}
	model := scorer.Name()
	runTag := cfg.Search.RunTag + "-" + model
	runFile := filepath.Join(cfg.Paths.RunDir, runTag+".run")

	if err := os.Remove(runFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return ModelReport{}, fmt.Errorf("removing stale run file: %w", err)
	}

	searcher := cranrank.NewSearcher(idx, scorer, cranrank.WithTopK(cfg.Search.TopK))
	start := time.Now()
	eval, err := cranrank.MeanAveragePrecision(ctx, queries, judgments, searcher,
		cranrank.WithWorkers(cfg.Search.Workers),
		cranrank.WithObserver(m.QueryObserver(model)))
	if err != nil {
		return ModelReport{}, fmt.Errorf("evaluating %s: %w", model, err)
	}

	if err := cranrank.WriteRunFile(runFile, eval, runTag); err != nil {
		return ModelReport{}, err
	}
	m.ObserveMAP(model, eval.MAP)

	log.Info("model evaluated",
		slog.String("model", model),
		slog.Float64("map", eval.MAP),
		slog.Int("queries", len(eval.PerQuery)),
		slog.Int("failed", len(eval.Failed)),
		slog.Duration("elapsed", time.Since(start)),
		slog.String("runFile", runFile))

	return ModelReport{
		Name:    model,
		MAP:     eval.MAP,
		Queries: len(eval.PerQuery),
		Failed:  len(eval.Failed),
		RunFile: runFile,
	}, nil
}

// printReport writes an aligned MAP table
//
//	MODEL  MAP     QUERIES  FAILED  RUN FILE
//	bm25   0.3912  225      0       runs/cranrank-bm25.run
func printReport(out io.Writer, r *Report) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tMAP\tQUERIES\tFAILED\tRUN FILE")
	for _, mr := range r.Models {
		fmt.Fprintf(tw, "%s\t%.4f\t%d\t%d\t%s\n", mr.Name, mr.MAP, mr.Queries, mr.Failed, mr.RunFile)
	}
	return tw.Flush()
}
