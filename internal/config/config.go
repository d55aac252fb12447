// Package config loads and validates experiment configuration from YAML files
// with environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wizenheimer/cranrank"
	"github.com/wizenheimer/cranrank/internal/corpus"
)

// Config is the top-level experiment configuration.
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Corpus   CorpusConfig   `yaml:"corpus"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// PathsConfig locates the collection files and the experiment outputs.
// Relative paths in a config file are resolved against the file's directory.
type PathsConfig struct {
	Documents string `yaml:"documents"`
	Queries   string `yaml:"queries"`
	Judgments string `yaml:"judgments"`
	RunDir    string `yaml:"runDir"`
	Snapshot  string `yaml:"snapshot"` // Empty disables snapshots
}

// CorpusConfig describes the layout of the collection files.
type CorpusConfig struct {
	JudgmentFormat     string `yaml:"judgmentFormat"`
	SequentialQueryIDs bool   `yaml:"sequentialQueryIDs"`
}

// AnalyzerConfig controls text analysis for both documents and queries.
type AnalyzerConfig struct {
	Stemmer        string `yaml:"stemmer"`
	MinTokenLength int    `yaml:"minTokenLength"`
	Stopwords      bool   `yaml:"stopwords"`
}

// SearchConfig selects the scoring models and ranking depth.
type SearchConfig struct {
	Models  []string   `yaml:"models"`
	TopK    int        `yaml:"topK"`
	BM25    BM25Config `yaml:"bm25"`
	Workers int        `yaml:"workers"` // 0 means one per CPU
	RunTag  string     `yaml:"runTag"`
}

// BM25Config holds the BM25 tuning parameters.
type BM25Config struct {
	K1 float64 `yaml:"k1"`
	B  float64 `yaml:"b"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus textfile written after a run.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // Empty disables the export
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.Paths.resolve(filepath.Dir(path))
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration for the standard Cranfield layout under
// ./data.
func Default() *Config {
	bm25 := cranrank.DefaultBM25Parameters()
	return &Config{
		Paths: PathsConfig{
			Documents: "data/cran.all.1400",
			Queries:   "data/cran.qry",
			Judgments: "data/cranqrel",
			RunDir:    "runs",
		},
		Corpus: CorpusConfig{
			JudgmentFormat:     "cranfield",
			SequentialQueryIDs: true,
		},
		Analyzer: AnalyzerConfig{
			Stemmer:        "snowball",
			MinTokenLength: 1,
			Stopwords:      true,
		},
		Search: SearchConfig{
			Models: []string{"bm25", "tfidf"},
			TopK:   cranrank.DefaultTopK,
			BM25:   BM25Config{K1: bm25.K1, B: bm25.B},
			RunTag: "cranrank",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func (p *PathsConfig) resolve(base string) {
	for _, s := range []*string{&p.Documents, &p.Queries, &p.Judgments, &p.RunDir, &p.Snapshot} {
		if *s == "" || filepath.IsAbs(*s) {
			continue
		}
		*s = filepath.Join(base, *s)
	}
}

// applyEnvOverrides reads CRANRANK_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CRANRANK_DOCUMENTS"); v != "" {
		cfg.Paths.Documents = v
	}
	if v := os.Getenv("CRANRANK_QUERIES"); v != "" {
		cfg.Paths.Queries = v
	}
	if v := os.Getenv("CRANRANK_JUDGMENTS"); v != "" {
		cfg.Paths.Judgments = v
	}
	if v := os.Getenv("CRANRANK_RUN_DIR"); v != "" {
		cfg.Paths.RunDir = v
	}
	if v := os.Getenv("CRANRANK_SNAPSHOT"); v != "" {
		cfg.Paths.Snapshot = v
	}
	if v := os.Getenv("CRANRANK_JUDGMENT_FORMAT"); v != "" {
		cfg.Corpus.JudgmentFormat = v
	}
	if v := os.Getenv("CRANRANK_SEQUENTIAL_QUERY_IDS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Corpus.SequentialQueryIDs = b
		}
	}
	if v := os.Getenv("CRANRANK_STEMMER"); v != "" {
		cfg.Analyzer.Stemmer = v
	}
	if v := os.Getenv("CRANRANK_MODELS"); v != "" {
		cfg.Search.Models = splitList(v)
	}
	if v := os.Getenv("CRANRANK_TOPK"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.Search.TopK = k
		}
	}
	if v := os.Getenv("CRANRANK_BM25_K1"); v != "" {
		if k1, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.BM25.K1 = k1
		}
	}
	if v := os.Getenv("CRANRANK_BM25_B"); v != "" {
		if b, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.BM25.B = b
		}
	}
	if v := os.Getenv("CRANRANK_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.Workers = n
		}
	}
	if v := os.Getenv("CRANRANK_RUN_TAG"); v != "" {
		cfg.Search.RunTag = v
	}
	if v := os.Getenv("CRANRANK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CRANRANK_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("CRANRANK_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Documents == "" {
		errs = append(errs, errors.New("paths.documents is required"))
	}
	if c.Paths.Queries == "" {
		errs = append(errs, errors.New("paths.queries is required"))
	}
	if c.Paths.Judgments == "" {
		errs = append(errs, errors.New("paths.judgments is required"))
	}
	if c.Paths.RunDir == "" {
		errs = append(errs, errors.New("paths.runDir is required"))
	}
	if _, err := corpus.ParseFormat(c.Corpus.JudgmentFormat); err != nil {
		errs = append(errs, fmt.Errorf("corpus.judgmentFormat: %w", err))
	}
	if _, err := cranrank.ParseStemmer(c.Analyzer.Stemmer); err != nil {
		errs = append(errs, fmt.Errorf("analyzer.stemmer: %w", err))
	}
	if c.Analyzer.MinTokenLength < 0 {
		errs = append(errs, fmt.Errorf("analyzer.minTokenLength must be >= 0, got %d", c.Analyzer.MinTokenLength))
	}
	if len(c.Search.Models) == 0 {
		errs = append(errs, errors.New("search.models must name at least one model"))
	}
	seen := make(map[string]bool)
	for _, m := range c.Search.Models {
		s, err := cranrank.ScorerByName(m, c.BM25Parameters())
		if err != nil {
			errs = append(errs, fmt.Errorf("search.models: %w", err))
			continue
		}
		if seen[s.Name()] {
			errs = append(errs, fmt.Errorf("search.models: %q listed twice", s.Name()))
		}
		seen[s.Name()] = true
	}
	if c.Search.BM25.K1 < 0 {
		errs = append(errs, fmt.Errorf("search.bm25.k1 must be >= 0, got %g", c.Search.BM25.K1))
	}
	if c.Search.BM25.B < 0 || c.Search.BM25.B > 1 {
		errs = append(errs, fmt.Errorf("search.bm25.b must be in [0, 1], got %g", c.Search.BM25.B))
	}
	if c.Search.Workers < 0 {
		errs = append(errs, fmt.Errorf("search.workers must be >= 0, got %d", c.Search.Workers))
	}
	if c.Search.RunTag == "" || strings.ContainsAny(c.Search.RunTag, " \t\n") {
		errs = append(errs, fmt.Errorf("search.runTag must be a non-empty word, got %q", c.Search.RunTag))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// AnalyzerConfig converts the analyzer section into engine options.
func (c *Config) AnalyzerConfig() (cranrank.AnalyzerConfig, error) {
	stemmer, err := cranrank.ParseStemmer(c.Analyzer.Stemmer)
	if err != nil {
		return cranrank.AnalyzerConfig{}, err
	}
	return cranrank.AnalyzerConfig{
		MinTokenLength:  c.Analyzer.MinTokenLength,
		EnableStopwords: c.Analyzer.Stopwords,
		Stemmer:         stemmer,
	}, nil
}

// BM25Parameters converts the bm25 section into engine parameters.
func (c *Config) BM25Parameters() cranrank.BM25Parameters {
	return cranrank.BM25Parameters{K1: c.Search.BM25.K1, B: c.Search.BM25.B}
}

// JudgmentFormat returns the parsed judgment file format.
func (c *Config) JudgmentFormat() (corpus.Format, error) {
	return corpus.ParseFormat(c.Corpus.JudgmentFormat)
}
