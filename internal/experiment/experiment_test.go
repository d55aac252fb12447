package experiment

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizenheimer/cranrank"
	"github.com/wizenheimer/cranrank/internal/config"
)

const (
	testDocs = `.I 1
.T
boundary layer on a flat plate
.W
boundary layer on a flat plate
.I 2
.W
heat transfer in laminar flow
.I 3
.W
supersonic wing flutter
.I 4
.W
boundary layer heat transfer
`
	testQueries = `.I 001
.W
boundary layer
.I 003
.W
heat transfer
.I 005
.W
the of
`
	testJudgments = "1 1 2\n1 4 3\n2 2 1\n2 4 2\n"
)

// writeCollection lays out a tiny collection and returns a config pointing
// at it.
func writeCollection(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	cfg := config.Default()
	cfg.Paths.Documents = write("cran.all.1400", testDocs)
	cfg.Paths.Queries = write("cran.qry", testQueries)
	cfg.Paths.Judgments = write("cranqrel", testJudgments)
	cfg.Paths.RunDir = filepath.Join(dir, "runs")
	cfg.Search.Workers = 2
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRun(t *testing.T) {
	cfg := writeCollection(t)
	var out bytes.Buffer

	report, err := Run(context.Background(), cfg, &out)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Documents)
	assert.False(t, report.Snapshot)
	require.Len(t, report.Models, 2)

	for i, name := range []string{"bm25", "tfidf"} {
		mr := report.Models[i]
		assert.Equal(t, name, mr.Name)
		assert.InDelta(t, 1.0, mr.MAP, 1e-9)
		assert.Equal(t, 2, mr.Queries)
		assert.Equal(t, 1, mr.Failed)
		assert.Equal(t, filepath.Join(cfg.Paths.RunDir, "cranrank-"+name+".run"), mr.RunFile)

		data, err := os.ReadFile(mr.RunFile)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 4)
		for _, line := range lines {
			fields := strings.Fields(line)
			require.Len(t, fields, 6)
			assert.Equal(t, "Q0", fields[1])
			assert.Equal(t, "cranrank-"+name, fields[5])
		}
		assert.True(t, strings.HasPrefix(lines[0], "1 Q0 "))
		assert.True(t, strings.HasPrefix(lines[3], "2 Q0 "))
	}

	table := out.String()
	assert.Contains(t, table, "MODEL")
	assert.Contains(t, table, "bm25")
	assert.Contains(t, table, "1.0000")
}

func TestRun_Snapshot(t *testing.T) {
	cfg := writeCollection(t)
	cfg.Paths.Snapshot = filepath.Join(filepath.Dir(cfg.Paths.Documents), "index", "cran.snap")
	cfg.Search.Models = []string{"bm25"}

	first, err := Run(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)
	assert.False(t, first.Snapshot)
	assert.FileExists(t, cfg.Paths.Snapshot)

	second, err := Run(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)
	assert.True(t, second.Snapshot)
	assert.Equal(t, first.Models, second.Models)

	// A different analyzer invalidates the snapshot.
	cfg.Analyzer.Stemmer = "porter"
	third, err := Run(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)
	assert.False(t, third.Snapshot)
}

func TestRun_CorruptSnapshotRebuilds(t *testing.T) {
	cfg := writeCollection(t)
	cfg.Paths.Snapshot = filepath.Join(t.TempDir(), "cran.snap")
	require.NoError(t, os.WriteFile(cfg.Paths.Snapshot, []byte("garbage"), 0o644))
	cfg.Search.Models = []string{"tfidf"}

	report, err := Run(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)
	assert.False(t, report.Snapshot)

	idx, err := cranrank.LoadSnapshot(cfg.Paths.Snapshot)
	require.NoError(t, err)
	assert.Equal(t, 4, idx.TotalDocs())
}

func TestRun_ReplacesStaleRunFile(t *testing.T) {
	cfg := writeCollection(t)
	cfg.Search.Models = []string{"bm25"}
	stale := filepath.Join(cfg.Paths.RunDir, "cranrank-bm25.run")
	require.NoError(t, os.MkdirAll(cfg.Paths.RunDir, 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("99 Q0 1 1 9.0000 old\n"), 0o644))

	_, err := Run(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)

	data, err := os.ReadFile(stale)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "old")
}

func TestRun_MetricsTextfile(t *testing.T) {
	cfg := writeCollection(t)
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "metrics", "cranrank.prom")

	_, err := Run(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)

	data, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `cranrank_mean_average_precision{model="bm25"} 1`)
	assert.Contains(t, text, `cranrank_mean_average_precision{model="tfidf"} 1`)
	assert.Contains(t, text, "cranrank_documents_indexed 4")
}

func TestRun_Errors(t *testing.T) {
	t.Run("unknown model", func(t *testing.T) {
		cfg := writeCollection(t)
		cfg.Search.Models = []string{"lm-dirichlet"}
		_, err := Run(context.Background(), cfg, &bytes.Buffer{})
		assert.ErrorIs(t, err, cranrank.ErrUnknownScorer)
	})

	t.Run("missing documents", func(t *testing.T) {
		cfg := writeCollection(t)
		cfg.Paths.Documents = filepath.Join(t.TempDir(), "absent")
		_, err := Run(context.Background(), cfg, &bytes.Buffer{})
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("cancelled", func(t *testing.T) {
		cfg := writeCollection(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Run(ctx, cfg, &bytes.Buffer{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
