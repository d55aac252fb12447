package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/wizenheimer/cranrank/internal/config"
	"github.com/wizenheimer/cranrank/internal/experiment"
	"github.com/wizenheimer/cranrank/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (built-in Cranfield defaults when empty)")
	models := flag.String("model", "", "comma-separated scoring models, overrides search.models")
	topK := flag.Int("topk", -1, "documents kept per query, 0 keeps all; overrides search.topK")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *models != "" {
		cfg.Search.Models = nil
		for _, m := range strings.Split(*models, ",") {
			if m = strings.TrimSpace(m); m != "" {
				cfg.Search.Models = append(cfg.Search.Models, m)
			}
		}
	}
	if *topK >= 0 {
		cfg.Search.TopK = *topK
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	slog.Info("starting experiment",
		"documents", cfg.Paths.Documents,
		"models", cfg.Search.Models,
		"top_k", cfg.Search.TopK,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := experiment.Run(ctx, cfg, os.Stdout); err != nil {
		slog.Error("experiment failed", "error", err)
		stop()
		os.Exit(1)
	}
}
