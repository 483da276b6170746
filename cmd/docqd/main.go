// Docqd is a retrieval-augmented document Q&A daemon.
//
// It serves chat, ingest, and notes endpoints over HTTP against a
// persisted page index. The index must exist before the daemon starts;
// build it with `docq index build` or by ingesting documents into a
// running daemon started from an already-built index.
//
// Usage:
//
//	# Start with defaults
//	docqd
//
//	# Start with a config file
//	docqd -config /etc/docqd/config.yaml
//
//	# Configure via environment
//	DOCQD_SERVER_ADDR=:9090 DOCQD_LLM_MODEL=llama3.1 docqd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqd/internal/agent"
	"github.com/fyrsmithlabs/docqd/internal/config"
	"github.com/fyrsmithlabs/docqd/internal/conversation"
	"github.com/fyrsmithlabs/docqd/internal/doccache"
	"github.com/fyrsmithlabs/docqd/internal/embeddings"
	"github.com/fyrsmithlabs/docqd/internal/extract"
	"github.com/fyrsmithlabs/docqd/internal/ingest"
	"github.com/fyrsmithlabs/docqd/internal/llm"
	"github.com/fyrsmithlabs/docqd/internal/logging"
	"github.com/fyrsmithlabs/docqd/internal/notes"
	"github.com/fyrsmithlabs/docqd/internal/planner"
	"github.com/fyrsmithlabs/docqd/internal/retrieval"
	"github.com/fyrsmithlabs/docqd/internal/server"
	"github.com/fyrsmithlabs/docqd/internal/vectorstore"
	"github.com/fyrsmithlabs/docqd/internal/watcher"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  docqd           Start the docqd daemon\n")
			fmt.Fprintf(os.Stderr, "  docqd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("docqd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires all services and blocks until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("Starting docqd",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr),
		zap.String("index_path", cfg.Index.Path))

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
		APIKey:  cfg.Embedding.APIKey,
		Timeout: cfg.Embedding.Timeout,
	})
	if err != nil {
		return fmt.Errorf("initialize embedding service: %w", err)
	}

	index, err := vectorstore.Open(vectorstore.Config{
		Path:       cfg.Index.Path,
		Collection: cfg.Index.Collection,
		VectorSize: cfg.Index.VectorSize,
		Compress:   cfg.Index.Compress,
	}, embedder, logger)
	if err != nil {
		if errors.Is(err, vectorstore.ErrMissingIndex) {
			return fmt.Errorf("no index at %s; build one with `docq index build` first: %w",
				cfg.Index.Path, err)
		}
		return fmt.Errorf("open index: %w", err)
	}
	logger.Info("Index opened", zap.Int("pages", index.Count()))

	llmClient, err := llm.NewOpenAIClient(llm.Config{
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		APIKey:            cfg.LLM.APIKey,
		Timeout:           cfg.LLM.Timeout,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Temperature:       cfg.LLM.Temperature,
		MaxTokens:         cfg.LLM.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("initialize llm client: %w", err)
	}

	gateway := retrieval.NewGateway(index, retrieval.Config{
		DefaultK: cfg.Agent.DefaultTopK,
		MaxK:     cfg.Agent.MaxTopK,
	}, logger)
	sessions := conversation.NewStore()
	orchestrator := agent.NewOrchestrator(llmClient, gateway, sessions, agent.Config{
		MaxIterations: cfg.Agent.MaxIterations,
	}, logger)

	queryPlanner := planner.NewPlanner(llmClient, planner.Config{
		MaxQueries: cfg.Notes.MaxQueries,
	}, logger)
	synthesizer := notes.NewSynthesizer(queryPlanner, gateway, llmClient, notes.Config{
		PassagesPerQuery: cfg.Notes.PassagesPerQuery,
		BatchSize:        cfg.Notes.BatchSize,
	}, logger)

	cache := doccache.New(cfg.Cache.TTL)
	extractor := extract.NewExtractor(extract.Config{}, logger)
	ingestSvc := ingest.NewService(cache, extractor, index, logger)

	go sweepLoop(ctx, cache, cfg.Cache.SweepInterval, logger)

	if cfg.Watcher.Enabled {
		w, err := watcher.New(watcher.Config{Dir: cfg.Watcher.Dir}, ingestSvc, logger)
		if err != nil {
			return fmt.Errorf("initialize watcher: %w", err)
		}
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("watcher stopped", zap.Error(err))
			}
		}()
	}

	srv, err := server.NewServer(server.Deps{
		Agent:     orchestrator,
		Ingest:    ingestSvc,
		Notes:     synthesizer,
		Extractor: extractor,
		Index:     index,
	}, server.Config{
		Addr:            cfg.Server.Addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize http server: %w", err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// sweepLoop purges expired cache entries until ctx is cancelled.
func sweepLoop(ctx context.Context, cache *doccache.Cache, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if purged := cache.Sweep(); purged > 0 {
				logger.Debug("cache sweep", zap.Int("purged", purged))
			}
		}
	}
}
