package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqd/internal/config"
	"github.com/fyrsmithlabs/docqd/internal/doccache"
	"github.com/fyrsmithlabs/docqd/internal/embeddings"
	"github.com/fyrsmithlabs/docqd/internal/extract"
	"github.com/fyrsmithlabs/docqd/internal/ingest"
	"github.com/fyrsmithlabs/docqd/internal/logging"
	"github.com/fyrsmithlabs/docqd/internal/vectorstore"
)

var resetIndex bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the persistent page index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build <pdf-dir>",
	Short: "Build the page index from a directory of PDFs",
	Long: `Build the page index from a directory of PDFs.

Walks the directory recursively, extracts text from every PDF, and writes
page vectors into the index configured under index.path. The daemon
refuses to start without this index.

Examples:
  # Build from a corpus directory
  docq index build ./corpus

  # Rebuild from scratch
  docq index build --reset ./corpus`,
	Args: cobra.ExactArgs(1),
	RunE: runIndexBuild,
}

func init() {
	indexBuildCmd.Flags().BoolVar(&resetIndex, "reset", false, "discard existing vectors before building")
	indexCmd.AddCommand(indexBuildCmd)
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
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

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
		APIKey:  cfg.Embedding.APIKey,
		Timeout: cfg.Embedding.Timeout,
	})
	if err != nil {
		return fmt.Errorf("initialize embedding service: %w", err)
	}

	index, err := vectorstore.Create(vectorstore.Config{
		Path:       cfg.Index.Path,
		Collection: cfg.Index.Collection,
		VectorSize: cfg.Index.VectorSize,
		Compress:   cfg.Index.Compress,
	}, embedder, logger)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	ctx := cmd.Context()
	if resetIndex {
		if err := index.Reset(ctx); err != nil {
			return fmt.Errorf("reset index: %w", err)
		}
		logger.Info("existing vectors discarded")
	}

	extractor := extract.NewExtractor(extract.Config{}, logger)
	svc := ingest.NewService(doccache.New(cfg.Cache.TTL), extractor, index, logger)

	var files, pages, skipped int
	err = filepath.WalkDir(args[0], func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		res, err := svc.Ingest(ctx, raw, filepath.Base(path))
		if err != nil {
			logger.Warn("skipping document", zap.String("path", path), zap.Error(err))
			skipped++
			return nil
		}
		if res.Deduplicated {
			logger.Info("duplicate content skipped", zap.String("path", path))
			return nil
		}

		files++
		pages += res.PagesIndexed
		logger.Info("document indexed",
			zap.String("path", path), zap.Int("pages", res.PagesIndexed))
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", args[0], err)
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"Indexed %d pages from %d documents (%d skipped), %d vectors total\n",
		pages, files, skipped, index.Count())
	return nil
}
