// Package extract converts raw PDF bytes into per-page plain text by
// shelling out to poppler's pdftotext.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// ErrExtractFailed indicates the extraction subprocess failed.
var ErrExtractFailed = errors.New("text extraction failed")

// lowTextThreshold marks pages that extracted almost nothing, usually a
// scanned image without an OCR layer.
const lowTextThreshold = 20

// Page is one extracted page.
type Page struct {
	// Number is the 1-based page number.
	Number int

	// Text is the extracted plain text, trimmed.
	Text string

	// LowText reports that the page yielded too little text to index
	// meaningfully.
	LowText bool
}

// Config holds extraction configuration.
type Config struct {
	// Binary is the pdftotext executable to invoke.
	Binary string
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Binary == "" {
		c.Binary = "pdftotext"
	}
}

// Extractor extracts page text from PDFs via a pdftotext subprocess.
type Extractor struct {
	config Config
	logger *zap.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(cfg Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Extractor{config: cfg, logger: logger}
}

// ExtractPages runs pdftotext over raw and splits its output on the
// form-feed page separators it emits. Every page of the document is
// returned, low-text pages included, so page numbers stay aligned with
// the source.
func (e *Extractor) ExtractPages(ctx context.Context, raw []byte) ([]Page, error) {
	tmp, err := os.CreateTemp("", "docqd-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp file: %v", ErrExtractFailed, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("%w: write temp file: %v", ErrExtractFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("%w: close temp file: %v", ErrExtractFailed, err)
	}

	cmd := exec.CommandContext(ctx, e.config.Binary, "-layout", "-enc", "UTF-8", tmp.Name(), "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrExtractFailed, err, strings.TrimSpace(stderr.String()))
	}

	pages := splitPages(stdout.String())
	for _, p := range pages {
		if p.LowText {
			e.logger.Debug("page yielded little text", zap.Int("page", p.Number))
		}
	}
	return pages, nil
}

// splitPages splits pdftotext output on form feeds. pdftotext terminates
// every page with a form feed, so the chunk after the last one is empty
// and dropped.
func splitPages(out string) []Page {
	chunks := strings.Split(out, "\f")
	if n := len(chunks); n > 1 && strings.TrimSpace(chunks[n-1]) == "" {
		chunks = chunks[:n-1]
	}

	pages := make([]Page, 0, len(chunks))
	for i, chunk := range chunks {
		text := strings.TrimSpace(chunk)
		pages = append(pages, Page{
			Number:  i + 1,
			Text:    text,
			LowText: len(text) < lowTextThreshold,
		})
	}
	return pages
}
