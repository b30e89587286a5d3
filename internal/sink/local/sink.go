// Package local provides a filesystem-backed result sink.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitedigest/internal/scraper"
)

// Sink writes one JSON document per scrape result under a root
// directory.
type Sink struct {
	root   string
	logger *zap.Logger
}

// New returns a sink rooted at dir.
func New(root string, logger *zap.Logger) (*Sink, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create sink dir %s: %w", root, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		root:   root,
		logger: logger,
	}, nil
}

// Persist writes the result document to disk.
func (s *Sink) Persist(ctx context.Context, result scraper.ScrapeResult) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	target := filepath.Join(s.root, resultFileName(result.SourceURL))
	if err := os.WriteFile(target, payload, 0o600); err != nil {
		return scraper.MarkTransient(fmt.Errorf("write result %s: %w", target, err))
	}
	s.logger.Debug("result persisted", zap.String("path", target), zap.Int("pages", len(result.Data)))
	return nil
}

// resultFileName derives a stable, filesystem-safe name from the seed
// URL so repeated writes for the same seed land on the same file.
func resultFileName(sourceURL string) string {
	host := "result"
	if u, err := url.Parse(sourceURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	host = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, host)
	sum := sha256.Sum256([]byte(sourceURL))
	return fmt.Sprintf("%s-%x.json", host, sum[:4])
}
