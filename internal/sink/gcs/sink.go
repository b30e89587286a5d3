// Package gcs provides a result sink backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitedigest/internal/scraper"
)

// Config captures the parameters required to write results to GCS.
type Config struct {
	Bucket string
	Prefix string
}

type objectWriterFactory interface {
	NewWriter(ctx context.Context, object string) io.WriteCloser
}

type bucketWriterFactory struct {
	bucket *storage.BucketHandle
}

func (f bucketWriterFactory) NewWriter(ctx context.Context, object string) io.WriteCloser {
	w := f.bucket.Object(object).NewWriter(ctx)
	w.ContentType = "application/json"
	return w
}

// Sink uploads result documents to a configured GCS bucket.
type Sink struct {
	writers objectWriterFactory
	bucket  string
	prefix  string
	logger  *zap.Logger
}

// New creates a GCS-backed sink.
func New(client *storage.Client, cfg Config, logger *zap.Logger) (*Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		writers: bucketWriterFactory{bucket: client.Bucket(cfg.Bucket)},
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		logger:  logger,
	}, nil
}

// Persist uploads the result document and logs its gs:// URI.
func (s *Sink) Persist(ctx context.Context, result scraper.ScrapeResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	object := s.objectPath(result.SourceURL)

	writer := s.writers.NewWriter(ctx, object)
	if _, err := io.Copy(writer, bytes.NewReader(payload)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return scraper.MarkTransient(fmt.Errorf("upload result: %w (close writer: %v)", err, closeErr))
		}
		return scraper.MarkTransient(fmt.Errorf("upload result: %w", err))
	}
	if err := writer.Close(); err != nil {
		return scraper.MarkTransient(fmt.Errorf("close writer: %w", err))
	}

	s.logger.Debug("result uploaded",
		zap.String("uri", fmt.Sprintf("gs://%s/%s", s.bucket, object)),
		zap.Int("pages", len(result.Data)),
	)
	return nil
}

// objectPath derives a stable object name from the seed URL so a
// retried upload overwrites the same object.
func (s *Sink) objectPath(sourceURL string) string {
	host := "result"
	if u, err := url.Parse(sourceURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	sum := sha256.Sum256([]byte(sourceURL))
	name := fmt.Sprintf("%s/%x.json", host, sum[:4])
	if s.prefix != "" {
		return s.prefix + "/" + name
	}
	return name
}
