package local

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitedigest/internal/scraper"
)

func TestPersistWritesDocument(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	result := scraper.ScrapeResult{
		SourceURL: "https://Example.COM/start",
		Data: []scraper.FormattedResult{
			{URL: "https://example.com/a", Response: scraper.PageSummary{Title: "A", Description: "about A"}},
		},
	}
	if err := s.Persist(context.Background(), result); err != nil {
		t.Fatalf("persist: %v", err)
	}

	target := filepath.Join(dir, "example.com-f68e6767.json")
	raw, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read %s: %v", target, err)
	}

	var decoded scraper.ScrapeResult
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.SourceURL != result.SourceURL || len(decoded.Data) != 1 {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
	if decoded.Data[0].Response.Title != "A" {
		t.Fatalf("summary lost: %+v", decoded.Data[0])
	}
}

func TestPersistIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	result := scraper.ScrapeResult{
		SourceURL: "https://example.com",
		Data: []scraper.FormattedResult{
			{URL: "https://example.com/a", Response: scraper.PageSummary{Title: "A"}},
		},
	}
	if err := s.Persist(context.Background(), result); err != nil {
		t.Fatalf("first persist: %v", err)
	}
	target := filepath.Join(dir, "example.com-100680ad.json")
	first, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read %s: %v", target, err)
	}

	if err := s.Persist(context.Background(), result); err != nil {
		t.Fatalf("second persist: %v", err)
	}
	second, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("re-read %s: %v", target, err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("repeat persist changed the stored bytes")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("repeat persist created extra files: %d", len(entries))
	}
}

func TestPersistRespectsContext(t *testing.T) {
	s, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Persist(ctx, scraper.ScrapeResult{SourceURL: "https://example.com"}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestResultFileNameSanitizesHost(t *testing.T) {
	t.Parallel()

	if got := resultFileName("not a url"); got != "result-d8b5bf9b.json" {
		t.Fatalf("fallback name = %q", got)
	}
	if got := resultFileName("https://sub_domain.Example.com/x"); got != "sub-domain.example.com-345119ba.json" {
		t.Fatalf("sanitized name = %q", got)
	}
}
