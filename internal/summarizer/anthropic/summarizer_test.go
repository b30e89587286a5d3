package anthropicsummarizer

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/JakeFAU/sitedigest/internal/scraper"
)

func TestParseSummaryPlainJSON(t *testing.T) {
	t.Parallel()

	summary, err := parseSummary(`{"title": "Example", "description": "An example page."}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if summary.Title != "Example" || summary.Description != "An example page." {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestParseSummaryStripsCodeFence(t *testing.T) {
	t.Parallel()

	cases := []string{
		"```json\n{\"title\": \"T\", \"description\": \"D\"}\n```",
		"```\n{\"title\": \"T\", \"description\": \"D\"}\n```",
		"  ```json\n{\"title\": \"T\", \"description\": \"D\"}\n```  ",
	}
	for _, raw := range cases {
		summary, err := parseSummary(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if summary.Title != "T" || summary.Description != "D" {
			t.Fatalf("unexpected summary %+v for %q", summary, raw)
		}
	}
}

func TestParseSummaryRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"not json at all", "```json\nstill not json\n```", "{}"} {
		_, err := parseSummary(raw)
		if !errors.Is(err, scraper.ErrUnparsable) {
			t.Fatalf("expected ErrUnparsable for %q, got %v", raw, err)
		}
		if scraper.IsTransient(err) {
			t.Fatalf("unparsable reply must not be retryable: %q", raw)
		}
	}
}

func TestTruncateBoundsPromptContent(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", maxContentChars+500)
	if got := truncate(long, maxContentChars); len(got) != maxContentChars {
		t.Fatalf("truncate length = %d", len(got))
	}
	short := "short"
	if got := truncate(short, maxContentChars); got != short {
		t.Fatalf("short input changed: %q", got)
	}
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	t.Parallel()

	// Three two-byte runes; a limit of 3 falls inside the second one.
	got := truncate(strings.Repeat("é", 3), 3)
	if got != "é" {
		t.Fatalf("truncate = %q", got)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncated string is invalid utf-8: %q", got)
	}

	long := strings.Repeat("日", maxContentChars)
	if got := truncate(long, maxContentChars); !utf8.ValidString(got) {
		t.Fatal("truncated multibyte input is invalid utf-8")
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}, nil); err == nil {
		t.Fatal("expected error without api key")
	}
	s, err := New(Config{APIKey: "test-key"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.model != defaultModel || s.maxTokens != defaultMaxTokens {
		t.Fatalf("defaults not applied: %+v", s)
	}
}
