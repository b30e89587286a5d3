// Package memory provides an in-memory result sink, used for the
// synchronous API path and in tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/sitedigest/internal/scraper"
)

// Sink retains persisted results in memory.
type Sink struct {
	mu      sync.Mutex
	results []scraper.ScrapeResult
}

// New constructs an empty Sink.
func New() *Sink {
	return &Sink{}
}

// Persist records the result.
func (s *Sink) Persist(_ context.Context, result scraper.ScrapeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

// Results returns a copy of everything persisted so far.
func (s *Sink) Results() []scraper.ScrapeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scraper.ScrapeResult, len(s.results))
	copy(out, s.results)
	return out
}
