package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitedigest/internal/scraper"
)

// StepConfig carries the limits shared by the step executors.
type StepConfig struct {
	URLLimit    int
	BatchSize   int
	CallTimeout time.Duration
}

func (c StepConfig) withDefaults() StepConfig {
	if c.URLLimit <= 0 {
		c.URLLimit = 50
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	return c
}

// DiscoveryStep calls the link-discovery capability and filters the
// result into the eligible set.
type DiscoveryStep struct {
	discoverer scraper.LinkDiscoverer
	filter     *scraper.URLFilter
	cfg        StepConfig
	logger     *zap.Logger
}

// NewDiscoveryStep constructs the Discovery executor.
func NewDiscoveryStep(discoverer scraper.LinkDiscoverer, filter *scraper.URLFilter, cfg StepConfig, logger *zap.Logger) *DiscoveryStep {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiscoveryStep{
		discoverer: discoverer,
		filter:     filter,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

// Node reports the workflow node this executor serves.
func (s *DiscoveryStep) Node() scraper.Node { return scraper.NodeDiscovery }

// Execute populates DiscoveredURLs and the filtered, capped EligibleURLs.
func (s *DiscoveryStep) Execute(ctx context.Context, state *scraper.WorkflowState) *scraper.StepFailure {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	links, err := s.discoverer.DiscoverLinks(callCtx, state.SeedURL)
	if err != nil {
		return scraper.NewStepFailure(s.Node(), fmt.Errorf("discover links: %w", err))
	}

	for _, link := range links {
		key := link
		if u, rErr := scraper.ResolveCandidate(link, state.SeedURL); rErr == nil {
			if normalized, nErr := scraper.NormalizeURL(u.String()); nErr == nil {
				key = normalized
			}
		}
		state.DiscoveredURLs[key] = struct{}{}
	}
	state.EligibleURLs = s.filter.FilterEligible(links, state.SeedURL, s.cfg.URLLimit)

	s.logger.Debug("discovery complete",
		zap.String("seed_url", state.SeedURL),
		zap.Int("discovered", len(state.DiscoveredURLs)),
		zap.Int("eligible", len(state.EligibleURLs)),
	)
	return nil
}

// RetrievalStep plans batches over the eligible set and merges each
// batch's content into ScrapedContent. Batches run strictly one at a
// time; a retry resumes from the URLs still missing content. A single
// URL's permanent failure is recorded and skipped; the step only fails
// on batch-level errors or when every pending URL fails.
type RetrievalStep struct {
	retriever scraper.ContentRetriever
	clock     scraper.Clock
	cfg       StepConfig
	logger    *zap.Logger
}

// NewRetrievalStep constructs the Retrieval executor.
func NewRetrievalStep(retriever scraper.ContentRetriever, clock scraper.Clock, cfg StepConfig, logger *zap.Logger) *RetrievalStep {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrievalStep{
		retriever: retriever,
		clock:     clock,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Node reports the workflow node this executor serves.
func (s *RetrievalStep) Node() scraper.Node { return scraper.NodeRetrieval }

// Execute fetches content for every eligible URL not yet scraped.
func (s *RetrievalStep) Execute(ctx context.Context, state *scraper.WorkflowState) *scraper.StepFailure {
	eligible := make(map[string]struct{}, len(state.EligibleURLs))
	var pending []string
	for _, u := range state.EligibleURLs {
		eligible[u] = struct{}{}
		if _, done := state.ScrapedContent[u]; !done {
			pending = append(pending, u)
		}
	}
	if len(pending) == 0 {
		// Zero eligible URLs is success with an empty merge.
		return nil
	}

	skipped := make(map[string]struct{})
	// Dead URLs leave the eligible set so a later retry of the step
	// does not re-fetch them.
	defer func() {
		if len(skipped) == 0 {
			return
		}
		kept := state.EligibleURLs[:0]
		for _, u := range state.EligibleURLs {
			if _, ok := skipped[u]; !ok {
				kept = append(kept, u)
			}
		}
		state.EligibleURLs = kept
	}()

	var lastSkipErr error
	batches := scraper.PlanBatches(pending, 0, s.cfg.BatchSize)
	for i, batch := range batches {
		content, failed, err := s.retrieveBatch(ctx, batch)
		for u, text := range content {
			if text == "" {
				continue
			}
			if _, ok := eligible[u]; !ok {
				continue
			}
			state.ScrapedContent[u] = text
		}
		for _, u := range batch {
			fErr, ok := failed[u]
			if !ok {
				continue
			}
			// Per-item skip: logged into the audit trail, URL omitted.
			skipped[u] = struct{}{}
			lastSkipErr = fErr
			state.Errors = append(state.Errors, scraper.StepError{
				Step:      s.Node(),
				Message:   fmt.Sprintf("retrieve %s: %v", u, fErr),
				Timestamp: s.clock.Now(),
			})
			s.logger.Warn("page retrieval skipped",
				zap.String("url", u),
				zap.Error(fErr),
			)
		}
		if err != nil {
			// Earlier batches remain merged; the retry path resumes
			// from the missing URLs only.
			return scraper.NewStepFailure(s.Node(), fmt.Errorf("retrieve batch %d/%d: %w", i+1, len(batches), err))
		}
		s.logger.Debug("batch retrieved",
			zap.Int("batch", i+1),
			zap.Int("batches", len(batches)),
			zap.Int("urls", len(batch)),
			zap.Int("scraped_total", len(state.ScrapedContent)),
		)
	}

	if len(skipped) == len(pending) && len(state.ScrapedContent) == 0 {
		return scraper.NewStepFailure(s.Node(), fmt.Errorf("all %d pending pages failed, last: %w", len(skipped), lastSkipErr))
	}
	return nil
}

func (s *RetrievalStep) retrieveBatch(ctx context.Context, batch []string) (map[string]string, map[string]error, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	return s.retriever.RetrieveBatch(callCtx, batch)
}

// TransformationStep summarizes each scraped page. A single URL's
// failure is recorded and skipped; the step only fails when every
// pending URL fails.
type TransformationStep struct {
	summarizer scraper.Summarizer
	clock      scraper.Clock
	cfg        StepConfig
	logger     *zap.Logger
}

// NewTransformationStep constructs the Transformation executor.
func NewTransformationStep(summarizer scraper.Summarizer, clock scraper.Clock, cfg StepConfig, logger *zap.Logger) *TransformationStep {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransformationStep{
		summarizer: summarizer,
		clock:      clock,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

// Node reports the workflow node this executor serves.
func (s *TransformationStep) Node() scraper.Node { return scraper.NodeTransformation }

// Execute appends one FormattedResult per summarizable page, preserving
// the eligible (discovery) order for the entries that succeed.
func (s *TransformationStep) Execute(ctx context.Context, state *scraper.WorkflowState) *scraper.StepFailure {
	done := make(map[string]struct{}, len(state.FormattedResults))
	for _, r := range state.FormattedResults {
		done[r.URL] = struct{}{}
	}
	var pending []string
	for _, u := range state.EligibleURLs {
		if _, ok := state.ScrapedContent[u]; !ok {
			continue
		}
		if _, ok := done[u]; ok {
			continue
		}
		pending = append(pending, u)
	}
	if len(pending) == 0 {
		return nil
	}

	var (
		failed  int
		lastErr error
	)
	for _, u := range pending {
		summary, err := s.summarize(ctx, state.ScrapedContent[u])
		if err != nil {
			failed++
			lastErr = err
			// Per-item skip: logged into the audit trail, URL omitted.
			state.Errors = append(state.Errors, scraper.StepError{
				Step:      s.Node(),
				Message:   fmt.Sprintf("summarize %s: %v", u, err),
				Timestamp: s.clock.Now(),
			})
			s.logger.Warn("page summary skipped",
				zap.String("url", u),
				zap.Error(err),
			)
			continue
		}
		state.FormattedResults = append(state.FormattedResults, scraper.FormattedResult{
			URL:      u,
			Response: summary,
		})
	}

	if failed == len(pending) {
		return scraper.NewStepFailure(s.Node(), fmt.Errorf("all %d pending pages failed, last: %w", failed, lastErr))
	}
	return nil
}

func (s *TransformationStep) summarize(ctx context.Context, text string) (scraper.PageSummary, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	return s.summarizer.Summarize(callCtx, text)
}

// PersistenceStep writes the final artifact through the sink.
type PersistenceStep struct {
	sink   scraper.ResultSink
	cfg    StepConfig
	logger *zap.Logger
}

// NewPersistenceStep constructs the Persistence executor.
func NewPersistenceStep(sink scraper.ResultSink, cfg StepConfig, logger *zap.Logger) *PersistenceStep {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersistenceStep{
		sink:   sink,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Node reports the workflow node this executor serves.
func (s *PersistenceStep) Node() scraper.Node { return scraper.NodePersistence }

// Execute persists the artifact; the sink contract is idempotent so a
// retried persistence produces identical stored output.
func (s *PersistenceStep) Execute(ctx context.Context, state *scraper.WorkflowState) *scraper.StepFailure {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	if err := s.sink.Persist(callCtx, state.Result()); err != nil {
		return scraper.NewStepFailure(s.Node(), fmt.Errorf("persist result: %w", err))
	}
	s.logger.Debug("result persisted",
		zap.String("seed_url", state.SeedURL),
		zap.Int("entries", len(state.FormattedResults)),
	)
	return nil
}
