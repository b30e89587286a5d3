package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitedigest/internal/scraper"
)

type fakeDiscoverer struct {
	links []string
	err   error
	calls int
}

func (f *fakeDiscoverer) DiscoverLinks(_ context.Context, _ string) ([]string, error) {
	f.calls++
	return f.links, f.err
}

type fakeRetriever struct {
	content map[string]string
	failFor map[string]error
	errs    []error
	calls   int
	batches [][]string
}

func (f *fakeRetriever) RetrieveBatch(_ context.Context, urls []string) (map[string]string, map[string]error, error) {
	f.calls++
	f.batches = append(f.batches, append([]string(nil), urls...))
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, nil, err
		}
	}
	out := make(map[string]string, len(urls))
	failed := make(map[string]error)
	for _, u := range urls {
		if err, ok := f.failFor[u]; ok {
			failed[u] = err
			continue
		}
		if text, ok := f.content[u]; ok {
			out[u] = text
		}
	}
	return out, failed, nil
}

type fakeSummarizer struct {
	failFor map[string]error
	calls   int
}

func (f *fakeSummarizer) Summarize(_ context.Context, text string) (scraper.PageSummary, error) {
	f.calls++
	if err, ok := f.failFor[text]; ok {
		return scraper.PageSummary{}, err
	}
	return scraper.PageSummary{
		Title:       "title of " + text,
		Description: "summary of " + text,
	}, nil
}

type fakeSink struct {
	results []scraper.ScrapeResult
	err     error
}

func (f *fakeSink) Persist(_ context.Context, result scraper.ScrapeResult) error {
	if f.err != nil {
		return f.err
	}
	f.results = append(f.results, result)
	return nil
}

func stepConfig() StepConfig {
	return StepConfig{URLLimit: 50, BatchSize: 10, CallTimeout: time.Second}
}

func TestDiscoveryStepFiltersAndCaps(t *testing.T) {
	t.Parallel()

	discoverer := &fakeDiscoverer{links: []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/login",
		"https://example.com/c",
		"https://other.com/d",
	}}
	step := NewDiscoveryStep(discoverer, scraper.NewURLFilter(nil, nil), stepConfig(), nil)

	state := scraper.NewWorkflowState("https://example.com")
	require.Nil(t, step.Execute(context.Background(), state))

	require.Equal(t, []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}, state.EligibleURLs)
	require.Len(t, state.DiscoveredURLs, 5)
	for _, u := range state.EligibleURLs {
		require.Contains(t, state.DiscoveredURLs, u)
	}
}

func TestDiscoveryStepAppliesURLLimit(t *testing.T) {
	t.Parallel()

	discoverer := &fakeDiscoverer{links: []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}}
	cfg := stepConfig()
	cfg.URLLimit = 2
	step := NewDiscoveryStep(discoverer, scraper.NewURLFilter(nil, nil), cfg, nil)

	state := scraper.NewWorkflowState("https://example.com")
	require.Nil(t, step.Execute(context.Background(), state))
	require.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, state.EligibleURLs)
}

func TestDiscoveryStepFailureClassification(t *testing.T) {
	t.Parallel()

	discoverer := &fakeDiscoverer{err: scraper.MarkTransient(errors.New("gateway timeout"))}
	step := NewDiscoveryStep(discoverer, scraper.NewURLFilter(nil, nil), stepConfig(), nil)

	failure := step.Execute(context.Background(), scraper.NewWorkflowState("https://example.com"))
	require.NotNil(t, failure)
	require.Equal(t, scraper.NodeDiscovery, failure.Step)
	require.True(t, failure.Retryable)
}

func TestRetrievalStepBatchesSequentially(t *testing.T) {
	t.Parallel()

	urls := []string{"u1", "u2", "u3", "u4", "u5"}
	content := make(map[string]string, len(urls))
	for _, u := range urls {
		content[u] = "text " + u
	}
	retriever := &fakeRetriever{content: content}
	cfg := stepConfig()
	cfg.BatchSize = 2
	step := NewRetrievalStep(retriever, &fakeClock{now: time.Unix(2000, 0).UTC()}, cfg, nil)

	state := scraper.NewWorkflowState("https://example.com")
	state.EligibleURLs = urls

	require.Nil(t, step.Execute(context.Background(), state))
	require.Equal(t, 3, retriever.calls)
	require.Equal(t, [][]string{{"u1", "u2"}, {"u3", "u4"}, {"u5"}}, retriever.batches)
	require.Len(t, state.ScrapedContent, 5)
}

func TestRetrievalStepKeepsPartialProgressOnFailure(t *testing.T) {
	t.Parallel()

	retriever := &fakeRetriever{
		content: map[string]string{"u1": "t1", "u2": "t2", "u3": "t3"},
		errs:    []error{nil, scraper.MarkTransient(errors.New("rate limited"))},
	}
	cfg := stepConfig()
	cfg.BatchSize = 2
	step := NewRetrievalStep(retriever, &fakeClock{now: time.Unix(2000, 0).UTC()}, cfg, nil)

	state := scraper.NewWorkflowState("https://example.com")
	state.EligibleURLs = []string{"u1", "u2", "u3"}

	failure := step.Execute(context.Background(), state)
	require.NotNil(t, failure)
	require.True(t, failure.Retryable)
	// First batch stays merged.
	require.Len(t, state.ScrapedContent, 2)

	// A retry resumes from the missing URLs only.
	retriever.errs = nil
	require.Nil(t, step.Execute(context.Background(), state))
	require.Len(t, state.ScrapedContent, 3)
	lastBatch := retriever.batches[len(retriever.batches)-1]
	require.Equal(t, []string{"u3"}, lastBatch)
}

func TestRetrievalStepEmptyEligibleSetSucceeds(t *testing.T) {
	t.Parallel()

	retriever := &fakeRetriever{}
	step := NewRetrievalStep(retriever, &fakeClock{now: time.Unix(2000, 0).UTC()}, stepConfig(), nil)

	state := scraper.NewWorkflowState("https://example.com")
	require.Nil(t, step.Execute(context.Background(), state))
	require.Zero(t, retriever.calls)
	require.Empty(t, state.ScrapedContent)
}

func TestRetrievalStepIgnoresUnknownURLs(t *testing.T) {
	t.Parallel()

	retriever := &fakeRetriever{content: map[string]string{"u1": "t1"}}
	step := NewRetrievalStep(retriever, &fakeClock{now: time.Unix(2000, 0).UTC()}, stepConfig(), nil)

	state := scraper.NewWorkflowState("https://example.com")
	state.EligibleURLs = []string{"u1"}
	retriever.content["rogue"] = "should not merge"

	require.Nil(t, step.Execute(context.Background(), state))
	require.Len(t, state.ScrapedContent, 1)
	require.Contains(t, state.ScrapedContent, "u1")
}

func TestRetrievalStepSkipsDeadLink(t *testing.T) {
	t.Parallel()

	retriever := &fakeRetriever{
		content: map[string]string{"u1": "t1", "u3": "t3"},
		failFor: map[string]error{"u2": errors.New("colly response failed: Not Found")},
	}
	step := NewRetrievalStep(retriever, &fakeClock{now: time.Unix(2000, 0).UTC()}, stepConfig(), nil)

	state := scraper.NewWorkflowState("https://example.com")
	state.EligibleURLs = []string{"u1", "u2", "u3"}

	require.Nil(t, step.Execute(context.Background(), state))

	require.Len(t, state.ScrapedContent, 2)
	require.NotContains(t, state.ScrapedContent, "u2")
	require.Len(t, state.Errors, 1)
	require.Equal(t, scraper.NodeRetrieval, state.Errors[0].Step)
	require.Contains(t, state.Errors[0].Message, "u2")
	// The dead URL leaves the eligible set so nothing re-fetches it.
	require.Equal(t, []string{"u1", "u3"}, state.EligibleURLs)
}

func TestRetrievalStepFailsWhenAllFail(t *testing.T) {
	t.Parallel()

	retriever := &fakeRetriever{failFor: map[string]error{
		"u1": errors.New("colly response failed: Not Found"),
		"u2": errors.New("colly response failed: Forbidden"),
	}}
	step := NewRetrievalStep(retriever, &fakeClock{now: time.Unix(2000, 0).UTC()}, stepConfig(), nil)

	state := scraper.NewWorkflowState("https://example.com")
	state.EligibleURLs = []string{"u1", "u2"}

	failure := step.Execute(context.Background(), state)
	require.NotNil(t, failure)
	require.False(t, failure.Retryable)
	require.Empty(t, state.ScrapedContent)
	require.Len(t, state.Errors, 2)
}

func TestTransformationStepSkipsSingleFailure(t *testing.T) {
	t.Parallel()

	summarizer := &fakeSummarizer{failFor: map[string]error{
		"text b": fmt.Errorf("bad json: %w", scraper.ErrUnparsable),
	}}
	step := NewTransformationStep(summarizer, &fakeClock{now: time.Unix(2000, 0).UTC()}, stepConfig(), nil)

	state := scraper.NewWorkflowState("https://example.com")
	state.EligibleURLs = []string{"a", "b", "c"}
	state.ScrapedContent = map[string]string{"a": "text a", "b": "text b", "c": "text c"}

	require.Nil(t, step.Execute(context.Background(), state))

	require.Len(t, state.FormattedResults, 2)
	require.Equal(t, "a", state.FormattedResults[0].URL)
	require.Equal(t, "c", state.FormattedResults[1].URL)
	require.Len(t, state.Errors, 1)
	require.Equal(t, scraper.NodeTransformation, state.Errors[0].Step)
}

func TestTransformationStepFailsWhenAllFail(t *testing.T) {
	t.Parallel()

	summarizer := &fakeSummarizer{failFor: map[string]error{
		"text a": scraper.MarkTransient(errors.New("overloaded")),
		"text b": scraper.MarkTransient(errors.New("overloaded")),
	}}
	step := NewTransformationStep(summarizer, &fakeClock{now: time.Unix(2000, 0).UTC()}, stepConfig(), nil)

	state := scraper.NewWorkflowState("https://example.com")
	state.EligibleURLs = []string{"a", "b"}
	state.ScrapedContent = map[string]string{"a": "text a", "b": "text b"}

	failure := step.Execute(context.Background(), state)
	require.NotNil(t, failure)
	require.True(t, failure.Retryable)
	require.Empty(t, state.FormattedResults)
}

func TestTransformationStepSkipsAlreadyFormatted(t *testing.T) {
	t.Parallel()

	summarizer := &fakeSummarizer{}
	step := NewTransformationStep(summarizer, &fakeClock{now: time.Unix(2000, 0).UTC()}, stepConfig(), nil)

	state := scraper.NewWorkflowState("https://example.com")
	state.EligibleURLs = []string{"a", "b"}
	state.ScrapedContent = map[string]string{"a": "text a", "b": "text b"}
	state.FormattedResults = []scraper.FormattedResult{{URL: "a", Response: scraper.PageSummary{Title: "done"}}}

	require.Nil(t, step.Execute(context.Background(), state))
	require.Equal(t, 1, summarizer.calls)
	require.Len(t, state.FormattedResults, 2)
}

func TestTransformationStepEmptyPendingSucceeds(t *testing.T) {
	t.Parallel()

	summarizer := &fakeSummarizer{}
	step := NewTransformationStep(summarizer, &fakeClock{now: time.Unix(2000, 0).UTC()}, stepConfig(), nil)

	state := scraper.NewWorkflowState("https://example.com")
	require.Nil(t, step.Execute(context.Background(), state))
	require.Zero(t, summarizer.calls)
}

func TestPersistenceStepWritesArtifact(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	step := NewPersistenceStep(sink, stepConfig(), nil)

	state := scraper.NewWorkflowState("https://example.com")
	state.FormattedResults = []scraper.FormattedResult{
		{URL: "https://example.com/a", Response: scraper.PageSummary{Title: "A", Description: "about a"}},
	}

	require.Nil(t, step.Execute(context.Background(), state))
	require.Len(t, sink.results, 1)
	require.Equal(t, "https://example.com", sink.results[0].SourceURL)
	require.Len(t, sink.results[0].Data, 1)
}

func TestPersistenceStepFailure(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{err: scraper.MarkTransient(errors.New("bucket unavailable"))}
	step := NewPersistenceStep(sink, stepConfig(), nil)

	failure := step.Execute(context.Background(), scraper.NewWorkflowState("https://example.com"))
	require.NotNil(t, failure)
	require.Equal(t, scraper.NodePersistence, failure.Step)
	require.True(t, failure.Retryable)
}

// End-to-end over real steps: summarization fails to parse for one URL
// only, the job still completes with the remaining entries.
func TestPipelinePartialSummarySkip(t *testing.T) {
	t.Parallel()

	discoverer := &fakeDiscoverer{links: []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}}
	retriever := &fakeRetriever{content: map[string]string{
		"https://example.com/a": "text a",
		"https://example.com/b": "text b",
		"https://example.com/c": "text c",
	}}
	summarizer := &fakeSummarizer{failFor: map[string]error{
		"text b": fmt.Errorf("not json: %w", scraper.ErrUnparsable),
	}}
	sink := &fakeSink{}
	clock := &fakeClock{now: time.Unix(3000, 0).UTC()}
	cfg := stepConfig()

	eng := New([]Executor{
		NewDiscoveryStep(discoverer, scraper.NewURLFilter(nil, nil), cfg, nil),
		NewRetrievalStep(retriever, clock, cfg, nil),
		NewTransformationStep(summarizer, clock, cfg, nil),
		NewPersistenceStep(sink, cfg, nil),
	}, NewRetryPolicyWithBackoff(3, time.Millisecond, 2*time.Millisecond), clock, nil)

	state := eng.Run(context.Background(), "https://example.com")

	require.Equal(t, scraper.WorkflowCompleted, state.Status)
	require.Len(t, state.FormattedResults, 2)
	require.Len(t, state.Errors, 1)
	require.Equal(t, scraper.NodeTransformation, state.Errors[0].Step)
	require.Len(t, sink.results, 1)
	require.Len(t, sink.results[0].Data, 2)
}
