package scraper

import (
	"context"
	"time"
)

// LinkDiscoverer finds outbound links reachable from a seed page.
type LinkDiscoverer interface {
	DiscoverLinks(ctx context.Context, seedURL string) ([]string, error)
}

// ContentRetriever fetches text content for one batch of URLs. The
// content map holds the URLs that yielded usable text; failed holds
// per-URL permanent failures, which the caller records and skips. The
// error return is for batch-level failures that abort the remaining
// URLs.
type ContentRetriever interface {
	RetrieveBatch(ctx context.Context, urls []string) (content map[string]string, failed map[string]error, err error)
}

// Summarizer produces a structured summary for one page's text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (PageSummary, error)
}

// ResultSink writes the final artifact to durable storage. Persist must
// be idempotent: identical input produces identical stored output.
type ResultSink interface {
	Persist(ctx context.Context, result ScrapeResult) error
}

// JobStore persists job metadata and outcomes. Implementations must
// serialize mutation per job ID.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus) error
	CompleteJob(ctx context.Context, jobID string, status JobStatus, result *ScrapeResult, errText string) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListJobs(ctx context.Context, status JobStatus, limit int) ([]Job, error)
	DeleteJob(ctx context.Context, jobID string) error
}

// Publisher pushes job completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for scrape jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
