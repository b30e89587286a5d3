// Package scraper defines core types shared across subsystems.
package scraper

import "time"

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Node names one step of the scrape workflow.
type Node string

// Workflow nodes in execution order, plus the recovery and terminal nodes.
const (
	NodeInitialize     Node = "initialize"
	NodeDiscovery      Node = "discovery"
	NodeRetrieval      Node = "retrieval"
	NodeTransformation Node = "transformation"
	NodePersistence    Node = "persistence"
	NodeErrorRecovery  Node = "error_recovery"
	NodeComplete       Node = "complete"
)

// WorkflowStatus is the terminal disposition of one workflow execution.
type WorkflowStatus string

// Workflow status values.
const (
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
)

// PageSummary is the structured output produced for one page.
type PageSummary struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// FormattedResult pairs a page URL with its summary.
type FormattedResult struct {
	URL      string      `json:"url"`
	Response PageSummary `json:"response"`
}

// StepError is one entry in the workflow's append-only error trail.
type StepError struct {
	Step      Node      `json:"step"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkflowState is the single mutable record threaded through the engine.
// The engine owns it exclusively for the duration of one execution.
type WorkflowState struct {
	SeedURL          string
	DiscoveredURLs   map[string]struct{}
	EligibleURLs     []string
	ScrapedContent   map[string]string
	FormattedResults []FormattedResult
	Errors           []StepError
	RetryCount       int
	TotalRetries     int
	CurrentStep      Node
	Status           WorkflowStatus
}

// NewWorkflowState seeds a fresh state for one execution. This is the
// Initialize node; it is pure construction and cannot fail.
func NewWorkflowState(seedURL string) *WorkflowState {
	return &WorkflowState{
		SeedURL:        seedURL,
		DiscoveredURLs: make(map[string]struct{}),
		ScrapedContent: make(map[string]string),
		CurrentStep:    NodeInitialize,
		Status:         WorkflowRunning,
	}
}

// Result assembles the persisted artifact shape from the state.
func (s *WorkflowState) Result() ScrapeResult {
	data := make([]FormattedResult, len(s.FormattedResults))
	copy(data, s.FormattedResults)
	return ScrapeResult{
		SourceURL: s.SeedURL,
		Data:      data,
	}
}

// LastError returns the most recent error message, or "" when none.
func (s *WorkflowState) LastError() string {
	if len(s.Errors) == 0 {
		return ""
	}
	return s.Errors[len(s.Errors)-1].Message
}

// ScrapeResult is the persisted artifact for one completed job.
type ScrapeResult struct {
	SourceURL string            `json:"source_url"`
	Data      []FormattedResult `json:"data"`
}

// Job represents the metadata persisted for each submitted scrape request.
type Job struct {
	ID          string        `json:"job_id"`
	Status      JobStatus     `json:"status"`
	URL         string        `json:"url"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Result      *ScrapeResult `json:"result,omitempty"`
	ErrorText   string        `json:"error,omitempty"`
}

// JobCounters tracks per-job outcome stats surfaced in completion events.
type JobCounters struct {
	PagesDiscovered int `json:"pages_discovered"`
	PagesRetrieved  int `json:"pages_retrieved"`
	PagesSummarized int `json:"pages_summarized"`
	Retries         int `json:"retries"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	SeedURL   string
	Submitted time.Time
}
