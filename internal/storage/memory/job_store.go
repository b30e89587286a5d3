// Package memory provides an in-memory JobStore for development/testing.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/sitedigest/internal/scraper"
)

// JobStore keeps jobs in a mutex-guarded map. Mutation is serialized
// per store, which satisfies the per-job serialization contract.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]scraper.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]scraper.Job),
	}
}

// CreateJob stores a new job in pending status.
func (s *JobStore) CreateJob(_ context.Context, job scraper.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus updates the lifecycle status for a job.
func (s *JobStore) UpdateJobStatus(_ context.Context, jobID string, status scraper.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scraper.ErrJobNotFound
	}
	job.Status = status
	if isTerminal(status) && job.CompletedAt == nil {
		job.CompletedAt = pointerTime(time.Now().UTC())
	}
	s.jobs[jobID] = job
	return nil
}

// CompleteJob records the terminal status plus result or error text.
func (s *JobStore) CompleteJob(
	_ context.Context,
	jobID string,
	status scraper.JobStatus,
	result *scraper.ScrapeResult,
	errText string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scraper.ErrJobNotFound
	}
	job.Status = status
	job.Result = result
	job.ErrorText = errText
	job.CompletedAt = pointerTime(time.Now().UTC())
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (scraper.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scraper.Job{}, scraper.ErrJobNotFound
	}
	return job, nil
}

// ListJobs returns jobs ordered by creation time descending, optionally
// filtered by status and capped at limit (limit <= 0 means no cap).
func (s *JobStore) ListJobs(_ context.Context, status scraper.JobStatus, limit int) ([]scraper.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scraper.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != "" && job.Status != status {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteJob removes a job from the store.
func (s *JobStore) DeleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return scraper.ErrJobNotFound
	}
	delete(s.jobs, jobID)
	return nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func isTerminal(status scraper.JobStatus) bool {
	switch status {
	case scraper.JobStatusCompleted, scraper.JobStatusFailed:
		return true
	default:
		return false
	}
}
