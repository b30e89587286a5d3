// Package worker implements the scrape job execution loop.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitedigest/internal/engine"
	"github.com/JakeFAU/sitedigest/internal/metrics"
	"github.com/JakeFAU/sitedigest/internal/scraper"
)

// Config controls Worker behavior.
type Config struct {
	Topic string
}

const completeAttempts = 3

// Worker consumes queue items and drives each job through the engine.
type Worker struct {
	queue     scraper.Queue
	jobStore  scraper.JobStore
	engine    *engine.Engine
	publisher scraper.Publisher
	clock     scraper.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue scraper.Queue,
	jobStore scraper.JobStore,
	eng *engine.Engine,
	publisher scraper.Publisher,
	clock scraper.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		jobStore:  jobStore,
		engine:    eng,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item scraper.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, scraper.JobStatusRunning); err != nil {
		w.logger.Error("update job status failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}

	final := w.engine.Run(ctx, item.SeedURL)

	status := scraper.JobStatusCompleted
	errText := ""
	var result *scraper.ScrapeResult
	if final.Status == scraper.WorkflowFailed {
		status = scraper.JobStatusFailed
		errText = final.LastError()
	} else {
		r := final.Result()
		result = &r
		metrics.AddPagesSummarized(len(r.Data))
	}

	if err := w.finishJob(ctx, item.JobID, status, result, errText); err != nil {
		w.logger.Error("job outcome not recorded", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	metrics.ObserveJob(string(status))

	w.publishCompletion(ctx, item, status, final)

	w.logger.Info("job finished",
		zap.String("job_id", item.JobID),
		zap.String("status", string(status)),
		zap.Int("summarized", len(final.FormattedResults)),
		zap.Int("retries", final.TotalRetries),
	)
}

// finishJob records the terminal status, retrying so the job does not
// stay running once the engine has returned. When every attempt fails
// it falls back to marking the job failed.
func (w *Worker) finishJob(ctx context.Context, jobID string, status scraper.JobStatus, result *scraper.ScrapeResult, errText string) error {
	var err error
	for attempt := 1; attempt <= completeAttempts; attempt++ {
		if err = w.jobStore.CompleteJob(ctx, jobID, status, result, errText); err == nil {
			return nil
		}
		w.logger.Warn("final job status update failed",
			zap.String("job_id", jobID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	if fbErr := w.jobStore.UpdateJobStatus(ctx, jobID, scraper.JobStatusFailed); fbErr != nil {
		return fmt.Errorf("complete job: %w (mark failed: %v)", err, fbErr)
	}
	return fmt.Errorf("complete job: %w", err)
}

func (w *Worker) publishCompletion(ctx context.Context, item scraper.QueueItem, status scraper.JobStatus, final *scraper.WorkflowState) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	payload := map[string]any{
		"job_id":    item.JobID,
		"seed_url":  item.SeedURL,
		"status":    string(status),
		"timestamp": w.clock.Now().Format(time.RFC3339),
		"counters": scraper.JobCounters{
			PagesDiscovered: len(final.DiscoveredURLs),
			PagesRetrieved:  len(final.ScrapedContent),
			PagesSummarized: len(final.FormattedResults),
			Retries:         final.TotalRetries,
		},
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		// Completion events are advisory; the job outcome stands.
		w.logger.Warn("publish completion failed", zap.String("job_id", item.JobID), zap.Error(err))
	}
}
