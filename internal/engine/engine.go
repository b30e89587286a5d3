// Package engine implements the workflow state machine that drives a
// scrape job from discovery through persistence.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitedigest/internal/metrics"
	"github.com/JakeFAU/sitedigest/internal/scraper"
)

// Executor is the uniform contract for one workflow node. Execute
// mutates the state on success and returns a StepFailure otherwise;
// executors never touch Errors or RetryCount, that is the engine's job.
type Executor interface {
	Node() scraper.Node
	Execute(ctx context.Context, state *scraper.WorkflowState) *scraper.StepFailure
}

// Engine sequences executors over a WorkflowState, applying the
// routing table and the retry policy. It is stateless across runs and
// safe for concurrent Run calls.
type Engine struct {
	executors map[scraper.Node]Executor
	policy    *RetryPolicy
	clock     scraper.Clock
	logger    *zap.Logger
}

// New constructs an Engine from the four working-node executors.
func New(executors []Executor, policy *RetryPolicy, clock scraper.Clock, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	byNode := make(map[scraper.Node]Executor, len(executors))
	for _, ex := range executors {
		byNode[ex.Node()] = ex
	}
	return &Engine{
		executors: byNode,
		policy:    policy,
		clock:     clock,
		logger:    logger,
	}
}

// Run drives a fresh state seeded from seedURL to the Complete node
// and returns the terminal snapshot. It never panics or returns early:
// every failure path lands in a terminal state with Status set.
func (e *Engine) Run(ctx context.Context, seedURL string) *scraper.WorkflowState {
	state := scraper.NewWorkflowState(seedURL)
	node := NextNode(scraper.NodeInitialize, nil, 0, e.policy.MaxRetries())

	for node != scraper.NodeComplete {
		executor, ok := e.executors[node]
		if !ok {
			// Broken wiring is a configuration error, not retryable.
			e.failTerminal(state, &scraper.StepFailure{
				Step:    node,
				Message: "no executor registered for node",
			})
			break
		}

		state.CurrentStep = node
		started := e.clock.Now()
		failure := executor.Execute(ctx, state)
		e.observeStep(node, failure, started)

		next := NextNode(node, failure, state.RetryCount, e.policy.MaxRetries())
		switch {
		case failure == nil:
			state.RetryCount = 0
			node = next
		case next == scraper.NodeErrorRecovery:
			if !e.recover(ctx, state, failure) {
				e.failTerminal(state, failure)
				node = scraper.NodeComplete
				break
			}
			node = state.CurrentStep
		default:
			e.failTerminal(state, failure)
			node = scraper.NodeComplete
		}
	}

	if state.Status == scraper.WorkflowRunning {
		state.Status = scraper.WorkflowCompleted
	}
	state.CurrentStep = scraper.NodeComplete
	return state
}

// recover is the ErrorRecovery node: it records the failure, bumps the
// step-scoped retry count, and applies backoff before the failed node
// is re-entered. Returns false when the context ended mid-backoff.
func (e *Engine) recover(ctx context.Context, state *scraper.WorkflowState, failure *scraper.StepFailure) bool {
	state.RetryCount++
	state.TotalRetries++
	state.Errors = append(state.Errors, scraper.StepError{
		Step:      failure.Step,
		Message:   failure.Message,
		Timestamp: e.clock.Now(),
	})
	metrics.ObserveRetry(string(failure.Step))

	delay := e.policy.Backoff(state.RetryCount)
	e.logger.Warn("step failed, retrying",
		zap.String("step", string(failure.Step)),
		zap.String("error", failure.Message),
		zap.Int("retry_count", state.RetryCount),
		zap.Duration("backoff", delay),
	)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Engine) failTerminal(state *scraper.WorkflowState, failure *scraper.StepFailure) {
	state.Errors = append(state.Errors, scraper.StepError{
		Step:      failure.Step,
		Message:   failure.Message,
		Timestamp: e.clock.Now(),
	})
	state.Status = scraper.WorkflowFailed
	e.logger.Error("step failed terminally",
		zap.String("step", string(failure.Step)),
		zap.String("error", failure.Message),
		zap.Int("retry_count", state.RetryCount),
	)
}

func (e *Engine) observeStep(node scraper.Node, failure *scraper.StepFailure, started time.Time) {
	outcome := "success"
	if failure != nil {
		outcome = "failure"
	}
	metrics.ObserveStep(string(node), outcome, e.clock.Now().Sub(started))
}
