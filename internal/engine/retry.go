package engine

import (
	"crypto/rand"
	"math/big"
	"time"
)

// RetryPolicy bounds automatic retries and computes jittered backoff
// proportional to the current retry count.
type RetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryPolicy builds a policy with sane delay defaults.
func NewRetryPolicy(maxRetries int) *RetryPolicy {
	return NewRetryPolicyWithBackoff(maxRetries, 250*time.Millisecond, 5*time.Second)
}

// NewRetryPolicyWithBackoff builds a policy with explicit delays
// (primarily for testing).
func NewRetryPolicyWithBackoff(maxRetries int, baseDelay, maxDelay time.Duration) *RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryPolicy{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

// MaxRetries returns the retry budget per step.
func (p *RetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// Backoff returns the wait duration before re-entering the failed node.
func (p *RetryPolicy) Backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	delay := p.baseDelay * time.Duration(retryCount)
	if delay > p.maxDelay {
		delay = p.maxDelay
	}
	jitter := p.randomJitter(delay / 2)
	return delay/2 + jitter
}

func (p *RetryPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
