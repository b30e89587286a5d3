package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"marked transient", MarkTransient(errors.New("rate limited")), true},
		{"wrapped transient", fmt.Errorf("call: %w", MarkTransient(errors.New("503"))), true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"net timeout", timeoutErr{}, true},
		{"unparsable", fmt.Errorf("summary: %w", ErrUnparsable), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestMarkTransientNil(t *testing.T) {
	if MarkTransient(nil) != nil {
		t.Fatalf("MarkTransient(nil) should be nil")
	}
}

func TestNewStepFailureClassifies(t *testing.T) {
	f := NewStepFailure(NodeRetrieval, MarkTransient(errors.New("timeout")))
	if f.Step != NodeRetrieval || !f.Retryable || f.Message != "timeout" {
		t.Fatalf("unexpected failure %+v", f)
	}

	f = NewStepFailure(NodeTransformation, fmt.Errorf("bad json: %w", ErrUnparsable))
	if f.Retryable {
		t.Fatalf("parse failures must be terminal")
	}
}
