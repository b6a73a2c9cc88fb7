package gojob

import (
	"strings"
	"time"

	"github.com/goliatone/go-miniapp/core"
)

// RetryPolicy caps how often a failed job goes back on the queue.
// MaxAttempts <= 0 means no cap.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// DefaultPersistRetryPolicy dead-letters the first failure. The next
// credential change enqueues a fresh snapshot anyway.
func DefaultPersistRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, DeadLetterOnMax: true}
}

func (p RetryPolicy) exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

func (p RetryPolicy) clampDelay(delay time.Duration) time.Duration {
	switch {
	case delay < 0:
		return 0
	case p.MaxDelay > 0 && delay > p.MaxDelay:
		return p.MaxDelay
	default:
		return delay
	}
}

// NormalizeAttempt returns the nack to send for the given attempt. The
// result always either requeues or dead-letters, never both.
func (p RetryPolicy) NormalizeAttempt(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	opts.Reason = strings.TrimSpace(opts.Reason)
	opts.Delay = p.clampDelay(opts.Delay)
	if p.exhausted(attempt) {
		opts.Requeue = false
		opts.DeadLetter = opts.DeadLetter || p.DeadLetterOnMax
	}
	if opts.DeadLetter {
		opts.Requeue = false
	} else {
		opts.Requeue = true
	}
	return opts
}
