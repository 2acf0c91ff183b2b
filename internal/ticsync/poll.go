package ticsync

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// PollPolicy expresses a repeated check as data: how often to re-poll,
// how many attempts are allowed, and which timer drives the waits.
// MaxAttempts of 0 means unbounded. A nil Timer uses the real clock;
// tests inject a fake so the loops terminate deterministically.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts uint64
	Timer       backoff.Timer
}

// Run invokes op until it returns nil, the attempt budget is exhausted,
// or ctx is cancelled. The last op error is returned on exhaustion; an
// error wrapped with backoff.Permanent aborts immediately.
func (p PollPolicy) Run(ctx context.Context, op func() error) error {
	var b backoff.BackOff = backoff.NewConstantBackOff(p.Interval)
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, p.MaxAttempts-1)
	}
	return backoff.RetryNotifyWithTimer(op, backoff.WithContext(b, ctx), nil, p.Timer)
}

// withDefaults fills in the zero fields from def.
func (p PollPolicy) withDefaults(def PollPolicy) PollPolicy {
	if p.Interval == 0 {
		p.Interval = def.Interval
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	return p
}
