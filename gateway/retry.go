package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/morler/repo-translate/providers/contracts"
)

// RetryPolicy bounds the attempts made for one batch. The wait before
// attempt n+1 is BaseDelay * 2^(n-1), capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay > 0 && p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// retryState is the position of one batch in its retry sequence.
type retryState struct {
	attempt int
	delay   time.Duration
}

func (p RetryPolicy) start() retryState {
	return retryState{attempt: 1, delay: p.BaseDelay}
}

func (p RetryPolicy) exhausted(s retryState) bool {
	return s.attempt >= p.MaxAttempts
}

func (p RetryPolicy) next(s retryState) retryState {
	return retryState{attempt: s.attempt + 1, delay: p.capped(s.delay * 2)}
}

func (p RetryPolicy) capped(d time.Duration) time.Duration {
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// wait returns how long to sleep after err. A rate limit that names its
// own delay overrides the backoff.
func (p RetryPolicy) wait(s retryState, err error) time.Duration {
	var rl *contracts.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > s.delay {
		return p.capped(rl.RetryAfter)
	}
	return s.delay
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
