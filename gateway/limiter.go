package gateway

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Limiter is the rate-limiting bookkeeping shared by every worker: a cap on
// in-flight calls, an optional request-per-minute pace, and a global pause
// set when a provider reports rate limiting.
type Limiter struct {
	sem      *semaphore.Weighted
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	next     time.Time
	resumeAt time.Time
}

// NewLimiter allows at most inFlight concurrent calls and, when
// requestsPerMinute is positive, spaces call starts evenly.
func NewLimiter(inFlight, requestsPerMinute int) *Limiter {
	if inFlight < 1 {
		inFlight = 1
	}
	l := &Limiter{sem: semaphore.NewWeighted(int64(inFlight)), now: time.Now}
	if requestsPerMinute > 0 {
		l.interval = time.Minute / time.Duration(requestsPerMinute)
	}
	return l
}

// Acquire blocks until a call may start. The returned func must be called
// when the call finishes.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	release := func() { l.sem.Release(1) }

	if err := l.waitIfPaused(ctx); err != nil {
		release()
		return nil, err
	}
	if err := sleepCtx(ctx, l.reserve()); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

// Pause holds back every new call for d. A shorter pause never shortens
// one already in effect.
func (l *Limiter) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if until := l.now().Add(d); until.After(l.resumeAt) {
		l.resumeAt = until
	}
}

// Paused returns the remaining pause.
func (l *Limiter) Paused() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if remaining := l.resumeAt.Sub(l.now()); remaining > 0 {
		return remaining
	}
	return 0
}

func (l *Limiter) waitIfPaused(ctx context.Context) error {
	for {
		remaining := l.Paused()
		if remaining <= 0 {
			return nil
		}
		if err := sleepCtx(ctx, min(remaining, 100*time.Millisecond)); err != nil {
			return err
		}
	}
}

// reserve books the next start slot and returns how long to wait for it.
func (l *Limiter) reserve() time.Duration {
	if l.interval == 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if l.next.Before(now) {
		l.next = now
	}
	wait := l.next.Sub(now)
	l.next = l.next.Add(l.interval)
	return wait
}
