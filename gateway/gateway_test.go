package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/morler/repo-translate/providers/contracts"
	"github.com/morler/repo-translate/token_management"
	"github.com/morler/repo-translate/translation_memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider answers calls with fn and records every request.
type stubProvider struct {
	mu    sync.Mutex
	calls [][]string
	fn    func(call int, req contracts.Request) (*contracts.Response, error)
}

func (s *stubProvider) Name() string  { return "stub" }
func (s *stubProvider) Model() string { return "stub-model" }

func (s *stubProvider) TranslateBatch(ctx context.Context, req contracts.Request) (*contracts.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]string(nil), req.Texts...))
	call := len(s.calls)
	s.mu.Unlock()
	return s.fn(call, req)
}

func (s *stubProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func upper(req contracts.Request) *contracts.Response {
	out := make([]string, len(req.Texts))
	for i, t := range req.Texts {
		out[i] = strings.ToUpper(t)
	}
	return &contracts.Response{Texts: out, InputTokens: 10, OutputTokens: 5}
}

func newTestGateway(t *testing.T, p contracts.ITranslationProvider, policy RetryPolicy) (*Gateway, *[]time.Duration) {
	t.Helper()
	g, err := New(Options{Provider: p, Policy: policy})
	require.NoError(t, err)
	var waits []time.Duration
	g.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return g, &waits
}

func TestTranslateBatch_OrderPreservedForDuplicates(t *testing.T) {
	p := &stubProvider{fn: func(call int, req contracts.Request) (*contracts.Response, error) {
		out := make([]string, len(req.Texts))
		for i, text := range req.Texts {
			out[i] = text + "#" + string(rune('0'+i))
		}
		return &contracts.Response{Texts: out}, nil
	}}
	g, _ := newTestGateway(t, p, RetryPolicy{MaxAttempts: 1})

	got, err := g.TranslateBatch(context.Background(), []string{"a", "b", "a"}, "fr")
	require.NoError(t, err)
	assert.Equal(t, []string{"a#0", "b#1", "a#2"}, got)
	assert.Equal(t, [][]string{{"a", "b", "a"}}, p.calls)
}

func TestTranslateBatch_RetriesTransientThenSucceeds(t *testing.T) {
	p := &stubProvider{fn: func(call int, req contracts.Request) (*contracts.Response, error) {
		if call < 3 {
			return nil, &contracts.StatusError{Provider: "stub", StatusCode: 503}
		}
		return upper(req), nil
	}}
	g, waits := newTestGateway(t, p, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute})

	got, err := g.TranslateBatch(context.Background(), []string{"x"}, "fr")
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, got)
	assert.Equal(t, 3, p.callCount())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
}

func TestTranslateBatch_Exhausted(t *testing.T) {
	p := &stubProvider{fn: func(call int, req contracts.Request) (*contracts.Response, error) {
		return nil, contracts.Retryable("connection reset")
	}}
	g, waits := newTestGateway(t, p, RetryPolicy{MaxAttempts: 4, BaseDelay: time.Second, MaxDelay: 3 * time.Second})

	_, err := g.TranslateBatch(context.Background(), []string{"x"}, "fr")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, ErrTransient)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 4, exhausted.Attempts)
	assert.Equal(t, 4, p.callCount())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, *waits)
}

func TestTranslateBatch_ProtocolViolationNotRetried(t *testing.T) {
	p := &stubProvider{fn: func(call int, req contracts.Request) (*contracts.Response, error) {
		return &contracts.Response{Texts: []string{"only one"}}, nil
	}}
	g, _ := newTestGateway(t, p, RetryPolicy{MaxAttempts: 5})

	_, err := g.TranslateBatch(context.Background(), []string{"a", "b"}, "fr")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocolViolation)

	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 2, perr.Want)
	assert.Equal(t, 1, perr.Got)
	assert.Equal(t, 1, p.callCount())
}

func TestTranslateBatch_TooManyEntriesRejected(t *testing.T) {
	p := &stubProvider{fn: func(call int, req contracts.Request) (*contracts.Response, error) {
		return &contracts.Response{Texts: []string{"1", "2", "3"}}, nil
	}}
	g, _ := newTestGateway(t, p, RetryPolicy{MaxAttempts: 1})

	_, err := g.TranslateBatch(context.Background(), []string{"a", "b"}, "fr")
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestTranslateBatch_FatalNotRetried(t *testing.T) {
	p := &stubProvider{fn: func(call int, req contracts.Request) (*contracts.Response, error) {
		return nil, &contracts.StatusError{Provider: "stub", StatusCode: 401, Message: "bad key"}
	}}
	g, waits := newTestGateway(t, p, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second})

	_, err := g.TranslateBatch(context.Background(), []string{"a"}, "fr")
	assert.ErrorIs(t, err, ErrFatal)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, p.callCount())
	assert.Empty(t, *waits)
}

func TestTranslateBatch_CallTimeoutIsTransient(t *testing.T) {
	p := &stubProvider{fn: func(call int, req contracts.Request) (*contracts.Response, error) {
		if call == 1 {
			return nil, context.DeadlineExceeded
		}
		return upper(req), nil
	}}
	g, _ := newTestGateway(t, p, RetryPolicy{MaxAttempts: 2})

	got, err := g.TranslateBatch(context.Background(), []string{"a"}, "fr")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, got)
}

func TestTranslateBatch_CallTimeoutApplied(t *testing.T) {
	g, err := New(Options{
		Provider:    &blockingProvider{},
		Policy:      RetryPolicy{MaxAttempts: 2},
		CallTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	g.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	_, err = g.TranslateBatch(context.Background(), []string{"a"}, "fr")
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// blockingProvider waits until its context ends.
type blockingProvider struct{}

func (blockingProvider) Name() string  { return "blocking" }
func (blockingProvider) Model() string { return "none" }
func (blockingProvider) TranslateBatch(ctx context.Context, req contracts.Request) (*contracts.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTranslateBatch_CanceledContextNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &stubProvider{fn: func(call int, req contracts.Request) (*contracts.Response, error) {
		cancel()
		return nil, contracts.Retryable("boom")
	}}
	g, _ := newTestGateway(t, p, RetryPolicy{MaxAttempts: 3})

	_, err := g.TranslateBatch(ctx, []string{"a"}, "fr")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.callCount())
}

func TestTranslateBatch_RateLimitOverridesBackoffAndPauses(t *testing.T) {
	p := &stubProvider{fn: func(call int, req contracts.Request) (*contracts.Response, error) {
		if call == 1 {
			return nil, &contracts.RateLimitError{Provider: "stub", RetryAfter: 7 * time.Second}
		}
		return upper(req), nil
	}}
	limiter := NewLimiter(2, 0)
	g, err := New(Options{Provider: p, Policy: RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Minute}, Limiter: limiter})
	require.NoError(t, err)
	var waits []time.Duration
	g.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		// end the pause so the second attempt can start immediately
		limiter.mu.Lock()
		limiter.resumeAt = time.Time{}
		limiter.mu.Unlock()
		return nil
	}

	got, err := g.TranslateBatch(context.Background(), []string{"a"}, "fr")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, got)
	assert.Equal(t, []time.Duration{7 * time.Second}, waits)
}

func TestTranslateBatch_Empty(t *testing.T) {
	p := &stubProvider{fn: func(call int, req contracts.Request) (*contracts.Response, error) {
		return upper(req), nil
	}}
	g, _ := newTestGateway(t, p, RetryPolicy{})

	got, err := g.TranslateBatch(context.Background(), nil, "fr")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, p.callCount())
}

func TestTranslateBatch_MemoryHits(t *testing.T) {
	ctx := context.Background()
	store, err := translation_memory.NewFileStore(t.TempDir(), "stub/stub-model")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "fr", "b", "bee"))

	p := &stubProvider{fn: func(call int, req contracts.Request) (*contracts.Response, error) {
		return upper(req), nil
	}}
	tokens := token_management.NewTokenManager()
	g, err := New(Options{Provider: p, Policy: RetryPolicy{MaxAttempts: 1}, Memory: store, Tokens: tokens})
	require.NoError(t, err)

	got, err := g.TranslateBatch(ctx, []string{"a", "b", "a"}, "fr")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "bee", "A"}, got)
	assert.Equal(t, [][]string{{"a", "a"}}, p.calls)

	total, input, output := tokens.GetCurrentTokenUsage()
	assert.Equal(t, 15, total)
	assert.Equal(t, 10, input)
	assert.Equal(t, 5, output)

	// provider answers are not stored until the caller accepts them
	_, found, err := store.Get(ctx, "fr", "a")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put(ctx, "fr", "a", "ay"))
	got, err = g.TranslateBatch(ctx, []string{"a", "b"}, "fr")
	require.NoError(t, err)
	assert.Equal(t, []string{"ay", "bee"}, got)
	assert.Equal(t, 1, p.callCount())
}

func TestNew_RequiresProvider(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
