package contracts

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code      int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusRequestTimeout, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
	}
	for _, tt := range tests {
		err := ClassifyStatus("openai", tt.code, "", "boom")
		assert.Equal(t, tt.retryable, errors.Is(err, ErrRetryable), "status %d", tt.code)
	}
}

func TestClassifyStatus_RateLimit(t *testing.T) {
	err := ClassifyStatus("deepseek", http.StatusTooManyRequests, "7", "slow down")

	var rl *RateLimitError
	assert.True(t, errors.As(err, &rl))
	assert.Equal(t, 7*time.Second, rl.RetryAfter)
	assert.Contains(t, err.Error(), "slow down")
}

func TestClassifyStatus_TruncatesOnRuneBoundary(t *testing.T) {
	err := ClassifyStatus("openai", http.StatusBadRequest, "", "a"+strings.Repeat("é", 200))

	var se *StatusError
	assert.True(t, errors.As(err, &se))
	assert.True(t, utf8.ValidString(se.Message), "message %q", se.Message)
	assert.True(t, strings.HasSuffix(se.Message, "..."))
	assert.LessOrEqual(t, len(se.Message), 303)
	assert.True(t, utf8.ValidString(err.Error()))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 1500*time.Millisecond, ParseRetryAfter("1.5", now))
	assert.Equal(t, 30*time.Second, ParseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now))
	assert.Zero(t, ParseRetryAfter("", now))
	assert.Zero(t, ParseRetryAfter("soon", now))
	assert.Zero(t, ParseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
}

func TestRetryable(t *testing.T) {
	err := Retryable("no choices returned from %s", "qwen")
	assert.ErrorIs(t, err, ErrRetryable)
	assert.Contains(t, err.Error(), "no choices returned from qwen")
}
