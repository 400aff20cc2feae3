package contracts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrRetryable marks provider failures worth another attempt: network errors,
// rate limiting, server errors and unreadable model output.
var ErrRetryable = errors.New("retryable provider error")

// Request is one batch of texts to translate.
type Request struct {
	Texts      []string
	SourceLang string
	TargetLang string
}

// Response carries the translations in request order, as parsed from the
// provider. Its length is not checked here.
type Response struct {
	Texts        []string
	InputTokens  int
	OutputTokens int
}

// ITranslationProvider translates ordered batches of text.
type ITranslationProvider interface {
	Name() string
	Model() string
	TranslateBatch(ctx context.Context, req Request) (*Response, error)
}

// RateLimitError is returned for HTTP 429. RetryAfter is zero when the
// provider did not say how long to wait.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("%s: rate limited", e.Provider)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRetryable }

// StatusError is a non-2xx answer other than 429.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: API request failed with status code '%d'", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: API request failed with status code '%d' - %s", e.Provider, e.StatusCode, e.Message)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrRetryable && RetryableStatus(e.StatusCode)
}

// RetryableStatus reports whether an HTTP status is worth retrying.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}

// ClassifyStatus turns an error response into a RateLimitError or a
// StatusError.
func ClassifyStatus(provider string, code int, retryAfter string, message string) error {
	message = strings.TrimSpace(message)
	if len(message) > 300 {
		cut := 300
		for cut > 0 && !utf8.RuneStart(message[cut]) {
			cut--
		}
		message = message[:cut] + "..."
	}
	if code == http.StatusTooManyRequests {
		return &RateLimitError{Provider: provider, RetryAfter: ParseRetryAfter(retryAfter, time.Now()), Message: message}
	}
	return &StatusError{Provider: provider, StatusCode: code, Message: message}
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// Retryable wraps err so errors.Is(err, ErrRetryable) holds.
func Retryable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRetryable, fmt.Sprintf(format, args...))
}
