package pipeline

import (
	"time"

	"github.com/morler/repo-translate/batcher"
	"github.com/morler/repo-translate/gateway"
)

// Settings is the resolved, read-only configuration of one run. It is
// passed by value; nothing in the pipeline reads configuration elsewhere.
type Settings struct {
	TargetLang string
	SourceLang string

	Limits            batcher.Limits
	Retry             gateway.RetryPolicy
	CallTimeout       time.Duration
	RequestsPerMinute int

	Concurrency      int
	Preview          bool
	DrainOnCancel    bool
	CoalesceComments bool
	MaxFileSize      int64

	Provider string
	Model    string

	EnableCache  bool
	CacheBackend string
	CacheDir     string
}

func (s Settings) workers() int {
	if s.Concurrency < 1 {
		return 1
	}
	return s.Concurrency
}
