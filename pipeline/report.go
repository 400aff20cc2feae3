package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/morler/repo-translate/reassembler"
	"github.com/morler/repo-translate/utils"
)

// Status is the outcome of one file.
type Status string

const (
	// StatusTranslated files had every span translated.
	StatusTranslated Status = "translated"
	// StatusPartial files were written with some spans left in the original.
	StatusPartial Status = "partial"
	// StatusPassthrough files were copied unchanged.
	StatusPassthrough Status = "passthrough"
	// StatusErrored files could not be read or written.
	StatusErrored Status = "errored"
	// StatusAbandoned files were not written because the run was canceled.
	StatusAbandoned Status = "abandoned"
	// StatusPreviewed files would be translated outside preview mode.
	StatusPreviewed Status = "previewed"
)

// Statuses lists every status in report order.
var Statuses = []Status{StatusTranslated, StatusPartial, StatusPassthrough, StatusPreviewed, StatusAbandoned, StatusErrored}

// FileResult is the report line of one file.
type FileResult struct {
	Path       string                 `json:"path"`
	Category   string                 `json:"category"`
	Status     Status                 `json:"status"`
	Spans      int                    `json:"spans"`
	Translated int                    `json:"translated"`
	Batches    int                    `json:"batches,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	Fallbacks  []reassembler.Fallback `json:"fallbacks,omitempty"`
	Error      string                 `json:"error,omitempty"`

	err error
}

// Err returns the failure of an errored file.
func (f FileResult) Err() error { return f.err }

// Estimate sizes the translation work of a preview run.
type Estimate struct {
	Files        int     `json:"files"`
	Spans        int     `json:"spans"`
	Batches      int     `json:"batches"`
	Chars        int     `json:"chars"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost_usd"`
}

// Report aggregates a run.
type Report struct {
	Input      string        `json:"input"`
	Output     string        `json:"output"`
	TargetLang string        `json:"target_lang"`
	Preview    bool          `json:"preview"`
	Started    time.Time     `json:"started"`
	Duration   time.Duration `json:"duration_ns"`
	Canceled   bool          `json:"canceled,omitempty"`

	Batches       int `json:"batches"`
	FailedBatches int `json:"failed_batches"`

	Files    []FileResult `json:"files"`
	Estimate *Estimate    `json:"estimate,omitempty"`
}

// Count returns how many files ended with status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, f := range r.Files {
		if f.Status == s {
			n++
		}
	}
	return n
}

// Counts maps every status to its file count.
func (r *Report) Counts() map[Status]int {
	counts := make(map[Status]int, len(Statuses))
	for _, s := range Statuses {
		counts[s] = r.Count(s)
	}
	return counts
}

// File returns the result for a relative path.
func (r *Report) File(path string) (FileResult, bool) {
	for _, f := range r.Files {
		if f.Path == path {
			return f, true
		}
	}
	return FileResult{}, false
}

// Err joins the failures of every errored file.
func (r *Report) Err() error {
	var errs []error
	for _, f := range r.Files {
		if f.Status == StatusErrored && f.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Path, f.err))
		}
	}
	return errors.Join(errs...)
}

// WriteJSON exports the report.
func (r *Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return utils.WriteFileAtomic(path, append(data, '\n'), 0o644)
}
