package reassembler

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/morler/repo-translate/extractor"
)

// ErrUnresolved is returned when a unit is reassembled before every span has
// an outcome.
var ErrUnresolved = errors.New("span outcome not resolved")

// Status is the state of one span's translation.
type Status int

const (
	Pending Status = iota
	// Translated carries the provider's answer for the masked span text.
	Translated
	// Identity spans are reproduced from the original bytes.
	Identity
	// Failed spans keep their original text; Err says why.
	Failed
)

func (s Status) String() string {
	switch s {
	case Translated:
		return "translated"
	case Identity:
		return "identity"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Outcome is the resolved state of one span.
type Outcome struct {
	Status Status
	Text   string
	Err    error
}

// Fallback records a span that was written with its original text.
type Fallback struct {
	Span   int    `json:"span"`
	Line   int    `json:"line"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Result is the reassembled file.
type Result struct {
	Content    []byte
	Translated int
	Fallbacks  []Fallback
}

// Partial reports whether any span fell back to its original text.
func (r *Result) Partial() bool { return len(r.Fallbacks) > 0 }

// Reassemble rebuilds the unit content: gaps between spans (and every opaque
// region inside them) are copied verbatim, and each span is emitted as its
// prefix, translated body and suffix. A span whose translation loses a
// placeholder or would break its delimiters keeps its original text.
func Reassemble(unit *extractor.TranslationUnit, outcomes []Outcome) (*Result, error) {
	if len(outcomes) != len(unit.Spans) {
		return nil, fmt.Errorf("%s: %w: %d outcomes for %d spans", unit.Path, ErrUnresolved, len(outcomes), len(unit.Spans))
	}
	for i, o := range outcomes {
		if o.Status == Pending {
			return nil, fmt.Errorf("%s: %w: span %d", unit.Path, ErrUnresolved, i)
		}
	}

	res := &Result{}
	var out bytes.Buffer
	out.Grow(len(unit.Content) + len(unit.Content)/2)

	prev := 0
	for i, span := range unit.Spans {
		out.Write(unit.Content[prev:span.Start])
		original := unit.Content[span.Start:span.End]
		prev = span.End

		o := outcomes[i]
		switch o.Status {
		case Identity:
			out.Write(original)
			continue
		case Failed:
			res.fallback(unit, i, o.Err)
			out.Write(original)
			continue
		}

		body, err := span.Unmask(o.Text)
		if err == nil {
			err = span.Admits(body)
		}
		if err != nil {
			res.fallback(unit, i, err)
			out.Write(original)
			continue
		}
		out.WriteString(span.Render(body))
		res.Translated++
	}
	out.Write(unit.Content[prev:])

	res.Content = out.Bytes()
	return res, nil
}

func (r *Result) fallback(unit *extractor.TranslationUnit, span int, err error) {
	reason := "translation unavailable"
	if err != nil {
		reason = err.Error()
	}
	r.Fallbacks = append(r.Fallbacks, Fallback{
		Span:   span,
		Line:   unit.LineOf(unit.Spans[span].Start),
		Reason: reason,
		Err:    err,
	})
}
