package batcher

import (
	"errors"
	"fmt"

	"github.com/morler/repo-translate/extractor"
)

// ErrCardinality is returned when a response does not answer every item of
// the request it belongs to.
var ErrCardinality = errors.New("response size does not match request")

// Address locates one span: the index of its unit in the slice given to
// Build, and the index of the span inside that unit.
type Address struct {
	Unit int `json:"unit"`
	Span int `json:"span"`
}

// Item is one text submitted for translation.
type Item struct {
	Address
	Text string `json:"text"`
}

// Request is an ordered group of items sent to the gateway in one call.
type Request struct {
	Index int    `json:"index"`
	Items []Item `json:"items"`
}

// Texts returns the item texts in request order.
func (r *Request) Texts() []string {
	out := make([]string, len(r.Items))
	for i, it := range r.Items {
		out[i] = it.Text
	}
	return out
}

// Chars is the cumulative text size of the request.
func (r *Request) Chars() int {
	n := 0
	for _, it := range r.Items {
		n += len(it.Text)
	}
	return n
}

// Limits bounds a request. A zero field disables that bound.
type Limits struct {
	MaxItems int
	MaxChars int
}

// Plan is the full set of requests for a run, plus the spans that need no
// translation at all.
type Plan struct {
	Requests []*Request
	// Identity lists empty spans. They resolve to their own text and are
	// never submitted.
	Identity []Address

	perUnit []int
}

// Build packs the spans of units into requests. Units are visited in slice
// order and spans in position order; a span is never split across requests,
// so one larger than MaxChars travels alone. Nil units are skipped but keep
// their index.
func Build(units []*extractor.TranslationUnit, limits Limits) *Plan {
	p := &Plan{perUnit: make([]int, len(units))}

	var cur *Request
	chars := 0
	touched := make(map[int]bool)
	flush := func() {
		if cur == nil || len(cur.Items) == 0 {
			return
		}
		for u := range touched {
			p.perUnit[u]++
		}
		p.Requests = append(p.Requests, cur)
		cur = nil
		chars = 0
		touched = make(map[int]bool)
	}

	for u, unit := range units {
		if unit == nil {
			continue
		}
		for s, span := range unit.Spans {
			addr := Address{Unit: u, Span: s}
			if span.IsEmpty() {
				p.Identity = append(p.Identity, addr)
				continue
			}
			text := span.Masked()
			if cur != nil && (limits.MaxItems > 0 && len(cur.Items) >= limits.MaxItems ||
				limits.MaxChars > 0 && chars+len(text) > limits.MaxChars) {
				flush()
			}
			if cur == nil {
				cur = &Request{Index: len(p.Requests)}
			}
			cur.Items = append(cur.Items, Item{Address: addr, Text: text})
			chars += len(text)
			touched[u] = true
		}
	}
	flush()
	return p
}

// BatchesFor returns how many requests carry spans of unit u.
func (p *Plan) BatchesFor(u int) int {
	if u < 0 || u >= len(p.perUnit) {
		return 0
	}
	return p.perUnit[u]
}

// Items counts the texts that will be submitted.
func (p *Plan) Items() int {
	n := 0
	for _, r := range p.Requests {
		n += len(r.Items)
	}
	return n
}

// Chars sums the size of every submitted text.
func (p *Plan) Chars() int {
	n := 0
	for _, r := range p.Requests {
		n += r.Chars()
	}
	return n
}

// Resolution pairs an address with the translation received for it.
type Resolution struct {
	Address
	Text string
}

// Demux maps a response back onto the addresses of req. The response must
// hold exactly one entry per item; it is never truncated or padded.
func Demux(req *Request, resp []string) ([]Resolution, error) {
	if len(resp) != len(req.Items) {
		return nil, fmt.Errorf("%w: request %d sent %d texts, got %d", ErrCardinality, req.Index, len(req.Items), len(resp))
	}
	out := make([]Resolution, len(resp))
	for i, it := range req.Items {
		out[i] = Resolution{Address: it.Address, Text: resp[i]}
	}
	return out, nil
}
