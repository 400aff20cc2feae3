package extractor

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Grammar locates translatable spans for one file category. Implementations
// must be pure: the same content always yields the same spans, and content is
// never modified.
type Grammar interface {
	Name() string
	Locate(ctx context.Context, content []byte, opts Options) ([]Span, []Region, error)
}

// Options tunes extraction.
type Options struct {
	// CoalesceComments merges consecutive line comments into one span.
	CoalesceComments bool
}

// Registry dispatches extraction to the grammar registered for a category.
type Registry struct {
	mu       sync.RWMutex
	grammars map[string]Grammar
	opts     Options
}

// NewRegistry returns a registry holding the markdown grammar and every
// built-in source grammar.
func NewRegistry(opts Options) *Registry {
	r := &Registry{grammars: make(map[string]Grammar), opts: opts}
	r.Register(NewMarkdownGrammar())
	for _, g := range builtinGrammars() {
		r.Register(g)
	}
	return r
}

// Register adds or replaces a grammar under its name.
func (r *Registry) Register(g Grammar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grammars[g.Name()] = g
}

// Lookup returns the grammar registered under name.
func (r *Registry) Lookup(name string) (Grammar, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.grammars[name]
	return g, ok
}

// Names lists registered grammar names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.grammars))
	for name := range r.grammars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Extract builds the translation unit for one file. Opaque files yield a unit
// with no spans. A pass-through error (see IsPassThrough) still comes with a
// usable, span-free unit.
func (r *Registry) Extract(ctx context.Context, path string, category Category, content []byte) (*TranslationUnit, error) {
	unit := &TranslationUnit{Path: path, Category: category, Content: content}

	var name string
	switch category.Kind {
	case CategoryOpaque:
		return unit, nil
	case CategoryMarkdown:
		name = markdownGrammarName
	case CategoryGrammar:
		name = category.Grammar
	default:
		return unit, fmt.Errorf("%w: category %q", ErrUnsupportedGrammar, category)
	}

	g, ok := r.Lookup(name)
	if !ok {
		return unit, fmt.Errorf("%w: %s", ErrUnsupportedGrammar, name)
	}

	spans, regions, err := g.Locate(ctx, content, r.opts)
	if err != nil {
		return unit, fmt.Errorf("%s: %w", path, err)
	}
	if err := validate(content, spans, regions); err != nil {
		return unit, fmt.Errorf("%s: %w", path, err)
	}
	unit.Spans = spans
	unit.Regions = regions
	return unit, nil
}

// validate checks that spans are ordered, disjoint, clear of opaque regions
// and render back to the bytes they cover.
func validate(content []byte, spans []Span, regions []Region) error {
	prev := 0
	for i, s := range spans {
		if s.Start < prev || s.End < s.Start || s.End > len(content) {
			return fmt.Errorf("%w: span %d [%d,%d) after offset %d", ErrInvalidLayout, i, s.Start, s.End, prev)
		}
		if got := s.Render(s.Text); got != string(content[s.Start:s.End]) {
			return fmt.Errorf("%w: span %d does not render back to its source", ErrInvalidLayout, i)
		}
		for j, p := range s.Protected {
			if p.Start < 0 || p.End > len(s.Text) || p.Start >= p.End || (j > 0 && p.Start < s.Protected[j-1].End) {
				return fmt.Errorf("%w: span %d protection %d out of range", ErrInvalidLayout, i, j)
			}
		}
		for _, reg := range regions {
			if s.Start < reg.End && reg.Start < s.End {
				return fmt.Errorf("%w: span %d overlaps %s region", ErrInvalidLayout, i, reg.Kind)
			}
		}
		prev = s.End
	}
	return nil
}
