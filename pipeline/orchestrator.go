// Package pipeline drives a repository translation: it walks the input
// tree, extracts spans, sends them through the gateway in batches and writes
// the reassembled files to a parallel output tree.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/morler/repo-translate/batcher"
	"github.com/morler/repo-translate/extractor"
	gateway_contracts "github.com/morler/repo-translate/gateway/contracts"
	"github.com/morler/repo-translate/providers/prompt"
	"github.com/morler/repo-translate/reassembler"
	"github.com/morler/repo-translate/resolver"
	"github.com/morler/repo-translate/token_management"
	token_contracts "github.com/morler/repo-translate/token_management/contracts"
	memory_contracts "github.com/morler/repo-translate/translation_memory/contracts"
	"github.com/pterm/pterm"
	"golang.org/x/sync/errgroup"
)

// Options wires an Orchestrator. Translator may be nil in preview mode.
type Options struct {
	Settings   Settings
	Translator gateway_contracts.ITranslator
	Extractor  *extractor.Registry
	Resolver   *resolver.Resolver
	Tokens     token_contracts.ITokenManagement
	Logger     *pterm.Logger
	// Memory receives every translation that made it into an output file.
	// It should be the store the translator reads from.
	Memory memory_contracts.IStore
	// OnFile is called once per file as soon as its result is final. It may
	// be called from several goroutines at once.
	OnFile func(FileResult)
	// OnStart receives the number of files found before work begins.
	OnStart func(files int)
	// OnUnit receives every extracted unit, in walk order, before batching.
	OnUnit func(*extractor.TranslationUnit)
}

type Orchestrator struct {
	settings   Settings
	translator gateway_contracts.ITranslator
	extractor  *extractor.Registry
	resolver   *resolver.Resolver
	tokens     token_contracts.ITokenManagement
	logger     *pterm.Logger
	memory     memory_contracts.IStore
	onFile     func(FileResult)
	onStart    func(int)
	onUnit     func(*extractor.TranslationUnit)
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Translator == nil && !opts.Settings.Preview {
		return nil, errors.New("pipeline: a translator is required outside preview mode")
	}
	if opts.Settings.TargetLang == "" {
		return nil, errors.New("pipeline: target language is required")
	}
	o := &Orchestrator{
		settings:   opts.Settings,
		translator: opts.Translator,
		extractor:  opts.Extractor,
		resolver:   opts.Resolver,
		tokens:     opts.Tokens,
		logger:     opts.Logger,
		memory:     opts.Memory,
		onFile:     opts.OnFile,
		onStart:    opts.OnStart,
		onUnit:     opts.OnUnit,
	}
	if o.extractor == nil {
		o.extractor = extractor.NewRegistry(extractor.Options{CoalesceComments: opts.Settings.CoalesceComments})
	}
	if o.resolver == nil {
		o.resolver = resolver.New(resolver.Options{Grammars: o.extractor.Names(), MaxFileSize: opts.Settings.MaxFileSize})
	}
	if o.tokens == nil {
		o.tokens = token_management.NewTokenManager()
	}
	if o.logger == nil {
		o.logger = pterm.DefaultLogger.WithLevel(pterm.LogLevelDisabled)
	}
	return o, nil
}

// Run translates the tree at in into out. The report is returned even when
// the run is canceled; in that case the error is the context's.
func (o *Orchestrator) Run(ctx context.Context, in, out string) (*Report, error) {
	started := time.Now()
	in, out, err := resolvePaths(in, out)
	if err != nil {
		return nil, err
	}
	report := &Report{
		Input:      in,
		Output:     out,
		TargetLang: o.settings.TargetLang,
		Preview:    o.settings.Preview,
		Started:    started,
	}

	entries, err := o.walk(ctx, in, out)
	if err != nil {
		if ctx.Err() != nil {
			report.Canceled = true
			return report, ctx.Err()
		}
		return nil, err
	}
	if o.onStart != nil {
		o.onStart(len(entries))
	}
	o.logger.Info("translating repository", o.logger.Args(
		"input", in, "output", out, "files", len(entries), "target", o.settings.TargetLang, "preview", o.settings.Preview))

	states := make([]*fileState, len(entries))
	loads := new(errgroup.Group)
	loads.SetLimit(o.settings.workers())
	for i, entry := range entries {
		states[i] = &fileState{entry: entry}
		st := states[i]
		loads.Go(func() error {
			o.load(ctx, st, out)
			return nil
		})
	}
	_ = loads.Wait()

	var units []*extractor.TranslationUnit
	var owners []*fileState
	for _, st := range states {
		if st.unit != nil {
			units = append(units, st.unit)
			owners = append(owners, st)
			if o.onUnit != nil {
				o.onUnit(st.unit)
			}
		}
	}

	plan := batcher.Build(units, o.settings.Limits)
	for u, st := range owners {
		st.pending = plan.BatchesFor(u)
		st.result.Batches = st.pending
	}
	for _, addr := range plan.Identity {
		owners[addr.Unit].outcomes[addr.Span] = reassembler.Outcome{Status: reassembler.Identity}
	}

	if o.settings.Preview {
		report.Estimate = o.estimate(plan, units)
		for _, st := range owners {
			o.notify(st.result)
		}
	} else {
		o.dispatch(ctx, plan, owners, out, report)
	}

	report.Files = make([]FileResult, len(states))
	for i, st := range states {
		if st.result.Status == "" {
			// scheduling stopped before every batch of this file was sent
			st.result.Status = StatusAbandoned
			st.result.Reason = "canceled before translation"
		}
		report.Files[i] = st.result
	}
	report.Duration = time.Since(started)

	if err := ctx.Err(); err != nil {
		report.Canceled = true
		o.logger.Warn("run canceled", o.logger.Args("abandoned", report.Count(StatusAbandoned)))
		return report, err
	}
	return report, nil
}

// dispatch sends every request through the translator, at most
// Settings.Concurrency at a time, and finalizes each file as soon as its
// last batch resolves.
func (o *Orchestrator) dispatch(ctx context.Context, plan *batcher.Plan, owners []*fileState, out string, report *Report) {
	callCtx := ctx
	if o.settings.DrainOnCancel {
		callCtx = context.WithoutCancel(ctx)
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(o.settings.workers())
	for _, req := range plan.Requests {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			texts, err := o.translator.TranslateBatch(callCtx, req.Texts(), o.settings.TargetLang)
			var resolved []batcher.Resolution
			if err == nil {
				resolved, err = batcher.Demux(req, texts)
			}
			canceled := err != nil && ctx.Err() != nil && !o.settings.DrainOnCancel

			mu.Lock()
			report.Batches++
			if err != nil {
				report.FailedBatches++
				for _, it := range req.Items {
					st := owners[it.Unit]
					st.outcomes[it.Span] = reassembler.Outcome{Status: reassembler.Failed, Err: err}
					st.abandoned = st.abandoned || canceled
				}
			} else {
				for _, r := range resolved {
					owners[r.Unit].outcomes[r.Span] = reassembler.Outcome{Status: reassembler.Translated, Text: r.Text}
				}
			}
			var ready []*fileState
			seen := make(map[int]bool)
			for _, it := range req.Items {
				if seen[it.Unit] {
					continue
				}
				seen[it.Unit] = true
				st := owners[it.Unit]
				st.pending--
				if st.pending == 0 {
					ready = append(ready, st)
				}
			}
			mu.Unlock()

			if err != nil && !canceled {
				o.logger.Warn("batch failed, spans keep their original text", o.logger.Args(
					"batch", req.Index, "texts", len(req.Items), "error", err))
			}
			for _, st := range ready {
				o.finalize(st, out)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// estimate sizes the requests of a preview run without calling a provider.
func (o *Orchestrator) estimate(plan *batcher.Plan, units []*extractor.TranslationUnit) *Estimate {
	est := &Estimate{
		Files:   len(units),
		Batches: len(plan.Requests),
		Chars:   plan.Chars(),
	}
	for _, u := range units {
		est.Spans += u.Translatable()
	}
	for _, req := range plan.Requests {
		texts := req.Texts()
		system, err := prompt.System(o.settings.SourceLang, o.settings.TargetLang, len(texts))
		if err != nil {
			o.logger.Warn("could not render prompt for estimate", o.logger.Args("error", err))
		}
		user, err := prompt.User(texts)
		if err != nil {
			o.logger.Warn("could not render prompt for estimate", o.logger.Args("error", err))
		}
		est.InputTokens += o.tokens.EstimateTokens(system) + o.tokens.EstimateTokens(user)
		est.OutputTokens += o.tokens.EstimateTokens(user)
	}
	est.Cost = o.tokens.CalculateCost(o.settings.Provider, o.settings.Model, est.InputTokens, est.OutputTokens)
	return est
}

func (o *Orchestrator) notify(res FileResult) {
	if o.onFile != nil {
		o.onFile(res)
	}
}

// String summarizes the status counts on one line.
func (r *Report) String() string {
	counts := r.Counts()
	return fmt.Sprintf("%d translated, %d partial, %d passthrough, %d previewed, %d abandoned, %d errored",
		counts[StatusTranslated], counts[StatusPartial], counts[StatusPassthrough],
		counts[StatusPreviewed], counts[StatusAbandoned], counts[StatusErrored])
}
