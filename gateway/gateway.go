package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/morler/repo-translate/gateway/contracts"
	provider_contracts "github.com/morler/repo-translate/providers/contracts"
	token_contracts "github.com/morler/repo-translate/token_management/contracts"
	memory_contracts "github.com/morler/repo-translate/translation_memory/contracts"
	"github.com/pterm/pterm"
)

// Options configures a Gateway. Provider is required; everything else is
// optional.
type Options struct {
	Provider    provider_contracts.ITranslationProvider
	Policy      RetryPolicy
	Limiter     *Limiter
	CallTimeout time.Duration
	SourceLang  string
	Memory      memory_contracts.IStore
	Tokens      token_contracts.ITokenManagement
	Logger      *pterm.Logger
}

// Gateway is the only path from the pipeline to a translation provider. It
// retries transient failures, rejects responses of the wrong length and
// consults the translation memory before calling out. It never writes the
// memory; callers store the translations they accept.
type Gateway struct {
	provider    provider_contracts.ITranslationProvider
	policy      RetryPolicy
	limiter     *Limiter
	callTimeout time.Duration
	sourceLang  string
	memory      memory_contracts.IStore
	tokens      token_contracts.ITokenManagement
	logger      *pterm.Logger
	sleep       func(context.Context, time.Duration) error
}

var _ contracts.ITranslator = (*Gateway)(nil)

func New(opts Options) (*Gateway, error) {
	if opts.Provider == nil {
		return nil, errors.New("gateway: provider is required")
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = NewLimiter(1, 0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = pterm.DefaultLogger.WithLevel(pterm.LogLevelDisabled)
	}
	return &Gateway{
		provider:    opts.Provider,
		policy:      opts.Policy.normalized(),
		limiter:     limiter,
		callTimeout: opts.CallTimeout,
		sourceLang:  opts.SourceLang,
		memory:      opts.Memory,
		tokens:      opts.Tokens,
		logger:      logger,
		sleep:       sleepCtx,
	}, nil
}

// TranslateBatch returns one translation per text, in order. Identical texts
// are sent as separate entries.
func (g *Gateway) TranslateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	out := make([]string, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	missing := g.recall(ctx, texts, targetLang, out)
	if len(missing) == 0 {
		g.logger.Debug("batch served from translation memory", g.logger.Args("texts", len(texts)))
		return out, nil
	}

	pending := make([]string, len(missing))
	for i, idx := range missing {
		pending[i] = texts[idx]
	}
	translated, err := g.call(ctx, pending, targetLang)
	if err != nil {
		return nil, err
	}
	for i, idx := range missing {
		out[idx] = translated[i]
	}
	return out, nil
}

// recall fills out from the translation memory and returns the indexes
// still to translate.
func (g *Gateway) recall(ctx context.Context, texts []string, targetLang string, out []string) []int {
	if g.memory == nil {
		missing := make([]int, len(texts))
		for i := range texts {
			missing[i] = i
		}
		return missing
	}
	var missing []int
	for i, text := range texts {
		hit, found, err := g.memory.Get(ctx, targetLang, text)
		if err != nil {
			g.logger.Warn("translation memory lookup failed", g.logger.Args("error", err))
		}
		if err != nil || !found {
			missing = append(missing, i)
			continue
		}
		out[i] = hit
	}
	return missing
}

// call runs the retry loop for one batch.
func (g *Gateway) call(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	state := g.policy.start()
	for {
		resp, err := g.attempt(ctx, texts, targetLang)
		if err == nil {
			if len(resp.Texts) != len(texts) {
				g.logger.Warn("provider answered with the wrong number of texts",
					g.logger.Args("provider", g.provider.Name(), "want", len(texts), "got", len(resp.Texts)))
				return nil, &ProtocolError{Want: len(texts), Got: len(resp.Texts)}
			}
			if g.tokens != nil {
				g.tokens.UsedTokens(resp.InputTokens, resp.OutputTokens)
			}
			g.logger.Debug("batch translated", g.logger.Args("texts", len(texts), "attempt", state.attempt))
			return resp.Texts, nil
		}

		classified := classify(ctx, err)
		if !errors.Is(classified, ErrTransient) {
			return nil, classified
		}
		if g.policy.exhausted(state) {
			return nil, &ExhaustedError{Attempts: state.attempt, Last: classified}
		}

		wait := g.policy.wait(state, err)
		var rl *provider_contracts.RateLimitError
		if errors.As(err, &rl) {
			g.limiter.Pause(wait)
		}
		g.logger.Warn("translation attempt failed, retrying",
			g.logger.Args("provider", g.provider.Name(), "attempt", state.attempt, "max_attempts", g.policy.MaxAttempts, "wait", wait, "error", err))
		if err := g.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("translate batch: %w", err)
		}
		state = g.policy.next(state)
	}
}

func (g *Gateway) attempt(ctx context.Context, texts []string, targetLang string) (*provider_contracts.Response, error) {
	release, err := g.limiter.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	callCtx := ctx
	if g.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.callTimeout)
		defer cancel()
	}
	resp, err := g.provider.TranslateBatch(callCtx, provider_contracts.Request{
		Texts:      texts,
		SourceLang: g.sourceLang,
		TargetLang: targetLang,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, provider_contracts.Retryable("%s returned no response", g.provider.Name())
	}
	return resp, nil
}
