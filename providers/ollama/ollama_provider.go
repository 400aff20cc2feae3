package ollama

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/morler/repo-translate/providers/contracts"
	"github.com/morler/repo-translate/providers/models"
	"github.com/morler/repo-translate/providers/prompt"
)

// OllamaConfig configures the native Ollama chat API.
type OllamaConfig struct {
	BaseURL     string
	Model       string
	Temperature *float32
	MaxTokens   int
	Timeout     time.Duration
}

const (
	defaultBaseURL = "http://localhost:11434/api"
)

type ollamaProvider struct {
	config OllamaConfig
	client *resty.Client
}

// NewOllamaProvider returns a provider posting non-streaming requests to
// {BaseURL}/chat.
func NewOllamaProvider(config *OllamaConfig) contracts.ITranslationProvider {
	cfg := *config
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &ollamaProvider{config: cfg, client: client}
}

func (p *ollamaProvider) Name() string  { return "ollama" }
func (p *ollamaProvider) Model() string { return p.config.Model }

func (p *ollamaProvider) TranslateBatch(ctx context.Context, req contracts.Request) (*contracts.Response, error) {
	if len(req.Texts) == 0 {
		return &contracts.Response{}, nil
	}
	system, err := prompt.System(req.SourceLang, req.TargetLang, len(req.Texts))
	if err != nil {
		return nil, err
	}
	user, err := prompt.User(req.Texts)
	if err != nil {
		return nil, err
	}

	options := map[string]any{}
	if p.config.Temperature != nil {
		options["temperature"] = *p.config.Temperature
	}
	if p.config.MaxTokens > 0 {
		options["num_predict"] = p.config.MaxTokens
	}
	body := models.OllamaChatRequest{
		Model: p.config.Model,
		Messages: []models.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Stream:  false,
		Format:  "json",
		Options: options,
	}

	var result models.OllamaChatResponse
	var apiError models.OllamaError
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&apiError).
		Post("/chat")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, contracts.Retryable("ollama: error sending request: %v", err)
	}
	if resp.IsError() {
		msg := apiError.Error
		if msg == "" {
			msg = resp.String()
		}
		return nil, contracts.ClassifyStatus("ollama", resp.StatusCode(), resp.Header().Get("Retry-After"), msg)
	}

	texts, err := prompt.ParseTranslations(result.Message.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: %v", contracts.ErrRetryable, err)
	}
	return &contracts.Response{
		Texts:        texts,
		InputTokens:  result.PromptEvalCount,
		OutputTokens: result.EvalCount,
	}, nil
}
