package openai

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

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAIConfig configures any OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	// Name identifies the provider in errors and logs, e.g. "deepseek".
	Name        string
	BaseURL     string
	Model       string
	APIKey      string
	Temperature *float32
	MaxTokens   int
	Timeout     time.Duration
}

type openAIProvider struct {
	config OpenAIConfig
	client *resty.Client
}

// NewOpenAIProvider returns a provider talking to {BaseURL}/chat/completions.
func NewOpenAIProvider(config *OpenAIConfig) contracts.ITranslationProvider {
	cfg := *config
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &openAIProvider{config: cfg, client: client}
}

func (p *openAIProvider) Name() string  { return p.config.Name }
func (p *openAIProvider) Model() string { return p.config.Model }

func (p *openAIProvider) TranslateBatch(ctx context.Context, req contracts.Request) (*contracts.Response, error) {
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

	body := models.ChatCompletionRequest{
		Model: p.config.Model,
		Messages: []models.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: p.config.Temperature,
		MaxTokens:   p.config.MaxTokens,
	}

	var result models.ChatCompletionResponse
	var apiError models.AIError
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&apiError).
		Post("/chat/completions")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, contracts.Retryable("%s: error sending request: %v", p.config.Name, err)
	}
	if resp.IsError() {
		msg := apiError.Error.Message
		if msg == "" {
			msg = resp.String()
		}
		return nil, contracts.ClassifyStatus(p.config.Name, resp.StatusCode(), resp.Header().Get("Retry-After"), msg)
	}

	if len(result.Choices) == 0 {
		return nil, contracts.Retryable("%s: no choices returned", p.config.Name)
	}
	texts, err := prompt.ParseTranslations(result.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", contracts.ErrRetryable, p.config.Name, err)
	}
	return &contracts.Response{
		Texts:        texts,
		InputTokens:  result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
	}, nil
}
