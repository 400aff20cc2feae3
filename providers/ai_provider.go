package providers

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/morler/repo-translate/providers/contracts"
	"github.com/morler/repo-translate/providers/ollama"
	"github.com/morler/repo-translate/providers/openai"
)

// AIProviderConfig is the provider block of the configuration file.
type AIProviderConfig struct {
	Provider    string   `mapstructure:"provider" json:"provider"`
	BaseURL     string   `mapstructure:"base_url" json:"base_url"`
	Model       string   `mapstructure:"model" json:"model"`
	ApiKey      string   `mapstructure:"api_key" json:"api_key"`
	Temperature *float32 `mapstructure:"temperature" json:"temperature,omitempty"`
	MaxTokens   int      `mapstructure:"max_tokens" json:"max_tokens"`
}

// Preset holds the defaults of a known provider.
type Preset struct {
	Name    string
	BaseURL string
	Model   string
	// Native presets speak the Ollama API instead of OpenAI chat completions.
	Native bool
	// NeedsKey presets refuse to start without an API key.
	NeedsKey bool
}

var presets = map[string]Preset{
	"openai":   {Name: "openai", BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini", NeedsKey: true},
	"deepseek": {Name: "deepseek", BaseURL: "https://api.deepseek.com/v1", Model: "deepseek-chat", NeedsKey: true},
	"zhipu":    {Name: "zhipu", BaseURL: "https://open.bigmodel.cn/api/paas/v4", Model: "glm-4-flash", NeedsKey: true},
	"moonshot": {Name: "moonshot", BaseURL: "https://api.moonshot.cn/v1", Model: "moonshot-v1-8k", NeedsKey: true},
	"qwen":     {Name: "qwen", BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1", Model: "qwen-turbo", NeedsKey: true},
	"ollama":   {Name: "ollama", BaseURL: "http://localhost:11434/api", Model: "llama3", Native: true},
	"custom":   {Name: "custom", Model: "gpt-4o-mini"},
}

// LookupPreset returns the preset for a provider name.
func LookupPreset(name string) (Preset, bool) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Presets lists every known provider, sorted by name.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve fills empty fields from the provider preset.
func (c AIProviderConfig) Resolve() (AIProviderConfig, error) {
	preset, ok := LookupPreset(c.Provider)
	if !ok {
		return c, fmt.Errorf("unknown provider %q", c.Provider)
	}
	c.Provider = preset.Name
	if c.BaseURL == "" {
		c.BaseURL = preset.BaseURL
	}
	if c.Model == "" {
		c.Model = preset.Model
	}
	if c.BaseURL == "" {
		return c, fmt.Errorf("provider %q needs a base_url", c.Provider)
	}
	if preset.NeedsKey && c.ApiKey == "" {
		return c, fmt.Errorf("provider %q needs an api_key", c.Provider)
	}
	return c, nil
}

// NewTranslationProvider builds the provider named by the configuration.
// timeout bounds the HTTP client; the gateway applies its own per-call
// deadline on top.
func NewTranslationProvider(config *AIProviderConfig, timeout time.Duration) (contracts.ITranslationProvider, error) {
	cfg, err := config.Resolve()
	if err != nil {
		return nil, err
	}
	preset, _ := LookupPreset(cfg.Provider)
	if preset.Native {
		return ollama.NewOllamaProvider(&ollama.OllamaConfig{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     timeout,
		}), nil
	}
	return openai.NewOpenAIProvider(&openai.OpenAIConfig{
		Name:        cfg.Provider,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		APIKey:      cfg.ApiKey,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     timeout,
	}), nil
}

// MaskedKey hides all but the last four characters of an API key.
func MaskedKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
