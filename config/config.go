package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/morler/repo-translate/batcher"
	"github.com/morler/repo-translate/gateway"
	"github.com/morler/repo-translate/pipeline"
	"github.com/morler/repo-translate/providers"
	"github.com/morler/repo-translate/translation_memory"
	"github.com/morler/repo-translate/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

const (
	envPrefix   = "REPO_TRANSLATE"
	projectName = ".repo-translate"
)

// Config represents the structure of the configuration file
type Config struct {
	Version           string                      `mapstructure:"version" json:"version"`
	TargetLang        string                      `mapstructure:"target_lang" json:"target_lang"`
	SourceLang        string                      `mapstructure:"source_lang" json:"source_lang"`
	Output            string                      `mapstructure:"output" json:"output"`
	BatchSize         int                         `mapstructure:"batch_size" json:"batch_size"`
	MaxBatchChars     int                         `mapstructure:"max_batch_chars" json:"max_batch_chars"`
	MaxAttempts       int                         `mapstructure:"max_attempts" json:"max_attempts"`
	RetryBaseDelay    time.Duration               `mapstructure:"retry_base_delay" json:"retry_base_delay"`
	RetryMaxDelay     time.Duration               `mapstructure:"retry_max_delay" json:"retry_max_delay"`
	CallTimeout       time.Duration               `mapstructure:"call_timeout" json:"call_timeout"`
	RequestsPerMinute int                         `mapstructure:"requests_per_minute" json:"requests_per_minute"`
	Concurrency       int                         `mapstructure:"concurrency" json:"concurrency"`
	Preview           bool                        `mapstructure:"preview" json:"preview"`
	DrainOnCancel     bool                        `mapstructure:"drain_on_cancel" json:"drain_on_cancel"`
	CoalesceComments  bool                        `mapstructure:"coalesce_comments" json:"coalesce_comments"`
	MaxFileSize       int64                       `mapstructure:"max_file_size" json:"max_file_size"`
	EnableCache       bool                        `mapstructure:"enable_cache" json:"enable_cache"`
	CacheBackend      string                      `mapstructure:"cache_backend" json:"cache_backend"`
	CacheDir          string                      `mapstructure:"cache_dir" json:"cache_dir"`
	Theme             string                      `mapstructure:"theme" json:"theme"`
	LogLevel          string                      `mapstructure:"log_level" json:"log_level"`
	LogFormat         string                      `mapstructure:"log_format" json:"log_format"`
	AIProviderConfig  *providers.AIProviderConfig `mapstructure:"ai_provider_config" json:"ai_provider_config"`

	// ConfigFiles lists the files that were read, lowest precedence first.
	ConfigFiles []string `mapstructure:"-" json:"config_files,omitempty"`
}

// DefaultConfig values
var DefaultConfig = Config{
	Version:          "0.4.0",
	TargetLang:       "zh",
	SourceLang:       "en",
	BatchSize:        10,
	MaxBatchChars:    6000,
	MaxAttempts:      3,
	RetryBaseDelay:   2 * time.Second,
	RetryMaxDelay:    60 * time.Second,
	CallTimeout:      120 * time.Second,
	Concurrency:      4,
	DrainOnCancel:    true,
	CoalesceComments: true,
	MaxFileSize:      1 << 20,
	EnableCache:      true,
	CacheBackend:     translation_memory.BackendFile,
	CacheDir:         ".repo-translate-cache",
	Theme:            "dracula",
	LogLevel:         "info",
	LogFormat:        "text",
	AIProviderConfig: &providers.AIProviderConfig{
		Provider: "openai",
	},
}

// cfgFile holds the path to the configuration file (set via CLI)
var cfgFile string

// LoadConfigs layers defaults, the global config file, the project config
// file, environment variables (including a .env file in cwd) and the flags of
// cmd, in increasing precedence.
func LoadConfigs(cmd *cobra.Command, cwd string) (*Config, error) {
	return load(cmd.Flags(), cwd, cfgFile, globalConfigPath())
}

func load(flags *pflag.FlagSet, cwd, explicit, global string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	var files []string
	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", explicit, err)
		}
		files = append(files, explicit)
	} else {
		for _, path := range []string{global, projectConfigPath(cwd)} {
			if path == "" {
				continue
			}
			if _, err := os.Stat(path); err != nil {
				continue
			}
			v.SetConfigFile(path)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", path, err)
			}
			files = append(files, path)
		}
	}

	if flags != nil {
		bindFlags(v, flags)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if config.AIProviderConfig == nil {
		config.AIProviderConfig = &providers.AIProviderConfig{}
	}
	config.ConfigFiles = files
	return config, nil
}

// projectConfigPath returns the first .repo-translate.{yaml,yml,json} in cwd.
func projectConfigPath(cwd string) string {
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		path := filepath.Join(cwd, projectName+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func globalConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "repo-translate", "config.yaml")
}

// setDefaults sets all default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("version", DefaultConfig.Version)
	v.SetDefault("target_lang", DefaultConfig.TargetLang)
	v.SetDefault("source_lang", DefaultConfig.SourceLang)
	v.SetDefault("output", DefaultConfig.Output)
	v.SetDefault("batch_size", DefaultConfig.BatchSize)
	v.SetDefault("max_batch_chars", DefaultConfig.MaxBatchChars)
	v.SetDefault("max_attempts", DefaultConfig.MaxAttempts)
	v.SetDefault("retry_base_delay", DefaultConfig.RetryBaseDelay)
	v.SetDefault("retry_max_delay", DefaultConfig.RetryMaxDelay)
	v.SetDefault("call_timeout", DefaultConfig.CallTimeout)
	v.SetDefault("requests_per_minute", DefaultConfig.RequestsPerMinute)
	v.SetDefault("concurrency", DefaultConfig.Concurrency)
	v.SetDefault("preview", DefaultConfig.Preview)
	v.SetDefault("drain_on_cancel", DefaultConfig.DrainOnCancel)
	v.SetDefault("coalesce_comments", DefaultConfig.CoalesceComments)
	v.SetDefault("max_file_size", DefaultConfig.MaxFileSize)
	v.SetDefault("enable_cache", DefaultConfig.EnableCache)
	v.SetDefault("cache_backend", DefaultConfig.CacheBackend)
	v.SetDefault("cache_dir", DefaultConfig.CacheDir)
	v.SetDefault("theme", DefaultConfig.Theme)
	v.SetDefault("log_level", DefaultConfig.LogLevel)
	v.SetDefault("log_format", DefaultConfig.LogFormat)
	v.SetDefault("ai_provider_config.provider", DefaultConfig.AIProviderConfig.Provider)
	v.SetDefault("ai_provider_config.base_url", "")
	v.SetDefault("ai_provider_config.model", "")
	v.SetDefault("ai_provider_config.api_key", "")
	v.SetDefault("ai_provider_config.max_tokens", 0)
}

// bindEnv explicitly binds environment variables to the provider block, so
// that both REPO_TRANSLATE_API_KEY and the short API_KEY work.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("ai_provider_config.provider", envPrefix+"_PROVIDER", "PROVIDER")
	_ = v.BindEnv("ai_provider_config.base_url", envPrefix+"_BASE_URL", "BASE_URL")
	_ = v.BindEnv("ai_provider_config.model", envPrefix+"_MODEL", "MODEL")
	_ = v.BindEnv("ai_provider_config.api_key", envPrefix+"_API_KEY", "API_KEY")
	_ = v.BindEnv("ai_provider_config.temperature", envPrefix+"_TEMPERATURE", "TEMPERATURE")
	_ = v.BindEnv("ai_provider_config.max_tokens", envPrefix+"_MAX_TOKENS", "MAX_TOKENS")
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"target":              "target_lang",
	"source":              "source_lang",
	"output":              "output",
	"batch_size":          "batch_size",
	"max_batch_chars":     "max_batch_chars",
	"max_attempts":        "max_attempts",
	"retry_base_delay":    "retry_base_delay",
	"retry_max_delay":     "retry_max_delay",
	"call_timeout":        "call_timeout",
	"requests_per_minute": "requests_per_minute",
	"concurrency":         "concurrency",
	"preview":             "preview",
	"drain_on_cancel":     "drain_on_cancel",
	"coalesce_comments":   "coalesce_comments",
	"max_file_size":       "max_file_size",
	"enable_cache":        "enable_cache",
	"cache_backend":       "cache_backend",
	"cache_dir":           "cache_dir",
	"theme":               "theme",
	"log_level":           "log_level",
	"log_format":          "log_format",
	"provider":            "ai_provider_config.provider",
	"base_url":            "ai_provider_config.base_url",
	"model":               "ai_provider_config.model",
	"api_key":             "ai_provider_config.api_key",
	"max_tokens":          "ai_provider_config.max_tokens",
}

// bindFlags binds the CLI flags to configuration values. Temperature is only
// taken from the command line when given, since its zero value is
// meaningful.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
	if f := flags.Lookup("temperature"); f != nil && f.Changed {
		if t, err := flags.GetFloat32("temperature"); err == nil {
			v.Set("ai_provider_config.temperature", t)
		}
	}
}

// InitFlags initializes the flags for the root command.
func InitFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Path to a configuration file (YAML or JSON). Defaults to .repo-translate.yaml in the working directory.")

	flags.StringP("target", "t", DefaultConfig.TargetLang, "Target language as a BCP 47 tag (e.g. 'zh', 'ja', 'pt-BR').")
	flags.String("source", DefaultConfig.SourceLang, "Language of the text being translated.")
	flags.StringP("output", "o", DefaultConfig.Output, "Output directory. Defaults to '<input>-<target>'.")
	flags.Int("batch_size", DefaultConfig.BatchSize, "Maximum number of texts per translation request.")
	flags.Int("max_batch_chars", DefaultConfig.MaxBatchChars, "Maximum characters per translation request (0 disables).")
	flags.Int("max_attempts", DefaultConfig.MaxAttempts, "Attempts per request before its spans keep the original text.")
	flags.Duration("retry_base_delay", DefaultConfig.RetryBaseDelay, "Wait before the first retry; doubles on each further retry.")
	flags.Duration("retry_max_delay", DefaultConfig.RetryMaxDelay, "Upper bound of the wait between retries.")
	flags.Duration("call_timeout", DefaultConfig.CallTimeout, "Timeout of a single provider call.")
	flags.Int("requests_per_minute", DefaultConfig.RequestsPerMinute, "Pace provider calls to this rate (0 disables).")
	flags.IntP("concurrency", "j", DefaultConfig.Concurrency, "Number of files extracted and requests sent in parallel.")
	flags.Bool("preview", DefaultConfig.Preview, "Extract and batch without calling the provider or writing files.")
	flags.Bool("drain_on_cancel", DefaultConfig.DrainOnCancel, "On interrupt, let in-flight requests finish and write the files they complete.")
	flags.Bool("coalesce_comments", DefaultConfig.CoalesceComments, "Translate consecutive line comments as one paragraph.")
	flags.Int64("max_file_size", DefaultConfig.MaxFileSize, "Files larger than this many bytes are copied without translation.")
	flags.Bool("enable_cache", DefaultConfig.EnableCache, "Reuse translations from earlier runs.")
	flags.String("cache_backend", DefaultConfig.CacheBackend, "Translation memory backend: 'file' or 'sqlite'.")
	flags.String("cache_dir", DefaultConfig.CacheDir, "Directory of the translation memory.")
	flags.String("theme", DefaultConfig.Theme, "Highlighting theme used by --show-spans.")
	flags.String("log_level", DefaultConfig.LogLevel, "Log level: debug, info, warn, error or off.")
	flags.String("log_format", DefaultConfig.LogFormat, "Log format: text or json.")

	flags.String("provider", DefaultConfig.AIProviderConfig.Provider, "Translation provider (openai, deepseek, zhipu, moonshot, qwen, ollama, custom).")
	flags.String("base_url", "", "Base URL of the provider API. Defaults to the provider preset.")
	flags.String("model", "", "Model name. Defaults to the provider preset.")
	flags.String("api_key", "", "API key of the provider.")
	flags.Float32("temperature", 0, "Sampling temperature passed to the model.")
	flags.Int("max_tokens", 0, "Maximum tokens per model answer (0 leaves it to the provider).")
}

// Validate checks ranges and normalizes the language tags.
func (c *Config) Validate() error {
	var errs []error

	target, err := language.Parse(c.TargetLang)
	if err != nil {
		errs = append(errs, fmt.Errorf("target_lang %q is not a valid language tag", c.TargetLang))
	} else {
		c.TargetLang = target.String()
	}
	if c.SourceLang != "" {
		source, err := language.Parse(c.SourceLang)
		if err != nil {
			errs = append(errs, fmt.Errorf("source_lang %q is not a valid language tag", c.SourceLang))
		} else {
			c.SourceLang = source.String()
		}
	}

	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be at least 1, got %d", c.BatchSize))
	}
	if c.MaxBatchChars < 0 {
		errs = append(errs, fmt.Errorf("max_batch_chars must not be negative, got %d", c.MaxBatchChars))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts))
	}
	if c.RetryBaseDelay < 0 || c.RetryMaxDelay < 0 || c.CallTimeout < 0 {
		errs = append(errs, errors.New("retry_base_delay, retry_max_delay and call_timeout must not be negative"))
	}
	if c.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("requests_per_minute must not be negative, got %d", c.RequestsPerMinute))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("max_file_size must not be negative, got %d", c.MaxFileSize))
	}
	switch c.CacheBackend {
	case translation_memory.BackendFile, translation_memory.BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("cache_backend must be %q or %q, got %q", translation_memory.BackendFile, translation_memory.BackendSQLite, c.CacheBackend))
	}
	if _, err := utils.ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if _, ok := providers.LookupPreset(c.AIProviderConfig.Provider); !ok {
		errs = append(errs, fmt.Errorf("unknown provider %q", c.AIProviderConfig.Provider))
	}
	return errors.Join(errs...)
}

// Model returns the configured model, or the provider preset's default.
func (c *Config) Model() string {
	if c.AIProviderConfig.Model != "" {
		return c.AIProviderConfig.Model
	}
	if preset, ok := providers.LookupPreset(c.AIProviderConfig.Provider); ok {
		return preset.Model
	}
	return ""
}

// OutputDir returns the output directory for input.
func (c *Config) OutputDir(input string) string {
	if c.Output != "" {
		return c.Output
	}
	clean := filepath.Clean(input)
	if clean == "." {
		if cwd, err := os.Getwd(); err == nil {
			clean = cwd
		}
	}
	return clean + "-" + c.TargetLang
}

// Settings resolves the configuration into the immutable value handed to the
// pipeline.
func (c *Config) Settings() pipeline.Settings {
	return pipeline.Settings{
		TargetLang: c.TargetLang,
		SourceLang: c.SourceLang,
		Limits: batcher.Limits{
			MaxItems: c.BatchSize,
			MaxChars: c.MaxBatchChars,
		},
		Retry: gateway.RetryPolicy{
			MaxAttempts: c.MaxAttempts,
			BaseDelay:   c.RetryBaseDelay,
			MaxDelay:    c.RetryMaxDelay,
		},
		CallTimeout:       c.CallTimeout,
		RequestsPerMinute: c.RequestsPerMinute,
		Concurrency:       c.Concurrency,
		Preview:           c.Preview,
		DrainOnCancel:     c.DrainOnCancel,
		CoalesceComments:  c.CoalesceComments,
		MaxFileSize:       c.MaxFileSize,
		Provider:          strings.ToLower(c.AIProviderConfig.Provider),
		Model:             c.Model(),
		EnableCache:       c.EnableCache,
		CacheBackend:      c.CacheBackend,
		CacheDir:          c.CacheDir,
	}
}

// Redacted returns a copy with the API key masked, for display.
func (c *Config) Redacted() Config {
	out := *c
	provider := *c.AIProviderConfig
	provider.ApiKey = providers.MaskedKey(provider.ApiKey)
	out.AIProviderConfig = &provider
	return out
}
