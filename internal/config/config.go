package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Azure      AzureConfig      `yaml:"azure" mapstructure:"azure"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Completion CompletionConfig `yaml:"completion" mapstructure:"completion"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Paths      PathsConfig      `yaml:"paths" mapstructure:"paths"`
	Review     ReviewConfig     `yaml:"review" mapstructure:"review"`
	Speech     SpeechConfig     `yaml:"speech" mapstructure:"speech"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// AzureConfig holds Azure OpenAI resource settings. Model names are used as
// deployment names.
type AzureConfig struct {
	Endpoint   string `yaml:"endpoint" mapstructure:"endpoint"`
	Key        string `yaml:"key" mapstructure:"key"`
	APIVersion string `yaml:"api_version" mapstructure:"api_version"`
}

// PerplexityConfig holds Perplexity API settings and the sampling parameters
// sent with every research query.
type PerplexityConfig struct {
	Key              string  `yaml:"key" mapstructure:"key"`
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	Temperature      float64 `yaml:"temperature" mapstructure:"temperature"`
	TopP             float64 `yaml:"top_p" mapstructure:"top_p"`
	TopK             int     `yaml:"top_k" mapstructure:"top_k"`
	FrequencyPenalty float64 `yaml:"frequency_penalty" mapstructure:"frequency_penalty"`
	PresencePenalty  float64 `yaml:"presence_penalty" mapstructure:"presence_penalty"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// CompletionConfig configures the completion client shared by all stages.
type CompletionConfig struct {
	SystemPrompt string `yaml:"system_prompt" mapstructure:"system_prompt"`
	// PaceFactor multiplies the per-request spacing derived from RPM.
	PaceFactor float64 `yaml:"pace_factor" mapstructure:"pace_factor"`
	// RPM maps a model identifier to its requests-per-minute allowance.
	// Models without an entry are not paced.
	RPM map[string]int `yaml:"rpm" mapstructure:"rpm"`
	// RetryAttempts bounds in-call retries on transient transport errors.
	RetryAttempts int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	// Offline replaces every provider with a local stub.
	Offline bool `yaml:"offline" mapstructure:"offline"`
}

// PricingConfig overrides or extends the built-in model price table.
type PricingConfig struct {
	Models map[string]ModelPricing `yaml:"models" mapstructure:"models"`
}

// ModelPricing holds per-model pricing. Token prices are USD per million
// tokens; Search is USD per thousand searches.
type ModelPricing struct {
	Input           float64 `yaml:"input" mapstructure:"input"`
	Output          float64 `yaml:"output" mapstructure:"output"`
	Search          float64 `yaml:"search" mapstructure:"search"`
	DefaultSearches int     `yaml:"default_searches" mapstructure:"default_searches"`
}

// PathsConfig locates prompts, variables and data directories.
type PathsConfig struct {
	Prompts   string `yaml:"prompts" mapstructure:"prompts"`
	Variables string `yaml:"variables" mapstructure:"variables"`
	Data      string `yaml:"data" mapstructure:"data"`
	Export    string `yaml:"export" mapstructure:"export"`
	Output    string `yaml:"output" mapstructure:"output"`
	Jobs      string `yaml:"jobs" mapstructure:"jobs"`
}

// ReviewConfig configures the review web server.
type ReviewConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	Records        string   `yaml:"records" mapstructure:"records"`
	Feedback       string   `yaml:"feedback" mapstructure:"feedback"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// SpeechConfig configures the text-to-speech helper process.
type SpeechConfig struct {
	Command    []string `yaml:"command" mapstructure:"command"`
	OutputFile string   `yaml:"output_file" mapstructure:"output_file"`
	TimeoutSec int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StoreConfig configures the run history database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RetryConfig configures the batch supervisor's restart schedule.
type RetryConfig struct {
	BackoffSecs []int `yaml:"backoff_secs" mapstructure:"backoff_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// envAliases binds config keys to the unprefixed variable names the
// operators' existing .env files already use.
var envAliases = map[string]string{
	"azure.endpoint":    "AZURE_OPENAI_ENDPOINT",
	"azure.key":         "AZURE_OPENAI_API_KEY",
	"azure.api_version": "AZURE_OPENAI_API_VERSION",
	"perplexity.key":    "PERPLEXITY_API_KEY",
	"anthropic.key":     "ANTHROPIC_API_KEY",
}

// Load reads configuration from .env, the config file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		envKey := "OUTREACH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, alias); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("azure.api_version", "2024-12-01-preview")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.temperature", 0.2)
	v.SetDefault("perplexity.top_p", 0.9)
	v.SetDefault("perplexity.top_k", 0)
	v.SetDefault("perplexity.frequency_penalty", 1.0)
	v.SetDefault("perplexity.presence_penalty", 0.0)
	v.SetDefault("completion.system_prompt", "You are an early stage entrepreneur reaching out to people to conduct needs assessment.")
	v.SetDefault("completion.pace_factor", 3.0)
	v.SetDefault("completion.rpm", map[string]int{
		"o1":      500,
		"o3-mini": 500,
		"gpt-4o":  2700,
	})
	v.SetDefault("completion.retry_attempts", 1)
	v.SetDefault("paths.prompts", "prompts")
	v.SetDefault("paths.variables", "variables")
	v.SetDefault("paths.data", "data")
	v.SetDefault("paths.export", "export")
	v.SetDefault("paths.output", "output")
	v.SetDefault("review.port", 5001)
	v.SetDefault("review.records", "data/review.json")
	v.SetDefault("review.feedback", "data/feedback.json")
	v.SetDefault("review.allowed_origins", []string{"*"})
	v.SetDefault("speech.command", []string{"node", "frontend/azure-speech.js"})
	v.SetDefault("speech.output_file", "speech.wav")
	v.SetDefault("speech.timeout_secs", 120)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/runs.db")
	v.SetDefault("retry.backoff_secs", []int{30, 120, 240, 480, 600})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks structural settings required by the given command mode.
// API keys are not checked here; a missing key surfaces as a completion
// error on first use.
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Completion.PaceFactor < 0 {
		errs = append(errs, "completion.pace_factor must be >= 0")
	}

	switch mode {
	case "run":
		if c.Paths.Prompts == "" {
			errs = append(errs, "paths.prompts is required")
		}
		if c.Paths.Data == "" {
			errs = append(errs, "paths.data is required")
		}
	case "serve":
		if c.Review.Port <= 0 {
			errs = append(errs, "review.port must be > 0")
		}
		if c.Review.Records == "" {
			errs = append(errs, "review.records is required")
		}
	case "export":
		if c.Paths.Export == "" {
			errs = append(errs, "paths.export is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
