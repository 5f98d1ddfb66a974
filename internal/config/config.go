package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	AI         AIConfig         `yaml:"ai" mapstructure:"ai"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	PDF        PDFConfig        `yaml:"pdf" mapstructure:"pdf"`
	Learning   LearningConfig   `yaml:"learning" mapstructure:"learning"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ExtractionConfig bounds the deterministic extractors and clarification output.
type ExtractionConfig struct {
	DescriptionMaxLen       int  `yaml:"description_max_len" mapstructure:"description_max_len"`
	SpecRawTextMaxLen       int  `yaml:"spec_raw_text_max_len" mapstructure:"spec_raw_text_max_len"`
	MaxItemClarifications   int  `yaml:"max_item_clarifications" mapstructure:"max_item_clarifications"`
	ApplyLearnedCorrections bool `yaml:"apply_learned_corrections" mapstructure:"apply_learned_corrections"`
}

// AIConfig configures the optional model-assisted extraction path.
type AIConfig struct {
	Enabled           bool   `yaml:"enabled" mapstructure:"enabled"`
	Provider          string `yaml:"provider" mapstructure:"provider"`
	TimeoutSecs       int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxChars          int    `yaml:"max_chars" mapstructure:"max_chars"`
	MaxTokens         int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerMinute int    `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	BreakerThreshold  int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs  int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// PDFConfig configures PDF text extraction.
type PDFConfig struct {
	PdfToTextPath        string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	UsePdfToTextFallback bool   `yaml:"use_pdftotext_fallback" mapstructure:"use_pdftotext_fallback"`
}

// LearningConfig configures the clarification and correction loop.
type LearningConfig struct {
	ClarificationTTLHours int `yaml:"clarification_ttl_hours" mapstructure:"clarification_ttl_hours"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents" mapstructure:"max_concurrent_documents"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxUploadMB    int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Provider names accepted by ai.provider.
var knownProviders = map[string]bool{
	"auto":      true,
	"anthropic": true,
	"openai":    true,
	"gemini":    true,
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BOQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "boq.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 50)
	v.SetDefault("batch.max_concurrent_documents", 4)
	v.SetDefault("extraction.description_max_len", 500)
	v.SetDefault("extraction.spec_raw_text_max_len", 200)
	v.SetDefault("extraction.max_item_clarifications", 10)
	v.SetDefault("extraction.apply_learned_corrections", true)
	v.SetDefault("ai.enabled", true)
	v.SetDefault("ai.provider", "auto")
	v.SetDefault("ai.timeout_secs", 120)
	v.SetDefault("ai.max_chars", 100000)
	v.SetDefault("ai.max_tokens", 8192)
	v.SetDefault("ai.requests_per_minute", 30)
	v.SetDefault("ai.breaker_threshold", 3)
	v.SetDefault("ai.breaker_reset_secs", 60)
	// Credentials have empty defaults so AutomaticEnv can resolve them on
	// Unmarshal.
	v.SetDefault("anthropic.key", "")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("gemini.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("gemini.model", "gemini-1.5-flash")
	v.SetDefault("pdf.pdftotext_path", "pdftotext")
	v.SetDefault("pdf.use_pdftotext_fallback", true)
	v.SetDefault("learning.clarification_ttl_hours", 24*14)

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

// Validate checks the fields required by the given command mode.
// Modes: "extract", "serve", "admin".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "extract", "serve":
		if !knownProviders[strings.ToLower(c.AI.Provider)] {
			errs = append(errs, fmt.Sprintf("ai.provider %q is not one of auto, anthropic, openai, gemini", c.AI.Provider))
		}
		if c.AI.TimeoutSecs <= 0 {
			errs = append(errs, "ai.timeout_secs must be > 0")
		}
		if c.AI.MaxChars <= 0 {
			errs = append(errs, "ai.max_chars must be > 0")
		}
		if c.Extraction.DescriptionMaxLen <= 0 {
			errs = append(errs, "extraction.description_max_len must be > 0")
		}
		if c.Extraction.MaxItemClarifications <= 0 {
			errs = append(errs, "extraction.max_item_clarifications must be > 0")
		}
		if c.Batch.MaxConcurrentDocuments < 1 || c.Batch.MaxConcurrentDocuments > 64 {
			errs = append(errs, "batch.max_concurrent_documents must be between 1 and 64")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "admin":
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
