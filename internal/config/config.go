// Package config loads pipeline configuration from an optional YAML file
// (docstill.yaml) and DOCSTILL_* environment variables, with programmatic
// defaults. Precedence: env > file > defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/selmo/docstill/internal/analyze"
	"github.com/selmo/docstill/internal/chunker"
)

type Config struct {
	Provider ProviderConfig `mapstructure:"provider"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Chunking ChunkingConfig `mapstructure:"chunking"`
	Arbiter  ArbiterConfig  `mapstructure:"arbiter"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Output   OutputConfig   `mapstructure:"output"`
	Log      LogConfig      `mapstructure:"log"`
}

// ProviderConfig points the analysis stage at an OpenAI-compatible
// endpoint. APIKey supports ${ENV_VAR} references.
type ProviderConfig struct {
	APIKey           string        `mapstructure:"api_key"`
	Model            string        `mapstructure:"model"`
	BaseURL          string        `mapstructure:"base_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	RelaxedMaxTokens int           `mapstructure:"relaxed_max_tokens"`
	Temperature      float64       `mapstructure:"temperature"`
}

type AnalysisConfig struct {
	Workers   int           `mapstructure:"workers"`
	Attempts  int           `mapstructure:"attempts"`
	BaseDelay time.Duration `mapstructure:"base_delay"`
	MaxDelay  time.Duration `mapstructure:"max_delay"`
}

type ChunkingConfig struct {
	TokenBudget        int     `mapstructure:"token_budget"`
	CJKCharsPerToken   float64 `mapstructure:"cjk_chars_per_token"`
	LatinCharsPerToken float64 `mapstructure:"latin_chars_per_token"`
}

type ArbiterConfig struct {
	PoolSize int `mapstructure:"pool_size"`
}

// OCRConfig configures the scanned-document path. RemoteAPIKey supports
// ${ENV_VAR} references.
type OCRConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Languages       []string `mapstructure:"languages"`
	MinConfidence   float64  `mapstructure:"min_confidence"`
	Workers         int      `mapstructure:"workers"`
	TesseractBinary string   `mapstructure:"tesseract_binary"`
	RemoteURL       string   `mapstructure:"remote_url"`
	RemoteAPIKey    string   `mapstructure:"remote_api_key"`
	RemoteModel     string   `mapstructure:"remote_model"`
	RenderDPI       int      `mapstructure:"render_dpi"`
}

type CacheConfig struct {
	Backend   string        `mapstructure:"backend"` // memory, fs, redis
	Dir       string        `mapstructure:"dir"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisTTL  time.Duration `mapstructure:"redis_ttl"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// SlogLevel parses the configured level name.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", l.Level, err)
	}
	return lvl, nil
}

// Default returns the configuration used when neither file nor
// environment says otherwise.
func Default() *Config {
	est := chunker.DefaultEstimator()
	return &Config{
		Provider: ProviderConfig{
			Model:            analyze.DefaultOpenAIModel,
			Timeout:          analyze.DefaultCallTimeout,
			MaxTokens:        analyze.DefaultMaxTokens,
			RelaxedMaxTokens: analyze.DefaultRelaxedMaxTokens,
		},
		Analysis: AnalysisConfig{
			Workers:   analyze.DefaultWorkers,
			Attempts:  analyze.DefaultAttempts,
			BaseDelay: analyze.DefaultBaseDelay,
			MaxDelay:  analyze.DefaultMaxDelay,
		},
		Chunking: ChunkingConfig{
			TokenBudget:        chunker.DefaultConfig().TokenBudget,
			CJKCharsPerToken:   est.CJKCharsPerToken,
			LatinCharsPerToken: est.LatinCharsPerToken,
		},
		Arbiter: ArbiterConfig{PoolSize: 3},
		OCR: OCRConfig{
			Enabled:         true,
			Languages:       []string{"eng", "kor"},
			MinConfidence:   0.5,
			Workers:         2,
			TesseractBinary: "tesseract",
			RenderDPI:       300,
		},
		Cache: CacheConfig{
			Backend: "fs",
			Dir:     ".docstill/cache",
		},
		Output: OutputConfig{Dir: "docstill-out"},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads configuration from cfgFile (or docstill.yaml found in "." or
// $HOME/.docstill when empty) and DOCSTILL_* environment variables.
// A missing config file is not an error; a malformed one is.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DOCSTILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("docstill")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.docstill")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Provider.APIKey = ResolveEnvVars(cfg.Provider.APIKey)
	cfg.OCR.RemoteAPIKey = ResolveEnvVars(cfg.OCR.RemoteAPIKey)

	clamp(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.model", d.Provider.Model)
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.timeout", d.Provider.Timeout)
	v.SetDefault("provider.max_tokens", d.Provider.MaxTokens)
	v.SetDefault("provider.relaxed_max_tokens", d.Provider.RelaxedMaxTokens)
	v.SetDefault("provider.temperature", d.Provider.Temperature)

	v.SetDefault("analysis.workers", d.Analysis.Workers)
	v.SetDefault("analysis.attempts", d.Analysis.Attempts)
	v.SetDefault("analysis.base_delay", d.Analysis.BaseDelay)
	v.SetDefault("analysis.max_delay", d.Analysis.MaxDelay)

	v.SetDefault("chunking.token_budget", d.Chunking.TokenBudget)
	v.SetDefault("chunking.cjk_chars_per_token", d.Chunking.CJKCharsPerToken)
	v.SetDefault("chunking.latin_chars_per_token", d.Chunking.LatinCharsPerToken)

	v.SetDefault("arbiter.pool_size", d.Arbiter.PoolSize)

	v.SetDefault("ocr.enabled", d.OCR.Enabled)
	v.SetDefault("ocr.languages", d.OCR.Languages)
	v.SetDefault("ocr.min_confidence", d.OCR.MinConfidence)
	v.SetDefault("ocr.workers", d.OCR.Workers)
	v.SetDefault("ocr.tesseract_binary", d.OCR.TesseractBinary)
	v.SetDefault("ocr.remote_url", "")
	v.SetDefault("ocr.remote_api_key", "")
	v.SetDefault("ocr.remote_model", "")
	v.SetDefault("ocr.render_dpi", d.OCR.RenderDPI)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_ttl", time.Duration(0))

	v.SetDefault("output.dir", d.Output.Dir)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// clamp pulls out-of-range values back to defaults rather than failing.
func clamp(cfg *Config) {
	d := Default()
	if cfg.Provider.Timeout <= 0 {
		cfg.Provider.Timeout = d.Provider.Timeout
	}
	if cfg.Provider.MaxTokens <= 0 {
		cfg.Provider.MaxTokens = d.Provider.MaxTokens
	}
	if cfg.Provider.RelaxedMaxTokens <= 0 {
		cfg.Provider.RelaxedMaxTokens = d.Provider.RelaxedMaxTokens
	}
	if cfg.Analysis.Workers <= 0 {
		cfg.Analysis.Workers = d.Analysis.Workers
	}
	if cfg.Analysis.Attempts <= 0 {
		cfg.Analysis.Attempts = d.Analysis.Attempts
	}
	if cfg.Analysis.BaseDelay <= 0 {
		cfg.Analysis.BaseDelay = d.Analysis.BaseDelay
	}
	if cfg.Analysis.MaxDelay <= 0 {
		cfg.Analysis.MaxDelay = d.Analysis.MaxDelay
	}
	if cfg.Chunking.TokenBudget <= 0 {
		cfg.Chunking.TokenBudget = d.Chunking.TokenBudget
	}
	if cfg.Arbiter.PoolSize <= 0 {
		cfg.Arbiter.PoolSize = d.Arbiter.PoolSize
	}
	if cfg.OCR.Workers <= 0 {
		cfg.OCR.Workers = d.OCR.Workers
	}
	if cfg.OCR.RenderDPI <= 0 {
		cfg.OCR.RenderDPI = d.OCR.RenderDPI
	}
}

// Validate checks invariants the pipeline cannot start without.
func (c *Config) Validate() error {
	// A custom base URL may point at an unauthenticated local endpoint;
	// the hosted default never does.
	if c.Provider.APIKey == "" && c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.api_key is required (or set provider.base_url for a local endpoint)")
	}
	switch c.Cache.Backend {
	case "memory", "fs", "redis":
	default:
		return fmt.Errorf("cache.backend %q: must be memory, fs or redis", c.Cache.Backend)
	}
	if c.Cache.Backend == "fs" && c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required for the fs backend")
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return fmt.Errorf("cache.redis_addr is required for the redis backend")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q: must be json or text", c.Log.Format)
	}
	return nil
}

var envRefPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envRefPattern.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}
