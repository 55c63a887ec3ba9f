// Package config loads engine configuration from an optional config file,
// environment variables and built-in defaults, in that order of precedence
// (env over file over defaults).
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	outingerrors "outing/internal/errors"
	"outing/internal/llm"
	"outing/internal/places"
)

// Config is the fully resolved engine configuration.
type Config struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
	Places PlacesConfig `mapstructure:"places"`
	Retry  RetryConfig  `mapstructure:"retry"`
	Engine EngineConfig `mapstructure:"engine"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
}

type OpenAIConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CacheEnabled bool          `mapstructure:"cache_enabled"`
	CacheMaxSize int           `mapstructure:"cache_max_size"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

type PlacesConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Language     string        `mapstructure:"language"`
	CacheEnabled bool          `mapstructure:"cache_enabled"`
	CacheMaxSize int           `mapstructure:"cache_max_size"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

type RetryConfig struct {
	MaxRetries      int     `mapstructure:"max_retries"`
	BaseDelay       float64 `mapstructure:"base_delay"`
	MaxDelay        float64 `mapstructure:"max_delay"`
	ExponentialBase float64 `mapstructure:"exponential_base"`
}

type EngineConfig struct {
	MaxIterations int     `mapstructure:"max_iterations"`
	MaxToolCalls  int     `mapstructure:"max_tool_calls"`
	MinRating     float64 `mapstructure:"min_rating"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load resolves configuration. cfgFile overrides the default search paths
// when non-empty; a missing default config file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("outing-config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("OUTING")
	v.AutomaticEnv()
	// Key names on the provider side are conventional and come unprefixed.
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("places.api_key", "PLACES_API_KEY", "GOOGLE_PLACES_API_KEY")
	_ = v.BindEnv("openai.base_url", "OUTING_OPENAI_BASE_URL")
	_ = v.BindEnv("openai.model", "OUTING_OPENAI_MODEL")
	_ = v.BindEnv("places.base_url", "OUTING_PLACES_BASE_URL")
	_ = v.BindEnv("server.addr", "OUTING_SERVER_ADDR")
	_ = v.BindEnv("log.level", "OUTING_LOG_LEVEL")
	_ = v.BindEnv("log.format", "OUTING_LOG_FORMAT")

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
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("openai.base_url", llm.DefaultBaseURL)
	v.SetDefault("openai.model", llm.DefaultModel)
	v.SetDefault("openai.timeout", llm.DefaultTimeout)
	v.SetDefault("openai.cache_enabled", true)
	v.SetDefault("openai.cache_max_size", llm.DefaultCacheMaxSize)
	v.SetDefault("openai.cache_ttl", llm.DefaultCacheTTL)

	v.SetDefault("places.base_url", places.DefaultBaseURL)
	v.SetDefault("places.timeout", places.DefaultTimeout)
	v.SetDefault("places.language", places.DefaultLanguage)
	v.SetDefault("places.cache_enabled", true)
	v.SetDefault("places.cache_max_size", places.DefaultCacheMaxSize)
	v.SetDefault("places.cache_ttl", places.DefaultCacheTTL)

	policy := outingerrors.DefaultRetryPolicy()
	v.SetDefault("retry.max_retries", policy.MaxRetries)
	v.SetDefault("retry.base_delay", policy.BaseDelay)
	v.SetDefault("retry.max_delay", policy.MaxDelay)
	v.SetDefault("retry.exponential_base", policy.ExponentialBase)

	v.SetDefault("engine.max_iterations", 3)
	v.SetDefault("engine.max_tool_calls", 6)
	v.SetDefault("engine.min_rating", 4.0)

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks that everything an online run needs is present. Offline
// runs skip the API key requirements. Failures carry the
// CONFIGURATION_ERROR code so callers can surface them like any other
// classified error.
func (c *Config) Validate(offline bool) error {
	if !offline {
		if c.OpenAI.APIKey == "" {
			return configError("openai api key is required (set OPENAI_API_KEY)")
		}
		if c.Places.APIKey == "" {
			return configError("places api key is required (set PLACES_API_KEY)")
		}
	}
	if c.Engine.MaxIterations < 1 {
		return configError(fmt.Sprintf("engine.max_iterations must be at least 1, got %d", c.Engine.MaxIterations))
	}
	if c.Engine.MaxToolCalls < 1 {
		return configError(fmt.Sprintf("engine.max_tool_calls must be at least 1, got %d", c.Engine.MaxToolCalls))
	}
	if c.Engine.MinRating < 0 || c.Engine.MinRating > 5 {
		return configError(fmt.Sprintf("engine.min_rating must be in [0, 5], got %g", c.Engine.MinRating))
	}
	return nil
}

func configError(message string) error {
	return outingerrors.NewErrorResponse(outingerrors.CodeConfiguration, message, "")
}

// RetryPolicy converts the retry block into the classifier's policy type.
func (c *Config) RetryPolicy() outingerrors.RetryPolicy {
	return outingerrors.RetryPolicy{
		MaxRetries:      c.Retry.MaxRetries,
		BaseDelay:       c.Retry.BaseDelay,
		MaxDelay:        c.Retry.MaxDelay,
		ExponentialBase: c.Retry.ExponentialBase,
	}
}

// LLMConfig converts the openai block into the client's config type.
func (c *Config) LLMConfig() llm.Config {
	return llm.Config{
		APIKey:       c.OpenAI.APIKey,
		BaseURL:      c.OpenAI.BaseURL,
		Model:        c.OpenAI.Model,
		Timeout:      c.OpenAI.Timeout,
		CacheEnabled: c.OpenAI.CacheEnabled,
		CacheMaxSize: c.OpenAI.CacheMaxSize,
		CacheTTL:     c.OpenAI.CacheTTL,
	}
}

// PlacesClientConfig converts the places block into the client's config type.
func (c *Config) PlacesClientConfig() places.Config {
	return places.Config{
		APIKey:       c.Places.APIKey,
		BaseURL:      c.Places.BaseURL,
		Timeout:      c.Places.Timeout,
		Language:     c.Places.Language,
		CacheEnabled: c.Places.CacheEnabled,
		CacheMaxSize: c.Places.CacheMaxSize,
		CacheTTL:     c.Places.CacheTTL,
	}
}
