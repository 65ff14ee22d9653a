// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	DB       DBConfig       `mapstructure:"db"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	NewsAPI  NewsAPIConfig  `mapstructure:"newsapi"`
	Feeds    FeedsConfig    `mapstructure:"feeds"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features and the minimum
// emitted level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// NewsAPIConfig configures the search-API discovery source.
type NewsAPIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	PageSize       int    `mapstructure:"page_size"`
	WindowHours    int    `mapstructure:"window_hours"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// FeedsConfig configures the syndication-feed discovery source.
type FeedsConfig struct {
	MaxFeeds       int `mapstructure:"max_feeds"`
	ItemsPerFeed   int `mapstructure:"items_per_feed"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// LLMConfig points at the OpenAI-compatible judgment/generation service.
type LLMConfig struct {
	BaseURL                   string  `mapstructure:"base_url"`
	APIKey                    string  `mapstructure:"api_key"`
	Model                     string  `mapstructure:"model"`
	ScoreTimeoutSeconds       int     `mapstructure:"score_timeout_seconds"`
	PersonalizeTimeoutSeconds int     `mapstructure:"personalize_timeout_seconds"`
	ScoreTemperature          float64 `mapstructure:"score_temperature"`
	PersonalizeTemperature    float64 `mapstructure:"personalize_temperature"`
}

// ScraperConfig points at the content-extraction service.
type ScraperConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxContentLen  int    `mapstructure:"max_content_len"`
}

// PipelineConfig governs refresh pipeline policy constants.
type PipelineConfig struct {
	MaxCandidates  int `mapstructure:"max_candidates"`
	MaxFresh       int `mapstructure:"max_fresh"`
	ScoreBatchSize int `mapstructure:"score_batch_size"`
	MinScore       int `mapstructure:"min_score"`
	WaveSize       int `mapstructure:"wave_size"`
	ReplayLimit    int `mapstructure:"replay_limit"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FEEDWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("newsapi.base_url", "https://newsapi.org")
	v.SetDefault("newsapi.page_size", 20)
	v.SetDefault("newsapi.window_hours", 48)
	v.SetDefault("newsapi.timeout_seconds", 15)
	v.SetDefault("feeds.max_feeds", 15)
	v.SetDefault("feeds.items_per_feed", 10)
	v.SetDefault("feeds.timeout_seconds", 30)
	v.SetDefault("llm.base_url", "https://api.deepseek.com")
	v.SetDefault("llm.model", "deepseek-chat")
	v.SetDefault("llm.score_timeout_seconds", 60)
	v.SetDefault("llm.personalize_timeout_seconds", 45)
	v.SetDefault("llm.score_temperature", 0.2)
	v.SetDefault("llm.personalize_temperature", 0.4)
	v.SetDefault("scraper.base_url", "https://api.firecrawl.dev")
	v.SetDefault("scraper.timeout_seconds", 30)
	v.SetDefault("scraper.max_content_len", 10000)
	v.SetDefault("pipeline.max_candidates", 40)
	v.SetDefault("pipeline.max_fresh", 30)
	v.SetDefault("pipeline.score_batch_size", 30)
	v.SetDefault("pipeline.min_score", 5)
	v.SetDefault("pipeline.wave_size", 5)
	v.SetDefault("pipeline.replay_limit", 50)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Pipeline.ScoreBatchSize <= 0 {
		return fmt.Errorf("pipeline.score_batch_size must be > 0")
	}
	if c.Pipeline.WaveSize <= 0 {
		return fmt.Errorf("pipeline.wave_size must be > 0")
	}
	if c.Pipeline.MaxFresh <= 0 {
		return fmt.Errorf("pipeline.max_fresh must be > 0")
	}
	if c.Pipeline.MinScore < 1 || c.Pipeline.MinScore > 10 {
		return fmt.Errorf("pipeline.min_score must be within 1..10")
	}
	if c.LLM.ScoreTimeoutSeconds <= 0 || c.LLM.PersonalizeTimeoutSeconds <= 0 {
		return fmt.Errorf("llm timeouts must be > 0")
	}
	if c.Scraper.TimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.timeout_seconds must be > 0")
	}
	return nil
}

// Timeout returns the search source timeout as a duration.
func (c NewsAPIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the per-feed fetch timeout as a duration.
func (c FeedsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ScoreTimeout returns the judgment call timeout as a duration.
func (c LLMConfig) ScoreTimeout() time.Duration {
	return time.Duration(c.ScoreTimeoutSeconds) * time.Second
}

// PersonalizeTimeout returns the generation call timeout as a duration.
func (c LLMConfig) PersonalizeTimeout() time.Duration {
	return time.Duration(c.PersonalizeTimeoutSeconds) * time.Second
}

// Timeout returns the scrape call timeout as a duration.
func (c ScraperConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
