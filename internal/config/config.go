package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   ProvidersConfig           `json:"providers"`
	Heuristics  HeuristicsConfig          `json:"heuristics"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	AdminSecret   string `json:"admin_secret"`
	SystemPrompt  string `json:"system_prompt"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// ProvidersConfig holds the two upstream completion backends. The primary is
// optional; leaving its base_url empty sends every turn straight to groq.
type ProvidersConfig struct {
	Primary WebhookConfig `json:"primary"`
	Groq    GroqConfig    `json:"groq"`
}

type WebhookConfig struct {
	BaseURL   string `json:"base_url"`
	Model     string `json:"model"`
	TimeoutMS int    `json:"timeout_ms"`
}

type GroqConfig struct {
	BaseURL     string  `json:"base_url"`
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	TimeoutMS   int     `json:"timeout_ms"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// HeuristicsConfig tunes the post-processor and thinking-delay bands. The
// keyword matching behind these knobs is approximate by nature, so the
// thresholds live here instead of in the code.
type HeuristicsConfig struct {
	MaxEmojis          int `json:"max_emojis"`
	MaxBoldSegments    int `json:"max_bold_segments"`
	MaxSuggestions     int `json:"max_suggestions"`
	MaxSuggestionLen   int `json:"max_suggestion_len"`
	SmallTalkUserLen   int `json:"small_talk_user_len"`
	ShortReplyLen      int `json:"short_reply_len"`
	TranscriptMessages int `json:"transcript_messages"`
}

const (
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	DefaultGroqModel   = "llama-3.3-70b-versatile"
)

// Load reads configuration from the provided path (defaults to config.json)
// and fills in defaults for anything omitted.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields. Exposed so tests can build a
// config literal without going through a file.
func (c *Config) ApplyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8090"
	}
	if c.Providers.Primary.TimeoutMS <= 0 {
		c.Providers.Primary.TimeoutMS = 8000
	}
	if c.Providers.Groq.BaseURL == "" {
		c.Providers.Groq.BaseURL = DefaultGroqBaseURL
	}
	if c.Providers.Groq.Model == "" {
		c.Providers.Groq.Model = DefaultGroqModel
	}
	if c.Providers.Groq.TimeoutMS <= 0 {
		c.Providers.Groq.TimeoutMS = 20000
	}
	if c.Providers.Groq.Temperature <= 0 {
		c.Providers.Groq.Temperature = 0.7
	}
	if c.Providers.Groq.MaxTokens <= 0 {
		c.Providers.Groq.MaxTokens = 2048
	}
	h := &c.Heuristics
	if h.MaxEmojis <= 0 {
		h.MaxEmojis = 2
	}
	if h.MaxBoldSegments <= 0 {
		h.MaxBoldSegments = 2
	}
	if h.MaxSuggestions <= 0 {
		h.MaxSuggestions = 4
	}
	if h.MaxSuggestionLen <= 0 {
		h.MaxSuggestionLen = 80
	}
	if h.SmallTalkUserLen <= 0 {
		h.SmallTalkUserLen = 40
	}
	if h.ShortReplyLen <= 0 {
		h.ShortReplyLen = 120
	}
	if h.TranscriptMessages <= 0 {
		h.TranscriptMessages = 12
	}
}

// PrimaryTimeout returns the primary provider budget as a duration.
func (c *Config) PrimaryTimeout() time.Duration {
	return time.Duration(c.Providers.Primary.TimeoutMS) * time.Millisecond
}

// GroqTimeout returns the fallback provider budget as a duration.
func (c *Config) GroqTimeout() time.Duration {
	return time.Duration(c.Providers.Groq.TimeoutMS) * time.Millisecond
}
