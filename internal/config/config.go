package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/rs/zerolog"

	"chat-cache/internal/conversation"
	"chat-cache/internal/llm"
	"chat-cache/internal/storage"
)

type Config struct {
	// LLM settings
	LLMProvider      string `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL"`
	YandexOAuthToken string `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string `env:"YANDEX_FOLDER_ID"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Request parameters
	Model       string  `env:"MODEL" envDefault:"gpt-4-1106-preview"`
	Temperature float32 `env:"TEMPERATURE" envDefault:"0"`
	MaxTokens   int     `env:"MAX_TOKENS" envDefault:"1024"`
	Stream      bool    `env:"STREAM" envDefault:"false"`

	// Conversation
	SystemPrompt    string `env:"SYSTEM_PROMPT"`
	HistoryCapacity int    `env:"HISTORY_CAPACITY" envDefault:"6"`

	// Storage
	CacheDir  string `env:"CACHE_DIR"`
	CacheFile string `env:"CACHE_FILE"`
	Debug     bool   `env:"DEBUG" envDefault:"false"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.HistoryCapacity < 1 {
		return nil, fmt.Errorf("HISTORY_CAPACITY must be positive, got %d", cfg.HistoryCapacity)
	}
	if cfg.MaxTokens < 1 {
		return nil, fmt.Errorf("MAX_TOKENS must be positive, got %d", cfg.MaxTokens)
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	return cfg, nil
}

// CachePath resolves the log file: CACHE_FILE when set, otherwise
// <CACHE_DIR or $HOME/.cache>/<model>/log.jsonl.
func (c *Config) CachePath() (string, error) {
	if c.CacheFile != "" {
		return c.CacheFile, nil
	}
	root := c.CacheDir
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		root = filepath.Join(home, ".cache")
	}
	// model ids such as "openai/gpt-5-nano" become nested directories
	parts := strings.Split(c.Model, "/")
	return storage.DefaultPath(root, parts...), nil
}

func (c *Config) Params() llm.Params {
	return llm.Params{
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Stream:      c.Stream,
	}
}

func (c *Config) Conversation() (conversation.Config, error) {
	path, err := c.CachePath()
	if err != nil {
		return conversation.Config{}, err
	}
	return conversation.Config{
		SystemPrompt: c.SystemPrompt,
		Capacity:     c.HistoryCapacity,
		Params:       c.Params(),
		Debug:        c.Debug,
		CachePath:    path,
	}, nil
}

func (c *Config) Factory() *llm.Factory {
	return &llm.Factory{
		OpenaiAPIKey:       c.OpenAIAPIKey,
		OpenaiBaseURL:      c.OpenAIBaseURL,
		OpenRouterReferrer: c.OpenRouterReferrer,
		OpenRouterTitle:    c.OpenRouterTitle,
		YandexOAuthToken:   c.YandexOAuthToken,
		YandexFolderID:     c.YandexFolderID,
	}
}
