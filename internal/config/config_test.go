package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-cache/internal/llm"
)

func TestNewDefaults(t *testing.T) {
	t.Setenv("CACHE_DIR", "/tmp/cache-root")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, llm.ProviderOpenAI, cfg.LLMProvider)
	assert.Equal(t, llm.Params{Model: "gpt-4-1106-preview", MaxTokens: 1024}, cfg.Params())
	assert.Equal(t, 6, cfg.HistoryCapacity)
	assert.False(t, cfg.Debug)

	conv, err := cfg.Conversation()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/cache-root", "gpt-4-1106-preview", "log.jsonl"), conv.CachePath)
	assert.Equal(t, 6, conv.Capacity)
}

func TestNewFromEnvironment(t *testing.T) {
	t.Setenv("MODEL", "openai/gpt-5-nano")
	t.Setenv("TEMPERATURE", "0.7")
	t.Setenv("MAX_TOKENS", "128")
	t.Setenv("STREAM", "true")
	t.Setenv("HISTORY_CAPACITY", "10")
	t.Setenv("DEBUG", "true")
	t.Setenv("CACHE_DIR", "/data")
	t.Setenv("SYSTEM_PROMPT", "you are terse")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, llm.Params{Model: "openai/gpt-5-nano", Temperature: 0.7, MaxTokens: 128, Stream: true}, cfg.Params())
	conv, err := cfg.Conversation()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data", "openai", "gpt-5-nano", "log.jsonl"), conv.CachePath)
	assert.Equal(t, "you are terse", conv.SystemPrompt)
	assert.True(t, conv.Debug)
	assert.Equal(t, 10, conv.Capacity)
}

func TestCacheFileOverridesDir(t *testing.T) {
	t.Setenv("CACHE_DIR", "/data")
	t.Setenv("CACHE_FILE", "/elsewhere/log.jsonl")

	cfg, err := New()
	require.NoError(t, err)
	p, err := cfg.CachePath()
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere/log.jsonl", p)
}

func TestNewRejectsInvalidValues(t *testing.T) {
	t.Setenv("HISTORY_CAPACITY", "0")
	_, err := New()
	require.Error(t, err)

	t.Setenv("HISTORY_CAPACITY", "6")
	t.Setenv("LOG_LEVEL", "loud")
	_, err = New()
	require.Error(t, err)

	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("MAX_TOKENS", "many")
	_, err = New()
	require.Error(t, err)
}
