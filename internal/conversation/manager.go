package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"chat-cache/internal/history"
	"chat-cache/internal/llm"
	"chat-cache/internal/storage"
)

const (
	DefaultSystemPrompt = "you are an expert machine learning engineer and communicator.\n---\n"
	DefaultCapacity     = 6
	DefaultModel        = "gpt-4-1106-preview"
	DefaultMaxTokens    = 1024
)

type Config struct {
	SystemPrompt string
	Capacity     int
	Params       llm.Params

	// Debug sends cache records to the cache's debug writer instead of the file.
	Debug     bool
	CachePath string
}

// Cache is the part of storage.Cache the manager depends on.
type Cache interface {
	storage.Recorder
	Close() error
}

func (c Config) withDefaults() Config {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.Capacity == 0 {
		c.Capacity = DefaultCapacity
	}
	if c.Params.Model == "" {
		c.Params.Model = DefaultModel
	}
	if c.Params.MaxTokens == 0 {
		c.Params.MaxTokens = DefaultMaxTokens
	}
	return c
}

// Manager runs one multi-turn conversation. Turns are sequential: Submit
// holds the manager for the whole round trip.
type Manager struct {
	mu      sync.Mutex
	id      string
	cfg     Config
	client  llm.Client
	cache   Cache
	history *history.Buffer
}

// New opens the cache at cfg.CachePath and starts a conversation holding only
// the system prompt.
func New(client llm.Client, cfg Config) (*Manager, error) {
	if strings.TrimSpace(cfg.CachePath) == "" {
		return nil, newError(KindConfig, "new", errors.New("cache path must not be empty"))
	}
	cache, err := storage.Open(cfg.CachePath)
	if err != nil {
		return nil, newError(KindConfig, "open cache", err)
	}
	m, err := NewWithCache(client, cache, cfg)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}
	return m, nil
}

// NewWithCache is New with an already opened cache. The manager takes
// ownership of the cache and closes it on Close.
func NewWithCache(client llm.Client, cache Cache, cfg Config) (*Manager, error) {
	m, err := newManager(client, cache, cfg)
	if err != nil {
		return nil, err
	}
	id, err := cache.NextID()
	if err != nil {
		return nil, newError(KindConfig, "mint id", err)
	}
	m.id = id
	m.history.Append(llm.System(m.cfg.SystemPrompt))
	log.Info().Str("id", id).Int("capacity", m.cfg.Capacity).Str("model", m.cfg.Params.Model).Msg("conversation started")
	return m, nil
}

// FromHistory resumes conversation id with prior in place of the default
// system message. No new id is minted; prior is trimmed to capacity oldest
// first.
func FromHistory(client llm.Client, cache Cache, cfg Config, id string, prior []llm.Message) (*Manager, error) {
	if strings.TrimSpace(id) == "" {
		return nil, newError(KindConfig, "resume", errors.New("conversation id must not be empty"))
	}
	m, err := newManager(client, cache, cfg)
	if err != nil {
		return nil, err
	}
	m.id = id
	evicted := m.history.Append(prior...)
	log.Info().Str("id", id).Int("messages", m.history.Len()).Int("evicted", evicted).Msg("conversation resumed")
	return m, nil
}

func newManager(client llm.Client, cache Cache, cfg Config) (*Manager, error) {
	if client == nil {
		return nil, newError(KindConfig, "new", errors.New("llm client must not be nil"))
	}
	if cache == nil {
		return nil, newError(KindConfig, "new", errors.New("cache must not be nil"))
	}
	cfg = cfg.withDefaults()
	buf, err := history.New(cfg.Capacity)
	if err != nil {
		return nil, newError(KindConfig, "new", err)
	}
	return &Manager{cfg: cfg, client: client, cache: cache, history: buf}, nil
}

// Submit runs one turn and returns the assistant reply.
//
// On an endpoint failure the user message stays in history, nothing is
// logged, and the manager can take the next turn.
func (m *Manager) Submit(ctx context.Context, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history.Append(llm.User(text))

	resp, err := m.client.Complete(ctx, m.history.Messages(), m.cfg.Params)
	if err != nil {
		log.Warn().Err(err).Str("id", m.id).Msg("completion failed")
		return "", newError(KindEndpoint, "complete", err)
	}

	reply := resp.Message()
	m.history.Append(reply)
	if err := m.cache.Append(m.id, m.history.Messages(), m.cfg.Debug); err != nil {
		return "", cacheError("append", err)
	}
	log.Debug().
		Str("id", m.id).
		Str("response", resp.ID).
		Int("tokens", resp.Usage.TotalTokens).
		Int("messages", m.history.Len()).
		Msg("turn completed")
	return reply.Content, nil
}

func (m *Manager) ID() string { return m.id }

// History returns a copy of the current history, oldest first.
func (m *Manager) History() []llm.Message { return m.history.Messages() }

func (m *Manager) Config() Config { return m.cfg }

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Close()
}

// Resume continues conversation id from its latest snapshot in cache.
func Resume(client llm.Client, cache *storage.Cache, cfg Config, id string) (*Manager, error) {
	records, err := cache.Load()
	if err != nil {
		return nil, newError(KindStorage, "resume", err)
	}
	var latest *storage.Record
	for i := range records {
		if records[i].ID == id {
			latest = &records[i]
		}
	}
	if latest == nil {
		return nil, newError(KindConfig, "resume", fmt.Errorf("no records for conversation %s", id))
	}
	prior, err := latest.Decode()
	if err != nil {
		return nil, newError(KindSerialization, "resume", err)
	}
	return FromHistory(client, cache, cfg, id, prior)
}
