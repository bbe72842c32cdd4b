package history

import (
	"fmt"
	"sync"

	"chat-cache/internal/llm"
)

// Buffer is a fixed-capacity FIFO of chat messages. Once full, every Append
// evicts the oldest message, system messages included.
type Buffer struct {
	mu    sync.RWMutex
	ring  []llm.Message
	start int
	size  int
}

func New(capacity int) (*Buffer, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("history capacity must be positive, got %d", capacity)
	}
	return &Buffer{ring: make([]llm.Message, capacity)}, nil
}

// Append adds msgs in order and returns how many older messages were evicted.
func (b *Buffer) Append(msgs ...llm.Message) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	evicted := 0
	for _, m := range msgs {
		if b.size < len(b.ring) {
			b.ring[(b.start+b.size)%len(b.ring)] = m
			b.size++
			continue
		}
		b.ring[b.start] = m
		b.start = (b.start + 1) % len(b.ring)
		evicted++
	}
	return evicted
}

// Messages returns a copy of the buffer, oldest first.
func (b *Buffer) Messages() []llm.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]llm.Message, 0, b.size)
	for i := 0; i < b.size; i++ {
		out = append(out, b.ring[(b.start+i)%len(b.ring)])
	}
	return out
}

// Last returns the newest message.
func (b *Buffer) Last() (llm.Message, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.size == 0 {
		return llm.Message{}, false
	}
	return b.ring[(b.start+b.size-1)%len(b.ring)], true
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

func (b *Buffer) Cap() int { return len(b.ring) }

func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.ring)
	b.start, b.size = 0, 0
}
