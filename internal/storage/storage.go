package storage

import (
	"encoding/json"
	"fmt"

	"chat-cache/internal/llm"
)

// FileName is the log file created inside a cache directory.
const FileName = "log.jsonl"

// IDWidth is the number of digits in a conversation id.
const IDWidth = 6

// Record is one logged history snapshot. On disk a record is a single JSON
// line {"<id>": "<messages as a JSON string>"}.
type Record struct {
	ID       string
	Messages string
}

// Decode parses the snapshot back into messages.
func (r Record) Decode() ([]llm.Message, error) {
	var msgs []llm.Message
	if err := json.Unmarshal([]byte(r.Messages), &msgs); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", r.ID, err)
	}
	return msgs, nil
}

// FormatID renders n as a zero padded conversation id.
func FormatID(n int) string {
	return fmt.Sprintf("%0*d", IDWidth, n)
}

// Recorder abstracts persistence of history snapshots.
// Implementations must be safe for concurrent use.
type Recorder interface {
	NextID() (string, error)
	Append(id string, messages []llm.Message, debug bool) error
}
