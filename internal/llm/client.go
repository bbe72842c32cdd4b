package llm

import (
	"context"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message exchanged with the remote model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Params are the request parameters sent with every completion.
type Params struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Stream      bool
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the result of one completion call, reduced to a single choice.
type Response struct {
	ID          string
	Model       string
	Fingerprint string
	Role        Role
	Content     string
	Created     time.Time
	Usage       Usage
}

// Message converts the response into the message appended to history.
func (r Response) Message() Message {
	role := r.Role
	if role == "" {
		role = RoleAssistant
	}
	return Message{Role: role, Content: r.Content}
}

type Client interface {
	Complete(ctx context.Context, messages []Message, params Params) (Response, error)
}
