package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

type OpenAIClient struct {
	client *openai.Client
}

type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone request to avoid mutating the original
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}

func NewOpenAI(apiKey, baseURL, referrer, title string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	// Inject optional headers (useful for OpenRouter)
	if referrer != "" || title != "" {
		h := http.Header{}
		if referrer != "" {
			h.Set("HTTP-Referer", referrer)
		}
		if title != "" {
			h.Set("X-Title", title)
		}
		base := http.DefaultTransport
		config.HTTPClient = &http.Client{Transport: headerTransport{rt: base, headers: h}}
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(config)}
}

func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, params Params) (Response, error) {
	if params.Model == "" {
		return Response{}, errors.New("openai: model must not be empty")
	}
	req := buildRequest(messages, params)
	if params.Stream {
		return c.completeStream(ctx, req)
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("openai: no choices in response")
	}

	msg := resp.Choices[0].Message
	out := Response{
		ID:          resp.ID,
		Model:       resp.Model,
		Fingerprint: resp.SystemFingerprint,
		Role:        Role(msg.Role),
		Content:     msg.Content,
		Created:     time.Unix(resp.Created, 0).UTC(),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	log.Debug().
		Str("id", out.ID).
		Str("model", out.Model).
		Int("tokens", out.Usage.TotalTokens).
		Msg("chat completion received")
	return out, nil
}

// completeStream drains a streamed completion into a single Response.
func (c *OpenAIClient) completeStream(ctx context.Context, req openai.ChatCompletionRequest) (Response, error) {
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to create chat completion stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	var (
		out     Response
		content strings.Builder
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Response{}, fmt.Errorf("failed to receive stream chunk: %w", err)
		}
		if out.ID == "" {
			out.ID = chunk.ID
			out.Model = chunk.Model
			out.Created = time.Unix(chunk.Created, 0).UTC()
		}
		if chunk.SystemFingerprint != "" {
			out.Fingerprint = chunk.SystemFingerprint
		}
		if chunk.Usage != nil {
			out.Usage = Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Role != "" {
			out.Role = Role(delta.Role)
		}
		content.WriteString(delta.Content)
	}
	if out.ID == "" && content.Len() == 0 {
		return Response{}, errors.New("openai: empty stream")
	}
	out.Content = content.String()
	return out, nil
}

func buildRequest(messages []Message, params Params) openai.ChatCompletionRequest {
	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	temperature := params.Temperature
	// go-openai drops a zero temperature from the payload, which the API reads as 1.0.
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	return openai.ChatCompletionRequest{
		Model:       params.Model,
		Messages:    oaMsgs,
		Temperature: temperature,
		MaxTokens:   params.MaxTokens,
	}
}
