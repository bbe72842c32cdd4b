package conversation

import (
	"context"
	"errors"

	"chat-cache/internal/llm"
	"chat-cache/internal/storage"
)

// Ask sends a single query, optionally preceded by a system prompt, and logs
// the exchange under a freshly minted id. With record unset the exchange goes
// to the cache's debug writer instead of the file.
func Ask(ctx context.Context, client llm.Client, cache storage.Recorder, params llm.Params, system, query string, record bool) (llm.Response, error) {
	if client == nil || cache == nil {
		return llm.Response{}, newError(KindConfig, "ask", errors.New("client and cache are required"))
	}
	msgs := make([]llm.Message, 0, 3)
	if system != "" {
		msgs = append(msgs, llm.System(system))
	}
	msgs = append(msgs, llm.User(query))

	resp, err := client.Complete(ctx, msgs, params)
	if err != nil {
		return llm.Response{}, newError(KindEndpoint, "complete", err)
	}
	id, err := cache.NextID()
	if err != nil {
		return resp, newError(KindStorage, "mint id", err)
	}
	msgs = append(msgs, resp.Message())
	if err := cache.Append(id, msgs, !record); err != nil {
		return resp, cacheError("append", err)
	}
	return resp, nil
}
