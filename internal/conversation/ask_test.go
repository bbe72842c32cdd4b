package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-cache/internal/llm"
	"chat-cache/internal/storage"
)

func TestAskRecordsExchange(t *testing.T) {
	path := cachePath(t)
	cache, err := storage.Open(path)
	require.NoError(t, err)
	defer cache.Close()

	client := &scriptedClient{replies: replies("def f() {}")}
	resp, err := Ask(context.Background(), client, cache, llm.Params{Model: "m"}, "be brief", "show a function", true)
	require.NoError(t, err)
	assert.Equal(t, "def f() {}", resp.Content)
	assert.Equal(t, []llm.Message{llm.System("be brief"), llm.User("show a function")}, client.calls[0])

	records := readRecords(t, path)
	require.Len(t, records, 1)
	var snapshot []llm.Message
	require.NoError(t, json.Unmarshal([]byte(records[0]["000001"]), &snapshot))
	assert.Equal(t, []llm.Message{llm.System("be brief"), llm.User("show a function"), llm.Assistant("def f() {}")}, snapshot)
}

func TestAskWithoutSystemOrRecording(t *testing.T) {
	path := cachePath(t)
	var out bytes.Buffer
	cache, err := storage.Open(path, storage.WithDebugWriter(&out))
	require.NoError(t, err)
	defer cache.Close()

	client := &scriptedClient{replies: replies("answer")}
	_, err = Ask(context.Background(), client, cache, llm.Params{Model: "m"}, "", "question", false)
	require.NoError(t, err)

	assert.Equal(t, []llm.Message{llm.User("question")}, client.calls[0])
	assert.Empty(t, readRecords(t, path))
	assert.Contains(t, out.String(), "answer")
}

func TestAskEndpointError(t *testing.T) {
	path := cachePath(t)
	cache, err := storage.Open(path)
	require.NoError(t, err)
	defer cache.Close()

	boom := errors.New("unauthorized")
	_, err = Ask(context.Background(), &scriptedClient{replies: []reply{{err: boom}}}, cache, llm.Params{}, "", "q", true)
	assert.True(t, IsKind(err, KindEndpoint))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, readRecords(t, path))

	_, err = Ask(context.Background(), nil, cache, llm.Params{}, "", "q", true)
	assert.True(t, IsKind(err, KindConfig))
}
