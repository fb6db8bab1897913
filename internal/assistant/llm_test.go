package assistant

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLLM struct {
	name  string
	resp  ChatResponse
	err   error
	calls int
}

func (s *stubLLM) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	s.calls++
	return s.resp, s.err
}

func (s *stubLLM) Name() string { return s.name }

func TestFallbackLLMClient_PrimarySucceeds(t *testing.T) {
	primary := &stubLLM{name: "openai", resp: ChatResponse{Text: "hi"}}
	fallback := &stubLLM{name: "bedrock"}
	client := NewFallbackLLMClient(primary, fallback, nil)

	resp, err := client.Complete(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Text)
	assert.Equal(t, 1, primary.calls)
	assert.Zero(t, fallback.calls)
	assert.Equal(t, "openai+bedrock", client.Name())
}

func TestFallbackLLMClient_FallsBackOnPrimaryFailure(t *testing.T) {
	primary := &stubLLM{name: "openai", err: errors.New("rate limited")}
	fallback := &stubLLM{name: "bedrock", resp: ChatResponse{Text: "from fallback"}}
	client := NewFallbackLLMClient(primary, fallback, nil)

	resp, err := client.Complete(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from fallback", resp.Text)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestFallbackLLMClient_BothFail(t *testing.T) {
	primary := &stubLLM{name: "openai", err: errors.New("rate limited")}
	fallback := &stubLLM{name: "bedrock", err: errors.New("throttled")}
	client := NewFallbackLLMClient(primary, fallback, nil)

	_, err := client.Complete(context.Background(), ChatRequest{})
	assert.EqualError(t, err, "throttled")
}

func TestFallbackLLMClient_NoFallbackConfigured(t *testing.T) {
	primary := &stubLLM{name: "openai", err: errors.New("rate limited")}
	client := NewFallbackLLMClient(primary, nil, nil)

	_, err := client.Complete(context.Background(), ChatRequest{})
	assert.EqualError(t, err, "rate limited")
	assert.Equal(t, "openai", client.Name())
}
