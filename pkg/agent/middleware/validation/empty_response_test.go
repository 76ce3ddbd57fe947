package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"researchcopilot/pkg/agent/llm"
)

type scriptedClient struct {
	replies  []string
	requests []llm.CompletionRequest
}

func (s *scriptedClient) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	s.requests = append(s.requests, req)
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return llm.CompletionResponse{Content: reply}, nil
}

func (s *scriptedClient) GetModelName() string { return "scripted" }

func TestValidatorRetriesBlankReplyWithGuidance(t *testing.T) {
	base := &scriptedClient{replies: []string{"  \n", "FINAL: answer"}}
	client := NewEmptyResponseValidator().Middleware()(base)

	original := []llm.CompletionMessage{llm.NewUserMessage("q")}
	resp, err := client.Complete(context.Background(), llm.CompletionRequest{Messages: original})
	require.NoError(t, err)

	assert.Equal(t, "FINAL: answer", resp.Content)
	require.Len(t, base.requests, 2)
	assert.Len(t, base.requests[1].Messages, 2)
	assert.Equal(t, GuidanceMessage, base.requests[1].Messages[1].Content)
	assert.Len(t, original, 1, "caller's messages must not be modified")
}

func TestValidatorPassesNonEmptyReply(t *testing.T) {
	base := &scriptedClient{replies: []string{"FINAL: ok"}}
	resp, err := NewEmptyResponseValidator().Middleware()(base).Complete(context.Background(), llm.CompletionRequest{})

	require.NoError(t, err)
	assert.Equal(t, "FINAL: ok", resp.Content)
	assert.Len(t, base.requests, 1)
}

func TestValidatorReturnsSecondBlankReply(t *testing.T) {
	base := &scriptedClient{replies: []string{""}}
	resp, err := NewEmptyResponseValidator().Middleware()(base).Complete(context.Background(), llm.CompletionRequest{})

	require.NoError(t, err)
	assert.Empty(t, resp.Content)
	assert.Len(t, base.requests, 2)
}
