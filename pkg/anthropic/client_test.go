package anthropic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateCost(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 500_000}

	cost := usage.EstimateCost("claude-haiku-4-5-20251001")
	assert.InDelta(t, 0.80+2.00, cost, 0.001)

	assert.Zero(t, usage.EstimateCost("some-unknown-model"))
}

func TestEstimateCost_CacheTokens(t *testing.T) {
	usage := TokenUsage{
		CacheCreationInputTokens: 1_000_000,
		CacheReadInputTokens:     1_000_000,
	}
	cost := usage.EstimateCost("claude-sonnet-4-5-20250929")
	assert.InDelta(t, 3.00*1.25+3.00*0.1, cost, 0.001)
}

func TestFirstText(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "thinking", Text: "…"},
		{Type: "text", Text: `{"isValid":true}`},
	}}
	assert.Equal(t, `{"isValid":true}`, resp.FirstText())
	assert.Empty(t, (&MessageResponse{}).FirstText())
}

func TestUserMessageParts(t *testing.T) {
	msg := UserMessage(
		NewImagePart("image/jpeg", []byte{0xff, 0xd8}),
		NewTextPart("evaluate this photo"),
	)
	require.Len(t, msg.Parts, 2)
	assert.Equal(t, "user", msg.Role)
	assert.NotNil(t, msg.Parts[0].Image)
	assert.Equal(t, "image/jpeg", msg.Parts[0].Image.MediaType)
	assert.Nil(t, msg.Parts[1].Image)
	assert.Equal(t, "evaluate this photo", msg.Parts[1].Text)
}

type countingClient struct {
	calls int
}

func (c *countingClient) CreateMessage(_ context.Context, _ MessageRequest) (*MessageResponse, error) {
	c.calls++
	return &MessageResponse{}, nil
}

func TestRateLimitedClient_Throttles(t *testing.T) {
	inner := &countingClient{}
	// 100 rps with a bucket of 1: calls 2..4 must each wait ~10ms.
	client := NewRateLimited(inner, 100, 1)

	start := time.Now()
	for i := 0; i < 4; i++ {
		_, err := client.CreateMessage(context.Background(), MessageRequest{})
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	assert.Equal(t, 4, inner.calls)
	assert.GreaterOrEqual(t, elapsed, 25*time.Millisecond)
}

func TestRateLimitedClient_ZeroRPSIsPassthrough(t *testing.T) {
	inner := &countingClient{}
	assert.Same(t, Client(inner), NewRateLimited(inner, 0, 0))
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("you are a vehicle moderator")
	require.Len(t, blocks, 1)
	assert.Equal(t, "you are a vehicle moderator", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}
