package vision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_Plain(t *testing.T) {
	raw, err := extractJSON(`{"name":"Morgan Silver Dollar","confidence":0.9}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Morgan Silver Dollar","confidence":0.9}`, string(raw))
}

func TestExtractJSON_MarkdownFenced(t *testing.T) {
	input := "Here is the identification:\n```json\n{\"name\":\"Gold Eagle\"}\n```\n"
	raw, err := extractJSON(input)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Gold Eagle"}`, string(raw))
}

func TestExtractJSON_NoObject(t *testing.T) {
	_, err := extractJSON("I cannot identify this item.")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMalformedOutput)
	assert.Contains(t, err.Error(), "no JSON object")
}

func TestExtractJSON_Invalid(t *testing.T) {
	_, err := extractJSON(`{"name": unquoted}`)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMalformedOutput)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestIdentifyImage_EmptyImage(t *testing.T) {
	c := NewClient("test-key")
	_, err := c.IdentifyImage(context.Background(), IdentifyRequest{Category: "coins"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty image")
}
