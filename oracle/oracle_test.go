package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestLLMOracle_Complete(t *testing.T) {
	mock := &mockLLM{responses: []string{`  {"品名":{"content":"餅乾"}}  `}}
	o := NewLLMOracle(mock)

	out, err := o.Complete(context.Background(), "prompt text")
	require.NoError(t, err)
	assert.Equal(t, `{"品名":{"content":"餅乾"}}`, out)

	require.Len(t, mock.messages, 1)
	msgs := mock.messages[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.TextContent{Text: DefaultSystemPrompt}, msgs[0].Parts[0])
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	assert.Equal(t, llms.TextContent{Text: "prompt text"}, msgs[1].Parts[0])

	assert.Equal(t, 0.0, mock.options[0].Temperature)
	assert.False(t, mock.options[0].JSONMode)
}

func TestLLMOracle_Options(t *testing.T) {
	mock := &mockLLM{responses: []string{"{}"}}
	o := NewLLMOracle(mock, WithJSONMode(true), WithSystemPrompt("custom"))

	_, err := o.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.True(t, mock.options[0].JSONMode)
	assert.Equal(t, llms.TextContent{Text: "custom"}, mock.messages[0][0].Parts[0])
}

func TestLLMOracle_Errors(t *testing.T) {
	mock := &mockLLM{errs: []error{errors.New("connection refused")}}
	_, err := NewLLMOracle(mock).Complete(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestStripReasoning(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "No reasoning tags",
			input:    `{"a":"b"}`,
			expected: `{"a":"b"}`,
		},
		{
			name:     "Reasoning with braces before answer",
			input:    "<think>maybe {\"x\": 1}?</think>\n{\"a\":\"b\"}\n",
			expected: `{"a":"b"}`,
		},
		{
			name:     "Only reasoning tags",
			input:    "<think>Just reasoning</think>",
			expected: "",
		},
		{
			name:     "Unclosed tag left alone",
			input:    "<think>open {\"a\":1}",
			expected: "<think>open {\"a\":1}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, stripReasoning(tt.input))
		})
	}
}
