// Package oracle provides the text-completion oracle used for structured
// extraction, backed by langchaingo models.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
)

var log = logrus.New()

// SetLogLevel sets the logging level for the oracle package
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

// DefaultSystemPrompt frames every completion request.
const DefaultSystemPrompt = "You are a package proofreading system"

// Oracle completes a prompt with free text.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLMOracle sends a fixed system message and the prompt to an llms.Model
// at temperature zero.
type LLMOracle struct {
	model        llms.Model
	systemPrompt string
	jsonMode     bool
}

// Option configures an LLMOracle.
type Option func(*LLMOracle)

// WithJSONMode asks providers that support it to return JSON only. The
// response still goes through the normal repair steps.
func WithJSONMode(enabled bool) Option {
	return func(o *LLMOracle) {
		o.jsonMode = enabled
	}
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(prompt string) Option {
	return func(o *LLMOracle) {
		o.systemPrompt = prompt
	}
}

// NewLLMOracle wraps model as an Oracle.
func NewLLMOracle(model llms.Model, opts ...Option) *LLMOracle {
	o := &LLMOracle{model: model, systemPrompt: DefaultSystemPrompt}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Complete implements Oracle.
func (o *LLMOracle) Complete(ctx context.Context, prompt string) (string, error) {
	messages := []llms.MessageContent{
		{
			Parts: []llms.ContentPart{llms.TextContent{Text: o.systemPrompt}},
			Role:  llms.ChatMessageTypeSystem,
		},
		{
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
			Role:  llms.ChatMessageTypeHuman,
		},
	}

	options := []llms.CallOption{llms.WithTemperature(0)}
	if o.jsonMode {
		options = append(options, llms.WithJSONMode())
	}

	log.WithField("prompt_length", len(prompt)).Debug("Sending completion request")
	completion, err := o.model.GenerateContent(ctx, messages, options...)
	if err != nil {
		return "", fmt.Errorf("error getting response from LLM: %w", err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return "", errors.New("LLM returned no choices")
	}

	return stripReasoning(completion.Choices[0].Content), nil
}

// stripReasoning removes the reasoning from the content indicated by <think> and </think> tags.
func stripReasoning(content string) string {
	reasoningStart := strings.Index(content, "<think>")
	if reasoningStart != -1 {
		reasoningEnd := strings.Index(content, "</think>")
		if reasoningEnd != -1 {
			content = content[:reasoningStart] + content[reasoningEnd+len("</think>"):]
		}
	}

	return strings.TrimSpace(content)
}
