package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"
)

// GoogleAIProvider implements llms.Model for the Google Gemini API using google.golang.org/genai
type GoogleAIProvider struct {
	client         *genai.Client
	thinkingBudget *int32
	model          string
}

// NewGoogleAIProvider creates a new GoogleAIProvider instance
func NewGoogleAIProvider(ctx context.Context, model string, apiKey string, thinkingBudget *int32) (*GoogleAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLEAI_API_KEY environment variable is not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create googleai client: %w", err)
	}

	return &GoogleAIProvider{
		client:         client,
		thinkingBudget: thinkingBudget,
		model:          model,
	}, nil
}

// buildRequest splits messages into the system instruction and the user
// contents, and maps call options onto a generation config.
func buildRequest(messages []llms.MessageContent, thinkingBudget *int32, opts ...llms.CallOption) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	var callOpts llms.CallOptions
	for _, opt := range opts {
		opt(&callOpts)
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(callOpts.Temperature)),
	}
	if callOpts.JSONMode {
		config.ResponseMIMEType = "application/json"
	}
	if thinkingBudget != nil {
		config.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(*thinkingBudget),
		}
	}

	var system []*genai.Part
	var user []*genai.Part
	for _, msg := range messages {
		for _, part := range msg.Parts {
			text, ok := part.(llms.TextContent)
			if !ok {
				return nil, nil, fmt.Errorf("unsupported content part type: %T", part)
			}
			if msg.Role == llms.ChatMessageTypeSystem {
				system = append(system, &genai.Part{Text: text.Text})
			} else {
				user = append(user, &genai.Part{Text: text.Text})
			}
		}
	}
	if len(user) == 0 {
		return nil, nil, fmt.Errorf("no prompt provided")
	}
	if len(system) > 0 {
		config.SystemInstruction = &genai.Content{Parts: system}
	}
	return []*genai.Content{{Parts: user, Role: "user"}}, config, nil
}

// GenerateContent implements the llms.Model interface.
func (p *GoogleAIProvider) GenerateContent(ctx context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	contents, config, err := buildRequest(messages, p.thinkingBudget, opts...)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("googleai GenerateContent API error: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("googleai GenerateContent API returned empty response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("googleai GenerateContent API returned a candidate with no content")
	}

	// Concatenate non-thinking text parts
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if !part.Thought {
			sb.WriteString(part.Text)
		}
	}

	if sb.Len() == 0 {
		return nil, fmt.Errorf("googleai GenerateContent API returned no non-thinking text parts")
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content: sb.String(),
			},
		},
	}, nil
}

// Call implements the llms.Model interface.
func (p *GoogleAIProvider) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, p, prompt, opts...)
}
