package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"labelproof/internal/constants"
)

// Config selects and configures the completion backend.
type Config struct {
	// Provider is one of "openai", "azure", "ollama", "googleai"
	Provider string
	Model    string

	// APIKey is used by openai and azure
	APIKey string
	// BaseURL points openai at a compatible service, azure at its resource
	// endpoint and ollama at its server
	BaseURL string
	// APIVersion is the Azure OpenAI API version
	APIVersion string

	GoogleAIAPIKey         string
	GoogleAIThinkingBudget *int32

	RateLimit RateLimitConfig
}

// NewModel creates the llms.Model described by config. When config asks
// for rate limiting or retries the model is wrapped in a RateLimitedLLM.
func NewModel(ctx context.Context, config Config) (llms.Model, error) {
	model, err := newBaseModel(ctx, config)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"provider": config.Provider,
		"model":    config.Model,
	}).Info("Initialized LLM")

	if config.RateLimit.Enabled() {
		log.WithFields(logrus.Fields{
			"requests_per_minute": config.RateLimit.RequestsPerMinute,
			"max_retries":         config.RateLimit.MaxRetries,
		}).Info("Applying LLM rate limiting")
		return NewRateLimitedLLM(model, config.RateLimit), nil
	}
	return model, nil
}

func newBaseModel(ctx context.Context, config Config) (llms.Model, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		opts := []openai.Option{openai.WithModel(config.Model)}
		switch {
		case config.APIKey != "":
			opts = append(opts, openai.WithToken(config.APIKey))
		case config.BaseURL != "":
			opts = append(opts, openai.WithToken(constants.DummyAPIKey))
		default:
			return nil, fmt.Errorf("OpenAI API key is not set")
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		return openai.New(opts...)

	case "azure":
		if config.APIKey == "" || config.BaseURL == "" {
			return nil, fmt.Errorf("Azure OpenAI requires LLM_API_KEY and LLM_BASE_URL")
		}
		opts := []openai.Option{
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithBaseURL(config.BaseURL),
			openai.WithToken(config.APIKey),
			openai.WithModel(config.Model),
		}
		if config.APIVersion != "" {
			opts = append(opts, openai.WithAPIVersion(config.APIVersion))
		}
		return openai.New(opts...)

	case "ollama":
		host := config.BaseURL
		if host == "" {
			host = "http://127.0.0.1:11434"
		}
		return ollama.New(
			ollama.WithModel(config.Model),
			ollama.WithServerURL(host),
		)

	case "googleai":
		return NewGoogleAIProvider(ctx, config.Model, config.GoogleAIAPIKey, config.GoogleAIThinkingBudget)

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.Provider)
	}
}
