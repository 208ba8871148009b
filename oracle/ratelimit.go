package oracle

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"
)

// RateLimitedLLM wraps an LLM client with rate limiting and retry capabilities.
// It is opt-in: the oracle itself never retries.
type RateLimitedLLM struct {
	llm         llms.Model
	rateLimiter *rate.Limiter
	maxRetries  int
	backoffMin  time.Duration
	backoffMax  time.Duration
}

// RateLimitConfig holds configuration for rate limiting and retries
type RateLimitConfig struct {
	// RequestsPerMinute is the maximum number of requests allowed per minute
	// If 0 or negative, no rate limiting is applied
	RequestsPerMinute float64

	// MaxRetries is the maximum number of retry attempts
	// If 0 or negative, no retries are attempted
	MaxRetries int

	// BackoffMinWait is the wait before the first retry
	// Defaults to 1 second if not specified
	BackoffMinWait time.Duration

	// BackoffMaxWait is the maximum wait time between retries
	// Defaults to 30 seconds if not specified
	BackoffMaxWait time.Duration
}

// Enabled reports whether the config asks for any rate limiting or retries.
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerMinute > 0 || c.MaxRetries > 0
}

// NewRateLimitedLLM creates a new rate-limited LLM client
func NewRateLimitedLLM(llm llms.Model, config RateLimitConfig) *RateLimitedLLM {
	var limiter *rate.Limiter
	if config.RequestsPerMinute > 0 {
		rps := rate.Limit(config.RequestsPerMinute / 60.0)
		limiter = rate.NewLimiter(rps, 1)
	}

	maxRetries := config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	backoffMin := config.BackoffMinWait
	if backoffMin <= 0 {
		backoffMin = 1 * time.Second
	}
	backoffMax := config.BackoffMaxWait
	if backoffMax <= 0 {
		backoffMax = 30 * time.Second
	}

	return &RateLimitedLLM{
		llm:         llm,
		rateLimiter: limiter,
		maxRetries:  maxRetries,
		backoffMin:  backoffMin,
		backoffMax:  backoffMax,
	}
}

// Call implements the llms.Model interface
func (r *RateLimitedLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, r, prompt, options...)
}

// GenerateContent implements the llms.Model interface with rate limiting and retries
func (r *RateLimitedLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if r.rateLimiter != nil {
		if err := r.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	var lastErr error
	attempt := 0

	for {
		resp, err := r.llm.GenerateContent(ctx, messages, options...)
		if err == nil {
			return resp, nil
		}

		if attempt >= r.maxRetries {
			if lastErr != nil {
				return nil, fmt.Errorf("all retry attempts failed, last error: %w", err)
			}
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.backoff(attempt)):
			attempt++
			lastErr = err
		}
	}
}

// backoff is exponential in attempt, capped at backoffMax, with +/- 20% jitter.
func (r *RateLimitedLLM) backoff(attempt int) time.Duration {
	wait := r.backoffMin * time.Duration(1<<uint(attempt))
	if wait > r.backoffMax {
		wait = r.backoffMax
	}
	return time.Duration(float64(wait) * (0.8 + 0.4*rand.Float64()))
}
