package extract

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

// availableTokens returns how many tokens are left for source text once
// the prompt is counted, keeping a small safety margin.
func availableTokens(model, prompt string, limit int) (int, error) {
	promptTokens := llms.CountTokens(model, prompt) + 10
	log.Debugf("Prompt uses %d tokens", promptTokens)
	available := limit - promptTokens
	if available < 0 {
		return 0, fmt.Errorf("prompt exceeds token limit of %d", limit)
	}
	return available, nil
}

// truncateByTokens returns the longest rune prefix of content whose token
// count does not exceed available.
func truncateByTokens(model, content string, available int) string {
	if llms.CountTokens(model, content) <= available {
		return content
	}

	runes := []rune(content)
	low, high := 0, len(runes)
	cut := 0
	for low <= high {
		mid := (low + high) / 2
		if llms.CountTokens(model, string(runes[:mid])) <= available {
			cut = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return string(runes[:cut])
}
