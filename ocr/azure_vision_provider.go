package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

const visionAPIVersion = "2024-02-01"

// AzureVisionProvider implements OCR using the synchronous Azure AI Vision
// Image Analysis "read" feature.
type AzureVisionProvider struct {
	endpoint   string
	apiKey     string
	language   string
	httpClient *retryablehttp.Client
}

func newAzureVisionProvider(config Config) (*AzureVisionProvider, error) {
	logger := log.WithFields(logrus.Fields{
		"endpoint": config.AzureEndpoint,
		"language": config.Language,
	})
	logger.Info("Creating new Azure AI Vision provider")

	return &AzureVisionProvider{
		endpoint:   strings.TrimRight(config.AzureEndpoint, "/"),
		apiKey:     config.AzureAPIKey,
		language:   config.Language,
		httpClient: newRetryClient(logger),
	}, nil
}

func (p *AzureVisionProvider) Recognize(ctx context.Context, imageContent []byte) (*Result, error) {
	query := url.Values{}
	query.Set("api-version", visionAPIVersion)
	query.Set("features", "read")
	if p.language != "" {
		query.Set("language", p.language)
	}
	requestURL := fmt.Sprintf("%s/computervision/imageanalysis:analyze?%s", p.endpoint, query.Encode())

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", requestURL, bytes.NewReader(imageContent))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending HTTP request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr AzureErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("azure OCR API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var analysis AzureImageAnalysisResult
	if err := json.Unmarshal(body, &analysis); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	result := &Result{
		Blocks: analysis.ReadResult.Blocks,
		Metadata: map[string]string{
			"provider":      "azure",
			"model_version": analysis.ModelVersion,
		},
	}
	log.WithField("fragments", result.FragmentCount()).Debug("Azure AI Vision read completed")
	return result, nil
}
