package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

const (
	apiVersion      = "2024-11-30"
	defaultModelID  = "prebuilt-read"
	defaultTimeout  = 120
	pollingInterval = 2 * time.Second
)

// AzureProvider implements OCR using Azure Document Intelligence. Each page
// becomes one block whose fragments are the page's lines.
type AzureProvider struct {
	endpoint        string
	apiKey          string
	modelID         string
	timeout         time.Duration
	pollingInterval time.Duration
	httpClient      *retryablehttp.Client
}

// Request body for Azure Document Intelligence
type analyzeRequest struct {
	Base64Source string `json:"base64Source"`
}

func newAzureProvider(config Config) (*AzureProvider, error) {
	logger := log.WithFields(logrus.Fields{
		"endpoint": config.AzureEndpoint,
		"model_id": config.AzureModelID,
	})
	logger.Info("Creating new Azure Document Intelligence provider")

	modelID := defaultModelID
	if config.AzureModelID != "" {
		modelID = config.AzureModelID
	}

	timeout := defaultTimeout
	if config.AzureTimeout > 0 {
		timeout = config.AzureTimeout
	}

	provider := &AzureProvider{
		endpoint:        config.AzureEndpoint,
		apiKey:          config.AzureAPIKey,
		modelID:         modelID,
		timeout:         time.Duration(timeout) * time.Second,
		pollingInterval: pollingInterval,
		httpClient:      newRetryClient(logger),
	}

	logger.Info("Successfully initialized Azure Document Intelligence provider")
	return provider, nil
}

// newRetryClient returns the retrying HTTP client shared by the Azure providers.
func newRetryClient(logger *logrus.Entry) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 5 * time.Second
	client.Logger = logger
	return client
}

func (p *AzureProvider) Recognize(ctx context.Context, imageContent []byte) (*Result, error) {
	logger := log.WithField("model_id", p.modelID)
	logger.Debug("Starting Azure Document Intelligence processing")

	mtype := mimetype.Detect(imageContent)
	if !isImageMIMEType(mtype.String()) {
		logger.WithField("mime_type", mtype.String()).Error("Unsupported file type")
		return nil, fmt.Errorf("unsupported file type: %s", mtype.String())
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	operationLocation, err := p.submitDocument(ctx, imageContent)
	if err != nil {
		return nil, fmt.Errorf("error submitting document: %w", err)
	}

	result, err := p.pollForResults(ctx, operationLocation)
	if err != nil {
		return nil, fmt.Errorf("error polling for results: %w", err)
	}

	ocrResult := &Result{
		Blocks: make([]Block, 0, len(result.AnalyzeResult.Pages)),
		Metadata: map[string]string{
			"provider":    "azure_docintel",
			"page_count":  fmt.Sprintf("%d", len(result.AnalyzeResult.Pages)),
			"api_version": result.AnalyzeResult.APIVersion,
		},
	}
	for _, page := range result.AnalyzeResult.Pages {
		block := Block{Lines: make([]Fragment, 0, len(page.Lines))}
		for _, line := range page.Lines {
			block.Lines = append(block.Lines, Fragment{
				Text:            line.Content,
				BoundingPolygon: pairsToPoints(line.Polygon),
			})
		}
		ocrResult.Blocks = append(ocrResult.Blocks, block)
	}

	logger.WithFields(logrus.Fields{
		"fragments":  ocrResult.FragmentCount(),
		"page_count": len(result.AnalyzeResult.Pages),
	}).Info("Successfully processed image")
	return ocrResult, nil
}

func (p *AzureProvider) submitDocument(ctx context.Context, imageContent []byte) (string, error) {
	requestURL := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		p.endpoint, p.modelID, apiVersion)

	requestBody := analyzeRequest{
		Base64Source: base64.StdEncoding.EncodeToString(imageContent),
	}
	requestBodyBytes, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("error marshaling request body: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", requestURL, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	operationLocation := resp.Header.Get("Operation-Location")
	if operationLocation == "" {
		return "", fmt.Errorf("no Operation-Location header in response")
	}

	return operationLocation, nil
}

func (p *AzureProvider) pollForResults(ctx context.Context, operationLocation string) (*AzureDocumentResult, error) {
	logger := log.WithField("operation_location", operationLocation)
	logger.Debug("Starting to poll for results")

	ticker := time.NewTicker(p.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("operation timed out after %v: %w", p.timeout, ctx.Err())
		case <-ticker.C:
			result, done, err := p.poll(ctx, operationLocation)
			if err != nil {
				return nil, err
			}
			if done {
				return result, nil
			}
			logger.Debug("Analysis still running")
		}
	}
}

func (p *AzureProvider) poll(ctx context.Context, operationLocation string) (*AzureDocumentResult, bool, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", operationLocation, nil)
	if err != nil {
		return nil, false, fmt.Errorf("error creating poll request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("error polling for results: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("unexpected status code %d while polling", resp.StatusCode)
	}

	var result AzureDocumentResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, false, fmt.Errorf("error decoding response: %w", err)
	}

	switch result.Status {
	case "succeeded":
		return &result, true, nil
	case "failed":
		return nil, false, fmt.Errorf("document processing failed")
	case "running", "notStarted":
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("unexpected status: %s", result.Status)
	}
}

// pairsToPoints converts a flat x,y list into points. A trailing odd
// coordinate is dropped.
func pairsToPoints(flat []float64) []Point {
	points := make([]Point, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		points = append(points, Point{X: flat[i], Y: flat[i+1]})
	}
	return points
}
