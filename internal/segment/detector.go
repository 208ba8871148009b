package segment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// HTTPDetector calls a table-detection service. The image is posted as the
// multipart field "file"; the service answers {"regions": [...]}.
type HTTPDetector struct {
	url    string
	client *retryablehttp.Client
}

type detectResponse struct {
	Regions []Region `json:"regions"`
}

// NewHTTPDetector returns a detector for the service at url. httpClient
// may carry authentication; nil uses a default client.
func NewHTTPDetector(url string, httpClient *http.Client) *HTTPDetector {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = log.WithField("component", "table_detector")
	if httpClient != nil {
		client.HTTPClient = httpClient
	}
	return &HTTPDetector{url: url, client: client}
}

func (d *HTTPDetector) Detect(ctx context.Context, image []byte) ([]Region, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, fmt.Errorf("error creating form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("error writing image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("error closing multipart writer: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", d.url, body.Bytes())
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("table detector returned status %d: %s", resp.StatusCode, string(msg))
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("error decoding detector response: %w", err)
	}
	log.WithField("regions", len(out.Regions)).Debug("Table detection completed")
	return out.Regions, nil
}
