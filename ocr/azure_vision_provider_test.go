package ocr

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const visionResponse = `{
	"modelVersion": "2023-10-01",
	"metadata": {"width": 640, "height": 480},
	"readResult": {
		"blocks": [
			{"lines": [
				{"text": "原料:", "boundingPolygon": [{"x":10,"y":20},{"x":60,"y":20},{"x":60,"y":40},{"x":10,"y":40}]},
				{"text": "麵粉", "boundingPolygon": [{"x":70,"y":21},{"x":120,"y":21},{"x":120,"y":41},{"x":70,"y":41}]}
			]}
		]
	}
}`

func newVisionTestProvider(server *httptest.Server, language string) *AzureVisionProvider {
	client := retryablehttp.NewClient()
	client.HTTPClient = server.Client()
	client.RetryMax = 0
	client.Logger = log
	return &AzureVisionProvider{
		endpoint:   server.URL,
		apiKey:     "test-key",
		language:   language,
		httpClient: client,
	}
}

func TestAzureVisionProvider_Recognize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/computervision/imageanalysis:analyze", r.URL.Path)
		assert.Equal(t, "read", r.URL.Query().Get("features"))
		assert.Equal(t, "zh-Hant", r.URL.Query().Get("language"))
		assert.Equal(t, "test-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, jpegContent, body)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, visionResponse)
	}))
	defer server.Close()

	result, err := newVisionTestProvider(server, "zh-Hant").Recognize(context.Background(), jpegContent)
	require.NoError(t, err)
	require.Len(t, result.Blocks, 1)
	assert.Equal(t, 2, result.FragmentCount())
	assert.Equal(t, "麵粉", result.Blocks[0].Lines[1].Text)
	assert.Equal(t, Point{X: 70, Y: 21}, result.Blocks[0].Lines[1].BoundingPolygon[0])
	assert.Equal(t, "azure", result.Metadata["provider"])

	assert.Equal(t, "原料: 麵粉", Reassemble(result.Blocks, nil))
}

func TestAzureVisionProvider_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"code":"401","message":"Access denied due to invalid subscription key"}}`)
	}))
	defer server.Close()

	_, err := newVisionTestProvider(server, "").Recognize(context.Background(), jpegContent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "azure OCR API error (401)")
	assert.Contains(t, err.Error(), "invalid subscription key")
}
