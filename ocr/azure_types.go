package ocr

import "time"

// AzureDocumentResult represents the root response from Azure Document Intelligence
type AzureDocumentResult struct {
	Status              string             `json:"status"`
	CreatedDateTime     time.Time          `json:"createdDateTime"`
	LastUpdatedDateTime time.Time          `json:"lastUpdatedDateTime"`
	AnalyzeResult       AzureAnalyzeResult `json:"analyzeResult"`
}

// AzureAnalyzeResult represents the analyze result part of the Azure Document Intelligence response
type AzureAnalyzeResult struct {
	APIVersion string      `json:"apiVersion"`
	ModelID    string      `json:"modelId"`
	Content    string      `json:"content"`
	Pages      []AzurePage `json:"pages"`
}

// AzurePage represents a single page in the document
type AzurePage struct {
	PageNumber int         `json:"pageNumber"`
	Width      float64     `json:"width"`
	Height     float64     `json:"height"`
	Unit       string      `json:"unit"`
	Lines      []AzureLine `json:"lines"`
}

// AzureLine represents a line of text. Polygon is a flat list of x,y pairs.
type AzureLine struct {
	Content string    `json:"content"`
	Polygon []float64 `json:"polygon"`
}

// AzureImageAnalysisResult is the response of the AI Vision Image Analysis
// "read" feature.
type AzureImageAnalysisResult struct {
	ModelVersion string `json:"modelVersion"`
	Metadata     struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"metadata"`
	ReadResult struct {
		Blocks []Block `json:"blocks"`
	} `json:"readResult"`
}

// AzureErrorResponse is the error envelope shared by Azure AI services.
type AzureErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
