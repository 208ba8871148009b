package ocr

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// Point is a vertex of a bounding polygon in image pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Fragment is a piece of recognized text and the polygon it occupies.
type Fragment struct {
	Text            string  `json:"text"`
	BoundingPolygon []Point `json:"boundingPolygon"`
}

// Block is a group of fragments as reported by the OCR engine.
type Block struct {
	Lines []Fragment `json:"lines"`
}

// Result holds the output from OCR processing
type Result struct {
	Blocks []Block

	// Additional provider-specific metadata
	Metadata map[string]string
}

// FragmentCount returns the number of fragments across all blocks.
func (r *Result) FragmentCount() int {
	n := 0
	for _, b := range r.Blocks {
		n += len(b.Lines)
	}
	return n
}

// Provider defines the interface for OCR processing
type Provider interface {
	Recognize(ctx context.Context, imageContent []byte) (*Result, error)
}

// Config holds the OCR provider configuration
type Config struct {
	// Provider type ("azure", "azure_docintel", "google_docai", "tesseract")
	Provider string

	// Language hint passed to the engine, e.g. "zh-Hant"
	Language string

	// Azure AI Vision / Document Intelligence settings
	AzureEndpoint string
	AzureAPIKey   string
	AzureModelID  string // Optional, defaults to "prebuilt-read"
	AzureTimeout  int    // Optional, defaults to 120 seconds

	// Google Document AI settings
	GoogleProjectID   string
	GoogleLocation    string
	GoogleProcessorID string

	// Tesseract settings
	TesseractLanguages []string
}

// NewProvider creates a new OCR provider based on configuration
func NewProvider(config Config) (Provider, error) {
	log.Info("Initializing OCR provider: ", config.Provider)

	switch config.Provider {
	case "azure":
		if config.AzureEndpoint == "" || config.AzureAPIKey == "" {
			return nil, fmt.Errorf("missing required Azure AI Vision configuration")
		}
		return newAzureVisionProvider(config)

	case "azure_docintel":
		if config.AzureEndpoint == "" || config.AzureAPIKey == "" {
			return nil, fmt.Errorf("missing required Azure Document Intelligence configuration")
		}
		return newAzureProvider(config)

	case "google_docai":
		if config.GoogleProjectID == "" || config.GoogleLocation == "" || config.GoogleProcessorID == "" {
			return nil, fmt.Errorf("missing required Google Document AI configuration")
		}
		log.WithFields(logrus.Fields{
			"location":     config.GoogleLocation,
			"processor_id": config.GoogleProcessorID,
		}).Info("Using Google Document AI provider")
		return newGoogleDocAIProvider(config)

	case "tesseract":
		log.WithField("languages", config.TesseractLanguages).Info("Using Tesseract provider")
		return newTesseractProvider(config)

	default:
		return nil, fmt.Errorf("unsupported OCR provider: %s", config.Provider)
	}
}

// SetLogLevel sets the logging level for the OCR package
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}
