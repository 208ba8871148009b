package ocr

import (
	"context"
	"fmt"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// GoogleDocAIProvider implements OCR using Google Document AI
type GoogleDocAIProvider struct {
	projectID   string
	location    string
	processorID string
	language    string
	client      *documentai.DocumentProcessorClient
}

func newGoogleDocAIProvider(config Config) (*GoogleDocAIProvider, error) {
	logger := log.WithFields(logrus.Fields{
		"location":     config.GoogleLocation,
		"processor_id": config.GoogleProcessorID,
	})
	logger.Info("Creating new Google Document AI provider")

	ctx := context.Background()
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.GoogleLocation)

	client, err := documentai.NewDocumentProcessorClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		logger.WithError(err).Error("Failed to create Document AI client")
		return nil, fmt.Errorf("error creating Document AI client: %w", err)
	}

	provider := &GoogleDocAIProvider{
		projectID:   config.GoogleProjectID,
		location:    config.GoogleLocation,
		processorID: config.GoogleProcessorID,
		language:    config.Language,
		client:      client,
	}

	logger.Info("Successfully initialized Google Document AI provider")
	return provider, nil
}

func (p *GoogleDocAIProvider) Recognize(ctx context.Context, imageContent []byte) (*Result, error) {
	logger := log.WithFields(logrus.Fields{
		"project_id":   p.projectID,
		"location":     p.location,
		"processor_id": p.processorID,
	})
	logger.Debug("Starting Document AI processing")

	mtype := mimetype.Detect(imageContent)
	logger.WithField("mime_type", mtype.String()).Debug("Detected file type")

	if !isImageMIMEType(mtype.String()) {
		logger.WithField("mime_type", mtype.String()).Error("Unsupported file type")
		return nil, fmt.Errorf("unsupported file type: %s", mtype.String())
	}

	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s", p.projectID, p.location, p.processorID)

	req := &documentaipb.ProcessRequest{
		Name: name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  imageContent,
				MimeType: mtype.String(),
			},
		},
	}
	if p.language != "" {
		req.ProcessOptions = &documentaipb.ProcessOptions{
			OcrConfig: &documentaipb.OcrConfig{
				Hints: &documentaipb.OcrConfig_Hints{LanguageHints: []string{p.language}},
			},
		}
	}

	logger.Debug("Sending request to Document AI")
	resp, err := p.client.ProcessDocument(ctx, req)
	if err != nil {
		logger.WithError(err).Error("Failed to process document")
		return nil, fmt.Errorf("error processing document: %w", err)
	}

	if resp == nil || resp.Document == nil {
		return nil, fmt.Errorf("received nil response or document from Document AI")
	}

	if resp.Document.Error != nil {
		logger.WithField("error", resp.Document.Error.Message).Error("Document processing error")
		return nil, fmt.Errorf("document processing error: %s", resp.Document.Error.Message)
	}

	metadata := map[string]string{
		"provider":     "google_docai",
		"mime_type":    mtype.String(),
		"page_count":   fmt.Sprintf("%d", len(resp.Document.GetPages())),
		"processor_id": p.processorID,
	}
	if pages := resp.Document.GetPages(); len(pages) > 0 {
		if langs := pages[0].GetDetectedLanguages(); len(langs) > 0 {
			metadata["lang_code"] = langs[0].GetLanguageCode()
		}
	}

	result := &Result{
		Blocks:   documentToBlocks(resp.Document),
		Metadata: metadata,
	}
	logger.WithField("fragments", result.FragmentCount()).Info("Successfully processed image")
	return result, nil
}

// documentToBlocks turns every page into a block of its text lines. Line
// polygons use absolute vertices when present and scale normalized
// vertices by the page dimension otherwise.
func documentToBlocks(doc *documentaipb.Document) []Block {
	blocks := make([]Block, 0, len(doc.GetPages()))
	for _, page := range doc.GetPages() {
		width := float64(page.GetDimension().GetWidth())
		height := float64(page.GetDimension().GetHeight())

		block := Block{}
		for _, line := range page.GetLines() {
			layout := line.GetLayout()
			text := strings.TrimSpace(anchorText(doc.GetText(), layout.GetTextAnchor()))
			if text == "" {
				continue
			}

			var polygon []Point
			if vertices := layout.GetBoundingPoly().GetVertices(); len(vertices) > 0 {
				for _, v := range vertices {
					polygon = append(polygon, Point{X: float64(v.GetX()), Y: float64(v.GetY())})
				}
			} else {
				for _, v := range layout.GetBoundingPoly().GetNormalizedVertices() {
					polygon = append(polygon, Point{X: float64(v.GetX()) * width, Y: float64(v.GetY()) * height})
				}
			}
			block.Lines = append(block.Lines, Fragment{Text: text, BoundingPolygon: polygon})
		}
		blocks = append(blocks, block)
	}
	return blocks
}

func anchorText(text string, anchor *documentaipb.Document_TextAnchor) string {
	var sb strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start, end := seg.GetStartIndex(), seg.GetEndIndex()
		if start < 0 || end > int64(len(text)) || start > end {
			continue
		}
		sb.WriteString(text[start:end])
	}
	return sb.String()
}

// isImageMIMEType checks if the given MIME type is a supported image type
func isImageMIMEType(mimeType string) bool {
	supportedTypes := map[string]bool{
		"image/jpeg": true,
		"image/jpg":  true,
		"image/png":  true,
		"image/tiff": true,
		"image/bmp":  true,
		"image/webp": true,
	}
	return supportedTypes[mimeType]
}

// Close releases resources used by the provider
func (p *GoogleDocAIProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
