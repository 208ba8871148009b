package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Converter turns an office document into a PDF
type Converter interface {
	ConvertToPDF(ctx context.Context, filename string, content []byte) ([]byte, error)
}

// HTTPConverter posts documents to a conversion service that answers with
// the PDF bytes
type HTTPConverter struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// NewHTTPConverter creates a converter for the service at baseURL
func NewHTTPConverter(baseURL string) *HTTPConverter {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = log.WithField("component", "converter")
	return &HTTPConverter{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client}
}

func (c *HTTPConverter) ConvertToPDF(ctx context.Context, filename string, content []byte) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("error creating form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("error writing form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("error closing multipart writer: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/doc_to_pdf", body.Bytes())
	if err != nil {
		return nil, fmt.Errorf("error creating conversion request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending conversion request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading conversion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("conversion service error (%d): %s", resp.StatusCode, string(data))
	}
	return data, nil
}

// LibreOfficeConverter converts documents with a local headless LibreOffice
type LibreOfficeConverter struct {
	Binary string
}

func (c *LibreOfficeConverter) ConvertToPDF(ctx context.Context, filename string, content []byte) ([]byte, error) {
	binary := c.Binary
	if binary == "" {
		binary = "libreoffice"
	}

	dir, err := os.MkdirTemp("", "labelproof-convert-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "document"+filepath.Ext(filename))
	if err := os.WriteFile(input, content, 0o600); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, binary, "--headless", "--convert-to", "pdf", "--outdir", dir, input)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("libreoffice conversion failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return os.ReadFile(filepath.Join(dir, "document.pdf"))
}

// referenceToPDF returns content as a PDF, converting DOCX input. The
// second return value reports whether a conversion took place.
func referenceToPDF(ctx context.Context, converter Converter, filename string, content []byte, logger *logrus.Entry) ([]byte, bool, error) {
	mtype := mimetype.Detect(content)
	switch {
	case mtype.Is(mimePDF):
		return content, false, nil
	case mtype.Is(mimeDOCX):
	default:
		return nil, false, fmt.Errorf("unsupported reference document type: %s", mtype.String())
	}

	if converter == nil {
		return nil, false, fmt.Errorf("no document converter configured")
	}
	pdf, err := converter.ConvertToPDF(ctx, filename, content)
	if err != nil {
		return nil, false, err
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pages, err := api.PageCount(bytes.NewReader(pdf), conf)
	if err != nil {
		return nil, false, fmt.Errorf("converter returned an invalid PDF: %w", err)
	}
	logger.WithField("pages", pages).Debug("Converted reference document to PDF")
	return pdf, true, nil
}
