package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"labelproof/internal/extract"
	"labelproof/internal/record"
)

// ErrEmptyDocument means the reference PDF contains no extractable text.
var ErrEmptyDocument = errors.New("reference document has no text")

// ReferencePipeline turns a reference PDF into a structured record.
type ReferencePipeline struct {
	extractor   *extract.Extractor
	prompts     *extract.PromptStore
	promptName  string
	data        extract.PromptData
	template    *record.Template
	numericKeys []string
}

// NewReferencePipeline creates a ReferencePipeline. The extracted record
// must conform to template and have no empty content or numeric fields.
func NewReferencePipeline(extractor *extract.Extractor, prompts *extract.PromptStore, promptName string, data extract.PromptData, template *record.Template, numericKeys []string) *ReferencePipeline {
	return &ReferencePipeline{
		extractor:   extractor,
		prompts:     prompts,
		promptName:  promptName,
		data:        data,
		template:    template,
		numericKeys: numericKeys,
	}
}

// Run extracts the text of pdf and converts it into a record.
func (p *ReferencePipeline) Run(ctx context.Context, pdf []byte) (*record.Record, error) {
	text, err := PDFText(pdf)
	if err != nil {
		return nil, err
	}
	return p.RunText(ctx, text)
}

// RunText converts already extracted document text into a record.
func (p *ReferencePipeline) RunText(ctx context.Context, text string) (*record.Record, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}

	prompt, err := p.prompts.Render(p.promptName, p.data)
	if err != nil {
		return nil, err
	}
	rec, err := p.extractor.Extract(ctx, prompt, text, p.template)
	if err != nil {
		return nil, err
	}
	if err := extract.RequireContent(rec, p.numericKeys); err != nil {
		return nil, err
	}
	return rec, nil
}

// PDFText validates pdf and returns the text of all pages in order.
func PDFText(pdf []byte) (string, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(pdf), conf); err != nil {
		return "", fmt.Errorf("invalid PDF: %w", err)
	}

	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	defer doc.Close()

	var sb strings.Builder
	for n := 0; n < doc.NumPage(); n++ {
		text, err := doc.Text(n)
		if err != nil {
			return "", fmt.Errorf("extract text of page %d: %w", n+1, err)
		}
		sb.WriteString(text)
	}
	log.WithField("pages", doc.NumPage()).Debug("Extracted PDF text")
	return sb.String(), nil
}
