// Package pipeline wires segmentation, OCR and extraction into the label
// and reference-document pipelines.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"labelproof/internal/constants"
	"labelproof/internal/extract"
	"labelproof/internal/record"
)

var log = logrus.New()

// SetLogLevel sets the logging level for the pipeline package
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

// Prompts names the prompt templates used by the pipelines.
type Prompts struct {
	Label     string
	Nutrition string
	Reference string
}

// DefaultPrompts are the prompt file names written on first start.
var DefaultPrompts = Prompts{
	Label:     "proofreading_prompt_template.txt",
	Nutrition: "proofreading_prompt_template(nutrition).txt",
	Reference: "reference_prompt_template.txt",
}

// Orchestrator runs the two label extractions concurrently on a pool of
// two workers and merges their records.
type Orchestrator struct {
	extractor *extract.Extractor
	prompts   *extract.PromptStore
	names     Prompts
	data      extract.PromptData
	vocab     constants.Vocabulary
}

// NewOrchestrator creates an Orchestrator. data is passed to both prompt
// templates.
func NewOrchestrator(extractor *extract.Extractor, prompts *extract.PromptStore, names Prompts, data extract.PromptData, vocab constants.Vocabulary) *Orchestrator {
	return &Orchestrator{
		extractor: extractor,
		prompts:   prompts,
		names:     names,
		data:      data,
		vocab:     vocab,
	}
}

// ExtractCombined extracts the main label text and the nutrition-table text
// in parallel. The nutrition record gets a header marker under
// vocab.NutritionSection / vocab.PerHundredKey telling whether the table
// OCR text contains the expected column header. The result is the main
// record shallow-merged with the nutrition record; on key collisions the
// nutrition record wins. If either task fails its error is returned and
// nothing is merged.
func (o *Orchestrator) ExtractCombined(ctx context.Context, mainText, nutritionText string) (*record.Record, error) {
	var main, nutrition *record.Record

	var g errgroup.Group
	g.SetLimit(2)
	g.Go(func() error {
		rec, err := o.runTask(ctx, "main", o.names.Label, mainText)
		main = rec
		return err
	})
	g.Go(func() error {
		rec, err := o.runTask(ctx, "nutrition", o.names.Nutrition, nutritionText)
		nutrition = rec
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	o.markNutritionHeader(nutrition, strings.Contains(nutritionText, o.vocab.NutritionHeaderPhrase))

	merged := record.New()
	merged.Merge(main)
	merged.Merge(nutrition)
	return merged, nil
}

func (o *Orchestrator) runTask(ctx context.Context, task, promptName, text string) (*record.Record, error) {
	logger := log.WithField("task", task)
	logger.Debug("Starting extraction task")

	prompt, err := o.prompts.Render(promptName, o.data)
	if err != nil {
		return nil, fmt.Errorf("%s task: %w", task, err)
	}
	rec, err := o.extractor.Extract(ctx, prompt, text, nil)
	if err != nil {
		logger.WithError(err).Warn("Extraction task failed")
		return nil, fmt.Errorf("%s task: %w", task, err)
	}
	logger.WithField("keys", rec.Len()).Debug("Extraction task finished")
	return rec, nil
}

// markNutritionHeader writes the header marker into the per-100g
// sub-record, creating the section or sub-record when absent. An existing
// non-record value is replaced.
func (o *Orchestrator) markNutritionHeader(nutrition *record.Record, present bool) {
	marker := record.Marker("false")
	if present {
		marker = record.Marker("true")
	}

	section, ok := nutrition.Record(o.vocab.NutritionSection)
	if !ok {
		section = record.New()
		nutrition.Set(o.vocab.NutritionSection, section)
	}
	sub, ok := section.Record(o.vocab.PerHundredKey)
	if !ok {
		sub = record.New()
		section.Set(o.vocab.PerHundredKey, sub)
	}
	sub.Set(constants.MarkerKey, marker)
}
