package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelproof/internal/constants"
	"labelproof/internal/extract"
	"labelproof/internal/record"
	"labelproof/internal/segment"
	"labelproof/ocr"
)

// routingOracle answers according to the prompt prefix and tracks concurrency
type routingOracle struct {
	mu        sync.Mutex
	answers   map[string]string
	failures  map[string]error
	delay     time.Duration
	inFlight  int
	maxFlight int
	answered  []string
}

func (o *routingOracle) Complete(_ context.Context, prompt string) (string, error) {
	o.mu.Lock()
	o.inFlight++
	if o.inFlight > o.maxFlight {
		o.maxFlight = o.inFlight
	}
	o.mu.Unlock()

	time.Sleep(o.delay)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.inFlight--
	for prefix, err := range o.failures {
		if strings.HasPrefix(prompt, prefix) {
			return "", err
		}
	}
	for prefix, answer := range o.answers {
		if strings.HasPrefix(prompt, prefix) {
			o.answered = append(o.answered, prefix)
			return answer, nil
		}
	}
	return "", errors.New("unexpected prompt")
}

func promptStore(t *testing.T) *extract.PromptStore {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		DefaultPrompts.Label:     "MAIN:",
		DefaultPrompts.Nutrition: "NUTRITION:",
		DefaultPrompts.Reference: "REFERENCE({{.Language}}):",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return extract.NewPromptStore(dir)
}

const (
	mainAnswer      = `{"品名":{"content":"餅乾","title_valid":true},"營養標示":{"from":"main"}}`
	nutritionAnswer = `{"營養標示":{"熱量":{"每份":"100大卡","每100公克":"500大卡"}}}`
)

func newOrchestrator(t *testing.T, oracle extract.Oracle) *Orchestrator {
	return NewOrchestrator(extract.New(oracle), promptStore(t), DefaultPrompts,
		extract.PromptData{Language: "zh-Hant"}, constants.TraditionalChinese)
}

func TestExtractCombined(t *testing.T) {
	oracle := &routingOracle{
		answers: map[string]string{"MAIN:": mainAnswer, "NUTRITION:": nutritionAnswer},
		delay:   20 * time.Millisecond,
	}
	o := newOrchestrator(t, oracle)

	merged, err := o.ExtractCombined(context.Background(), "品名:餅乾", "營養標示\n每份 每100公克\n熱量")
	require.NoError(t, err)

	assert.Equal(t, []string{"品名", "營養標示"}, merged.Keys())
	section, ok := merged.Record("營養標示")
	require.True(t, ok)
	_, hasMainKey := section.Get("from")
	assert.False(t, hasMainKey, "nutrition record wins on key collision")

	per100, ok := section.Record("每100公克")
	require.True(t, ok)
	marker, _ := per100.Get(constants.MarkerKey)
	assert.Equal(t, record.Marker("true"), marker)

	assert.Equal(t, 2, oracle.maxFlight, "both tasks should run concurrently")
}

func TestExtractCombinedHeaderMissing(t *testing.T) {
	oracle := &routingOracle{
		answers: map[string]string{"MAIN:": `{"品名":{"content":"x"}}`, "NUTRITION:": `{}`},
	}
	merged, err := newOrchestrator(t, oracle).ExtractCombined(context.Background(), "main", "no header here")
	require.NoError(t, err)

	section, ok := merged.Record("營養標示")
	require.True(t, ok)
	per100, ok := section.Record("每100公克")
	require.True(t, ok)
	marker, _ := per100.Get(constants.MarkerKey)
	assert.Equal(t, record.Marker("false"), marker)
}

func TestExtractCombinedFailure(t *testing.T) {
	oracle := &routingOracle{
		answers:  map[string]string{"MAIN:": mainAnswer},
		failures: map[string]error{"NUTRITION:": errors.New("timeout")},
		delay:    10 * time.Millisecond,
	}
	merged, err := newOrchestrator(t, oracle).ExtractCombined(context.Background(), "a", "b")
	assert.Nil(t, merged)
	require.Error(t, err)
	assert.True(t, errors.Is(err, extract.ErrOracleUnavailable))
	assert.Contains(t, err.Error(), "nutrition task")
	assert.Equal(t, []string{"MAIN:"}, oracle.answered, "the other task still runs to completion")
}

// fakeOCR returns the table text for images narrower than the label
type fakeOCR struct {
	labelWidth int
	main       []ocr.Block
	table      []ocr.Block
}

func (f *fakeOCR) Recognize(_ context.Context, data []byte) (*ocr.Result, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if img.Bounds().Dx() < f.labelWidth {
		return &ocr.Result{Blocks: f.table}, nil
	}
	return &ocr.Result{Blocks: f.main}, nil
}

type fakeDetector struct {
	regions []segment.Region
}

func (f *fakeDetector) Detect(context.Context, []byte) ([]segment.Region, error) {
	return f.regions, nil
}

func line(text string, y float64) ocr.Fragment {
	return ocr.Fragment{Text: text, BoundingPolygon: []ocr.Point{{X: 0, Y: y}, {X: 10, Y: y}}}
}

func labelImage() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 60, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 60; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

var tableRegion = segment.Region{
	LeftTop:     segment.Point{X: 30, Y: 5},
	RightTop:    segment.Point{X: 55, Y: 5},
	RightBottom: segment.Point{X: 55, Y: 35},
	LeftBottom:  segment.Point{X: 30, Y: 35},
}

func TestLabelPipeline(t *testing.T) {
	oracle := &routingOracle{
		answers: map[string]string{"MAIN:": mainAnswer, "NUTRITION:": nutritionAnswer},
	}
	ocrProvider := &fakeOCR{
		labelWidth: 60,
		main:       []ocr.Block{{Lines: []ocr.Fragment{line("品名:餅乾", 10)}}},
		table:      []ocr.Block{{Lines: []ocr.Fragment{line("每份", 5), line("每100公克", 6)}}},
	}
	tmpl, err := record.ParseTemplate([]byte(`{"品名":{"content":""},"營養標示":{"每100公克":{"title_valid":""}}}`))
	require.NoError(t, err)

	p := NewLabelPipeline(
		segment.New(&fakeDetector{regions: []segment.Region{tableRegion}}),
		ocrProvider,
		newOrchestrator(t, oracle),
		tmpl,
		constants.TraditionalChinese.SectionMarkers,
	)

	rec, err := p.Run(context.Background(), labelImage())
	require.NoError(t, err)
	assert.Equal(t, []string{"品名", "營養標示"}, rec.Keys())

	img, err := DecodeImage(labelImage())
	require.NoError(t, err)
	texts, err := p.Recognize(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, "每份 每100公克", texts.Nutrition)
	assert.Equal(t, "品名:餅乾", texts.Main)
}

func TestLabelPipelineOutcomes(t *testing.T) {
	oracle := &routingOracle{
		answers: map[string]string{"MAIN:": mainAnswer, "NUTRITION:": nutritionAnswer},
	}
	ocrProvider := &fakeOCR{
		labelWidth: 60,
		main:       []ocr.Block{{Lines: []ocr.Fragment{line("品名:餅乾", 10)}}},
	}

	t.Run("no table", func(t *testing.T) {
		p := NewLabelPipeline(segment.New(&fakeDetector{}), ocrProvider, newOrchestrator(t, oracle), nil, nil)
		_, err := p.Run(context.Background(), labelImage())
		assert.ErrorIs(t, err, ErrNoTableDetected)
	})

	t.Run("corrupt image", func(t *testing.T) {
		p := NewLabelPipeline(segment.New(&fakeDetector{}), ocrProvider, newOrchestrator(t, oracle), nil, nil)
		_, err := p.Run(context.Background(), []byte("not an image"))
		assert.ErrorIs(t, err, ErrImageDecode)
	})

	t.Run("empty table text", func(t *testing.T) {
		p := NewLabelPipeline(segment.New(&fakeDetector{regions: []segment.Region{tableRegion}}), ocrProvider, newOrchestrator(t, oracle), nil, nil)
		_, err := p.Run(context.Background(), labelImage())
		assert.ErrorIs(t, err, ErrNoText)
	})

	t.Run("merged record fails template", func(t *testing.T) {
		full := &fakeOCR{labelWidth: 60, main: ocrProvider.main, table: []ocr.Block{{Lines: []ocr.Fragment{line("熱量", 5)}}}}
		tmpl, err := record.ParseTemplate([]byte(`{"原料":{"content":""}}`))
		require.NoError(t, err)
		p := NewLabelPipeline(segment.New(&fakeDetector{regions: []segment.Region{tableRegion}}), full, newOrchestrator(t, oracle), tmpl, nil)
		_, err = p.Run(context.Background(), labelImage())
		require.Error(t, err)
		assert.True(t, errors.Is(err, extract.ErrSchemaMismatch))
	})
}

func TestReferencePipeline(t *testing.T) {
	tmpl, err := record.ParseTemplate([]byte(`{"品名":{"content":""},"營養標示":{"熱量":{"每份":""}}}`))
	require.NoError(t, err)

	tests := []struct {
		name    string
		text    string
		answer  string
		wantErr error
	}{
		{
			name:   "complete",
			text:   "品名：餅乾",
			answer: `{"品名":{"content":"餅乾"},"營養標示":{"熱量":{"每份":"100大卡"}}}`,
		},
		{
			name:    "empty document",
			text:    "   ",
			wantErr: ErrEmptyDocument,
		},
		{
			name:    "missing content",
			text:    "品名：",
			answer:  `{"品名":{"content":""},"營養標示":{"熱量":{"每份":"100大卡"}}}`,
			wantErr: extract.ErrMissingContent,
		},
		{
			name:    "template mismatch",
			text:    "品名：餅乾",
			answer:  `{"品名":{"content":"餅乾"}}`,
			wantErr: extract.ErrSchemaMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := &routingOracle{answers: map[string]string{"REFERENCE(zh-Hant):": tt.answer}}
			p := NewReferencePipeline(extract.New(oracle), promptStore(t), DefaultPrompts.Reference,
				extract.PromptData{Language: "zh-Hant"}, tmpl, constants.TraditionalChinese.NumericKeys)

			rec, err := p.RunText(context.Background(), tt.text)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"品名", "營養標示"}, rec.Keys())
		})
	}
}

func TestPDFTextRejectsInvalid(t *testing.T) {
	_, err := PDFText([]byte("%PDF-1.4 garbage"))
	assert.Error(t, err)
}
