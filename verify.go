package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"labelproof/internal/compare"
	"labelproof/internal/extract"
	"labelproof/internal/pipeline"
	"labelproof/internal/record"
)

// Outcome error types reported to API clients
const (
	errorTypeReferenceContentMissing = "REFERENCE_CONTENT_MISSING"
	errorTypeNutritionTableMissing   = "NUTRITION_TABLE_MISSING"
)

// labelRunner turns a decoded label image into a record
type labelRunner interface {
	RunImage(ctx context.Context, img image.Image) (*record.Record, error)
}

// referenceRunner turns a reference PDF into a record
type referenceRunner interface {
	Run(ctx context.Context, pdf []byte) (*record.Record, error)
}

// App struct to hold dependencies
type App struct {
	Database   *gorm.DB
	Label      labelRunner
	Reference  referenceRunner
	Converter  Converter
	Comparator *compare.Comparator
	UploadPath string
	PromptsDir string
}

// VerificationOutcome is what a verification run reports to the caller.
// ErrorType is set when the run stopped on a problem with the inputs
// rather than a failure of the system.
type VerificationOutcome struct {
	Status      string          `json:"status"`
	Message     string          `json:"message"`
	Component   string          `json:"system_component,omitempty"`
	ErrorType   string          `json:"error_type,omitempty"`
	Missing     []string        `json:"missing_elements,omitempty"`
	Guidance    string          `json:"guidance,omitempty"`
	Differences *compare.Report `json:"differences,omitempty"`
}

// verificationLogger returns a logger carrying the verification ID
func verificationLogger(id uint) *logrus.Entry {
	return log.WithField("verification_id", id)
}

func fileHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// imageSourceKey identifies the input an observed record was produced from
func imageSourceKey(v *Verification) string {
	return v.ImageHash + ":" + v.OCRScope
}

func (app *App) pdfPath(id uint) string {
	return filepath.Join(app.UploadPath, "pdf", strconv.FormatUint(uint64(id), 10)+".pdf")
}

// ProcessVerification brings the stored records of a verification up to
// date with its uploaded files. A side is extracted again only when its
// input changed since its record was produced, and each side is saved as
// soon as it succeeds. Replacing either record drops the difference report,
// which is recomputed once both records exist. Results are only stored while
// the inputs they were computed from are still current.
func (app *App) ProcessVerification(ctx context.Context, id uint) (*VerificationOutcome, error) {
	logger := verificationLogger(id)

	v, err := GetVerification(app.Database, id)
	if err != nil {
		return nil, err
	}

	outcome, err := app.syncVerification(ctx, v, logger)
	if errors.Is(err, errInputsChanged) {
		logger.Info("Inputs were replaced while processing, leaving them to the next job")
		return &VerificationOutcome{Status: statusPending, Message: "Superseded by a newer upload"}, nil
	}
	return outcome, err
}

func (app *App) syncVerification(ctx context.Context, v *Verification, logger *logrus.Entry) (*VerificationOutcome, error) {
	changed := false
	if v.ReferencePath != "" {
		switch {
		case v.ReferenceSource != v.ReferenceHash:
			outcome, err := app.processReference(ctx, v, logger)
			if err != nil || outcome != nil {
				return outcome, err
			}
			changed = true
		case v.ReferenceOutcome != "":
			return storedOutcome(v.ReferenceOutcome)
		default:
			logger.Debug("Reference document unchanged, reusing stored record")
		}
	}

	if v.ImagePath != "" {
		switch {
		case v.ObservedSource != imageSourceKey(v):
			outcome, err := app.processImage(ctx, v, logger)
			if err != nil || outcome != nil {
				return outcome, err
			}
			changed = true
		case v.ObservedOutcome != "":
			return storedOutcome(v.ObservedOutcome)
		default:
			logger.Debug("Label image unchanged, reusing stored record")
		}
	}

	if v.ReferenceJSON == "" || v.ObservedJSON == "" {
		return &VerificationOutcome{Status: statusPending, Message: "Files processed"}, nil
	}

	if changed || v.DifferencesJSON == "" {
		report, err := app.compareStored(v)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(report)
		if err != nil {
			return nil, err
		}
		guard := map[string]any{
			"reference_hash":   v.ReferenceHash,
			"reference_source": v.ReferenceSource,
			"image_hash":       v.ImageHash,
			"ocr_scope":        v.OCRScope,
			"observed_source":  v.ObservedSource,
		}
		values := map[string]any{"differences_json": string(data), "status": statusCompleted}
		if err := UpdateVerificationResult(app.Database, v.ID, guard, values); err != nil {
			return nil, fmt.Errorf("failed to save differences: %w", err)
		}
		v.DifferencesJSON = string(data)
		v.Status = statusCompleted
		logger.WithFields(logrus.Fields{
			"differences":    len(report.Differences),
			"invalid_titles": len(report.InvalidTitles),
		}).Info("Verification completed")
		return &VerificationOutcome{Status: v.Status, Message: "Verification completed", Differences: report}, nil
	}

	report, err := storedReport(v)
	if err != nil {
		return nil, err
	}
	return &VerificationOutcome{Status: v.Status, Message: "Verification completed", Differences: report}, nil
}

// storedOutcome decodes an outcome recorded for an input that cannot
// produce a record
func storedOutcome(data string) (*VerificationOutcome, error) {
	var outcome VerificationOutcome
	if err := json.Unmarshal([]byte(data), &outcome); err != nil {
		return nil, fmt.Errorf("stored outcome is corrupt: %w", err)
	}
	return &outcome, nil
}

// storeReferenceResult replaces the reference side of v. Exactly one of
// data and outcome is set.
func (app *App) storeReferenceResult(v *Verification, data string, outcome *VerificationOutcome) error {
	outcomeJSON := ""
	if outcome != nil {
		encoded, err := json.Marshal(outcome)
		if err != nil {
			return err
		}
		outcomeJSON = string(encoded)
	}
	values := map[string]any{
		"reference_json":    data,
		"reference_source":  v.ReferenceHash,
		"reference_outcome": outcomeJSON,
		"pdf_available":     true,
		"differences_json":  "",
		"status":            statusPending,
	}
	if err := UpdateVerificationResult(app.Database, v.ID, map[string]any{"reference_hash": v.ReferenceHash}, values); err != nil {
		return err
	}
	v.ReferenceJSON = data
	v.ReferenceSource = v.ReferenceHash
	v.ReferenceOutcome = outcomeJSON
	v.PDFAvailable = true
	v.DifferencesJSON = ""
	v.Status = statusPending
	return nil
}

// storeObservedResult replaces the label side of v. Exactly one of data
// and outcome is set.
func (app *App) storeObservedResult(v *Verification, data string, outcome *VerificationOutcome) error {
	outcomeJSON := ""
	if outcome != nil {
		encoded, err := json.Marshal(outcome)
		if err != nil {
			return err
		}
		outcomeJSON = string(encoded)
	}
	key := imageSourceKey(v)
	values := map[string]any{
		"observed_json":    data,
		"observed_source":  key,
		"observed_outcome": outcomeJSON,
		"differences_json": "",
		"status":           statusPending,
	}
	guard := map[string]any{"image_hash": v.ImageHash, "ocr_scope": v.OCRScope}
	if err := UpdateVerificationResult(app.Database, v.ID, guard, values); err != nil {
		return err
	}
	v.ObservedJSON = data
	v.ObservedSource = key
	v.ObservedOutcome = outcomeJSON
	v.DifferencesJSON = ""
	v.Status = statusPending
	return nil
}

func (app *App) processReference(ctx context.Context, v *Verification, logger *logrus.Entry) (*VerificationOutcome, error) {
	logger = logger.WithField("side", "reference")
	logger.Info("Extracting reference document")

	content, err := os.ReadFile(v.ReferencePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference document: %w", err)
	}
	pdf, _, err := referenceToPDF(ctx, app.Converter, v.ReferenceFilename, content, logger)
	if err != nil {
		return nil, err
	}

	pdfPath := app.pdfPath(v.ID)
	if err := os.MkdirAll(filepath.Dir(pdfPath), os.ModePerm); err != nil {
		return nil, err
	}
	if err := os.WriteFile(pdfPath, pdf, 0o644); err != nil {
		return nil, fmt.Errorf("failed to store PDF: %w", err)
	}

	rec, err := app.Reference.Run(ctx, pdf)
	if err != nil {
		var xerr *extract.Error
		if errors.Is(err, extract.ErrMissingContent) && errors.As(err, &xerr) {
			logger.WithField("missing", xerr.Missing).Warn("Reference document is missing content")
			outcome := &VerificationOutcome{
				Status:    statusPending,
				Message:   "Reference document incomplete",
				Component: "reference_processing",
				ErrorType: errorTypeReferenceContentMissing,
				Missing:   xerr.Missing,
				Guidance:  "Required fields are missing in the reference document",
			}
			if err := app.storeReferenceResult(v, "", outcome); err != nil {
				return nil, fmt.Errorf("failed to save reference outcome: %w", err)
			}
			return outcome, nil
		}
		return nil, fmt.Errorf("reference extraction failed: %w", err)
	}

	data, err := rec.MarshalJSON()
	if err != nil {
		return nil, err
	}
	if err := app.storeReferenceResult(v, string(data), nil); err != nil {
		return nil, fmt.Errorf("failed to save reference record: %w", err)
	}
	logger.Info("Reference record stored")
	return nil, nil
}

func (app *App) processImage(ctx context.Context, v *Verification, logger *logrus.Entry) (*VerificationOutcome, error) {
	logger = logger.WithFields(logrus.Fields{"side": "label", "ocr_scope": v.OCRScope})
	logger.Info("Extracting label image")

	content, err := os.ReadFile(v.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read label image: %w", err)
	}
	img, err := pipeline.DecodeImage(content)
	if err != nil {
		return nil, err
	}
	img, err = cropToScope(img, v.OCRScope)
	if err != nil {
		return nil, err
	}

	rec, err := app.Label.RunImage(ctx, img)
	if errors.Is(err, pipeline.ErrNoTableDetected) {
		logger.Warn("No nutrition table detected")
		outcome := &VerificationOutcome{
			Status:    statusPending,
			Message:   "Nutrition table missing",
			Component: "image_processing",
			ErrorType: errorTypeNutritionTableMissing,
			Guidance:  "The nutrition table could not be detected in the image.",
		}
		if err := app.storeObservedResult(v, "", outcome); err != nil {
			return nil, fmt.Errorf("failed to save label outcome: %w", err)
		}
		return outcome, nil
	}
	if err != nil {
		return nil, fmt.Errorf("label extraction failed: %w", err)
	}

	data, err := rec.MarshalJSON()
	if err != nil {
		return nil, err
	}
	if err := app.storeObservedResult(v, string(data), nil); err != nil {
		return nil, fmt.Errorf("failed to save label record: %w", err)
	}
	logger.Info("Label record stored")
	return nil, nil
}

func (app *App) compareStored(v *Verification) (*compare.Report, error) {
	reference, err := record.Parse([]byte(v.ReferenceJSON))
	if err != nil {
		return nil, fmt.Errorf("stored reference record is corrupt: %w", err)
	}
	observed, err := record.Parse([]byte(v.ObservedJSON))
	if err != nil {
		return nil, fmt.Errorf("stored label record is corrupt: %w", err)
	}
	return app.Comparator.Compare(reference, observed), nil
}

// storedReport decodes the persisted difference report, nil when absent
func storedReport(v *Verification) (*compare.Report, error) {
	if v.DifferencesJSON == "" {
		return nil, nil
	}
	var raw struct {
		InvalidTitles []string                   `json:"invalid_titles"`
		Differences   map[string]json.RawMessage `json:"differences"`
	}
	if err := json.Unmarshal([]byte(v.DifferencesJSON), &raw); err != nil {
		return nil, fmt.Errorf("stored differences are corrupt: %w", err)
	}

	report := &compare.Report{InvalidTitles: raw.InvalidTitles, Differences: make(map[string]compare.Difference, len(raw.Differences))}
	for path, data := range raw.Differences {
		var sides struct {
			SourceValue   json.RawMessage `json:"source_value"`
			ObservedValue json.RawMessage `json:"observed_value"`
		}
		if err := json.Unmarshal(data, &sides); err != nil {
			return nil, fmt.Errorf("stored difference %s is corrupt: %w", path, err)
		}
		report.Differences[path] = compare.Difference{
			SourceValue:   decodeNode(sides.SourceValue),
			ObservedValue: decodeNode(sides.ObservedValue),
		}
	}
	return report, nil
}

func decodeNode(data json.RawMessage) record.Node {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return record.String(s)
	}
	if rec, err := record.Parse(data); err == nil {
		return rec
	}
	return record.Scalar{Text: string(data), Raw: append(json.RawMessage(nil), data...)}
}
