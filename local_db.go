package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	statusPending   = "pending"
	statusCompleted = "completed"
)

// Verification represents the schema of the verifications table
type Verification struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:255;not null" json:"verification_name"`

	// Reference document as uploaded (docx or pdf) and its converted PDF
	ReferencePath     string `json:"-"`
	ReferenceFilename string `gorm:"size:255" json:"reference_filename"`
	ReferenceHash     string `gorm:"size:64" json:"reference_hash"`
	PDFAvailable      bool   `gorm:"not null;default:false" json:"pdf_available"`

	// Label photo and the part of it handed to OCR
	ImagePath     string `json:"-"`
	ImageFilename string `gorm:"size:255" json:"image_filename"`
	ImageHash     string `gorm:"size:64" json:"image_hash"`
	OCRScope      string `gorm:"size:255;not null;default:full" json:"ocr_scope"`

	// Extracted records and the inputs they were produced from
	ReferenceJSON   string `gorm:"size:1048576" json:"-"`
	ReferenceSource string `gorm:"size:64" json:"-"`
	ObservedJSON    string `gorm:"size:1048576" json:"-"`
	ObservedSource  string `gorm:"size:320" json:"-"`
	DifferencesJSON string `gorm:"size:1048576" json:"-"`

	// Outcome recorded when a side's current input cannot produce a record
	ReferenceOutcome string `gorm:"size:65536" json:"-"`
	ObservedOutcome  string `gorm:"size:65536" json:"-"`

	Status    string    `gorm:"size:16;not null;default:pending" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrVerificationNotFound is returned when no verification has the given ID
var ErrVerificationNotFound = errors.New("verification not found")

// errInputsChanged means an upload replaced the input a result was computed
// from before the result could be stored
var errInputsChanged = errors.New("verification inputs changed during processing")

// InitializeDB opens the configured database and migrates the schema
func InitializeDB(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "", "sqlite":
		if dsn == "" {
			// Ensure db directory exists
			dbDir := "db"
			if err := os.MkdirAll(dbDir, os.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create db directory: %w", err)
			}
			dsn = filepath.Join(dbDir, "verifications.db")
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("DB_DSN is required for the postgres driver")
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Migrate the schema (create the table if it doesn't exist)
	if err := db.AutoMigrate(&Verification{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}
	return db, nil
}

// CreateVerification inserts a new pending verification
func CreateVerification(db *gorm.DB, name string) (*Verification, error) {
	v := &Verification{Name: name, OCRScope: "full", Status: statusPending}
	if err := db.Create(v).Error; err != nil {
		return nil, err
	}
	return v, nil
}

// GetVerification retrieves a verification by ID
func GetVerification(db *gorm.DB, id uint) (*Verification, error) {
	var v Verification
	err := db.First(&v, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVerificationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVerifications returns all verifications, newest first
func ListVerifications(db *gorm.DB) ([]Verification, error) {
	var records []Verification
	result := db.Order("created_at desc").Order("id desc").Find(&records)
	return records, result.Error
}

// UpdateVerificationInputs writes the uploaded file columns of v and leaves
// the extracted records alone. When invalidate is set the stored difference
// report is dropped and the verification goes back to pending.
func UpdateVerificationInputs(db *gorm.DB, v *Verification, invalidate bool) error {
	columns := []string{"ReferencePath", "ReferenceFilename", "ReferenceHash", "ImagePath", "ImageFilename", "ImageHash", "OCRScope"}
	if invalidate {
		v.DifferencesJSON = ""
		v.Status = statusPending
		columns = append(columns, "DifferencesJSON", "Status")
	}
	result := db.Model(v).Select(columns).Updates(v)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVerificationNotFound
	}
	return nil
}

// UpdateVerificationResult writes values only while the row still matches
// guard, so a result computed from replaced inputs is never stored.
func UpdateVerificationResult(db *gorm.DB, id uint, guard, values map[string]any) error {
	result := db.Model(&Verification{}).Where("id = ?", id).Where(guard).Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errInputsChanged
	}
	return nil
}

// RenameVerification updates the name of a verification
func RenameVerification(db *gorm.DB, id uint, name string) error {
	result := db.Model(&Verification{}).Where("id = ?", id).Update("name", name)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVerificationNotFound
	}
	return nil
}

// DeleteVerification removes a verification row
func DeleteVerification(db *gorm.DB, id uint) error {
	result := db.Delete(&Verification{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVerificationNotFound
	}
	return nil
}
