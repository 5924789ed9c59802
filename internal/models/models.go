package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProjectStatus tracks a project through the pipeline lifecycle.
type ProjectStatus string

const (
	StatusCreated             ProjectStatus = "created"
	StatusDatasetLinked       ProjectStatus = "dataset_linked"
	StatusAnalyzing           ProjectStatus = "analyzing"
	StatusAnalyzed            ProjectStatus = "analyzed"
	StatusAnalysisFailed      ProjectStatus = "analysis_failed"
	StatusPreprocessing       ProjectStatus = "preprocessing"
	StatusPreprocessed        ProjectStatus = "preprocessed"
	StatusPreprocessingFailed ProjectStatus = "preprocessing_failed"
	StatusModelGeneration     ProjectStatus = "model_generation"
	StatusTraining            ProjectStatus = "training"
	StatusIterating           ProjectStatus = "iterating"
	StatusTrained             ProjectStatus = "trained"
	StatusTrainingFailed      ProjectStatus = "training_failed"
	StatusFailed              ProjectStatus = "failed"
)

// TaskType is the kind of ML problem a project solves.
type TaskType string

const (
	TaskClassification TaskType = "classification"
	TaskRegression     TaskType = "regression"
	TaskClustering     TaskType = "clustering"
)

// DatasetCategory is the detected kind of an uploaded file.
type DatasetCategory string

const (
	CategoryTabular DatasetCategory = "tabular"
	CategoryJSON    DatasetCategory = "json"
	CategoryImage   DatasetCategory = "image"
	CategoryText    DatasetCategory = "text"
	CategoryOther   DatasetCategory = "other"
)

// JSON is a jsonb column holding an arbitrary document.
type JSON json.RawMessage

// Value implements driver.Valuer.
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner.
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = JSON(v)
	default:
		return errors.New("models: unsupported scan type for JSON")
	}
	return nil
}

// MarshalJSON passes the raw document through.
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON stores the raw document.
func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = append((*j)[0:0], data...)
	return nil
}

// MustJSON marshals v into a JSON column value. It panics only on
// unmarshalable values, which indicates a programming error.
func MustJSON(v interface{}) JSON {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("models: marshal %T: %v", v, err))
	}
	return JSON(b)
}

// Decode unmarshals the column into out. A nil column leaves out untouched
// and returns false.
func (j JSON) Decode(out interface{}) (bool, error) {
	if len(j) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(j, out); err != nil {
		return false, fmt.Errorf("models: decode json column: %w", err)
	}
	return true, nil
}

// Dataset is an uploaded data file plus its metadata. The backing blob is
// immutable once stored; deleting the dataset removes both.
type Dataset struct {
	ID             uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	Filename       string          `gorm:"not null" json:"filename"`
	StoredFilename string          `gorm:"not null" json:"stored_filename"`
	FilePath       string          `gorm:"not null" json:"file_path"`
	Size           int64           `json:"size"`
	Category       DatasetCategory `gorm:"not null;index" json:"category"`
	Status         string          `gorm:"not null;default:'uploaded'" json:"status"`
	SourceDataset  *uuid.UUID      `gorm:"type:uuid" json:"source_dataset,omitempty"`
	UploadedAt     time.Time       `json:"uploaded_at"`
}

// Project is the unit of work: one linked dataset, one pipeline run per
// stage. Re-running a stage overwrites that stage's column (no versioning).
type Project struct {
	ID           uuid.UUID     `gorm:"type:uuid;primary_key" json:"id"`
	Name         string        `gorm:"not null;index" json:"name"`
	Description  string        `json:"description"`
	DataSource   string        `json:"data_source"`
	Status       ProjectStatus `gorm:"not null;index" json:"status"`
	DatasetID    *uuid.UUID    `gorm:"type:uuid;index" json:"dataset_id,omitempty"`
	TargetColumn string        `json:"target_column,omitempty"`
	TaskType     TaskType      `gorm:"index" json:"task_type,omitempty"`

	// Stage outputs. Each holds the latest run's document.
	AnalysisResults      JSON `gorm:"type:jsonb" json:"analysis_results,omitempty"`
	PreprocessingConfig  JSON `gorm:"type:jsonb" json:"preprocessing_config,omitempty"`
	PreprocessingResults JSON `gorm:"type:jsonb" json:"preprocessing_results,omitempty"`
	ModelSelection       JSON `gorm:"type:jsonb" json:"model_selection,omitempty"`
	TrainingResults      JSON `gorm:"type:jsonb" json:"training_results,omitempty"`
	TrainingProgress     JSON `gorm:"type:jsonb" json:"training_progress,omitempty"`
	WorkflowLog          JSON `gorm:"type:jsonb" json:"workflow_log,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasAnalysis reports whether the analysis stage has produced output.
func (p *Project) HasAnalysis() bool { return len(p.AnalysisResults) > 0 }

// HasPreprocessing reports whether a preprocessing artifact exists.
func (p *Project) HasPreprocessing() bool { return len(p.PreprocessingResults) > 0 }

// HasModelSelection reports whether models have been selected.
func (p *Project) HasModelSelection() bool { return len(p.ModelSelection) > 0 }

// HasTrainingResults reports whether training has produced output.
func (p *Project) HasTrainingResults() bool { return len(p.TrainingResults) > 0 }
