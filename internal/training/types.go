package training

import (
	"time"

	"github.com/tabml/automl-backend/internal/catalog"
	"github.com/tabml/automl-backend/internal/preprocess"
)

// PreprocessingDoc is the stage document stored on a project after
// preprocessing.
type PreprocessingDoc struct {
	ProcessedAt  time.Time         `json:"processed_at"`
	ProcessedID  string            `json:"processed_id"`
	Config       *preprocess.Plan  `json:"config"`
	Stats        preprocess.Stats  `json:"stats"`
	FeatureNames []string          `json:"feature_names"`
	SampleData   SampleData        `json:"sample_data"`
}

// SampleData holds split shapes and a small train preview.
type SampleData struct {
	XTrainShape   []int                `json:"x_train_shape,omitempty"`
	XTestShape    []int                `json:"x_test_shape,omitempty"`
	XValShape     []int                `json:"x_val_shape,omitempty"`
	XTrainPreview []map[string]float64 `json:"x_train_preview,omitempty"`
}

// SelectionDoc is the stage document stored after model selection.
type SelectionDoc struct {
	ProjectID           string                      `json:"project_id"`
	TaskType            string                      `json:"task_type"`
	RecommendedModels   []catalog.Selection         `json:"recommended_models"`
	SelectionReasoning  string                      `json:"selection_reasoning"`
	DataCharacteristics catalog.DataCharacteristics `json:"data_characteristics"`
	UpdatedAt           time.Time                   `json:"updated_at,omitempty"`
}

// ModelResult is the outcome for one trained candidate.
type ModelResult struct {
	ModelID    string                 `json:"model_id"`
	ModelName  string                 `json:"model_name"`
	Status     string                 `json:"status"`
	Metrics    map[string]float64     `json:"metrics,omitempty"`
	ModelPath  string                 `json:"model_path,omitempty"`
	ParamsUsed map[string]interface{} `json:"params_used,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Iteration  int                    `json:"iteration,omitempty"`
	TrainedAt  time.Time              `json:"trained_at"`
}

// TrainingDoc is the stage document stored after training.
type TrainingDoc struct {
	CompletedAt      time.Time     `json:"completed_at"`
	ModelsTrained    int           `json:"models_trained"`
	ModelsSuccessful int           `json:"models_successful"`
	Iterations       int           `json:"iterations,omitempty"`
	BestModel        *ModelResult  `json:"best_model"`
	AllResults       []ModelResult `json:"all_results"`
}

// Progress is the live training progress document.
type Progress struct {
	TotalModels     int    `json:"total_models"`
	CompletedModels int    `json:"completed_models"`
	CurrentModel    string `json:"current_model,omitempty"`
	Status          string `json:"status"`
}

// WorkflowEntry is one step record in the automated build log.
type WorkflowEntry struct {
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PrimaryMetric returns the score used to rank candidates: weighted F1 for
// classification, R2 for regression. Missing metrics rank lowest.
func PrimaryMetric(metrics map[string]float64, taskType string) float64 {
	if metrics == nil {
		return -1e9
	}
	if taskType == "classification" {
		if v, ok := metrics["f1_score"]; ok {
			return v
		}
		if v, ok := metrics["accuracy"]; ok {
			return v
		}
		return -1e9
	}
	if v, ok := metrics["r2_score"]; ok {
		return v
	}
	return -1e9
}
