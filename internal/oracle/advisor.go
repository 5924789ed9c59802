package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DataSummary is the compact dataset description sent in analysis prompts.
type DataSummary struct {
	Rows          int               `json:"rows"`
	Columns       []string          `json:"columns"`
	DTypes        map[string]string `json:"dtypes"`
	MissingCounts map[string]int    `json:"missing_counts"`
}

// PreprocessingStep is one recommended transformation.
type PreprocessingStep struct {
	Step    string   `json:"step"`
	Columns []string `json:"columns"`
	Method  string   `json:"method"`
}

// AnalysisAdvice is the structured reply to an analysis prompt.
type AnalysisAdvice struct {
	TaskType           string              `json:"task_type"`
	TargetColumn       string              `json:"target_column"`
	Reasoning          string              `json:"reasoning"`
	PreprocessingSteps []PreprocessingStep `json:"preprocessing_steps"`
	RecommendedModels  []string            `json:"recommended_models"`
}

// ModelProposal is the structured reply to an improvement prompt. The model
// id must come from the catalog offered in the prompt.
type ModelProposal struct {
	ModelID string                 `json:"model_id"`
	Params  map[string]interface{} `json:"params"`
	Reason  string                 `json:"reason"`
}

// Advisor wraps a completion client with typed prompts and parsing.
type Advisor struct {
	client Client
	log    *zap.Logger
}

// NewAdvisor creates an advisor. A nil client disables it.
func NewAdvisor(client Client, log *zap.Logger) *Advisor {
	return &Advisor{client: client, log: log}
}

// Enabled reports whether a completion client is configured.
func (a *Advisor) Enabled() bool { return a != nil && a.client != nil }

// AdviseAnalysis asks for a target column, task type and preprocessing
// recommendations for a dataset.
func (a *Advisor) AdviseAnalysis(ctx context.Context, summary DataSummary, goal string) (*AnalysisAdvice, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this dataset for machine learning.\n\n")
	fmt.Fprintf(&b, "User Goal: %s\n\n", goal)
	fmt.Fprintf(&b, "Dataset: %d rows, %d columns\n", summary.Rows, len(summary.Columns))
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(summary.Columns, ", "))
	fmt.Fprintf(&b, "Types: %s\n", compactJSON(summary.DTypes))
	fmt.Fprintf(&b, "Missing: %s\n\n", compactJSON(summary.MissingCounts))
	b.WriteString(`Return JSON with:
{
  "task_type": "classification or regression",
  "target_column": "column_name",
  "reasoning": "why this is the target",
  "preprocessing_steps": [
    {"step": "handle_missing", "columns": ["col1"], "method": "median"},
    {"step": "encode_categorical", "columns": ["col2"], "method": "onehot"},
    {"step": "scale_features", "columns": ["col3"], "method": "standard"}
  ],
  "recommended_models": ["model1", "model2"]
}

Only JSON:`)

	text, err := a.client.Complete(ctx, b.String())
	if err != nil {
		return nil, err
	}
	advice := &AnalysisAdvice{}
	if err := json.Unmarshal([]byte(ExtractJSON(text)), advice); err != nil {
		return nil, fmt.Errorf("parse analysis advice: %w", err)
	}
	if advice.TaskType != "classification" && advice.TaskType != "regression" {
		return nil, fmt.Errorf("analysis advice has unusable task type %q", advice.TaskType)
	}
	a.log.Info("analysis advice received",
		zap.String("task_type", advice.TaskType),
		zap.String("target_column", advice.TargetColumn))
	return advice, nil
}

// ProposeModel asks for a better candidate than the current best, limited
// to the offered catalog ids.
func (a *Advisor) ProposeModel(ctx context.Context, taskType string, availableIDs []string, currentModel string, currentScore float64, metrics map[string]float64) (*ModelProposal, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Improve this %s model.\n\n", taskType)
	fmt.Fprintf(&b, "Current: %s\n", currentModel)
	fmt.Fprintf(&b, "Score: %v\n", currentScore)
	fmt.Fprintf(&b, "Metrics: %s\n\n", compactJSON(metrics))
	fmt.Fprintf(&b, "Choose a model_id from this list only: %s\n", strings.Join(availableIDs, ", "))
	b.WriteString(`Try a different algorithm or better hyperparameters.

Return JSON with:
{"model_id": "one of the listed ids", "params": {"param": value}, "reason": "why this should do better"}

Only JSON:`)

	text, err := a.client.Complete(ctx, b.String())
	if err != nil {
		return nil, err
	}
	proposal := &ModelProposal{}
	if err := json.Unmarshal([]byte(ExtractJSON(text)), proposal); err != nil {
		return nil, fmt.Errorf("parse model proposal: %w", err)
	}
	for _, id := range availableIDs {
		if proposal.ModelID == id {
			a.log.Info("model proposal received",
				zap.String("model_id", proposal.ModelID),
				zap.String("reason", proposal.Reason))
			return proposal, nil
		}
	}
	return nil, fmt.Errorf("model proposal %q is not in the offered catalog", proposal.ModelID)
}

// compactJSON renders prompt fragments; map keys marshal in sorted order,
// so prompts are stable across runs.
func compactJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
