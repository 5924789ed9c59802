package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Selection is one recommended model with its priority and parameters.
type Selection struct {
	ModelID  string                 `json:"model_id"`
	Name     string                 `json:"name"`
	Selected bool                   `json:"selected"`
	Priority int                    `json:"priority"`
	Reason   string                 `json:"reason"`
	Params   map[string]interface{} `json:"params"`
}

// DataCharacteristics summarizes the inputs to model selection.
type DataCharacteristics struct {
	TrainSamples  int     `json:"train_samples"`
	TestSamples   int     `json:"test_samples"`
	TotalFeatures int     `json:"total_features"`
	HasCategorical bool   `json:"has_categorical"`
	HasMissing    bool    `json:"has_missing_values"`
	QualityScore  float64 `json:"quality_score"`
}

// Select walks the catalog for a task type and scores each model against the
// dataset: small data deselects complex models and favors fast ones, large
// data promotes complex models and demotes anything known to struggle at
// scale, baselines are always high priority and accuracy-focused models are
// promoted when quality allows. Priority 1 is highest, 3 lowest. The result
// is sorted selected-first, then by priority, catalog order breaking ties.
func Select(taskType string, dataSize, featureCount int, qualityScore float64) ([]Selection, error) {
	models, err := Models(taskType)
	if err != nil {
		return nil, err
	}

	selections := make([]Selection, 0, len(models))
	for _, m := range models {
		selected := true
		priority := 2
		var reasons []string

		switch {
		case dataSize < 100:
			if m.Complexity == "high" {
				selected = false
				reasons = append(reasons, "Dataset too small for complex model")
			} else if m.TrainingSpeed == "very_fast" || m.TrainingSpeed == "fast" {
				priority = 1
				reasons = append(reasons, "Fast training suitable for small dataset")
			}
		case dataSize < 1000:
			if m.Complexity == "low" {
				priority = 1
				reasons = append(reasons, "Simple model good for moderate dataset size")
			}
		default:
			if m.Complexity == "high" {
				priority = 1
				reasons = append(reasons, "Complex model can leverage large dataset")
			}
			if contains(m.Limitations, "Large datasets") {
				priority = 3
				reasons = append(reasons, "May be slow on large datasets")
			}
		}

		if featureCount > 100 && contains(m.BestFor, "High-dimensional data") {
			priority = min(priority, 1)
			reasons = append(reasons, "Good for high-dimensional data")
		}

		if containsFold(m.BestFor, "baseline") {
			priority = 1
			reasons = append(reasons, "Good baseline model")
		}

		if (contains(m.BestFor, "accuracy") || contains(m.BestFor, "high accuracy")) && qualityScore >= 70 {
			priority = min(priority, 1)
			reasons = append(reasons, "Known for high accuracy")
		}

		if dataSize < 5000 && contains(m.BestFor, "interpretability") {
			priority = min(priority, 2)
			reasons = append(reasons, "Provides interpretable results")
		}

		reason := "Standard model for this task type"
		if len(reasons) > 0 {
			reason = strings.Join(reasons, "; ")
		}

		params := make(map[string]interface{}, len(m.DefaultParams))
		for k, v := range m.DefaultParams {
			params[k] = v
		}

		selections = append(selections, Selection{
			ModelID:  m.ID,
			Name:     m.Name,
			Selected: selected,
			Priority: priority,
			Reason:   reason,
			Params:   params,
		})
	}

	sort.SliceStable(selections, func(i, j int) bool {
		if selections[i].Selected != selections[j].Selected {
			return selections[i].Selected
		}
		return selections[i].Priority < selections[j].Priority
	})
	return selections, nil
}

// Reasoning builds the human-readable summary attached to a selection.
func Reasoning(taskType string, dataSize, featureCount int, qualityScore float64) string {
	parts := []string{
		fmt.Sprintf("Task type: %s", taskType),
		fmt.Sprintf("Training samples: %d", dataSize),
		fmt.Sprintf("Features: %d", featureCount),
		fmt.Sprintf("Data quality score: %v/100", qualityScore),
	}
	if dataSize < 1000 {
		parts = append(parts, "Small dataset: prioritizing simple, fast models to avoid overfitting")
	} else if dataSize > 10000 {
		parts = append(parts, "Large dataset: complex ensemble models can be effective")
	}
	return strings.Join(parts, ". ")
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
