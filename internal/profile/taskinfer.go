package profile

import (
	"sort"
	"strings"

	"github.com/tabml/automl-backend/internal/tabular"
)

// TargetCandidate is a column scored as a likely prediction target.
type TargetCandidate struct {
	Column        string  `json:"column"`
	UniqueValues  int     `json:"unique_values"`
	Score         float64 `json:"score"`
	SuggestedTask string  `json:"suggested_task,omitempty"`
}

// TaskDetection is the outcome of task type inference.
type TaskDetection struct {
	TaskType         string             `json:"task_type"`
	Confidence       float64            `json:"confidence"`
	Scores           map[string]float64 `json:"scores"`
	TargetCandidates []TargetCandidate  `json:"target_candidates"`
}

var (
	classificationKeywords = []string{"classify", "classification", "predict if", "spam", "fraud", "churn", "category", "class", "label", "yes/no", "true/false", "binary"}
	regressionKeywords     = []string{"predict", "price", "amount", "value", "forecast", "regression", "continuous", "how much", "estimate"}
	clusteringKeywords     = []string{"segment", "cluster", "group", "similar", "pattern", "anomaly", "outlier"}

	targetNameHints = []string{"target", "label", "class", "output", "y", "result"}
)

// detectTask scores classification, regression and clustering against the
// project description and the shape of each column, then picks the highest
// scoring task and the top target candidates.
func detectTask(t *tabular.Table, columns []ColumnProfile, description string) TaskDetection {
	desc := strings.ToLower(description)
	scores := map[string]float64{"classification": 0, "regression": 0, "clustering": 0}

	for _, kw := range classificationKeywords {
		if strings.Contains(desc, kw) {
			scores["classification"] += 2
		}
	}
	for _, kw := range regressionKeywords {
		if strings.Contains(desc, kw) {
			scores["regression"] += 2
		}
	}
	for _, kw := range clusteringKeywords {
		if strings.Contains(desc, kw) {
			scores["clustering"] += 2
		}
	}

	var candidates []TargetCandidate
	for i, col := range t.Columns {
		cells := t.Data[i]
		uniqueCount := tabular.UniqueCount(cells)
		uniqueRatio := 0.0
		if len(cells) > 0 {
			uniqueRatio = float64(uniqueCount) / float64(len(cells))
		}
		numeric := tabular.IsNumericDType(tabular.DType(columns[i].DType))

		cand := TargetCandidate{Column: col, UniqueValues: uniqueCount}
		lower := strings.ToLower(col)
		for _, hint := range targetNameHints {
			if strings.Contains(lower, hint) {
				cand.Score += 3
				break
			}
		}

		switch {
		case uniqueCount == 2:
			cand.Score += 2
			cand.SuggestedTask = "classification"
			scores["classification"]++
		case uniqueCount <= 10 && !numeric:
			cand.Score++
			cand.SuggestedTask = "classification"
			scores["classification"] += 0.5
		case numeric && uniqueRatio > 0.5:
			cand.Score++
			cand.SuggestedTask = "regression"
			scores["regression"] += 0.5
		}

		if cand.Score > 0 {
			candidates = append(candidates, cand)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > 5 {
		candidates = candidates[:5]
	}

	taskType := "clustering"
	if scores["classification"] >= scores["regression"] && scores["classification"] >= scores["clustering"] {
		taskType = "classification"
	} else if scores["regression"] >= scores["clustering"] {
		taskType = "regression"
	}

	total := scores["classification"] + scores["regression"] + scores["clustering"]
	confidence := 0.33
	if total > 0 {
		confidence = scores[taskType] / total
	}
	if confidence < 0.3 {
		confidence = 0.3
	}
	if confidence > 0.95 {
		confidence = 0.95
	}

	return TaskDetection{
		TaskType:         taskType,
		Confidence:       round2(confidence),
		Scores:           scores,
		TargetCandidates: candidates,
	}
}
