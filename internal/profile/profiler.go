// Package profile analyzes an uploaded dataset: per-column statistics and
// semantic typing, an overall quality score, detected issues, preprocessing
// suggestions and task type inference with target candidates.
package profile

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/tabml/automl-backend/internal/tabular"
)

// SemanticType classifies what a column holds, independent of storage type.
type SemanticType string

const (
	SemanticNumeric     SemanticType = "numeric"
	SemanticCategorical SemanticType = "categorical"
	SemanticText        SemanticType = "text"
	SemanticDatetime    SemanticType = "datetime"
)

// ColumnProfile is the per-column analysis result.
type ColumnProfile struct {
	Name         string       `json:"name"`
	DType        string       `json:"dtype"`
	MissingCount int          `json:"missing_count"`
	MissingPct   float64      `json:"missing_pct"`
	UniqueCount  int          `json:"unique_count"`
	UniquePct    float64      `json:"unique_pct"`
	SemanticType SemanticType `json:"semantic_type"`

	// Numeric columns only.
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Mean        *float64 `json:"mean,omitempty"`
	Std         *float64 `json:"std,omitempty"`
	Median      *float64 `json:"median,omitempty"`
	OutlierCnt  *int     `json:"outlier_count,omitempty"`
	OutlierPct  *float64 `json:"outlier_pct,omitempty"`

	// Datetime columns only.
	MinTime string `json:"min_time,omitempty"`
	MaxTime string `json:"max_time,omitempty"`

	// Categorical columns only.
	TopValues []tabular.ValueCount `json:"top_values,omitempty"`

	// Text columns only.
	AvgLength *float64 `json:"avg_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
}

// Issue is one detected data problem.
type Issue struct {
	Type       string `json:"type"`
	Severity   string `json:"severity"`
	Column     string `json:"column,omitempty"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}

// Suggestion is one actionable improvement recommendation.
type Suggestion struct {
	Type        string   `json:"type"`
	Priority    string   `json:"priority"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Columns     []string `json:"columns"`
}

// IssueSummary counts issues per severity.
type IssueSummary struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Report is the full analysis result stored on a project.
type Report struct {
	AnalyzedAt       time.Time         `json:"analyzed_at"`
	TaskType         string            `json:"task_type"`
	TaskConfidence   float64           `json:"task_confidence"`
	DataQualityScore float64           `json:"data_quality_score"`
	TotalRows        int               `json:"total_rows"`
	TotalColumns     int               `json:"total_columns"`
	ColumnAnalysis   []ColumnProfile   `json:"column_analysis"`
	TargetCandidates []TargetCandidate `json:"target_candidates"`
	Issues           []Issue           `json:"issues"`
	Suggestions      []Suggestion      `json:"suggestions"`
	IssueSummary     IssueSummary      `json:"issue_summary"`
}

// Profiler runs dataset analysis.
type Profiler struct {
	log *zap.Logger
}

// New creates a profiler.
func New(log *zap.Logger) *Profiler {
	return &Profiler{log: log}
}

// Analyze profiles every column, infers the task type from the data and the
// project description, scores data quality and collects issues and
// suggestions.
func (p *Profiler) Analyze(t *tabular.Table, description string) *Report {
	columns := make([]ColumnProfile, 0, t.NumCols())
	for i, name := range t.Columns {
		columns = append(columns, profileColumn(name, t.Data[i]))
	}

	detection := detectTask(t, columns, description)
	quality := qualityScore(t, columns)
	issues := detectIssues(t, columns)
	suggestions := buildSuggestions(t, columns, detection.TaskType)

	summary := IssueSummary{}
	for _, is := range issues {
		switch is.Severity {
		case "high":
			summary.High++
		case "medium":
			summary.Medium++
		case "low":
			summary.Low++
		}
	}

	p.log.Info("dataset analyzed",
		zap.Int("rows", t.NumRows()),
		zap.Int("columns", t.NumCols()),
		zap.String("task_type", detection.TaskType),
		zap.Float64("quality_score", quality),
		zap.Int("issues", len(issues)))

	return &Report{
		AnalyzedAt:       time.Now().UTC(),
		TaskType:         detection.TaskType,
		TaskConfidence:   detection.Confidence,
		DataQualityScore: quality,
		TotalRows:        t.NumRows(),
		TotalColumns:     t.NumCols(),
		ColumnAnalysis:   columns,
		TargetCandidates: detection.TargetCandidates,
		Issues:           issues,
		Suggestions:      suggestions,
		IssueSummary:     summary,
	}
}

func profileColumn(name string, cells []string) ColumnProfile {
	total := len(cells)
	nonMissing := tabular.NonMissing(cells)
	missing := total - len(nonMissing)
	unique := tabular.UniqueCount(cells)
	dtype := tabular.InferDType(cells)

	cp := ColumnProfile{
		Name:         name,
		DType:        string(dtype),
		MissingCount: missing,
		UniqueCount:  unique,
	}
	if total > 0 {
		cp.MissingPct = round2(float64(missing) / float64(total) * 100)
	}
	if len(nonMissing) > 0 {
		cp.UniquePct = round2(float64(unique) / float64(len(nonMissing)) * 100)
	}

	switch {
	case tabular.IsNumericDType(dtype):
		cp.SemanticType = SemanticNumeric
		fillNumericStats(&cp, tabular.NumericValues(cells))
	case dtype == tabular.DTypeDatetime:
		cp.SemanticType = SemanticDatetime
		if len(nonMissing) > 0 {
			minT, maxT := nonMissing[0], nonMissing[0]
			for _, v := range nonMissing[1:] {
				if v < minT {
					minT = v
				}
				if v > maxT {
					maxT = v
				}
			}
			cp.MinTime, cp.MaxTime = minT, maxT
		}
	default:
		uniqueRatio := 0.0
		if len(nonMissing) > 0 {
			uniqueRatio = float64(unique) / float64(len(nonMissing))
		}
		if uniqueRatio < 0.05 || unique <= 20 {
			cp.SemanticType = SemanticCategorical
			counts := tabular.ValueCounts(cells)
			if len(counts) > 10 {
				counts = counts[:10]
			}
			cp.TopValues = counts
		} else {
			cp.SemanticType = SemanticText
			sum, maxLen := 0, 0
			for _, v := range nonMissing {
				sum += len(v)
				if len(v) > maxLen {
					maxLen = len(v)
				}
			}
			avg := float64(sum) / float64(len(nonMissing))
			cp.AvgLength = &avg
			cp.MaxLength = &maxLen
		}
	}
	return cp
}

func fillNumericStats(cp *ColumnProfile, values []float64) {
	if len(values) == 0 {
		zero := 0
		zeroF := 0.0
		cp.OutlierCnt = &zero
		cp.OutlierPct = &zeroF
		return
	}
	data := stats.LoadRawData(values)
	minV, _ := stats.Min(data)
	maxV, _ := stats.Max(data)
	mean, _ := stats.Mean(data)
	median, _ := stats.Median(data)
	cp.Min, cp.Max, cp.Mean, cp.Median = &minV, &maxV, &mean, &median
	if len(values) > 1 {
		std, err := stats.StandardDeviationSample(data)
		if err == nil {
			cp.Std = &std
		}
	}

	// Tukey fences need a meaningful IQR, so tiny columns report no outliers.
	outliers := 0
	if len(values) > 4 {
		q, err := stats.Quartile(data)
		if err == nil {
			iqr := q.Q3 - q.Q1
			lo, hi := q.Q1-1.5*iqr, q.Q3+1.5*iqr
			for _, v := range values {
				if v < lo || v > hi {
					outliers++
				}
			}
		}
	}
	pct := round2(float64(outliers) / float64(len(values)) * 100)
	cp.OutlierCnt = &outliers
	cp.OutlierPct = &pct
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
func round1(f float64) float64 { return math.Round(f*10) / 10 }
