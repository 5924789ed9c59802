package profile

import (
	"fmt"

	"github.com/tabml/automl-backend/internal/tabular"
)

// qualityScore computes the 0-100 quality score as a weighted blend of
// completeness (30%), validity (25%), uniqueness (20%), consistency (15%)
// and size adequacy (10%).
func qualityScore(t *tabular.Table, columns []ColumnProfile) float64 {
	totalMissing := 0.0
	for _, c := range columns {
		totalMissing += c.MissingPct
	}
	avgMissing := 0.0
	if len(columns) > 0 {
		avgMissing = totalMissing / float64(len(columns))
	}
	completeness := clampLow(100 - avgMissing)

	validity := 100.0
	numericCount, outlierSum := 0, 0.0
	for _, c := range columns {
		if c.SemanticType == SemanticNumeric {
			numericCount++
			if c.OutlierPct != nil {
				outlierSum += *c.OutlierPct
			}
		}
	}
	if numericCount > 0 {
		validity = clampLow(100 - outlierSum/float64(numericCount)*2)
	}

	uniqueness := 100.0
	if t.NumRows() > 0 {
		dupRatio := float64(t.DuplicateRowCount()) / float64(t.NumRows())
		uniqueness = clampLow(100 - dupRatio*100)
	}

	consistency := 100.0
	for _, c := range columns {
		if c.SemanticType == SemanticText && c.UniquePct > 90 {
			consistency -= 5
		}
	}
	consistency = clampLow(consistency)

	var size float64
	switch rows := t.NumRows(); {
	case rows >= 10000:
		size = 100
	case rows >= 1000:
		size = 80
	case rows >= 100:
		size = 60
	default:
		size = 40
	}

	score := completeness*0.3 + validity*0.25 + uniqueness*0.2 + consistency*0.15 + size*0.1
	return round1(score)
}

func clampLow(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}

func detectIssues(t *tabular.Table, columns []ColumnProfile) []Issue {
	issues := []Issue{}

	for _, c := range columns {
		if c.MissingPct > 50 {
			issues = append(issues, Issue{
				Type:       "high_missing",
				Severity:   "high",
				Column:     c.Name,
				Message:    fmt.Sprintf("Column '%s' has %v%% missing values", c.Name, c.MissingPct),
				Suggestion: "Consider dropping this column or using advanced imputation",
			})
		} else if c.MissingPct > 20 {
			issues = append(issues, Issue{
				Type:       "moderate_missing",
				Severity:   "medium",
				Column:     c.Name,
				Message:    fmt.Sprintf("Column '%s' has %v%% missing values", c.Name, c.MissingPct),
				Suggestion: "Apply imputation (mean/median for numeric, mode for categorical)",
			})
		}
	}

	for _, c := range columns {
		if c.SemanticType == SemanticNumeric && c.OutlierPct != nil && *c.OutlierPct > 10 {
			issues = append(issues, Issue{
				Type:       "outliers",
				Severity:   "medium",
				Column:     c.Name,
				Message:    fmt.Sprintf("Column '%s' has %v%% outliers", c.Name, *c.OutlierPct),
				Suggestion: "Consider capping, removing, or transforming outliers",
			})
		}
	}

	for _, c := range columns {
		if c.SemanticType == SemanticCategorical && c.UniqueCount > 100 {
			issues = append(issues, Issue{
				Type:       "high_cardinality",
				Severity:   "low",
				Column:     c.Name,
				Message:    fmt.Sprintf("Column '%s' has %d unique categories", c.Name, c.UniqueCount),
				Suggestion: "Consider grouping rare categories or using target encoding",
			})
		}
	}

	for _, c := range columns {
		if c.UniqueCount == 1 {
			issues = append(issues, Issue{
				Type:       "constant",
				Severity:   "high",
				Column:     c.Name,
				Message:    fmt.Sprintf("Column '%s' has only one value", c.Name),
				Suggestion: "Remove this column as it provides no information",
			})
		}
	}

	rows := t.NumRows()
	if rows < 100 {
		issues = append(issues, Issue{
			Type:       "small_dataset",
			Severity:   "high",
			Message:    fmt.Sprintf("Dataset has only %d rows", rows),
			Suggestion: "Consider collecting more data or using data augmentation",
		})
	} else if rows < 1000 {
		issues = append(issues, Issue{
			Type:       "moderate_dataset",
			Severity:   "medium",
			Message:    fmt.Sprintf("Dataset has %d rows which may be insufficient for complex models", rows),
			Suggestion: "Simple models like Logistic Regression or Decision Trees recommended",
		})
	}

	if dups := t.DuplicateRowCount(); dups > 0 {
		dupPct := round1(float64(dups) / float64(rows) * 100)
		severity := "low"
		if dupPct > 5 {
			severity = "medium"
		}
		issues = append(issues, Issue{
			Type:       "duplicates",
			Severity:   severity,
			Message:    fmt.Sprintf("Dataset has %d duplicate rows (%v%%)", dups, dupPct),
			Suggestion: "Consider removing duplicate rows",
		})
	}

	return issues
}

func buildSuggestions(t *tabular.Table, columns []ColumnProfile, taskType string) []Suggestion {
	suggestions := []Suggestion{}

	var numericCols, categoricalCols, datetimeCols, missingCols []string
	for _, c := range columns {
		switch c.SemanticType {
		case SemanticNumeric:
			numericCols = append(numericCols, c.Name)
		case SemanticCategorical:
			categoricalCols = append(categoricalCols, c.Name)
		case SemanticDatetime:
			datetimeCols = append(datetimeCols, c.Name)
		}
		if c.MissingPct > 0 {
			missingCols = append(missingCols, c.Name)
		}
	}

	if len(numericCols) > 0 {
		suggestions = append(suggestions, Suggestion{
			Type:        "normalization",
			Priority:    "recommended",
			Title:       "Normalize numeric features",
			Description: fmt.Sprintf("Apply standard or min-max scaling to %d numeric columns for better model performance", len(numericCols)),
			Columns:     numericCols,
		})
	}
	if len(categoricalCols) > 0 {
		suggestions = append(suggestions, Suggestion{
			Type:        "encoding",
			Priority:    "required",
			Title:       "Encode categorical features",
			Description: fmt.Sprintf("Apply one-hot or label encoding to %d categorical columns", len(categoricalCols)),
			Columns:     categoricalCols,
		})
	}

	switch taskType {
	case "classification":
		suggestions = append(suggestions, Suggestion{
			Type:        "class_balance",
			Priority:    "recommended",
			Title:       "Check class balance",
			Description: "Verify target classes are balanced. Apply resampling or class weights if imbalanced",
			Columns:     []string{},
		})
	case "regression":
		suggestions = append(suggestions, Suggestion{
			Type:        "target_distribution",
			Priority:    "recommended",
			Title:       "Check target distribution",
			Description: "Consider log-transform if target is skewed for better model performance",
			Columns:     []string{},
		})
	}

	if len(missingCols) > 0 {
		suggestions = append(suggestions, Suggestion{
			Type:        "imputation",
			Priority:    "required",
			Title:       "Handle missing values",
			Description: fmt.Sprintf("%d columns have missing values that need imputation", len(missingCols)),
			Columns:     missingCols,
		})
	}

	if len(datetimeCols) > 0 {
		suggestions = append(suggestions, Suggestion{
			Type:        "feature_engineering",
			Priority:    "optional",
			Title:       "Extract datetime features",
			Description: "Extract year, month, day, weekday from datetime columns",
			Columns:     datetimeCols,
		})
	}

	if t.NumRows() < 1000 {
		suggestions = append(suggestions, Suggestion{
			Type:        "data_collection",
			Priority:    "recommended",
			Title:       "Collect more data",
			Description: fmt.Sprintf("Current dataset has %d rows. More data would improve model reliability", t.NumRows()),
			Columns:     []string{},
		})
	}

	return suggestions
}
