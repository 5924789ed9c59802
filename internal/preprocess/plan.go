// Package preprocess turns a raw dataset into model-ready numeric splits. A
// typed Plan describes per-column imputation, encoding and scaling plus the
// split policy; the executor fits transformers on the data and produces a
// JSON artifact that prediction replays against incoming rows.
package preprocess

import (
	"strings"

	"github.com/tabml/automl-backend/internal/apperr"
	"github.com/tabml/automl-backend/internal/profile"
)

// Column roles.
const (
	RoleFeature = "feature"
	RoleTarget  = "target"
	RoleDrop    = "drop"
)

// Imputation strategies.
const (
	ImputeMean         = "mean"
	ImputeMedian       = "median"
	ImputeMostFrequent = "most_frequent"
	ImputeConstant     = "constant"
)

// Encoding methods. Ordinal is an alias for label encoding: both map
// categories to integer codes.
const (
	EncodeOneHot  = "onehot"
	EncodeLabel   = "label"
	EncodeOrdinal = "ordinal"
)

// Scaling methods.
const (
	ScaleStandard = "standard"
	ScaleMinMax   = "minmax"
	ScaleNone     = "none"
)

// ImputationConfig fills missing values in one column.
type ImputationConfig struct {
	Strategy  string `json:"strategy"`
	FillValue string `json:"fill_value,omitempty"`
}

// EncodingConfig turns one categorical column into numeric features.
type EncodingConfig struct {
	Method    string `json:"method"`
	DropFirst bool   `json:"drop_first"`
}

// ScalingConfig rescales one numeric column.
type ScalingConfig struct {
	Method string `json:"method"`
}

// SplitConfig controls the train/test/validation split.
type SplitConfig struct {
	TestSize       float64 `json:"test_size"`
	ValidationSize float64 `json:"validation_size"`
	RandomState    int64   `json:"random_state"`
	Stratify       bool    `json:"stratify"`
}

// ColumnConfig assigns a role and transformations to one column.
type ColumnConfig struct {
	Name       string            `json:"name"`
	Role       string            `json:"role"`
	Imputation *ImputationConfig `json:"imputation,omitempty"`
	Encoding   *EncodingConfig   `json:"encoding,omitempty"`
	Scaling    *ScalingConfig    `json:"scaling,omitempty"`
}

// Plan is the full preprocessing configuration for a project.
type Plan struct {
	Columns          []ColumnConfig `json:"columns"`
	Split            SplitConfig    `json:"split"`
	RemoveDuplicates bool           `json:"remove_duplicates"`
	HandleOutliers   bool           `json:"handle_outliers"`
	OutlierMethod    string         `json:"outlier_method,omitempty"`
}

// DefaultSplit returns the standard 80/20 split.
func DefaultSplit() SplitConfig {
	return SplitConfig{TestSize: 0.2, ValidationSize: 0.0, RandomState: 42}
}

// TargetColumn returns the name of the target column, if any.
func (p *Plan) TargetColumn() string {
	for _, c := range p.Columns {
		if c.Role == RoleTarget {
			return c.Name
		}
	}
	return ""
}

// Validate checks the plan for unknown roles, strategies and out-of-range
// split sizes.
func (p *Plan) Validate() error {
	if len(p.Columns) == 0 {
		return apperr.Validation("preprocessing plan has no columns")
	}
	targets := 0
	for _, c := range p.Columns {
		if c.Name == "" {
			return apperr.Validation("preprocessing plan has a column without a name")
		}
		switch c.Role {
		case RoleFeature, RoleDrop:
		case RoleTarget:
			targets++
		default:
			return apperr.Validation("column %q has unknown role %q", c.Name, c.Role)
		}
		if c.Imputation != nil {
			switch c.Imputation.Strategy {
			case ImputeMean, ImputeMedian, ImputeMostFrequent, ImputeConstant:
			default:
				return apperr.Validation("column %q has unknown imputation strategy %q", c.Name, c.Imputation.Strategy)
			}
		}
		if c.Encoding != nil {
			switch c.Encoding.Method {
			case EncodeOneHot, EncodeLabel, EncodeOrdinal:
			default:
				return apperr.Validation("column %q has unknown encoding method %q", c.Name, c.Encoding.Method)
			}
		}
		if c.Scaling != nil {
			switch c.Scaling.Method {
			case ScaleStandard, ScaleMinMax, ScaleNone:
			default:
				return apperr.Validation("column %q has unknown scaling method %q", c.Name, c.Scaling.Method)
			}
		}
	}
	if targets > 1 {
		return apperr.Validation("preprocessing plan has %d target columns, want at most 1", targets)
	}
	if p.Split.TestSize < 0.1 || p.Split.TestSize > 0.5 {
		return apperr.Validation("split test_size must be in [0.1, 0.5], got %v", p.Split.TestSize)
	}
	if p.Split.ValidationSize < 0 || p.Split.ValidationSize > 0.3 {
		return apperr.Validation("split validation_size must be in [0, 0.3], got %v", p.Split.ValidationSize)
	}
	return nil
}

// AutoPlan derives a preprocessing plan from analysis results: identifier
// columns are dropped, columns with missing values get median or mode
// imputation, low-cardinality categoricals get one-hot encoding with the
// first level dropped, the rest label encoding, and numeric features get
// standard scaling.
func AutoPlan(report *profile.Report, targetColumn string) *Plan {
	plan := &Plan{
		Split:            DefaultSplit(),
		RemoveDuplicates: true,
	}

	for _, col := range report.ColumnAnalysis {
		cc := ColumnConfig{Name: col.Name, Role: RoleFeature}
		switch {
		case col.Name == targetColumn:
			cc.Role = RoleTarget
		case isIdentifierName(col.Name):
			cc.Role = RoleDrop
		}

		if col.MissingPct > 0 {
			if col.SemanticType == profile.SemanticNumeric {
				cc.Imputation = &ImputationConfig{Strategy: ImputeMedian}
			} else {
				cc.Imputation = &ImputationConfig{Strategy: ImputeMostFrequent}
			}
		}

		if col.SemanticType == profile.SemanticCategorical && cc.Role == RoleFeature {
			if col.UniqueCount <= 10 {
				cc.Encoding = &EncodingConfig{Method: EncodeOneHot, DropFirst: true}
			} else {
				cc.Encoding = &EncodingConfig{Method: EncodeLabel}
			}
		}

		if col.SemanticType == profile.SemanticNumeric && cc.Role == RoleFeature {
			cc.Scaling = &ScalingConfig{Method: ScaleStandard}
		}

		plan.Columns = append(plan.Columns, cc)
	}
	return plan
}

func isIdentifierName(name string) bool {
	switch strings.ToLower(name) {
	case "id", "index", "row_id", "record_id":
		return true
	}
	return false
}
