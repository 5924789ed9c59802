package preprocess

import (
	"sort"
	"strconv"

	"github.com/montanaflynn/stats"

	"github.com/tabml/automl-backend/internal/apperr"
	"github.com/tabml/automl-backend/internal/tabular"
)

// Imputer is a fitted missing-value filler for one column.
type Imputer struct {
	Strategy  string `json:"strategy"`
	FillValue string `json:"fill_value"`
}

// FitImputer computes the fill value for a column from its non-missing
// cells. Mean and median require numeric cells.
func FitImputer(cfg *ImputationConfig, cells []string) (*Imputer, error) {
	imp := &Imputer{Strategy: cfg.Strategy}
	switch cfg.Strategy {
	case ImputeMean, ImputeMedian:
		values := tabular.NumericValues(cells)
		if len(values) == 0 {
			return nil, apperr.Validation("cannot impute %s: column has no numeric values", cfg.Strategy)
		}
		data := stats.LoadRawData(values)
		var fill float64
		if cfg.Strategy == ImputeMean {
			fill, _ = stats.Mean(data)
		} else {
			fill, _ = stats.Median(data)
		}
		imp.FillValue = strconv.FormatFloat(fill, 'g', -1, 64)
	case ImputeMostFrequent:
		counts := tabular.ValueCounts(cells)
		if len(counts) == 0 {
			return nil, apperr.Validation("cannot impute most_frequent: column is entirely missing")
		}
		imp.FillValue = counts[0].Value
	case ImputeConstant:
		imp.FillValue = cfg.FillValue
	default:
		return nil, apperr.Validation("unknown imputation strategy %q", cfg.Strategy)
	}
	return imp, nil
}

// Apply fills the missing cells of a column in place.
func (imp *Imputer) Apply(cells []string) {
	for i, c := range cells {
		if tabular.IsMissing(c) {
			cells[i] = imp.FillValue
		}
	}
}

// OneHotEncoder expands one categorical column into indicator features, one
// per category seen at fit time. Categories are kept in lexicographic order
// and the first may be dropped to avoid collinearity.
type OneHotEncoder struct {
	Column     string   `json:"column"`
	Categories []string `json:"categories"`
	DropFirst  bool     `json:"drop_first"`
}

// FitOneHot learns the category set of a column.
func FitOneHot(column string, cells []string, dropFirst bool) *OneHotEncoder {
	return &OneHotEncoder{
		Column:     column,
		Categories: tabular.SortedUnique(cells),
		DropFirst:  dropFirst,
	}
}

// kept returns the categories that produce output features.
func (e *OneHotEncoder) kept() []string {
	if e.DropFirst && len(e.Categories) > 0 {
		return e.Categories[1:]
	}
	return e.Categories
}

// FeatureNames returns the generated feature names, column_category.
func (e *OneHotEncoder) FeatureNames() []string {
	names := make([]string, 0, len(e.kept()))
	for _, c := range e.kept() {
		names = append(names, e.Column+"_"+c)
	}
	return names
}

// Encode returns the indicator vector for one cell. Missing and unseen
// values encode as all zeros.
func (e *OneHotEncoder) Encode(cell string) []float64 {
	out := make([]float64, len(e.kept()))
	if tabular.IsMissing(cell) {
		return out
	}
	for i, c := range e.kept() {
		if c == cell {
			out[i] = 1
			break
		}
	}
	return out
}

// LabelEncoder maps category strings to integer codes in lexicographic
// class order.
type LabelEncoder struct {
	Classes []string `json:"classes"`
}

// FitLabel learns the class set of a column. Cells are taken verbatim, so
// an unimputed missing representation becomes its own class.
func FitLabel(cells []string) *LabelEncoder {
	set := map[string]struct{}{}
	for _, c := range cells {
		set[c] = struct{}{}
	}
	classes := make([]string, 0, len(set))
	for c := range set {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	return &LabelEncoder{Classes: classes}
}

// Encode returns the integer code of a value and whether it was seen at fit
// time.
func (e *LabelEncoder) Encode(cell string) (int, bool) {
	i := sort.SearchStrings(e.Classes, cell)
	if i < len(e.Classes) && e.Classes[i] == cell {
		return i, true
	}
	return -1, false
}

// Decode returns the class string for a code.
func (e *LabelEncoder) Decode(code int) (string, bool) {
	if code < 0 || code >= len(e.Classes) {
		return "", false
	}
	return e.Classes[code], true
}

// Scaler is a fitted numeric rescaler for one column.
type Scaler struct {
	Method string  `json:"method"`
	Mean   float64 `json:"mean,omitempty"`
	Std    float64 `json:"std,omitempty"`
	Min    float64 `json:"min,omitempty"`
	Max    float64 `json:"max,omitempty"`
}

// FitScaler computes scaling parameters from a numeric column.
func FitScaler(method string, values []float64) (*Scaler, error) {
	if len(values) == 0 {
		return nil, apperr.Validation("cannot fit %s scaler on empty column", method)
	}
	s := &Scaler{Method: method}
	data := stats.LoadRawData(values)
	switch method {
	case ScaleStandard:
		s.Mean, _ = stats.Mean(data)
		s.Std, _ = stats.StandardDeviation(data)
	case ScaleMinMax:
		s.Min, _ = stats.Min(data)
		s.Max, _ = stats.Max(data)
	default:
		return nil, apperr.Validation("unknown scaling method %q", method)
	}
	return s, nil
}

// Transform rescales one value.
func (s *Scaler) Transform(v float64) float64 {
	switch s.Method {
	case ScaleStandard:
		if s.Std == 0 {
			return v - s.Mean
		}
		return (v - s.Mean) / s.Std
	case ScaleMinMax:
		if s.Max == s.Min {
			return 0
		}
		return (v - s.Min) / (s.Max - s.Min)
	}
	return v
}

// Transformers holds every fitted transformer keyed by column, persisted in
// the preprocessing artifact so prediction can replay them on new rows.
type Transformers struct {
	Imputers map[string]*Imputer       `json:"imputers,omitempty"`
	OneHot   map[string]*OneHotEncoder `json:"onehot,omitempty"`
	Label    map[string]*LabelEncoder  `json:"label,omitempty"`
	Scalers  map[string]*Scaler        `json:"scalers,omitempty"`
	Target   *LabelEncoder             `json:"target,omitempty"`
}

func newTransformers() *Transformers {
	return &Transformers{
		Imputers: map[string]*Imputer{},
		OneHot:   map[string]*OneHotEncoder{},
		Label:    map[string]*LabelEncoder{},
		Scalers:  map[string]*Scaler{},
	}
}
