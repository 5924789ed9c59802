// Package predict replays a project's fitted preprocessing transformers on
// incoming rows and scores them with a stored model. Input rows do not have
// to match the training schema exactly: unknown columns are ignored and
// absent model features are synthesized as zeros, with every such repair
// reported as a warning.
package predict

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/tabml/automl-backend/internal/apperr"
	"github.com/tabml/automl-backend/internal/estimator"
	"github.com/tabml/automl-backend/internal/preprocess"
	"github.com/tabml/automl-backend/internal/storage"
	"github.com/tabml/automl-backend/internal/tabular"
)

// Response is the outcome of one prediction request.
type Response struct {
	Predictions   []interface{}        `json:"predictions"`
	Probabilities []map[string]float64 `json:"probabilities,omitempty"`
	ModelID       string               `json:"model_id"`
	RowCount      int                  `json:"row_count"`
	Warnings      []string             `json:"warnings,omitempty"`
}

// Predictor loads artifacts and models from their stores and scores rows.
type Predictor struct {
	log       *zap.Logger
	processed *storage.Store
	modelDir  *storage.Store
}

// New creates a predictor over the processed-data and model stores.
func New(log *zap.Logger, processed, modelDir *storage.Store) *Predictor {
	return &Predictor{log: log, processed: processed, modelDir: modelDir}
}

// Run scores the rows of t with a project's stored model.
func (p *Predictor) Run(projectID, processedID, modelID string, t *tabular.Table) (*Response, error) {
	if t.NumRows() == 0 {
		return nil, apperr.Validation("prediction input has no rows")
	}
	artifact, err := preprocess.LoadArtifact(p.processed, processedID)
	if err != nil {
		return nil, err
	}
	est, saved, err := estimator.Load(p.modelDir, fmt.Sprintf("%s_%s.json", projectID, modelID))
	if err != nil {
		return nil, err
	}

	x, warnings, err := encodeRows(artifact, t)
	if err != nil {
		return nil, err
	}
	raw, err := est.Predict(x)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		ModelID:  saved.ModelID,
		RowCount: len(raw),
		Warnings: warnings,
	}

	classes := artifact.TargetClasses()
	if len(classes) > 0 {
		resp.Predictions = decodeClasses(artifact.Transformers.Target, raw)
		if pe, ok := est.(estimator.ProbaEstimator); ok {
			if proba, err := pe.PredictProba(x); err == nil {
				resp.Probabilities = labelProbabilities(classes, proba)
			}
		}
	} else {
		preds := make([]interface{}, len(raw))
		for i, v := range raw {
			preds[i] = v
		}
		resp.Predictions = preds
	}

	p.log.Info("prediction served",
		zap.String("project_id", projectID),
		zap.String("model_id", saved.ModelID),
		zap.Int("rows", resp.RowCount),
		zap.Int("warnings", len(resp.Warnings)))
	return resp, nil
}

// encodeRows maps raw input rows onto the model's feature space using the
// fitted transformers. Repairs are collected as deduplicated warnings.
func encodeRows(artifact *preprocess.Artifact, t *tabular.Table) ([][]float64, []string, error) {
	tf := artifact.Transformers
	if tf == nil {
		return nil, nil, apperr.Precondition("preprocessing artifact carries no transformers")
	}

	featureSet := map[string]struct{}{}
	for _, name := range artifact.FeatureNames {
		featureSet[name] = struct{}{}
	}

	// Columns the model can consume: plain features, one-hot sources and
	// label-encoded columns.
	usable := map[string]bool{}
	for name := range featureSet {
		usable[name] = true
	}
	for col := range tf.OneHot {
		usable[col] = true
	}
	for col := range tf.Label {
		usable[col] = true
	}

	warn := newWarnings()
	for _, col := range t.Columns {
		if !usable[col] {
			warn.add(fmt.Sprintf("column %q is not used by the model and was ignored", col))
		}
	}
	synthesized := map[string]bool{}

	rows := make([][]float64, t.NumRows())
	for ri := 0; ri < t.NumRows(); ri++ {
		values := map[string]float64{}
		for ci, col := range t.Columns {
			if !usable[col] {
				continue
			}
			cell := t.Data[ci][ri]
			if imp, ok := tf.Imputers[col]; ok && tabular.IsMissing(cell) {
				cell = imp.FillValue
			}

			if enc, ok := tf.OneHot[col]; ok {
				vec := enc.Encode(cell)
				names := enc.FeatureNames()
				seen := tabular.IsMissing(cell)
				for i, name := range names {
					values[name] = vec[i]
					if vec[i] == 1 {
						seen = true
					}
				}
				if !seen && len(names) > 0 {
					warn.add(fmt.Sprintf("column %q has categories unseen at training time; they encode as zeros", col))
				}
				continue
			}
			if enc, ok := tf.Label[col]; ok {
				code, seen := enc.Encode(cell)
				if !seen {
					warn.add(fmt.Sprintf("column %q has categories unseen at training time; they encode as 0", col))
					code = 0
				}
				v := float64(code)
				if sc, ok := tf.Scalers[col]; ok {
					v = sc.Transform(v)
				}
				values[col] = v
				continue
			}

			v, ok := tabular.ParseFloat(cell)
			if !ok {
				if tabular.IsMissing(cell) {
					warn.add(fmt.Sprintf("column %q has missing values with no imputer; they encode as 0", col))
					v = 0
				} else {
					return nil, nil, apperr.Validation("column %q contains non-numeric value %q", col, cell)
				}
			}
			if sc, ok := tf.Scalers[col]; ok {
				v = sc.Transform(v)
			}
			values[col] = v
		}

		row := make([]float64, len(artifact.FeatureNames))
		for i, name := range artifact.FeatureNames {
			v, ok := values[name]
			if !ok && !synthesized[name] {
				synthesized[name] = true
				warn.add(fmt.Sprintf("model feature %q is absent from the input and was synthesized as 0", name))
			}
			row[i] = v
		}
		rows[ri] = row
	}
	return rows, warn.list(), nil
}

func decodeClasses(target *preprocess.LabelEncoder, codes []float64) []interface{} {
	out := make([]interface{}, len(codes))
	for i, c := range codes {
		if label, ok := target.Decode(int(c)); ok {
			out[i] = label
		} else {
			out[i] = c
		}
	}
	return out
}

func labelProbabilities(classes []string, proba [][]float64) []map[string]float64 {
	out := make([]map[string]float64, len(proba))
	for i, row := range proba {
		if len(row) != len(classes) {
			return nil
		}
		m := make(map[string]float64, len(row))
		for j, p := range row {
			m[classes[j]] = p
		}
		out[i] = m
	}
	return out
}

// warnings deduplicates repair messages while keeping insertion order.
type warnings struct {
	seen  map[string]struct{}
	order []string
}

func newWarnings() *warnings {
	return &warnings{seen: map[string]struct{}{}}
}

func (w *warnings) add(msg string) {
	if _, ok := w.seen[msg]; ok {
		return
	}
	w.seen[msg] = struct{}{}
	w.order = append(w.order, msg)
}

func (w *warnings) list() []string { return w.order }

// PredictionsCSV renders the input rows plus a trailing prediction column,
// preserving the input column order.
func PredictionsCSV(t *tabular.Table, resp *Response) [][]string {
	header := make([]string, 0, len(t.Columns)+1)
	header = append(header, t.Columns...)
	header = append(header, "prediction")

	records := make([][]string, 0, t.NumRows()+1)
	records = append(records, header)
	for ri := 0; ri < t.NumRows(); ri++ {
		row := make([]string, 0, len(t.Columns)+1)
		for ci := range t.Columns {
			row = append(row, t.Data[ci][ri])
		}
		row = append(row, formatPrediction(resp.Predictions[ri]))
		records = append(records, row)
	}
	return records
}

func formatPrediction(v interface{}) string {
	switch p := v.(type) {
	case string:
		return p
	case float64:
		return strconv.FormatFloat(p, 'g', -1, 64)
	default:
		return fmt.Sprint(p)
	}
}
