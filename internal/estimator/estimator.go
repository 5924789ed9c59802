// Package estimator implements the trainable models behind both catalogs.
// Estimators work on dense float matrices, are deterministic for a fixed
// seed and serialize to JSON so trained models can be stored and reloaded
// for prediction.
package estimator

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tabml/automl-backend/internal/apperr"
	"github.com/tabml/automl-backend/internal/storage"
)

// Estimator is a trainable model. Classification estimators consume and
// produce integer class codes as floats.
type Estimator interface {
	Fit(x [][]float64, y []float64) error
	Predict(x [][]float64) ([]float64, error)
}

// ProbaEstimator additionally yields per-class probabilities, ordered by
// class code.
type ProbaEstimator interface {
	Estimator
	PredictProba(x [][]float64) ([][]float64, error)
}

// Params is a loosely typed hyperparameter bag as it arrives from JSON.
type Params map[string]interface{}

// Int reads an integer parameter, tolerating JSON's float64 numbers.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Float reads a float parameter.
func (p Params) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// String reads a string parameter.
func (p Params) String(key string, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

// New builds an untrained estimator for a catalog model id.
func New(taskType, modelID string, params Params) (Estimator, error) {
	seed := int64(params.Int("random_state", 42))
	switch taskType {
	case "classification":
		switch modelID {
		case "logistic_regression":
			return &LogisticRegression{
				LearningRate: params.Float("learning_rate", 0.1),
				MaxIter:      params.Int("max_iter", 1000),
				L2:           params.Float("l2", 0),
			}, nil
		case "decision_tree":
			return &TreeClassifier{
				MaxDepth:         params.Int("max_depth", 0),
				MinSamplesSplit:  params.Int("min_samples_split", 2),
				MinSamplesLeaf:   params.Int("min_samples_leaf", 1),
			}, nil
		case "random_forest":
			return &ForestClassifier{
				NEstimators:     params.Int("n_estimators", 100),
				MaxDepth:        params.Int("max_depth", 0),
				MinSamplesSplit: params.Int("min_samples_split", 2),
				Seed:            seed,
			}, nil
		case "gradient_boosting":
			return &BoostingClassifier{
				NEstimators:  params.Int("n_estimators", 100),
				LearningRate: params.Float("learning_rate", 0.1),
				MaxDepth:     params.Int("max_depth", 3),
			}, nil
		case "knn":
			return &KNNClassifier{
				knnBase: knnBase{
					NNeighbors: params.Int("n_neighbors", 5),
					Weights:    params.String("weights", "uniform"),
				},
			}, nil
		case "naive_bayes":
			return &GaussianNB{}, nil
		}
	case "regression":
		switch modelID {
		case "linear_regression":
			return &LinearRegression{}, nil
		case "ridge":
			return &LinearRegression{Alpha: params.Float("alpha", 1.0)}, nil
		case "decision_tree_reg":
			return &TreeRegressor{
				MaxDepth:        params.Int("max_depth", 0),
				MinSamplesSplit: params.Int("min_samples_split", 2),
			}, nil
		case "random_forest_reg":
			return &ForestRegressor{
				NEstimators: params.Int("n_estimators", 100),
				MaxDepth:    params.Int("max_depth", 0),
				Seed:        seed,
			}, nil
		case "gradient_boosting_reg":
			return &BoostingRegressor{
				NEstimators:  params.Int("n_estimators", 100),
				LearningRate: params.Float("learning_rate", 0.1),
				MaxDepth:     params.Int("max_depth", 3),
			}, nil
		case "knn_reg":
			return &KNNRegressor{
				knnBase: knnBase{
					NNeighbors: params.Int("n_neighbors", 5),
					Weights:    params.String("weights", "uniform"),
				},
			}, nil
		}
	}
	return nil, apperr.Validation("unknown model %q for task type %q", modelID, taskType)
}

// SavedModel is the persisted form of a trained estimator.
type SavedModel struct {
	TaskType string          `json:"task_type"`
	ModelID  string          `json:"model_id"`
	Params   Params          `json:"params"`
	State    json.RawMessage `json:"state"`
}

// Save serializes a trained estimator to the model store under name.
func Save(store *storage.Store, name, taskType, modelID string, params Params, est Estimator) error {
	state, err := json.Marshal(est)
	if err != nil {
		return fmt.Errorf("serialize model state: %w", err)
	}
	return store.WriteJSON(name, &SavedModel{
		TaskType: taskType,
		ModelID:  modelID,
		Params:   params,
		State:    state,
	})
}

// Load rebuilds a trained estimator from the model store.
func Load(store *storage.Store, name string) (Estimator, *SavedModel, error) {
	saved := &SavedModel{}
	if err := store.ReadJSON(name, saved); err != nil {
		return nil, nil, err
	}
	est, err := New(saved.TaskType, saved.ModelID, saved.Params)
	if err != nil {
		return nil, nil, err
	}
	if err := json.Unmarshal(saved.State, est); err != nil {
		return nil, nil, fmt.Errorf("restore model state: %w", err)
	}
	return est, saved, nil
}

func errNotFitted(model string) error {
	return fmt.Errorf("%s: model is not fitted", model)
}

func errSingleClass() error {
	return apperr.Validation("training target has a single class")
}

func validateShapes(x [][]float64, y []float64) error {
	if len(x) == 0 {
		return apperr.Validation("training data is empty")
	}
	if y != nil && len(x) != len(y) {
		return apperr.Validation("feature and target lengths differ: %d vs %d", len(x), len(y))
	}
	width := len(x[0])
	for _, row := range x {
		if len(row) != width {
			return apperr.Validation("ragged feature matrix")
		}
	}
	return nil
}

// classCodes returns the sorted distinct class codes of y.
func classCodes(y []float64) []float64 {
	set := map[float64]struct{}{}
	for _, v := range y {
		set[v] = struct{}{}
	}
	out := make([]float64, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}
