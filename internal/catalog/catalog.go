// Package catalog defines the static model catalogs for classification and
// regression and the heuristic that picks and prioritizes candidates from
// them based on dataset characteristics. Every trainable model in the system
// comes from these catalogs; external recommendations are mapped onto them
// and never executed directly.
package catalog

import (
	"github.com/tabml/automl-backend/internal/apperr"
)

// ParamSpec documents one tunable hyperparameter.
type ParamSpec struct {
	Type        string        `json:"type"`
	Default     interface{}   `json:"default"`
	Range       []float64     `json:"range,omitempty"`
	Choices     []string      `json:"choices,omitempty"`
	Description string        `json:"description"`
}

// ModelInfo describes one catalog entry.
type ModelInfo struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Description   string               `json:"description"`
	BestFor       []string             `json:"best_for"`
	Limitations   []string             `json:"limitations"`
	DefaultParams map[string]interface{} `json:"default_params"`
	TunableParams map[string]ParamSpec `json:"tunable_params"`
	Complexity    string               `json:"complexity"`
	TrainingSpeed string               `json:"training_speed"`
}

var classificationModels = []ModelInfo{
	{
		ID:            "logistic_regression",
		Name:          "Logistic Regression",
		Description:   "Fast, interpretable linear model for classification",
		BestFor:       []string{"binary classification", "interpretability", "baseline"},
		Limitations:   []string{"Non-linear relationships", "High-dimensional sparse data"},
		DefaultParams: map[string]interface{}{"max_iter": 1000, "random_state": 42},
		TunableParams: map[string]ParamSpec{
			"learning_rate": {Type: "float", Default: 0.1, Range: []float64{0.001, 1.0}, Description: "Gradient descent step size"},
			"l2":            {Type: "float", Default: 0.0, Range: []float64{0, 100}, Description: "L2 regularization strength"},
		},
		Complexity:    "low",
		TrainingSpeed: "fast",
	},
	{
		ID:            "decision_tree",
		Name:          "Decision Tree",
		Description:   "Tree-based model with high interpretability",
		BestFor:       []string{"interpretability", "feature importance", "non-linear patterns"},
		Limitations:   []string{"Overfitting", "Unstable with small changes"},
		DefaultParams: map[string]interface{}{"random_state": 42},
		TunableParams: map[string]ParamSpec{
			"max_depth":         {Type: "int", Default: nil, Range: []float64{1, 50}, Description: "Maximum tree depth"},
			"min_samples_split": {Type: "int", Default: 2, Range: []float64{2, 20}, Description: "Minimum samples to split"},
			"min_samples_leaf":  {Type: "int", Default: 1, Range: []float64{1, 20}, Description: "Minimum samples in leaf"},
		},
		Complexity:    "low",
		TrainingSpeed: "fast",
	},
	{
		ID:            "random_forest",
		Name:          "Random Forest",
		Description:   "Ensemble of decision trees with high accuracy",
		BestFor:       []string{"accuracy", "handling overfitting", "feature importance"},
		Limitations:   []string{"Training time", "Memory usage", "Interpretability"},
		DefaultParams: map[string]interface{}{"n_estimators": 100, "random_state": 42},
		TunableParams: map[string]ParamSpec{
			"n_estimators":      {Type: "int", Default: 100, Range: []float64{10, 500}, Description: "Number of trees"},
			"max_depth":         {Type: "int", Default: nil, Range: []float64{1, 50}, Description: "Maximum tree depth"},
			"min_samples_split": {Type: "int", Default: 2, Range: []float64{2, 20}, Description: "Minimum samples to split"},
		},
		Complexity:    "medium",
		TrainingSpeed: "medium",
	},
	{
		ID:            "gradient_boosting",
		Name:          "Gradient Boosting",
		Description:   "Sequential ensemble with strong predictive power",
		BestFor:       []string{"high accuracy", "structured data", "competitions"},
		Limitations:   []string{"Training time", "Hyperparameter sensitivity", "Overfitting"},
		DefaultParams: map[string]interface{}{"n_estimators": 100, "random_state": 42},
		TunableParams: map[string]ParamSpec{
			"n_estimators":  {Type: "int", Default: 100, Range: []float64{10, 500}, Description: "Number of boosting stages"},
			"learning_rate": {Type: "float", Default: 0.1, Range: []float64{0.001, 1.0}, Description: "Learning rate"},
			"max_depth":     {Type: "int", Default: 3, Range: []float64{1, 20}, Description: "Maximum tree depth"},
		},
		Complexity:    "high",
		TrainingSpeed: "slow",
	},
	{
		ID:            "knn",
		Name:          "K-Nearest Neighbors",
		Description:   "Instance-based learning algorithm",
		BestFor:       []string{"Small datasets", "Multi-class classification"},
		Limitations:   []string{"Large datasets", "High dimensions", "Prediction speed"},
		DefaultParams: map[string]interface{}{},
		TunableParams: map[string]ParamSpec{
			"n_neighbors": {Type: "int", Default: 5, Range: []float64{1, 50}, Description: "Number of neighbors"},
			"weights":     {Type: "choice", Default: "uniform", Choices: []string{"uniform", "distance"}, Description: "Weight function"},
		},
		Complexity:    "low",
		TrainingSpeed: "fast",
	},
	{
		ID:            "naive_bayes",
		Name:          "Naive Bayes",
		Description:   "Probabilistic classifier based on Bayes theorem",
		BestFor:       []string{"Text classification", "Fast predictions", "Baseline"},
		Limitations:   []string{"Feature independence assumption", "Continuous features"},
		DefaultParams: map[string]interface{}{},
		TunableParams: map[string]ParamSpec{},
		Complexity:    "low",
		TrainingSpeed: "very_fast",
	},
}

var regressionModels = []ModelInfo{
	{
		ID:            "linear_regression",
		Name:          "Linear Regression",
		Description:   "Simple linear model for regression",
		BestFor:       []string{"Linear relationships", "Interpretability", "Baseline"},
		Limitations:   []string{"Non-linear relationships", "Outliers"},
		DefaultParams: map[string]interface{}{},
		TunableParams: map[string]ParamSpec{},
		Complexity:    "low",
		TrainingSpeed: "very_fast",
	},
	{
		ID:            "ridge",
		Name:          "Ridge Regression",
		Description:   "Linear regression with L2 regularization",
		BestFor:       []string{"Multicollinearity", "Regularization"},
		Limitations:   []string{"Feature selection"},
		DefaultParams: map[string]interface{}{"alpha": 1.0},
		TunableParams: map[string]ParamSpec{
			"alpha": {Type: "float", Default: 1.0, Range: []float64{0.001, 100}, Description: "Regularization strength"},
		},
		Complexity:    "low",
		TrainingSpeed: "very_fast",
	},
	{
		ID:            "decision_tree_reg",
		Name:          "Decision Tree Regressor",
		Description:   "Tree-based regression model",
		BestFor:       []string{"Non-linear patterns", "Interpretability"},
		Limitations:   []string{"Overfitting", "Unstable"},
		DefaultParams: map[string]interface{}{"random_state": 42},
		TunableParams: map[string]ParamSpec{
			"max_depth":         {Type: "int", Default: nil, Range: []float64{1, 50}, Description: "Maximum tree depth"},
			"min_samples_split": {Type: "int", Default: 2, Range: []float64{2, 20}, Description: "Minimum samples to split"},
		},
		Complexity:    "low",
		TrainingSpeed: "fast",
	},
	{
		ID:            "random_forest_reg",
		Name:          "Random Forest Regressor",
		Description:   "Ensemble of decision trees for regression",
		BestFor:       []string{"Accuracy", "Non-linear patterns", "Feature importance"},
		Limitations:   []string{"Training time", "Memory"},
		DefaultParams: map[string]interface{}{"n_estimators": 100, "random_state": 42},
		TunableParams: map[string]ParamSpec{
			"n_estimators": {Type: "int", Default: 100, Range: []float64{10, 500}, Description: "Number of trees"},
			"max_depth":    {Type: "int", Default: nil, Range: []float64{1, 50}, Description: "Maximum tree depth"},
		},
		Complexity:    "medium",
		TrainingSpeed: "medium",
	},
	{
		ID:            "gradient_boosting_reg",
		Name:          "Gradient Boosting Regressor",
		Description:   "Sequential ensemble for regression",
		BestFor:       []string{"High accuracy", "Structured data"},
		Limitations:   []string{"Training time", "Hyperparameter sensitivity"},
		DefaultParams: map[string]interface{}{"n_estimators": 100, "random_state": 42},
		TunableParams: map[string]ParamSpec{
			"n_estimators":  {Type: "int", Default: 100, Range: []float64{10, 500}, Description: "Number of boosting stages"},
			"learning_rate": {Type: "float", Default: 0.1, Range: []float64{0.001, 1.0}, Description: "Learning rate"},
			"max_depth":     {Type: "int", Default: 3, Range: []float64{1, 20}, Description: "Maximum tree depth"},
		},
		Complexity:    "high",
		TrainingSpeed: "slow",
	},
	{
		ID:            "knn_reg",
		Name:          "K-Nearest Neighbors Regressor",
		Description:   "Instance-based regression",
		BestFor:       []string{"Small datasets", "Local patterns"},
		Limitations:   []string{"Large datasets", "High dimensions"},
		DefaultParams: map[string]interface{}{},
		TunableParams: map[string]ParamSpec{
			"n_neighbors": {Type: "int", Default: 5, Range: []float64{1, 50}, Description: "Number of neighbors"},
			"weights":     {Type: "choice", Default: "uniform", Choices: []string{"uniform", "distance"}, Description: "Weight function"},
		},
		Complexity:    "low",
		TrainingSpeed: "fast",
	},
}

// Models returns the ordered catalog for a task type.
func Models(taskType string) ([]ModelInfo, error) {
	switch taskType {
	case "classification":
		return classificationModels, nil
	case "regression":
		return regressionModels, nil
	default:
		return nil, apperr.Validation("task type must be 'classification' or 'regression', got %q", taskType)
	}
}

// Lookup finds a catalog entry by model id within a task type.
func Lookup(taskType, modelID string) (*ModelInfo, error) {
	models, err := Models(taskType)
	if err != nil {
		return nil, err
	}
	for i := range models {
		if models[i].ID == modelID {
			return &models[i], nil
		}
	}
	return nil, apperr.Validation("unknown model %q for task type %q", modelID, taskType)
}

// MergeParams overlays overrides on an entry's default parameters.
func (m *ModelInfo) MergeParams(overrides map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(m.DefaultParams)+len(overrides))
	for k, v := range m.DefaultParams {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
