package training

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabml/automl-backend/internal/estimator"
)

func TestAccuracy(t *testing.T) {
	assert.Equal(t, 0.75, Accuracy([]float64{0, 1, 1, 0}, []float64{0, 1, 0, 0}))
	assert.Equal(t, 0.0, Accuracy(nil, nil))
}

func TestWeightedPRF(t *testing.T) {
	// class 1: tp=1 fp=1 fn=1, class 0: tp=1 fp=1 fn=1; both classes have
	// support 2 of 4, so every weighted average is 0.5
	yTrue := []float64{0, 0, 1, 1}
	yPred := []float64{0, 1, 1, 0}
	p, r, f := WeightedPRF(yTrue, yPred)
	assert.InDelta(t, 0.5, p, 1e-9)
	assert.InDelta(t, 0.5, r, 1e-9)
	assert.InDelta(t, 0.5, f, 1e-9)
}

func TestWeightedPRFPerfect(t *testing.T) {
	y := []float64{0, 1, 2, 1, 0}
	p, r, f := WeightedPRF(y, y)
	assert.InDelta(t, 1.0, p, 1e-9)
	assert.InDelta(t, 1.0, r, 1e-9)
	assert.InDelta(t, 1.0, f, 1e-9)
}

func TestAUCROC(t *testing.T) {
	auc, ok := AUCROC([]float64{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8})
	require.True(t, ok)
	assert.InDelta(t, 0.75, auc, 1e-9)

	auc, ok = AUCROC([]float64{0, 1}, []float64{0.2, 0.9})
	require.True(t, ok)
	assert.InDelta(t, 1.0, auc, 1e-9)
}

func TestAUCROCTiesAndSingleClass(t *testing.T) {
	// all scores equal: midranks make the area exactly chance level
	auc, ok := AUCROC([]float64{0, 1, 0, 1}, []float64{0.5, 0.5, 0.5, 0.5})
	require.True(t, ok)
	assert.InDelta(t, 0.5, auc, 1e-9)

	_, ok = AUCROC([]float64{1, 1}, []float64{0.1, 0.9})
	assert.False(t, ok)
}

func TestRegressionMetrics(t *testing.T) {
	yTrue := []float64{1, 2, 3}
	yPred := []float64{1, 2, 5}

	assert.InDelta(t, 4.0/3, MSE(yTrue, yPred), 1e-9)
	assert.InDelta(t, 2.0/3, MAE(yTrue, yPred), 1e-9)
	assert.InDelta(t, 1-2.0, R2(yTrue, yPred), 1e-9)

	assert.InDelta(t, 1.0, R2(yTrue, yTrue), 1e-9)
	// constant target: perfect predictions score 1, anything else 0
	assert.InDelta(t, 1.0, R2([]float64{2, 2}, []float64{2, 2}), 1e-9)
	assert.InDelta(t, 0.0, R2([]float64{2, 2}, []float64{1, 3}), 1e-9)
}

func TestCrossValidate(t *testing.T) {
	x := make([][]float64, 20)
	y := make([]float64, 20)
	for i := range x {
		x[i] = []float64{float64(i)}
		y[i] = 3 * float64(i)
	}

	build := func() (estimator.Estimator, error) {
		return &estimator.LinearRegression{}, nil
	}
	mean, std, err := CrossValidate(build, x, y, 5, false)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, mean, 1e-6, "linear data should score R2 near 1 in every fold")
	assert.InDelta(t, 0.0, std, 1e-6)
}

func TestPrimaryMetric(t *testing.T) {
	assert.Equal(t, 0.9, PrimaryMetric(map[string]float64{"f1_score": 0.9, "accuracy": 0.8}, "classification"))
	assert.Equal(t, 0.8, PrimaryMetric(map[string]float64{"accuracy": 0.8}, "classification"))
	assert.Equal(t, 0.7, PrimaryMetric(map[string]float64{"r2_score": 0.7}, "regression"))
	assert.Equal(t, -1e9, PrimaryMetric(nil, "classification"))
	assert.Equal(t, -1e9, PrimaryMetric(map[string]float64{"mse": 1}, "regression"))
}
