package estimator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabml/automl-backend/internal/storage"
)

// linearXY builds y = 2x + 1 training data.
func linearXY(n int) ([][]float64, []float64) {
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = []float64{float64(i)}
		y[i] = 2*float64(i) + 1
	}
	return x, y
}

// separableXY builds two well-separated clusters, class 0 around the
// origin and class 1 around (10, 10).
func separableXY() ([][]float64, []float64) {
	var x [][]float64
	var y []float64
	for i := 0; i < 10; i++ {
		x = append(x, []float64{float64(i % 3), float64(i % 2)})
		y = append(y, 0)
		x = append(x, []float64{10 + float64(i%3), 10 + float64(i%2)})
		y = append(y, 1)
	}
	return x, y
}

func TestLinearRegressionExactFit(t *testing.T) {
	x, y := linearXY(20)
	lr := &LinearRegression{}
	require.NoError(t, lr.Fit(x, y))

	assert.InDelta(t, 2.0, lr.Weights[0], 1e-6)
	assert.InDelta(t, 1.0, lr.Intercept, 1e-6)

	pred, err := lr.Predict([][]float64{{100}})
	require.NoError(t, err)
	assert.InDelta(t, 201.0, pred[0], 1e-6)
}

func TestRidgeShrinksWeights(t *testing.T) {
	x, y := linearXY(20)
	ols := &LinearRegression{}
	require.NoError(t, ols.Fit(x, y))
	ridge := &LinearRegression{Alpha: 50}
	require.NoError(t, ridge.Fit(x, y))

	assert.Less(t, ridge.Weights[0], ols.Weights[0])
	assert.Greater(t, ridge.Weights[0], 0.0)
}

func TestLogisticRegressionSeparable(t *testing.T) {
	x, y := separableXY()
	lr := &LogisticRegression{LearningRate: 0.1, MaxIter: 500}
	require.NoError(t, lr.Fit(x, y))

	pred, err := lr.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, y, pred)

	proba, err := lr.PredictProba([][]float64{{0, 0}, {12, 12}})
	require.NoError(t, err)
	assert.Greater(t, proba[0][0], 0.5)
	assert.Greater(t, proba[1][1], 0.5)
	assert.InDelta(t, 1.0, proba[0][0]+proba[0][1], 1e-9)
}

func TestLogisticRegressionSingleClass(t *testing.T) {
	lr := &LogisticRegression{}
	err := lr.Fit([][]float64{{1}, {2}}, []float64{0, 0})
	assert.Error(t, err)
}

func TestTreeClassifierFitsTrainingData(t *testing.T) {
	x, y := separableXY()
	tree := &TreeClassifier{MinSamplesSplit: 2, MinSamplesLeaf: 1}
	require.NoError(t, tree.Fit(x, y))

	pred, err := tree.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, y, pred)
}

func TestForestClassifier(t *testing.T) {
	x, y := separableXY()
	forest := &ForestClassifier{NEstimators: 10, MinSamplesSplit: 2, Seed: 42}
	require.NoError(t, forest.Fit(x, y))

	pred, err := forest.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, y, pred)

	proba, err := forest.PredictProba([][]float64{{0, 0}})
	require.NoError(t, err)
	require.Len(t, proba[0], 2)
	assert.Greater(t, proba[0][0], 0.5)
}

func TestForestDeterministicForSeed(t *testing.T) {
	x, y := separableXY()
	a := &ForestClassifier{NEstimators: 5, Seed: 7}
	require.NoError(t, a.Fit(x, y))
	b := &ForestClassifier{NEstimators: 5, Seed: 7}
	require.NoError(t, b.Fit(x, y))

	probe := [][]float64{{2, 1}, {11, 10}}
	pa, err := a.PredictProba(probe)
	require.NoError(t, err)
	pb, err := b.PredictProba(probe)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestKNNClassifierExactMatch(t *testing.T) {
	x, y := separableXY()
	knn := &KNNClassifier{knnBase: knnBase{NNeighbors: 3, Weights: "distance"}}
	require.NoError(t, knn.Fit(x, y))

	// a row identical to a training row gets infinite weight and wins
	// outright
	proba, err := knn.PredictProba([][]float64{x[0]})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, proba[0])
}

func TestKNNRegressorNeighborMean(t *testing.T) {
	knn := &KNNRegressor{knnBase: knnBase{NNeighbors: 2}}
	require.NoError(t, knn.Fit([][]float64{{0}, {1}, {10}}, []float64{0, 2, 100}))

	pred, err := knn.Predict([][]float64{{0.4}})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, pred[0], 1e-9)
}

func TestGaussianNB(t *testing.T) {
	x, y := separableXY()
	nb := &GaussianNB{}
	require.NoError(t, nb.Fit(x, y))

	pred, err := nb.Predict([][]float64{{1, 1}, {11, 11}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, pred)
}

func TestBoostingRegressorBeatsMean(t *testing.T) {
	x, y := linearXY(30)
	boost := &BoostingRegressor{NEstimators: 50, LearningRate: 0.2, MaxDepth: 2}
	require.NoError(t, boost.Fit(x, y))

	pred, err := boost.Predict(x)
	require.NoError(t, err)

	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))

	var sseModel, sseMean float64
	for i, v := range y {
		sseModel += (pred[i] - v) * (pred[i] - v)
		sseMean += (mean - v) * (mean - v)
	}
	assert.Less(t, sseModel, sseMean)
}

func TestPredictBeforeFit(t *testing.T) {
	_, err := (&LinearRegression{}).Predict([][]float64{{1}})
	assert.Error(t, err)
	_, err = (&KNNClassifier{}).Predict([][]float64{{1}})
	assert.Error(t, err)
}

func TestValidateShapes(t *testing.T) {
	assert.Error(t, validateShapes(nil, nil))
	assert.Error(t, validateShapes([][]float64{{1}}, []float64{1, 2}))
	assert.Error(t, validateShapes([][]float64{{1, 2}, {3}}, []float64{1, 2}))
	assert.NoError(t, validateShapes([][]float64{{1}, {2}}, []float64{1, 2}))
}

func TestParamsAccessors(t *testing.T) {
	p := Params{"a": float64(7), "b": 3, "c": 1.5, "d": "distance"}
	assert.Equal(t, 7, p.Int("a", 0))
	assert.Equal(t, 3, p.Int("b", 0))
	assert.Equal(t, 9, p.Int("missing", 9))
	assert.Equal(t, 1.5, p.Float("c", 0))
	assert.Equal(t, 3.0, p.Float("b", 0))
	assert.Equal(t, "distance", p.String("d", "uniform"))
	assert.Equal(t, "uniform", p.String("missing", "uniform"))
}

func TestNewUnknownModel(t *testing.T) {
	_, err := New("classification", "perceptron", nil)
	assert.Error(t, err)
	_, err = New("clustering", "kmeans", nil)
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)

	x, y := linearXY(10)
	est, err := New("regression", "ridge", Params{"alpha": 0.5})
	require.NoError(t, err)
	require.NoError(t, est.Fit(x, y))

	orig, err := est.Predict([][]float64{{3}, {7}})
	require.NoError(t, err)

	require.NoError(t, Save(store, "m.json", "regression", "ridge", Params{"alpha": 0.5}, est))

	loaded, saved, err := Load(store, "m.json")
	require.NoError(t, err)
	assert.Equal(t, "ridge", saved.ModelID)
	assert.Equal(t, "regression", saved.TaskType)

	restored, err := loaded.Predict([][]float64{{3}, {7}})
	require.NoError(t, err)
	assert.InDelta(t, orig[0], restored[0], 1e-9)
	assert.InDelta(t, orig[1], restored[1], 1e-9)
}
