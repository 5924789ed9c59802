package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selectionByID(sels []Selection, id string) (Selection, bool) {
	for _, s := range sels {
		if s.ModelID == id {
			return s, true
		}
	}
	return Selection{}, false
}

func TestModelsUnknownTaskType(t *testing.T) {
	_, err := Models("clustering")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clustering")
}

func TestLookup(t *testing.T) {
	m, err := Lookup("classification", "random_forest")
	require.NoError(t, err)
	assert.Equal(t, "Random Forest", m.Name)

	_, err = Lookup("regression", "random_forest")
	assert.Error(t, err, "classification ids must not resolve for regression")

	_, err = Lookup("classification", "nope")
	assert.Error(t, err)
}

func TestMergeParams(t *testing.T) {
	m, err := Lookup("classification", "random_forest")
	require.NoError(t, err)

	merged := m.MergeParams(map[string]interface{}{"n_estimators": 50, "max_depth": 4})
	assert.Equal(t, 50, merged["n_estimators"])
	assert.Equal(t, 4, merged["max_depth"])
	assert.Equal(t, 42, merged["random_state"])
	assert.Equal(t, 100, m.DefaultParams["n_estimators"], "defaults must not be mutated")
}

func TestSelectSmallDataset(t *testing.T) {
	sels, err := Select("classification", 50, 5, 80)
	require.NoError(t, err)
	require.Len(t, sels, len(classificationModels))

	gb, ok := selectionByID(sels, "gradient_boosting")
	require.True(t, ok)
	assert.False(t, gb.Selected)

	lr, _ := selectionByID(sels, "logistic_regression")
	assert.True(t, lr.Selected)
	assert.Equal(t, 1, lr.Priority)

	// deselected entries sort after every selected one
	assert.Equal(t, "gradient_boosting", sels[len(sels)-1].ModelID)
}

func TestSelectLargeDataset(t *testing.T) {
	sels, err := Select("classification", 50000, 20, 80)
	require.NoError(t, err)

	gb, _ := selectionByID(sels, "gradient_boosting")
	assert.True(t, gb.Selected)
	assert.Equal(t, 1, gb.Priority)

	knn, _ := selectionByID(sels, "knn")
	assert.True(t, knn.Selected)
	assert.Equal(t, 3, knn.Priority)
	assert.Contains(t, knn.Reason, "slow on large datasets")
}

func TestSelectBaselinePriority(t *testing.T) {
	sels, err := Select("regression", 2000, 10, 60)
	require.NoError(t, err)

	lin, _ := selectionByID(sels, "linear_regression")
	assert.Equal(t, 1, lin.Priority)
}

func TestSelectAccuracyNeedsQuality(t *testing.T) {
	good, err := Select("classification", 2000, 10, 85)
	require.NoError(t, err)
	rf, _ := selectionByID(good, "random_forest")
	assert.Equal(t, 1, rf.Priority)

	poor, err := Select("classification", 2000, 10, 40)
	require.NoError(t, err)
	rf, _ = selectionByID(poor, "random_forest")
	assert.Equal(t, 2, rf.Priority)
}

func TestSelectCarriesDefaultParams(t *testing.T) {
	sels, err := Select("classification", 500, 10, 70)
	require.NoError(t, err)

	rf, _ := selectionByID(sels, "random_forest")
	assert.Equal(t, 100, rf.Params["n_estimators"])

	// mutating a selection's params must not leak into the catalog
	rf.Params["n_estimators"] = 1
	m, _ := Lookup("classification", "random_forest")
	assert.Equal(t, 100, m.DefaultParams["n_estimators"])
}

func TestReasoning(t *testing.T) {
	s := Reasoning("classification", 500, 12, 88.5)
	assert.Contains(t, s, "Task type: classification")
	assert.Contains(t, s, "Small dataset")
}
