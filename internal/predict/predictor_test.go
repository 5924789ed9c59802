package predict

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tabml/automl-backend/internal/apperr"
	"github.com/tabml/automl-backend/internal/estimator"
	"github.com/tabml/automl-backend/internal/preprocess"
	"github.com/tabml/automl-backend/internal/storage"
	"github.com/tabml/automl-backend/internal/tabular"
)

// fixtureArtifact builds transformers as a real preprocessing run would fit
// them: a scaled numeric age, a one-hot color and a label-encoded target.
func fixtureArtifact() *preprocess.Artifact {
	onehot := preprocess.FitOneHot("color", []string{"blue", "green", "red"}, true)
	scaler, _ := preprocess.FitScaler(preprocess.ScaleStandard, []float64{10, 20, 30})
	target := preprocess.FitLabel([]string{"no", "yes"})
	imputer, _ := preprocess.FitImputer(
		&preprocess.ImputationConfig{Strategy: preprocess.ImputeConstant, FillValue: "20"},
		[]string{"10", "", "30"})

	return &preprocess.Artifact{
		TaskType:     "classification",
		FeatureNames: []string{"age", "color_green", "color_red"},
		Transformers: &preprocess.Transformers{
			Imputers: map[string]*preprocess.Imputer{"age": imputer},
			OneHot:   map[string]*preprocess.OneHotEncoder{"color": onehot},
			Label:    map[string]*preprocess.LabelEncoder{},
			Scalers:  map[string]*preprocess.Scaler{"age": scaler},
			Target:   target,
		},
	}
}

func mustTable(t *testing.T, csv string) *tabular.Table {
	t.Helper()
	table, err := tabular.ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	return table
}

func TestEncodeRows(t *testing.T) {
	table := mustTable(t, "age,color\n20,green\n30,red\n")
	rows, warnings, err := encodeRows(fixtureArtifact(), table)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Empty(t, warnings)

	// age 20 is the fitted mean, so it scales to zero
	assert.InDelta(t, 0.0, rows[0][0], 1e-9)
	assert.Equal(t, []float64{1, 0}, rows[0][1:])
	assert.Equal(t, []float64{0, 1}, rows[1][1:])
	assert.Greater(t, rows[1][0], 0.0)
}

func TestEncodeRowsIgnoresUnknownColumns(t *testing.T) {
	table := mustTable(t, "age,color,comment\n20,green,hello\n")
	_, warnings, err := encodeRows(fixtureArtifact(), table)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], `"comment"`)
	assert.Contains(t, warnings[0], "ignored")
}

func TestEncodeRowsSynthesizesAbsentFeatures(t *testing.T) {
	table := mustTable(t, "age\n20\n30\n")
	rows, warnings, err := encodeRows(fixtureArtifact(), table)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 0}, rows[0][1:])
	// one warning per synthesized feature regardless of row count
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "synthesized as 0")
}

func TestEncodeRowsUnseenCategory(t *testing.T) {
	table := mustTable(t, "age,color\n20,purple\n")
	rows, warnings, err := encodeRows(fixtureArtifact(), table)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 0}, rows[0][1:])
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "unseen at training time")
}

func TestEncodeRowsImputesMissing(t *testing.T) {
	table := mustTable(t, "age,color\n,green\n")
	rows, warnings, err := encodeRows(fixtureArtifact(), table)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	// the imputer fills the fitted mean, which scales to zero
	assert.InDelta(t, 0.0, rows[0][0], 1e-9)
}

func TestEncodeRowsNonNumeric(t *testing.T) {
	table := mustTable(t, "age,color\nabc,green\n")
	_, _, err := encodeRows(fixtureArtifact(), table)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), `"age"`)
}

func TestEncodeRowsDeduplicatesWarnings(t *testing.T) {
	table := mustTable(t, "age,color\n20,purple\n30,orange\n10,violet\n")
	_, warnings, err := encodeRows(fixtureArtifact(), table)
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
}

func TestRunEndToEnd(t *testing.T) {
	processed, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)
	modelDir, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)

	artifact := fixtureArtifact()
	require.NoError(t, preprocess.SaveArtifact(processed, "proc1", artifact))

	// train a small model on the artifact's feature space: class follows
	// the color_red indicator
	x := [][]float64{{-1, 1, 0}, {0, 0, 1}, {1, 1, 0}, {0.5, 0, 1}}
	y := []float64{0, 1, 0, 1}
	est, err := estimator.New("classification", "decision_tree", nil)
	require.NoError(t, err)
	require.NoError(t, est.Fit(x, y))
	require.NoError(t, estimator.Save(modelDir, "proj1_decision_tree.json", "classification", "decision_tree", nil, est))

	p := New(zap.NewNop(), processed, modelDir)
	table := mustTable(t, "age,color\n20,green\n20,red\n")
	resp, err := p.Run("proj1", "proc1", "decision_tree", table)
	require.NoError(t, err)

	assert.Equal(t, "decision_tree", resp.ModelID)
	assert.Equal(t, 2, resp.RowCount)
	assert.Equal(t, []interface{}{"no", "yes"}, resp.Predictions)
	require.Len(t, resp.Probabilities, 2)
	assert.Greater(t, resp.Probabilities[1]["yes"], 0.5)
}

func TestRunRejectsEmptyInput(t *testing.T) {
	p := New(zap.NewNop(), nil, nil)
	_, err := p.Run("proj1", "proc1", "m", &tabular.Table{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestPredictionsCSV(t *testing.T) {
	table := mustTable(t, "age,color\n20,green\n30,red\n")
	resp := &Response{Predictions: []interface{}{"no", 1.5}}

	records := PredictionsCSV(table, resp)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"age", "color", "prediction"}, records[0])
	assert.Equal(t, []string{"20", "green", "no"}, records[1])
	assert.Equal(t, []string{"30", "red", "1.5"}, records[2])
}
