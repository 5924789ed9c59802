package test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tabml/automl-backend/internal/catalog"
	"github.com/tabml/automl-backend/internal/estimator"
	"github.com/tabml/automl-backend/internal/predict"
	"github.com/tabml/automl-backend/internal/preprocess"
	"github.com/tabml/automl-backend/internal/profile"
	"github.com/tabml/automl-backend/internal/storage"
	"github.com/tabml/automl-backend/internal/tabular"
	"github.com/tabml/automl-backend/internal/training"
)

// churnCSV builds a dataset where churn is fully determined by plan and
// usage, so a reasonable model should separate it well.
func churnCSV(n int) string {
	var b strings.Builder
	b.WriteString("id,usage,plan,churn\n")
	plans := []string{"basic", "plus", "pro"}
	for i := 0; i < n; i++ {
		plan := plans[i%3]
		usage := 10 + i%50
		churn := "no"
		if plan == "basic" && usage < 30 {
			churn = "yes"
		}
		fmt.Fprintf(&b, "%d,%d,%s,%s\n", i, usage, plan, churn)
	}
	return b.String()
}

// TestClassificationPipeline walks the whole modeling path on an in-memory
// dataset: profiling, automatic plan generation, preprocessing, model
// selection, training with evaluation, persistence and prediction replay.
func TestClassificationPipeline(t *testing.T) {
	log := zap.NewNop()
	table, err := tabular.ReadCSV(strings.NewReader(churnCSV(300)))
	require.NoError(t, err)

	// profiling infers the task and surfaces churn as a target candidate
	report := profile.New(log).Analyze(table, "predict which customers churn")
	require.Equal(t, "classification", report.TaskType)
	found := false
	for _, c := range report.TargetCandidates {
		if c.Column == "churn" {
			found = true
		}
	}
	require.True(t, found, "churn should be a target candidate")

	// the generated plan drops the id column and encodes the categorical
	plan := preprocess.AutoPlan(report, "churn")
	require.NoError(t, plan.Validate())

	result, err := preprocess.NewExecutor(log).Execute(table, plan, "classification")
	require.NoError(t, err)
	require.NotEmpty(t, result.Artifact.XTrain)
	require.NotEmpty(t, result.Artifact.XTest)
	assert.NotContains(t, result.Artifact.FeatureNames, "id")

	// catalog selection proposes candidates for the dataset size
	selections, err := catalog.Select("classification",
		result.Stats.TrainSamples+result.Stats.TestSamples,
		result.Stats.TotalFeatures, report.DataQualityScore)
	require.NoError(t, err)
	require.NotEmpty(t, selections)

	// train the first selected candidate and evaluate on the test split
	var chosen catalog.Selection
	for _, s := range selections {
		if s.Selected {
			chosen = s
			break
		}
	}
	require.NotEmpty(t, chosen.ModelID)

	info, err := catalog.Lookup("classification", chosen.ModelID)
	require.NoError(t, err)
	est, err := estimator.New("classification", chosen.ModelID, info.MergeParams(chosen.Params))
	require.NoError(t, err)
	require.NoError(t, est.Fit(result.Artifact.XTrain, result.Artifact.YTrain))

	pred, err := est.Predict(result.Artifact.XTest)
	require.NoError(t, err)
	acc := training.Accuracy(result.Artifact.YTest, pred)
	assert.Greater(t, acc, 0.7, "deterministic target should be learnable")

	// persist the artifact and model, then replay a prediction
	processed, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)
	modelDir, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, preprocess.SaveArtifact(processed, "proc", result.Artifact))
	require.NoError(t, estimator.Save(modelDir,
		fmt.Sprintf("proj_%s.json", chosen.ModelID),
		"classification", chosen.ModelID, chosen.Params, est))

	input, err := tabular.ReadCSV(strings.NewReader("usage,plan\n12,basic\n45,pro\n"))
	require.NoError(t, err)
	resp, err := predict.New(log, processed, modelDir).Run("proj", "proc", chosen.ModelID, input)
	require.NoError(t, err)

	require.Len(t, resp.Predictions, 2)
	assert.Equal(t, "yes", resp.Predictions[0])
	assert.Equal(t, "no", resp.Predictions[1])
}

// TestRegressionPipeline runs preprocessing and training on a numeric
// target with an explicit plan.
func TestRegressionPipeline(t *testing.T) {
	log := zap.NewNop()
	var b strings.Builder
	b.WriteString("sqft,rooms,price\n")
	for i := 0; i < 200; i++ {
		sqft := 500 + i*10
		rooms := 1 + i%5
		price := 100*sqft + 5000*rooms
		fmt.Fprintf(&b, "%d,%d,%d\n", sqft, rooms, price)
	}
	table, err := tabular.ReadCSV(strings.NewReader(b.String()))
	require.NoError(t, err)

	plan := &preprocess.Plan{
		Split: preprocess.DefaultSplit(),
		Columns: []preprocess.ColumnConfig{
			{Name: "sqft", Role: preprocess.RoleFeature, Scaling: &preprocess.ScalingConfig{Method: preprocess.ScaleStandard}},
			{Name: "rooms", Role: preprocess.RoleFeature},
			{Name: "price", Role: preprocess.RoleTarget},
		},
	}
	result, err := preprocess.NewExecutor(log).Execute(table, plan, "regression")
	require.NoError(t, err)

	est, err := estimator.New("regression", "linear_regression", nil)
	require.NoError(t, err)
	require.NoError(t, est.Fit(result.Artifact.XTrain, result.Artifact.YTrain))

	pred, err := est.Predict(result.Artifact.XTest)
	require.NoError(t, err)
	r2 := training.R2(result.Artifact.YTest, pred)
	assert.Greater(t, r2, 0.99, "exactly linear prices should fit almost perfectly")
}
