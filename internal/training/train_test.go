package training

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tabml/automl-backend/internal/catalog"
	"github.com/tabml/automl-backend/internal/config"
	"github.com/tabml/automl-backend/internal/preprocess"
	"github.com/tabml/automl-backend/internal/storage"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	modelDir, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)
	return &Engine{
		cfg:      &config.Config{},
		log:      zap.NewNop(),
		modelDir: modelDir,
	}
}

// singleClassArtifact has a one-class target, which logistic regression
// refuses to fit while a decision tree handles fine.
func singleClassArtifact() *preprocess.Artifact {
	return &preprocess.Artifact{
		TaskType:     "classification",
		FeatureNames: []string{"a", "b"},
		XTrain:       [][]float64{{0, 1}, {1, 0}, {2, 1}, {3, 0}},
		YTrain:       []float64{0, 0, 0, 0},
		XTest:        [][]float64{{4, 1}, {5, 0}},
		YTest:        []float64{0, 0},
	}
}

func TestTrainCandidateFailureDoesNotStopBatch(t *testing.T) {
	e := testEngine(t)
	artifact := singleClassArtifact()

	failed := e.trainCandidate("proj", artifact, "classification",
		catalog.Selection{ModelID: "logistic_regression"}, 0)
	assert.Equal(t, "failed", failed.Status)
	assert.Contains(t, failed.Error, "single class")
	assert.Empty(t, failed.Metrics)

	ok := e.trainCandidate("proj", artifact, "classification",
		catalog.Selection{ModelID: "decision_tree"}, 0)
	assert.Equal(t, "completed", ok.Status)
	assert.Empty(t, ok.Error)
	assert.Equal(t, 1.0, ok.Metrics["accuracy"])
	assert.NotEmpty(t, ok.ModelPath)

	doc := buildTrainingDoc("classification", []ModelResult{failed, ok}, 0)
	assert.Equal(t, 2, doc.ModelsTrained)
	assert.Equal(t, 1, doc.ModelsSuccessful)
	require.NotNil(t, doc.BestModel)
	assert.Equal(t, "decision_tree", doc.BestModel.ModelID)
	// the completed candidate ranks ahead of the failed one
	assert.Equal(t, "decision_tree", doc.AllResults[0].ModelID)
}

func TestTrainCandidateUnknownModel(t *testing.T) {
	e := testEngine(t)
	result := e.trainCandidate("proj", singleClassArtifact(), "classification",
		catalog.Selection{ModelID: "mystery_model"}, 0)
	assert.Equal(t, "failed", result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestBuildTrainingDocNoCompletedCandidates(t *testing.T) {
	doc := buildTrainingDoc("classification", []ModelResult{
		{ModelID: "m1", Status: "failed", Error: "fit blew up"},
		{ModelID: "m2", Status: "failed", Error: "fit blew up"},
	}, 0)
	assert.Equal(t, 2, doc.ModelsTrained)
	assert.Equal(t, 0, doc.ModelsSuccessful)
	assert.Nil(t, doc.BestModel)
}
