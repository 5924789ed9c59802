package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubClient struct {
	reply string
	err   error
}

func (s *stubClient) Complete(ctx context.Context, prompt string) (string, error) {
	return s.reply, s.err
}

func TestEnabled(t *testing.T) {
	var nilAdvisor *Advisor
	assert.False(t, nilAdvisor.Enabled())
	assert.False(t, NewAdvisor(nil, zap.NewNop()).Enabled())
	assert.True(t, NewAdvisor(&stubClient{}, zap.NewNop()).Enabled())
}

func TestAdviseAnalysis(t *testing.T) {
	a := NewAdvisor(&stubClient{reply: "```json\n" +
		`{"task_type": "classification", "target_column": "churn", "reasoning": "binary outcome"}` +
		"\n```"}, zap.NewNop())

	advice, err := a.AdviseAnalysis(context.Background(), DataSummary{Rows: 10}, "predict churn")
	require.NoError(t, err)
	assert.Equal(t, "classification", advice.TaskType)
	assert.Equal(t, "churn", advice.TargetColumn)
}

func TestAdviseAnalysisRejectsUnknownTask(t *testing.T) {
	a := NewAdvisor(&stubClient{reply: `{"task_type": "clustering", "target_column": "x"}`}, zap.NewNop())
	_, err := a.AdviseAnalysis(context.Background(), DataSummary{}, "")
	assert.Error(t, err)
}

func TestAdviseAnalysisClientError(t *testing.T) {
	a := NewAdvisor(&stubClient{err: errors.New("boom")}, zap.NewNop())
	_, err := a.AdviseAnalysis(context.Background(), DataSummary{}, "")
	assert.Error(t, err)
}

func TestProposeModel(t *testing.T) {
	a := NewAdvisor(&stubClient{
		reply: `{"model_id": "random_forest", "params": {"n_estimators": 200}, "reason": "more trees"}`,
	}, zap.NewNop())

	p, err := a.ProposeModel(context.Background(), "classification",
		[]string{"logistic_regression", "random_forest"}, "logistic_regression", 0.8, nil)
	require.NoError(t, err)
	assert.Equal(t, "random_forest", p.ModelID)
	assert.Equal(t, float64(200), p.Params["n_estimators"])
}

func TestProposeModelOutsideCatalog(t *testing.T) {
	a := NewAdvisor(&stubClient{reply: `{"model_id": "xgboost"}`}, zap.NewNop())
	_, err := a.ProposeModel(context.Background(), "classification",
		[]string{"logistic_regression"}, "logistic_regression", 0.8, nil)
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, ExtractJSON("```json\n{\"a\": 1}\n```"))
	assert.Equal(t, `{"a": 1}`, ExtractJSON("```\n{\"a\": 1}\n```"))
	assert.Equal(t, `{"a": 1}`, ExtractJSON(`  {"a": 1}  `))
}
