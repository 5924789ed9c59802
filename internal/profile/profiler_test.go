package profile

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tabml/automl-backend/internal/tabular"
)

func mustTable(t *testing.T, csv string) *tabular.Table {
	t.Helper()
	table, err := tabular.ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	return table
}

// buildCSV makes n rows of a numeric id, a numeric feature, a three-level
// category and a binary churn target.
func buildCSV(n int) string {
	var b strings.Builder
	b.WriteString("id,age,plan,churn\n")
	plans := []string{"basic", "plus", "pro"}
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d,%d,%s,%d\n", i, 20+i%40, plans[i%3], i%2)
	}
	return b.String()
}

func TestAnalyzeColumnProfiles(t *testing.T) {
	table := mustTable(t, buildCSV(200))
	report := New(zap.NewNop()).Analyze(table, "")

	require.Len(t, report.ColumnAnalysis, 4)
	byName := map[string]ColumnProfile{}
	for _, c := range report.ColumnAnalysis {
		byName[c.Name] = c
	}

	assert.Equal(t, SemanticNumeric, byName["age"].SemanticType)
	assert.Equal(t, "int64", byName["age"].DType)
	require.NotNil(t, byName["age"].Mean)

	assert.Equal(t, SemanticCategorical, byName["plan"].SemanticType)
	assert.Equal(t, 3, byName["plan"].UniqueCount)
	assert.NotEmpty(t, byName["plan"].TopValues)

	assert.Equal(t, 200, report.TotalRows)
	assert.Equal(t, 4, report.TotalColumns)
}

func TestAnalyzeTextColumn(t *testing.T) {
	var b strings.Builder
	b.WriteString("note\n")
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&b, "free text entry number %d with some words\n", i)
	}
	report := New(zap.NewNop()).Analyze(mustTable(t, b.String()), "")

	col := report.ColumnAnalysis[0]
	assert.Equal(t, SemanticText, col.SemanticType)
	require.NotNil(t, col.AvgLength)
	assert.Greater(t, *col.AvgLength, 0.0)
}

func TestAnalyzeBinaryTargetInference(t *testing.T) {
	table := mustTable(t, buildCSV(200))
	report := New(zap.NewNop()).Analyze(table, "")

	assert.Equal(t, "classification", report.TaskType)
	require.NotEmpty(t, report.TargetCandidates)
	// churn is binary and has no name hint; id scores via uniqueness only
	// when numeric ratio is high, so churn leads on the binary bonus.
	assert.Equal(t, "churn", report.TargetCandidates[0].Column)
	assert.Equal(t, "classification", report.TargetCandidates[0].SuggestedTask)
}

func TestAnalyzeDescriptionKeywords(t *testing.T) {
	table := mustTable(t, "x,amount\n1,10.5\n2,20.25\n3,30.75\n4,41.5\n5,52.25\n")
	report := New(zap.NewNop()).Analyze(table, "forecast the sale price for each listing")
	assert.Equal(t, "regression", report.TaskType)
	assert.GreaterOrEqual(t, report.TaskConfidence, 0.3)
	assert.LessOrEqual(t, report.TaskConfidence, 0.95)
}

func TestQualityScorePenalizesMissing(t *testing.T) {
	clean := New(zap.NewNop()).Analyze(mustTable(t, buildCSV(200)), "")

	var b strings.Builder
	b.WriteString("id,age,plan,churn\n")
	plans := []string{"basic", "plus", "pro"}
	for i := 0; i < 200; i++ {
		age := fmt.Sprintf("%d", 20+i%40)
		if i%2 == 0 {
			age = ""
		}
		fmt.Fprintf(&b, "%d,%s,%s,%d\n", i, age, plans[i%3], i%2)
	}
	dirty := New(zap.NewNop()).Analyze(mustTable(t, b.String()), "")

	assert.Greater(t, clean.DataQualityScore, dirty.DataQualityScore)
	assert.LessOrEqual(t, clean.DataQualityScore, 100.0)
	assert.GreaterOrEqual(t, dirty.DataQualityScore, 0.0)
}

func TestDetectIssuesConstantAndSmall(t *testing.T) {
	table := mustTable(t, "a,b\n1,x\n2,x\n3,x\n")
	report := New(zap.NewNop()).Analyze(table, "")

	types := map[string]bool{}
	for _, is := range report.Issues {
		types[is.Type] = true
	}
	assert.True(t, types["constant"], "constant column should be flagged")
	assert.True(t, types["small_dataset"], "tiny datasets should be flagged")
	assert.Equal(t,
		report.IssueSummary.High+report.IssueSummary.Medium+report.IssueSummary.Low,
		len(report.Issues))
}

func TestDetectTaskNameHint(t *testing.T) {
	table := mustTable(t, "feature,label\n1.5,a\n2.5,b\n3.5,a\n4.5,c\n5.5,b\n")
	report := New(zap.NewNop()).Analyze(table, "")

	require.NotEmpty(t, report.TargetCandidates)
	assert.Equal(t, "label", report.TargetCandidates[0].Column)
}
