package preprocess

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tabml/automl-backend/internal/apperr"
	"github.com/tabml/automl-backend/internal/profile"
	"github.com/tabml/automl-backend/internal/tabular"
)

func mustTable(t *testing.T, csv string) *tabular.Table {
	t.Helper()
	table, err := tabular.ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	return table
}

func testPlan() *Plan {
	return &Plan{
		Split:            DefaultSplit(),
		RemoveDuplicates: true,
		Columns: []ColumnConfig{
			{Name: "age", Role: RoleFeature, Scaling: &ScalingConfig{Method: ScaleStandard}},
			{Name: "color", Role: RoleFeature, Encoding: &EncodingConfig{Method: EncodeOneHot, DropFirst: true}},
			{Name: "target", Role: RoleTarget},
		},
	}
}

func tenRowCSV() string {
	var b strings.Builder
	b.WriteString("age,color,target\n")
	colors := []string{"red", "green", "blue"}
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "%d,%s,%s\n", 20+i, colors[i%3], map[bool]string{true: "yes", false: "no"}[i%2 == 0])
	}
	return b.String()
}

func TestExecuteSplitSizes(t *testing.T) {
	result, err := NewExecutor(zap.NewNop()).Execute(mustTable(t, tenRowCSV()), testPlan(), "classification")
	require.NoError(t, err)

	assert.Equal(t, 8, result.Stats.TrainSamples)
	assert.Equal(t, 2, result.Stats.TestSamples)
	assert.Equal(t, 0, result.Stats.ValSamples)
	assert.Len(t, result.Artifact.XTrain, 8)
	assert.Len(t, result.Artifact.YTrain, 8)
	assert.Len(t, result.Artifact.XTest, 2)
}

func TestExecuteFeatureNames(t *testing.T) {
	result, err := NewExecutor(zap.NewNop()).Execute(mustTable(t, tenRowCSV()), testPlan(), "classification")
	require.NoError(t, err)

	// one-hot block (blue dropped as first lexicographic level) follows
	// the base numeric column
	assert.Equal(t, []string{"age", "color_green", "color_red"}, result.Artifact.FeatureNames)
	assert.Equal(t, 3, result.Stats.TotalFeatures)
}

func TestExecuteDeterminism(t *testing.T) {
	a, err := NewExecutor(zap.NewNop()).Execute(mustTable(t, tenRowCSV()), testPlan(), "classification")
	require.NoError(t, err)
	b, err := NewExecutor(zap.NewNop()).Execute(mustTable(t, tenRowCSV()), testPlan(), "classification")
	require.NoError(t, err)

	assert.Equal(t, a.Artifact.XTrain, b.Artifact.XTrain)
	assert.Equal(t, a.Artifact.YTest, b.Artifact.YTest)
}

func TestExecuteTargetEncoding(t *testing.T) {
	result, err := NewExecutor(zap.NewNop()).Execute(mustTable(t, tenRowCSV()), testPlan(), "classification")
	require.NoError(t, err)

	require.NotNil(t, result.Artifact.Transformers.Target)
	assert.Equal(t, []string{"no", "yes"}, result.Artifact.TargetClasses())
	for _, v := range result.Artifact.YTrain {
		assert.Contains(t, []float64{0, 1}, v)
	}
}

func TestExecuteRegressionTargetMustBeNumeric(t *testing.T) {
	plan := testPlan()
	_, err := NewExecutor(zap.NewNop()).Execute(mustTable(t, tenRowCSV()), plan, "regression")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestExecuteNonNumericFeatureWithoutEncoding(t *testing.T) {
	plan := &Plan{
		Split: DefaultSplit(),
		Columns: []ColumnConfig{
			{Name: "age", Role: RoleFeature},
			{Name: "color", Role: RoleFeature},
			{Name: "target", Role: RoleTarget},
		},
	}
	_, err := NewExecutor(zap.NewNop()).Execute(mustTable(t, tenRowCSV()), plan, "classification")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "color")
}

func TestExecuteImputation(t *testing.T) {
	csv := "age,target\n10,1\n20,0\n,1\n40,0\n30,1\n50,0\n60,1\n70,0\n80,1\n90,0\n"
	plan := &Plan{
		Split: DefaultSplit(),
		Columns: []ColumnConfig{
			{Name: "age", Role: RoleFeature, Imputation: &ImputationConfig{Strategy: ImputeMedian}},
			{Name: "target", Role: RoleTarget},
		},
	}
	result, err := NewExecutor(zap.NewNop()).Execute(mustTable(t, csv), plan, "classification")
	require.NoError(t, err)

	imp, ok := result.Artifact.Transformers.Imputers["age"]
	require.True(t, ok)
	assert.Equal(t, ImputeMedian, imp.Strategy)
	assert.Equal(t, "50", imp.FillValue)
}

func TestExecuteRemovesDuplicates(t *testing.T) {
	csv := "age,target\n10,1\n10,1\n20,0\n30,1\n40,0\n50,1\n60,0\n70,1\n80,0\n90,1\n100,0\n"
	plan := &Plan{
		Split:            DefaultSplit(),
		RemoveDuplicates: true,
		Columns: []ColumnConfig{
			{Name: "age", Role: RoleFeature},
			{Name: "target", Role: RoleTarget},
		},
	}
	result, err := NewExecutor(zap.NewNop()).Execute(mustTable(t, csv), plan, "classification")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.DuplicatesRemoved)
	assert.Equal(t, 10, result.Stats.TrainSamples+result.Stats.TestSamples)
}

func TestExecuteValidationSplit(t *testing.T) {
	var b strings.Builder
	b.WriteString("age,target\n")
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&b, "%d,%d\n", i, i%2)
	}
	plan := &Plan{
		Split: SplitConfig{TestSize: 0.2, ValidationSize: 0.1, RandomState: 42},
		Columns: []ColumnConfig{
			{Name: "age", Role: RoleFeature},
			{Name: "target", Role: RoleTarget},
		},
	}
	result, err := NewExecutor(zap.NewNop()).Execute(mustTable(t, b.String()), plan, "classification")
	require.NoError(t, err)

	assert.Equal(t, 20, result.Stats.TestSamples)
	assert.Equal(t, 10, result.Stats.ValSamples)
	assert.Equal(t, 70, result.Stats.TrainSamples)
}

func TestExecuteStratifiedSplit(t *testing.T) {
	var b strings.Builder
	b.WriteString("age,target\n")
	for i := 0; i < 100; i++ {
		cls := 0
		if i%10 == 0 {
			cls = 1
		}
		fmt.Fprintf(&b, "%d,%d\n", i, cls)
	}
	plan := &Plan{
		Split: SplitConfig{TestSize: 0.2, RandomState: 7, Stratify: true},
		Columns: []ColumnConfig{
			{Name: "age", Role: RoleFeature},
			{Name: "target", Role: RoleTarget},
		},
	}
	result, err := NewExecutor(zap.NewNop()).Execute(mustTable(t, b.String()), plan, "classification")
	require.NoError(t, err)

	minority := 0
	for _, v := range result.Artifact.YTest {
		if v == 1 {
			minority++
		}
	}
	assert.Equal(t, 2, minority, "minority class should contribute 2 of 20 test rows")
}

func TestExecuteMissingTargetColumn(t *testing.T) {
	plan := testPlan()
	plan.Columns[2].Name = "label"

	result, err := NewExecutor(zap.NewNop()).Execute(mustTable(t, tenRowCSV()), plan, "classification")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), `"label"`)
}

func TestExecuteEmptyTable(t *testing.T) {
	result, err := NewExecutor(zap.NewNop()).Execute(mustTable(t, "age,color,target\n"), testPlan(), "classification")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestExecuteAllRowsDuplicated(t *testing.T) {
	csv := "age,target\n10,1\n10,1\n10,1\n"
	plan := &Plan{
		Split:            DefaultSplit(),
		RemoveDuplicates: true,
		Columns: []ColumnConfig{
			{Name: "age", Role: RoleFeature},
			{Name: "target", Role: RoleTarget},
		},
	}
	// two duplicates removed, one row left: still preprocessable
	result, err := NewExecutor(zap.NewNop()).Execute(mustTable(t, csv), plan, "classification")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Stats.DuplicatesRemoved)
}

func TestExecuteOrdinalEncoding(t *testing.T) {
	plan := testPlan()
	plan.Columns[1].Encoding = &EncodingConfig{Method: EncodeOrdinal}
	require.NoError(t, plan.Validate())

	result, err := NewExecutor(zap.NewNop()).Execute(mustTable(t, tenRowCSV()), plan, "classification")
	require.NoError(t, err)

	// ordinal-encoded columns keep their position as integer codes
	assert.Equal(t, []string{"age", "color"}, result.Artifact.FeatureNames)
	enc, ok := result.Artifact.Transformers.Label["color"]
	require.True(t, ok)
	assert.Equal(t, []string{"blue", "green", "red"}, enc.Classes)
}

func TestAutoPlanFromReport(t *testing.T) {
	report := &profile.Report{
		ColumnAnalysis: []profile.ColumnProfile{
			{Name: "id", SemanticType: profile.SemanticNumeric},
			{Name: "age", SemanticType: profile.SemanticNumeric, MissingPct: 5},
			{Name: "city", SemanticType: profile.SemanticCategorical, UniqueCount: 4},
			{Name: "code", SemanticType: profile.SemanticCategorical, UniqueCount: 40},
			{Name: "churn", SemanticType: profile.SemanticCategorical, UniqueCount: 2},
		},
	}
	plan := AutoPlan(report, "churn")
	require.NoError(t, plan.Validate())

	byName := map[string]ColumnConfig{}
	for _, c := range plan.Columns {
		byName[c.Name] = c
	}
	assert.Equal(t, RoleDrop, byName["id"].Role)
	assert.Equal(t, RoleTarget, byName["churn"].Role)
	require.NotNil(t, byName["age"].Imputation)
	assert.Equal(t, ImputeMedian, byName["age"].Imputation.Strategy)
	require.NotNil(t, byName["age"].Scaling)
	assert.Equal(t, ScaleStandard, byName["age"].Scaling.Method)
	require.NotNil(t, byName["city"].Encoding)
	assert.Equal(t, EncodeOneHot, byName["city"].Encoding.Method)
	assert.True(t, byName["city"].Encoding.DropFirst)
	require.NotNil(t, byName["code"].Encoding)
	assert.Equal(t, EncodeLabel, byName["code"].Encoding.Method)
	assert.Nil(t, byName["churn"].Encoding)
	assert.True(t, plan.RemoveDuplicates)
	assert.Equal(t, 0.2, plan.Split.TestSize)
}

func TestPlanValidate(t *testing.T) {
	plan := testPlan()
	require.NoError(t, plan.Validate())

	bad := testPlan()
	bad.Split.TestSize = 0.7
	assert.Error(t, bad.Validate())

	bad = testPlan()
	bad.Columns[0].Role = "mystery"
	assert.Error(t, bad.Validate())

	bad = testPlan()
	bad.Columns = append(bad.Columns, ColumnConfig{Name: "other", Role: RoleTarget})
	assert.Error(t, bad.Validate())

	empty := &Plan{Split: DefaultSplit()}
	assert.Error(t, empty.Validate())
}
