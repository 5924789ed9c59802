package preprocess

import (
	"math"
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"github.com/tabml/automl-backend/internal/apperr"
	"github.com/tabml/automl-backend/internal/tabular"
)

// Stats summarizes one preprocessing run.
type Stats struct {
	DuplicatesRemoved int `json:"duplicates_removed"`
	TotalFeatures     int `json:"total_features"`
	TrainSamples      int `json:"train_samples"`
	TestSamples       int `json:"test_samples"`
	ValSamples        int `json:"val_samples"`
}

// Result is the outcome of executing a plan.
type Result struct {
	Artifact *Artifact
	Stats    Stats
	// Preview holds the first train rows keyed by feature name.
	Preview []map[string]float64
}

// Executor fits a plan's transformers on a dataset and produces numeric
// train/test/validation splits.
type Executor struct {
	log *zap.Logger
}

// NewExecutor creates an executor.
func NewExecutor(log *zap.Logger) *Executor {
	return &Executor{log: log}
}

// Execute runs the plan: deduplicate, drop columns, separate the target,
// impute, encode, scale, encode the target and split. The input table is not
// modified.
func (e *Executor) Execute(t *tabular.Table, plan *Plan, taskType string) (*Result, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	work, removed := copyTable(t), 0
	if plan.RemoveDuplicates {
		work, removed = work.DropDuplicates()
	}
	if work.NumRows() == 0 {
		return nil, apperr.Validation("dataset has no rows to preprocess")
	}

	var dropCols []string
	for _, c := range plan.Columns {
		if c.Role == RoleDrop {
			dropCols = append(dropCols, c.Name)
		}
	}
	work = work.DropColumns(dropCols...)

	targetCol := plan.TargetColumn()
	var yCells []string
	if targetCol != "" {
		cells, ok := work.Column(targetCol)
		if !ok {
			return nil, apperr.Validation("target column %q not found in dataset", targetCol)
		}
		yCells = cells
		work = work.DropColumns(targetCol)
	}

	tf := newTransformers()

	// Imputation runs on feature columns only and fits per column, so the
	// fill values reflect the deduplicated data.
	for _, cc := range plan.Columns {
		if cc.Imputation == nil {
			continue
		}
		cells, ok := work.Column(cc.Name)
		if !ok || !hasMissing(cells) {
			continue
		}
		imp, err := FitImputer(cc.Imputation, cells)
		if err != nil {
			return nil, apperr.Validation("impute column %q: %v", cc.Name, err)
		}
		imp.Apply(cells)
		tf.Imputers[cc.Name] = imp
	}

	// Encoding. One-hot columns are removed from their original position
	// and their indicator blocks appended after the remaining features;
	// label-encoded columns stay in place as integer codes.
	labelCols := map[string]*LabelEncoder{}
	var onehotOrder []string
	for _, cc := range plan.Columns {
		if cc.Encoding == nil {
			continue
		}
		cells, ok := work.Column(cc.Name)
		if !ok {
			continue
		}
		switch cc.Encoding.Method {
		case EncodeOneHot:
			enc := FitOneHot(cc.Name, cells, cc.Encoding.DropFirst)
			tf.OneHot[cc.Name] = enc
			onehotOrder = append(onehotOrder, cc.Name)
		case EncodeLabel, EncodeOrdinal:
			enc := FitLabel(cells)
			tf.Label[cc.Name] = enc
			labelCols[cc.Name] = enc
		}
	}

	var baseNames []string
	for _, name := range work.Columns {
		if _, ok := tf.OneHot[name]; !ok {
			baseNames = append(baseNames, name)
		}
	}
	featureNames := append([]string{}, baseNames...)
	for _, name := range onehotOrder {
		featureNames = append(featureNames, tf.OneHot[name].FeatureNames()...)
	}

	// Materialize the numeric matrix column by column.
	n := work.NumRows()
	cols := make([][]float64, 0, len(featureNames))
	for _, name := range baseNames {
		cells, _ := work.Column(name)
		col := make([]float64, n)
		if enc, ok := labelCols[name]; ok {
			for i, c := range cells {
				code, _ := enc.Encode(c)
				col[i] = float64(code)
			}
		} else {
			for i, c := range cells {
				v, ok := tabular.ParseFloat(c)
				if !ok {
					return nil, apperr.Validation("feature column %q contains non-numeric value %q; add an encoding or imputation step", name, c)
				}
				col[i] = v
			}
		}
		cols = append(cols, col)
	}
	for _, name := range onehotOrder {
		enc := tf.OneHot[name]
		cells, _ := work.Column(name)
		width := len(enc.kept())
		block := make([][]float64, width)
		for w := range block {
			block[w] = make([]float64, n)
		}
		for i, c := range cells {
			vec := enc.Encode(c)
			for w := range vec {
				block[w][i] = vec[w]
			}
		}
		cols = append(cols, block...)
	}

	// Scaling applies to columns still present under their original name,
	// so one-hot outputs are never rescaled.
	for _, cc := range plan.Columns {
		if cc.Scaling == nil || cc.Scaling.Method == ScaleNone {
			continue
		}
		idx := indexOf(baseNames, cc.Name)
		if idx < 0 {
			continue
		}
		scaler, err := FitScaler(cc.Scaling.Method, cols[idx])
		if err != nil {
			return nil, apperr.Validation("scale column %q: %v", cc.Name, err)
		}
		for i, v := range cols[idx] {
			cols[idx][i] = scaler.Transform(v)
		}
		tf.Scalers[cc.Name] = scaler
	}

	x := toRows(cols, n)

	art := &Artifact{
		TaskType:     taskType,
		FeatureNames: featureNames,
		Transformers: tf,
	}
	stats := Stats{DuplicatesRemoved: removed, TotalFeatures: len(featureNames)}

	if yCells == nil {
		art.XTrain = x
		stats.TrainSamples = n
		return &Result{Artifact: art, Stats: stats, Preview: preview(art.XTrain, featureNames)}, nil
	}

	y, err := encodeTarget(yCells, taskType, tf)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(plan.Split.RandomState))
	trainIdx, testIdx := splitIndices(y, plan.Split.TestSize, plan.Split.Stratify, rng)
	if plan.Split.ValidationSize > 0 {
		valRatio := plan.Split.ValidationSize / (1 - plan.Split.TestSize)
		ySub := gather(y, trainIdx)
		subTrain, subVal := splitIndices(ySub, valRatio, plan.Split.Stratify, rng)
		valIdx := pick(trainIdx, subVal)
		trainIdx = pick(trainIdx, subTrain)
		art.XVal = gatherRows(x, valIdx)
		art.YVal = gather(y, valIdx)
	}

	art.XTrain = gatherRows(x, trainIdx)
	art.YTrain = gather(y, trainIdx)
	art.XTest = gatherRows(x, testIdx)
	art.YTest = gather(y, testIdx)

	stats.TrainSamples = len(art.XTrain)
	stats.TestSamples = len(art.XTest)
	stats.ValSamples = len(art.XVal)

	e.log.Info("preprocessing complete",
		zap.Int("features", stats.TotalFeatures),
		zap.Int("train_samples", stats.TrainSamples),
		zap.Int("test_samples", stats.TestSamples),
		zap.Int("val_samples", stats.ValSamples),
		zap.Int("duplicates_removed", stats.DuplicatesRemoved))

	return &Result{Artifact: art, Stats: stats, Preview: preview(art.XTrain, featureNames)}, nil
}

func encodeTarget(cells []string, taskType string, tf *Transformers) ([]float64, error) {
	y := make([]float64, len(cells))
	if taskType == "classification" {
		enc := FitLabel(cells)
		tf.Target = enc
		for i, c := range cells {
			code, _ := enc.Encode(c)
			y[i] = float64(code)
		}
		return y, nil
	}
	for i, c := range cells {
		v, ok := tabular.ParseFloat(c)
		if !ok {
			return nil, apperr.Validation("target contains non-numeric value %q for a regression task", c)
		}
		y[i] = v
	}
	return y, nil
}

// splitIndices partitions 0..n-1 into held-in and held-out sets. The
// held-out set gets ceil(n*size) rows. With stratification each target
// class contributes proportionally, largest remainders first.
func splitIndices(y []float64, size float64, stratify bool, rng *rand.Rand) (in, out []int) {
	n := len(y)
	nOut := int(math.Ceil(float64(n) * size))
	if nOut > n {
		nOut = n
	}

	if stratify && distinctCount(y) < 50 {
		return stratifiedSplit(y, nOut, rng)
	}

	perm := rng.Perm(n)
	out = append(out, perm[:nOut]...)
	in = append(in, perm[nOut:]...)
	sort.Ints(in)
	sort.Ints(out)
	return in, out
}

func stratifiedSplit(y []float64, nOut int, rng *rand.Rand) (in, out []int) {
	groups := map[float64][]int{}
	var order []float64
	for i, v := range y {
		if _, ok := groups[v]; !ok {
			order = append(order, v)
		}
		groups[v] = append(groups[v], i)
	}
	sort.Float64s(order)

	type alloc struct {
		class float64
		take  int
		frac  float64
	}
	allocs := make([]alloc, 0, len(order))
	taken := 0
	for _, class := range order {
		exact := float64(nOut) * float64(len(groups[class])) / float64(len(y))
		take := int(exact)
		allocs = append(allocs, alloc{class: class, take: take, frac: exact - float64(take)})
		taken += take
	}
	sort.SliceStable(allocs, func(i, j int) bool { return allocs[i].frac > allocs[j].frac })
	for i := 0; taken < nOut && i < len(allocs); i++ {
		if allocs[i].take < len(groups[allocs[i].class]) {
			allocs[i].take++
			taken++
		}
	}

	for _, a := range allocs {
		idx := append([]int{}, groups[a.class]...)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		out = append(out, idx[:a.take]...)
		in = append(in, idx[a.take:]...)
	}
	sort.Ints(in)
	sort.Ints(out)
	return in, out
}

func distinctCount(y []float64) int {
	set := map[float64]struct{}{}
	for _, v := range y {
		set[v] = struct{}{}
	}
	return len(set)
}

func copyTable(t *tabular.Table) *tabular.Table {
	idx := make([]int, t.NumRows())
	for i := range idx {
		idx[i] = i
	}
	return t.SelectRows(idx)
}

func hasMissing(cells []string) bool {
	for _, c := range cells {
		if tabular.IsMissing(c) {
			return true
		}
	}
	return false
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func toRows(cols [][]float64, n int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, len(cols))
		for c := range cols {
			row[c] = cols[c][i]
		}
		rows[i] = row
	}
	return rows
}

func gather(y []float64, idx []int) []float64 {
	out := make([]float64, 0, len(idx))
	for _, i := range idx {
		out = append(out, y[i])
	}
	return out
}

func gatherRows(x [][]float64, idx []int) [][]float64 {
	out := make([][]float64, 0, len(idx))
	for _, i := range idx {
		out = append(out, x[i])
	}
	return out
}

func pick(base []int, sub []int) []int {
	out := make([]int, 0, len(sub))
	for _, i := range sub {
		out = append(out, base[i])
	}
	return out
}

func preview(x [][]float64, names []string) []map[string]float64 {
	limit := 5
	if len(x) < limit {
		limit = len(x)
	}
	out := make([]map[string]float64, 0, limit)
	for i := 0; i < limit; i++ {
		row := make(map[string]float64, len(names))
		for j, name := range names {
			row[name] = x[i][j]
		}
		out = append(out, row)
	}
	return out
}
