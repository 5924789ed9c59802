package estimator

import (
	"math"
	"math/rand"
)

// ForestClassifier is a bagged ensemble of CART classifiers. Each tree sees
// a bootstrap sample and sqrt(features) candidates per split; predictions
// average the per-tree class distributions.
type ForestClassifier struct {
	NEstimators     int   `json:"n_estimators"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	Seed            int64 `json:"seed"`

	Classes []float64   `json:"classes"`
	Trees   []*treeNode `json:"trees"`
}

// Fit grows the ensemble.
func (f *ForestClassifier) Fit(x [][]float64, y []float64) error {
	if err := validateShapes(x, y); err != nil {
		return err
	}
	if f.NEstimators <= 0 {
		f.NEstimators = 100
	}
	f.Classes = classCodes(y)
	codes, err := recode(y, f.Classes)
	if err != nil {
		return err
	}

	maxFeatures := int(math.Sqrt(float64(len(x[0]))))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	f.Trees = make([]*treeNode, f.NEstimators)
	for t := 0; t < f.NEstimators; t++ {
		rng := rand.New(rand.NewSource(f.Seed + int64(t)))
		idx := bootstrap(len(x), rng)
		f.Trees[t] = growTree(x, codes, idx, 0, treeParams{
			maxDepth:        f.MaxDepth,
			minSamplesSplit: maxInt(f.MinSamplesSplit, 2),
			minSamplesLeaf:  1,
			maxFeatures:     maxFeatures,
			classify:        true,
			nClasses:        len(f.Classes),
			rng:             rng,
		})
	}
	return nil
}

func (f *ForestClassifier) proba(row []float64) []float64 {
	acc := make([]float64, len(f.Classes))
	for _, tree := range f.Trees {
		for c, p := range tree.descend(row).Probs {
			acc[c] += p
		}
	}
	for c := range acc {
		acc[c] /= float64(len(f.Trees))
	}
	return acc
}

// Predict returns the ensemble-vote class code per row.
func (f *ForestClassifier) Predict(x [][]float64) ([]float64, error) {
	if f.Trees == nil {
		return nil, errNotFitted("random forest")
	}
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = f.Classes[argmax(f.proba(row))]
	}
	return out, nil
}

// PredictProba returns averaged per-class probabilities.
func (f *ForestClassifier) PredictProba(x [][]float64) ([][]float64, error) {
	if f.Trees == nil {
		return nil, errNotFitted("random forest")
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = f.proba(row)
	}
	return out, nil
}

// ForestRegressor is a bagged ensemble of CART regressors; predictions are
// the mean of the per-tree leaf means.
type ForestRegressor struct {
	NEstimators     int   `json:"n_estimators"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	Seed            int64 `json:"seed"`

	Trees []*treeNode `json:"trees"`
}

// Fit grows the ensemble.
func (f *ForestRegressor) Fit(x [][]float64, y []float64) error {
	if err := validateShapes(x, y); err != nil {
		return err
	}
	if f.NEstimators <= 0 {
		f.NEstimators = 100
	}
	f.Trees = make([]*treeNode, f.NEstimators)
	for t := 0; t < f.NEstimators; t++ {
		rng := rand.New(rand.NewSource(f.Seed + int64(t)))
		idx := bootstrap(len(x), rng)
		f.Trees[t] = growTree(x, y, idx, 0, treeParams{
			maxDepth:        f.MaxDepth,
			minSamplesSplit: maxInt(f.MinSamplesSplit, 2),
			minSamplesLeaf:  1,
			rng:             rng,
		})
	}
	return nil
}

// Predict returns the mean prediction across trees.
func (f *ForestRegressor) Predict(x [][]float64) ([]float64, error) {
	if f.Trees == nil {
		return nil, errNotFitted("random forest regressor")
	}
	out := make([]float64, len(x))
	for i, row := range x {
		sum := 0.0
		for _, tree := range f.Trees {
			sum += tree.descend(row).Value
		}
		out[i] = sum / float64(len(f.Trees))
	}
	return out, nil
}

func bootstrap(n int, rng *rand.Rand) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.Intn(n)
	}
	return idx
}
