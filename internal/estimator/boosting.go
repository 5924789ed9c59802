package estimator

import (
	"math"
)

// BoostingRegressor is gradient boosting with squared loss: shallow CART
// regressors fit the residuals of the running prediction.
type BoostingRegressor struct {
	NEstimators  int     `json:"n_estimators"`
	LearningRate float64 `json:"learning_rate"`
	MaxDepth     int     `json:"max_depth"`

	Base  float64     `json:"base"`
	Trees []*treeNode `json:"trees"`
}

func (b *BoostingRegressor) defaults() {
	if b.NEstimators <= 0 {
		b.NEstimators = 100
	}
	if b.LearningRate <= 0 {
		b.LearningRate = 0.1
	}
	if b.MaxDepth <= 0 {
		b.MaxDepth = 3
	}
}

// Fit builds the stage sequence.
func (b *BoostingRegressor) Fit(x [][]float64, y []float64) error {
	if err := validateShapes(x, y); err != nil {
		return err
	}
	b.defaults()

	b.Base = mean(y)
	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = b.Base
	}

	residual := make([]float64, len(y))
	b.Trees = make([]*treeNode, 0, b.NEstimators)
	idx := allIndices(len(x))
	for stage := 0; stage < b.NEstimators; stage++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}
		tree := growTree(x, residual, idx, 0, treeParams{
			maxDepth:        b.MaxDepth,
			minSamplesSplit: 2,
			minSamplesLeaf:  1,
		})
		b.Trees = append(b.Trees, tree)
		for i, row := range x {
			pred[i] += b.LearningRate * tree.descend(row).Value
		}
	}
	return nil
}

// Predict sums the stage outputs.
func (b *BoostingRegressor) Predict(x [][]float64) ([]float64, error) {
	if b.Trees == nil {
		return nil, errNotFitted("gradient boosting regressor")
	}
	out := make([]float64, len(x))
	for i, row := range x {
		v := b.Base
		for _, tree := range b.Trees {
			v += b.LearningRate * tree.descend(row).Value
		}
		out[i] = v
	}
	return out, nil
}

// BoostingClassifier boosts the logistic loss. Binary problems train a
// single chain on the logit scale; multiclass problems train one chain per
// class one-vs-rest and normalize the sigmoid outputs.
type BoostingClassifier struct {
	NEstimators  int     `json:"n_estimators"`
	LearningRate float64 `json:"learning_rate"`
	MaxDepth     int     `json:"max_depth"`

	Classes []float64       `json:"classes"`
	Bases   []float64       `json:"bases"`
	Chains  [][]*treeNode   `json:"chains"`
}

func (b *BoostingClassifier) defaults() {
	if b.NEstimators <= 0 {
		b.NEstimators = 100
	}
	if b.LearningRate <= 0 {
		b.LearningRate = 0.1
	}
	if b.MaxDepth <= 0 {
		b.MaxDepth = 3
	}
}

// Fit builds one boosting chain per head.
func (b *BoostingClassifier) Fit(x [][]float64, y []float64) error {
	if err := validateShapes(x, y); err != nil {
		return err
	}
	b.defaults()
	b.Classes = classCodes(y)
	if len(b.Classes) < 2 {
		return errSingleClass()
	}

	heads := b.Classes[1:]
	if len(b.Classes) > 2 {
		heads = b.Classes
	}
	b.Bases = make([]float64, len(heads))
	b.Chains = make([][]*treeNode, len(heads))
	for h, class := range heads {
		target := make([]float64, len(y))
		for i, v := range y {
			if v == class {
				target[i] = 1
			}
		}
		b.Bases[h], b.Chains[h] = b.fitChain(x, target)
	}
	return nil
}

func (b *BoostingClassifier) fitChain(x [][]float64, target []float64) (float64, []*treeNode) {
	pos := mean(target)
	// Clamp the prior away from 0 and 1 so the initial logit is finite.
	pos = math.Min(math.Max(pos, 1e-6), 1-1e-6)
	base := math.Log(pos / (1 - pos))

	score := make([]float64, len(target))
	for i := range score {
		score[i] = base
	}

	residual := make([]float64, len(target))
	trees := make([]*treeNode, 0, b.NEstimators)
	idx := allIndices(len(x))
	for stage := 0; stage < b.NEstimators; stage++ {
		for i := range residual {
			residual[i] = target[i] - sigmoid(score[i])
		}
		tree := growTree(x, residual, idx, 0, treeParams{
			maxDepth:        b.MaxDepth,
			minSamplesSplit: 2,
			minSamplesLeaf:  1,
		})
		trees = append(trees, tree)
		for i, row := range x {
			score[i] += b.LearningRate * tree.descend(row).Value
		}
	}
	return base, trees
}

func (b *BoostingClassifier) chainScore(h int, row []float64) float64 {
	v := b.Bases[h]
	for _, tree := range b.Chains[h] {
		v += b.LearningRate * tree.descend(row).Value
	}
	return v
}

func (b *BoostingClassifier) proba(row []float64) []float64 {
	if len(b.Classes) == 2 {
		p := sigmoid(b.chainScore(0, row))
		return []float64{1 - p, p}
	}
	scores := make([]float64, len(b.Classes))
	for h := range b.Chains {
		scores[h] = sigmoid(b.chainScore(h, row))
	}
	return normalize(scores)
}

// Predict returns the most likely class code per row.
func (b *BoostingClassifier) Predict(x [][]float64) ([]float64, error) {
	if b.Chains == nil {
		return nil, errNotFitted("gradient boosting")
	}
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = b.Classes[argmax(b.proba(row))]
	}
	return out, nil
}

// PredictProba returns per-class probabilities.
func (b *BoostingClassifier) PredictProba(x [][]float64) ([][]float64, error) {
	if b.Chains == nil {
		return nil, errNotFitted("gradient boosting")
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = b.proba(row)
	}
	return out, nil
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
