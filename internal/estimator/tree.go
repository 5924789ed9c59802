package estimator

import (
	"math"
	"math/rand"
	"sort"
)

// treeNode is one node of a CART tree. Leaves carry either a class
// distribution or a mean value.
type treeNode struct {
	Leaf      bool       `json:"leaf"`
	Feature   int        `json:"feature,omitempty"`
	Threshold float64    `json:"threshold,omitempty"`
	Left      *treeNode  `json:"left,omitempty"`
	Right     *treeNode  `json:"right,omitempty"`
	Value     float64    `json:"value,omitempty"`
	Probs     []float64  `json:"probs,omitempty"`
}

// treeParams controls CART growth. maxFeatures limits the candidate
// features per split for forests; zero means all features.
type treeParams struct {
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int
	classify        bool
	nClasses        int
	rng             *rand.Rand
}

func (p treeParams) depthLimit() int {
	if p.maxDepth <= 0 {
		return math.MaxInt32
	}
	return p.maxDepth
}

func growTree(x [][]float64, y []float64, idx []int, depth int, p treeParams) *treeNode {
	if len(idx) < p.minSamplesSplit || depth >= p.depthLimit() || pure(y, idx) {
		return leafNode(y, idx, p)
	}

	feature, threshold, ok := bestSplit(x, y, idx, p)
	if !ok {
		return leafNode(y, idx, p)
	}

	var left, right []int
	for _, i := range idx {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < p.minSamplesLeaf || len(right) < p.minSamplesLeaf {
		return leafNode(y, idx, p)
	}

	return &treeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      growTree(x, y, left, depth+1, p),
		Right:     growTree(x, y, right, depth+1, p),
	}
}

func leafNode(y []float64, idx []int, p treeParams) *treeNode {
	node := &treeNode{Leaf: true}
	if p.classify {
		counts := make([]float64, p.nClasses)
		for _, i := range idx {
			counts[int(y[i])]++
		}
		node.Probs = normalize(counts)
		node.Value = float64(argmax(counts))
		return node
	}
	sum := 0.0
	for _, i := range idx {
		sum += y[i]
	}
	node.Value = sum / float64(len(idx))
	return node
}

func pure(y []float64, idx []int) bool {
	for _, i := range idx[1:] {
		if y[i] != y[idx[0]] {
			return false
		}
	}
	return true
}

// bestSplit scans candidate features for the threshold with the lowest
// weighted child impurity, evaluating midpoints between consecutive
// distinct values in sorted order.
func bestSplit(x [][]float64, y []float64, idx []int, p treeParams) (int, float64, bool) {
	nFeatures := len(x[idx[0]])
	features := make([]int, nFeatures)
	for i := range features {
		features[i] = i
	}
	if p.maxFeatures > 0 && p.maxFeatures < nFeatures && p.rng != nil {
		p.rng.Shuffle(len(features), func(i, j int) { features[i], features[j] = features[j], features[i] })
		features = features[:p.maxFeatures]
		sort.Ints(features)
	}

	bestImpurity := math.Inf(1)
	bestFeature, bestThreshold := -1, 0.0

	sorted := make([]int, len(idx))
	for _, f := range features {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, b int) bool { return x[sorted[a]][f] < x[sorted[b]][f] })

		var imp splitScanner
		if p.classify {
			imp = newGiniScanner(y, sorted, p.nClasses)
		} else {
			imp = newVarianceScanner(y, sorted)
		}

		for cut := 1; cut < len(sorted); cut++ {
			imp.moveLeft(y[sorted[cut-1]])
			lv, rv := x[sorted[cut-1]][f], x[sorted[cut]][f]
			if lv == rv {
				continue
			}
			if cut < p.minSamplesLeaf || len(sorted)-cut < p.minSamplesLeaf {
				continue
			}
			if w := imp.weighted(); w < bestImpurity {
				bestImpurity = w
				bestFeature = f
				bestThreshold = (lv + rv) / 2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

// splitScanner incrementally tracks impurity as rows move from the right
// child to the left.
type splitScanner interface {
	moveLeft(y float64)
	weighted() float64
}

type giniScanner struct {
	leftCounts  []float64
	rightCounts []float64
	nLeft       float64
	nRight      float64
}

func newGiniScanner(y []float64, idx []int, nClasses int) *giniScanner {
	g := &giniScanner{
		leftCounts:  make([]float64, nClasses),
		rightCounts: make([]float64, nClasses),
		nRight:      float64(len(idx)),
	}
	for _, i := range idx {
		g.rightCounts[int(y[i])]++
	}
	return g
}

func (g *giniScanner) moveLeft(y float64) {
	g.leftCounts[int(y)]++
	g.rightCounts[int(y)]--
	g.nLeft++
	g.nRight--
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		p := c / n
		sum += p * p
	}
	return 1 - sum
}

func (g *giniScanner) weighted() float64 {
	n := g.nLeft + g.nRight
	return g.nLeft/n*gini(g.leftCounts, g.nLeft) + g.nRight/n*gini(g.rightCounts, g.nRight)
}

type varianceScanner struct {
	sumLeft, sumSqLeft   float64
	sumRight, sumSqRight float64
	nLeft, nRight        float64
}

func newVarianceScanner(y []float64, idx []int) *varianceScanner {
	v := &varianceScanner{nRight: float64(len(idx))}
	for _, i := range idx {
		v.sumRight += y[i]
		v.sumSqRight += y[i] * y[i]
	}
	return v
}

func (v *varianceScanner) moveLeft(y float64) {
	v.sumLeft += y
	v.sumSqLeft += y * y
	v.sumRight -= y
	v.sumSqRight -= y * y
	v.nLeft++
	v.nRight--
}

func variance(sum, sumSq, n float64) float64 {
	if n == 0 {
		return 0
	}
	mean := sum / n
	return sumSq/n - mean*mean
}

func (v *varianceScanner) weighted() float64 {
	n := v.nLeft + v.nRight
	return v.nLeft/n*variance(v.sumLeft, v.sumSqLeft, v.nLeft) +
		v.nRight/n*variance(v.sumRight, v.sumSqRight, v.nRight)
}

func (n *treeNode) descend(row []float64) *treeNode {
	node := n
	for !node.Leaf {
		if row[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

// TreeClassifier is a CART classifier split on Gini impurity.
type TreeClassifier struct {
	MaxDepth        int `json:"max_depth"`
	MinSamplesSplit int `json:"min_samples_split"`
	MinSamplesLeaf  int `json:"min_samples_leaf"`

	Classes []float64 `json:"classes"`
	Root    *treeNode `json:"root"`
}

// Fit grows the tree.
func (t *TreeClassifier) Fit(x [][]float64, y []float64) error {
	if err := validateShapes(x, y); err != nil {
		return err
	}
	t.Classes = classCodes(y)
	codes, err := recode(y, t.Classes)
	if err != nil {
		return err
	}
	idx := allIndices(len(x))
	t.Root = growTree(x, codes, idx, 0, treeParams{
		maxDepth:        t.MaxDepth,
		minSamplesSplit: maxInt(t.MinSamplesSplit, 2),
		minSamplesLeaf:  maxInt(t.MinSamplesLeaf, 1),
		classify:        true,
		nClasses:        len(t.Classes),
	})
	return nil
}

// Predict returns the majority class code per row.
func (t *TreeClassifier) Predict(x [][]float64) ([]float64, error) {
	if t.Root == nil {
		return nil, errNotFitted("decision tree")
	}
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = t.Classes[int(t.Root.descend(row).Value)]
	}
	return out, nil
}

// PredictProba returns leaf class distributions.
func (t *TreeClassifier) PredictProba(x [][]float64) ([][]float64, error) {
	if t.Root == nil {
		return nil, errNotFitted("decision tree")
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = t.Root.descend(row).Probs
	}
	return out, nil
}

// TreeRegressor is a CART regressor split on variance reduction.
type TreeRegressor struct {
	MaxDepth        int `json:"max_depth"`
	MinSamplesSplit int `json:"min_samples_split"`
	MinSamplesLeaf  int `json:"min_samples_leaf"`

	Root *treeNode `json:"root"`
}

// Fit grows the tree.
func (t *TreeRegressor) Fit(x [][]float64, y []float64) error {
	if err := validateShapes(x, y); err != nil {
		return err
	}
	idx := allIndices(len(x))
	t.Root = growTree(x, y, idx, 0, treeParams{
		maxDepth:        t.MaxDepth,
		minSamplesSplit: maxInt(t.MinSamplesSplit, 2),
		minSamplesLeaf:  maxInt(t.MinSamplesLeaf, 1),
	})
	return nil
}

// Predict returns leaf means.
func (t *TreeRegressor) Predict(x [][]float64) ([]float64, error) {
	if t.Root == nil {
		return nil, errNotFitted("decision tree regressor")
	}
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = t.Root.descend(row).Value
	}
	return out, nil
}

// recode maps class values to their index in classes.
func recode(y []float64, classes []float64) ([]float64, error) {
	lookup := make(map[float64]int, len(classes))
	for i, c := range classes {
		lookup[c] = i
	}
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = float64(lookup[v])
	}
	return out, nil
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
