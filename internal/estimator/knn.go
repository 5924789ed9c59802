package estimator

import (
	"math"
	"sort"
)

// knnBase stores the training set and finds the k nearest rows by
// Euclidean distance.
type knnBase struct {
	NNeighbors int         `json:"n_neighbors"`
	Weights    string      `json:"weights"`
	X          [][]float64 `json:"x"`
	Y          []float64   `json:"y"`
}

func (k *knnBase) fit(x [][]float64, y []float64) error {
	if err := validateShapes(x, y); err != nil {
		return err
	}
	if k.NNeighbors <= 0 {
		k.NNeighbors = 5
	}
	k.X = x
	k.Y = y
	return nil
}

type neighbor struct {
	dist float64
	y    float64
}

func (k *knnBase) nearest(row []float64) []neighbor {
	all := make([]neighbor, len(k.X))
	for i, tr := range k.X {
		sum := 0.0
		for j := range tr {
			d := tr[j] - row[j]
			sum += d * d
		}
		all[i] = neighbor{dist: math.Sqrt(sum), y: k.Y[i]}
	}
	sort.Slice(all, func(a, b int) bool { return all[a].dist < all[b].dist })
	n := k.NNeighbors
	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}

// weight returns the vote weight for one neighbor.
func (k *knnBase) weight(n neighbor) float64 {
	if k.Weights != "distance" {
		return 1
	}
	if n.dist == 0 {
		return math.Inf(1)
	}
	return 1 / n.dist
}

// KNNClassifier votes among the nearest training rows.
type KNNClassifier struct {
	knnBase
	Classes []float64 `json:"classes"`
}

// Fit memorizes the training set.
func (k *KNNClassifier) Fit(x [][]float64, y []float64) error {
	if err := k.fit(x, y); err != nil {
		return err
	}
	k.Classes = classCodes(y)
	return nil
}

func (k *KNNClassifier) proba(row []float64) []float64 {
	votes := make([]float64, len(k.Classes))
	lookup := make(map[float64]int, len(k.Classes))
	for i, c := range k.Classes {
		lookup[c] = i
	}
	for _, n := range k.nearest(row) {
		w := k.weight(n)
		if math.IsInf(w, 1) {
			exact := make([]float64, len(k.Classes))
			exact[lookup[n.y]] = 1
			return exact
		}
		votes[lookup[n.y]] += w
	}
	return normalize(votes)
}

// Predict returns the winning class code per row.
func (k *KNNClassifier) Predict(x [][]float64) ([]float64, error) {
	if k.X == nil {
		return nil, errNotFitted("knn")
	}
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = k.Classes[argmax(k.proba(row))]
	}
	return out, nil
}

// PredictProba returns normalized vote shares.
func (k *KNNClassifier) PredictProba(x [][]float64) ([][]float64, error) {
	if k.X == nil {
		return nil, errNotFitted("knn")
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = k.proba(row)
	}
	return out, nil
}

// KNNRegressor averages the nearest training targets.
type KNNRegressor struct {
	knnBase
}

// Fit memorizes the training set.
func (k *KNNRegressor) Fit(x [][]float64, y []float64) error {
	return k.fit(x, y)
}

// Predict returns the (weighted) neighbor mean per row.
func (k *KNNRegressor) Predict(x [][]float64) ([]float64, error) {
	if k.X == nil {
		return nil, errNotFitted("knn regressor")
	}
	out := make([]float64, len(x))
	for i, row := range x {
		var sum, wsum float64
		exact := false
		for _, n := range k.nearest(row) {
			w := k.weight(n)
			if math.IsInf(w, 1) {
				out[i] = n.y
				exact = true
				break
			}
			sum += w * n.y
			wsum += w
		}
		if !exact && wsum > 0 {
			out[i] = sum / wsum
		}
	}
	return out, nil
}
