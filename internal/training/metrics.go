// Package training runs the pipeline stages in the background: analysis,
// preprocessing, model selection, candidate training with evaluation, and
// oracle-guided iteration. One stage runs per project at a time.
package training

import (
	"math"
	"sort"

	"github.com/tabml/automl-backend/internal/estimator"
)

// Accuracy is the fraction of exact matches.
func Accuracy(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	hits := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue))
}

// WeightedPRF returns precision, recall and F1, each averaged over classes
// weighted by support. Classes with an empty denominator score zero.
func WeightedPRF(yTrue, yPred []float64) (precision, recall, f1 float64) {
	if len(yTrue) == 0 {
		return 0, 0, 0
	}
	classes := map[float64]struct{}{}
	for _, v := range yTrue {
		classes[v] = struct{}{}
	}

	total := float64(len(yTrue))
	for class := range classes {
		var tp, fp, fn, support float64
		for i := range yTrue {
			switch {
			case yTrue[i] == class && yPred[i] == class:
				tp++
			case yTrue[i] != class && yPred[i] == class:
				fp++
			case yTrue[i] == class && yPred[i] != class:
				fn++
			}
			if yTrue[i] == class {
				support++
			}
		}
		var p, r, f float64
		if tp+fp > 0 {
			p = tp / (tp + fp)
		}
		if tp+fn > 0 {
			r = tp / (tp + fn)
		}
		if p+r > 0 {
			f = 2 * p * r / (p + r)
		}
		w := support / total
		precision += w * p
		recall += w * r
		f1 += w * f
	}
	return precision, recall, f1
}

// AUCROC computes the binary ROC area from positive-class scores using the
// rank statistic, with midranks for ties. yTrue must be 0/1 codes.
func AUCROC(yTrue, scores []float64) (float64, bool) {
	var nPos, nNeg float64
	for _, v := range yTrue {
		if v == 1 {
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0, false
	}

	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	ranks := make([]float64, len(scores))
	for i := 0; i < len(idx); {
		j := i
		for j < len(idx) && scores[idx[j]] == scores[idx[i]] {
			j++
		}
		midrank := float64(i+j+1) / 2 // average of 1-based ranks i+1..j
		for k := i; k < j; k++ {
			ranks[idx[k]] = midrank
		}
		i = j
	}

	var rankSum float64
	for i, v := range yTrue {
		if v == 1 {
			rankSum += ranks[i]
		}
	}
	return (rankSum - nPos*(nPos+1)/2) / (nPos * nNeg), true
}

// MSE is the mean squared error.
func MSE(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	sum := 0.0
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		sum += d * d
	}
	return sum / float64(len(yTrue))
}

// MAE is the mean absolute error.
func MAE(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	sum := 0.0
	for i := range yTrue {
		sum += math.Abs(yTrue[i] - yPred[i])
	}
	return sum / float64(len(yTrue))
}

// R2 is the coefficient of determination.
func R2(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	meanY := 0.0
	for _, v := range yTrue {
		meanY += v
	}
	meanY /= float64(len(yTrue))

	var ssRes, ssTot float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		ssRes += d * d
		t := yTrue[i] - meanY
		ssTot += t * t
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// CrossValidate runs k-fold validation with contiguous folds, training a
// fresh estimator per fold. Classification folds score accuracy, regression
// folds R2. Returns the mean and population standard deviation.
func CrossValidate(build func() (estimator.Estimator, error), x [][]float64, y []float64, folds int, classify bool) (float64, float64, error) {
	n := len(x)
	if folds > n {
		folds = n
	}
	if folds < 2 {
		folds = 2
	}

	scores := make([]float64, 0, folds)
	for f := 0; f < folds; f++ {
		lo := f * n / folds
		hi := (f + 1) * n / folds
		if lo == hi {
			continue
		}

		trainX := make([][]float64, 0, n-(hi-lo))
		trainY := make([]float64, 0, n-(hi-lo))
		trainX = append(trainX, x[:lo]...)
		trainX = append(trainX, x[hi:]...)
		trainY = append(trainY, y[:lo]...)
		trainY = append(trainY, y[hi:]...)

		est, err := build()
		if err != nil {
			return 0, 0, err
		}
		if err := est.Fit(trainX, trainY); err != nil {
			return 0, 0, err
		}
		pred, err := est.Predict(x[lo:hi])
		if err != nil {
			return 0, 0, err
		}
		if classify {
			scores = append(scores, Accuracy(y[lo:hi], pred))
		} else {
			scores = append(scores, R2(y[lo:hi], pred))
		}
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	meanS := sum / float64(len(scores))
	var variance float64
	for _, s := range scores {
		d := s - meanS
		variance += d * d
	}
	variance /= float64(len(scores))
	return meanS, math.Sqrt(variance), nil
}
