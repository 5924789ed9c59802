package estimator

import (
	"math"
)

// GaussianNB is a naive Bayes classifier with per-class Gaussian feature
// likelihoods. Variances are smoothed by a fraction of the largest feature
// variance so constant features stay finite.
type GaussianNB struct {
	Classes   []float64   `json:"classes"`
	Priors    []float64   `json:"priors"`
	Means     [][]float64 `json:"means"`
	Variances [][]float64 `json:"variances"`
}

// Fit estimates per-class priors, means and variances.
func (g *GaussianNB) Fit(x [][]float64, y []float64) error {
	if err := validateShapes(x, y); err != nil {
		return err
	}
	g.Classes = classCodes(y)
	k, d := len(g.Classes), len(x[0])

	lookup := make(map[float64]int, k)
	for i, c := range g.Classes {
		lookup[c] = i
	}

	counts := make([]float64, k)
	g.Means = zeros(k, d)
	g.Variances = zeros(k, d)
	for i, row := range x {
		c := lookup[y[i]]
		counts[c]++
		for j, v := range row {
			g.Means[c][j] += v
		}
	}
	for c := 0; c < k; c++ {
		for j := 0; j < d; j++ {
			g.Means[c][j] /= counts[c]
		}
	}
	for i, row := range x {
		c := lookup[y[i]]
		for j, v := range row {
			diff := v - g.Means[c][j]
			g.Variances[c][j] += diff * diff
		}
	}

	maxVar := 0.0
	for c := 0; c < k; c++ {
		for j := 0; j < d; j++ {
			g.Variances[c][j] /= counts[c]
			if g.Variances[c][j] > maxVar {
				maxVar = g.Variances[c][j]
			}
		}
	}
	eps := 1e-9 * maxVar
	if eps == 0 {
		eps = 1e-9
	}
	for c := 0; c < k; c++ {
		for j := 0; j < d; j++ {
			g.Variances[c][j] += eps
		}
	}

	g.Priors = make([]float64, k)
	for c := 0; c < k; c++ {
		g.Priors[c] = counts[c] / float64(len(y))
	}
	return nil
}

func (g *GaussianNB) logLikelihoods(row []float64) []float64 {
	out := make([]float64, len(g.Classes))
	for c := range g.Classes {
		ll := math.Log(g.Priors[c])
		for j, v := range row {
			variance := g.Variances[c][j]
			diff := v - g.Means[c][j]
			ll += -0.5*math.Log(2*math.Pi*variance) - diff*diff/(2*variance)
		}
		out[c] = ll
	}
	return out
}

// Predict returns the maximum a posteriori class code per row.
func (g *GaussianNB) Predict(x [][]float64) ([]float64, error) {
	if g.Means == nil {
		return nil, errNotFitted("naive bayes")
	}
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = g.Classes[argmax(g.logLikelihoods(row))]
	}
	return out, nil
}

// PredictProba returns softmax-normalized posteriors.
func (g *GaussianNB) PredictProba(x [][]float64) ([][]float64, error) {
	if g.Means == nil {
		return nil, errNotFitted("naive bayes")
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		ll := g.logLikelihoods(row)
		maxLL := ll[argmax(ll)]
		probs := make([]float64, len(ll))
		for c, v := range ll {
			probs[c] = math.Exp(v - maxLL)
		}
		out[i] = normalize(probs)
	}
	return out, nil
}

func zeros(r, c int) [][]float64 {
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
	}
	return out
}
