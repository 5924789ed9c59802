package estimator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LinearRegression fits ordinary least squares, or ridge regression when
// Alpha is positive. The ridge penalty is applied by augmenting the design
// matrix, so both cases reduce to one QR solve.
type LinearRegression struct {
	Alpha     float64   `json:"alpha"`
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

// Fit solves for the coefficient vector.
func (l *LinearRegression) Fit(x [][]float64, y []float64) error {
	if err := validateShapes(x, y); err != nil {
		return err
	}
	n, d := len(x), len(x[0])

	rows := n
	if l.Alpha > 0 {
		rows += d
	}
	a := mat.NewDense(rows, d+1, nil)
	b := mat.NewVecDense(rows, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			a.Set(i, j, x[i][j])
		}
		a.Set(i, d, 1) // bias column
		b.SetVec(i, y[i])
	}
	if l.Alpha > 0 {
		// Penalty rows shrink the feature weights but not the intercept.
		p := math.Sqrt(l.Alpha)
		for j := 0; j < d; j++ {
			a.Set(n+j, j, p)
		}
	}

	var qr mat.QR
	qr.Factorize(a)
	sol := mat.NewDense(d+1, 1, nil)
	if err := qr.SolveTo(sol, false, b); err != nil {
		return fmt.Errorf("solve least squares: %w", err)
	}

	l.Weights = make([]float64, d)
	for j := 0; j < d; j++ {
		l.Weights[j] = sol.At(j, 0)
	}
	l.Intercept = sol.At(d, 0)
	return nil
}

// Predict evaluates the fitted linear function.
func (l *LinearRegression) Predict(x [][]float64) ([]float64, error) {
	if l.Weights == nil {
		return nil, errNotFitted("linear regression")
	}
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = dot(l.Weights, row) + l.Intercept
	}
	return out, nil
}

// LogisticRegression is a gradient descent classifier. Binary problems use
// a single sigmoid; multiclass problems train one-vs-rest and normalize the
// per-class scores.
type LogisticRegression struct {
	LearningRate float64 `json:"learning_rate"`
	MaxIter      int     `json:"max_iter"`
	L2           float64 `json:"l2"`

	Classes    []float64   `json:"classes"`
	Weights    [][]float64 `json:"weights"`
	Intercepts []float64   `json:"intercepts"`
}

// Fit trains the classifier.
func (l *LogisticRegression) Fit(x [][]float64, y []float64) error {
	if err := validateShapes(x, y); err != nil {
		return err
	}
	l.Classes = classCodes(y)
	if len(l.Classes) < 2 {
		return errSingleClass()
	}
	if l.LearningRate <= 0 {
		l.LearningRate = 0.1
	}
	if l.MaxIter <= 0 {
		l.MaxIter = 1000
	}

	heads := l.Classes[1:]
	if len(l.Classes) > 2 {
		heads = l.Classes
	}
	l.Weights = make([][]float64, len(heads))
	l.Intercepts = make([]float64, len(heads))
	for h, class := range heads {
		target := make([]float64, len(y))
		for i, v := range y {
			if v == class {
				target[i] = 1
			}
		}
		w, b := l.fitBinary(x, target)
		l.Weights[h] = w
		l.Intercepts[h] = b
	}
	return nil
}

func (l *LogisticRegression) fitBinary(x [][]float64, target []float64) ([]float64, float64) {
	n, d := len(x), len(x[0])
	w := make([]float64, d)
	b := 0.0
	grad := make([]float64, d)

	for iter := 0; iter < l.MaxIter; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		gradB := 0.0
		for i, row := range x {
			err := sigmoid(dot(w, row)+b) - target[i]
			for j, v := range row {
				grad[j] += err * v
			}
			gradB += err
		}
		step := l.LearningRate / float64(n)
		for j := range w {
			w[j] -= step * (grad[j] + l.L2*w[j])
		}
		b -= step * gradB
	}
	return w, b
}

// scores returns the raw per-class sigmoid activations for one row.
func (l *LogisticRegression) scores(row []float64) []float64 {
	if len(l.Classes) == 2 {
		p := sigmoid(dot(l.Weights[0], row) + l.Intercepts[0])
		return []float64{1 - p, p}
	}
	out := make([]float64, len(l.Classes))
	for h := range l.Weights {
		out[h] = sigmoid(dot(l.Weights[h], row) + l.Intercepts[h])
	}
	return out
}

// Predict returns the most likely class code per row.
func (l *LogisticRegression) Predict(x [][]float64) ([]float64, error) {
	if l.Weights == nil {
		return nil, errNotFitted("logistic regression")
	}
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = l.Classes[argmax(l.scores(row))]
	}
	return out, nil
}

// PredictProba returns normalized per-class probabilities.
func (l *LogisticRegression) PredictProba(x [][]float64) ([][]float64, error) {
	if l.Weights == nil {
		return nil, errNotFitted("logistic regression")
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = normalize(l.scores(row))
	}
	return out, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

func normalize(v []float64) []float64 {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	if sum == 0 {
		out := make([]float64, len(v))
		for i := range out {
			out[i] = 1 / float64(len(v))
		}
		return out
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / sum
	}
	return out
}
