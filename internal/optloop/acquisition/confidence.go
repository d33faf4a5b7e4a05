package acquisition

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/harmonlabs/optloop/internal/optloop"
)

// NegativeLowerConfidenceBound scores a point by beta*sigma - mu: points
// with a low predicted output or high uncertainty score high. The usual
// LCB for minimization, negated to satisfy the higher-is-better contract.
type NegativeLowerConfidenceBound struct {
	// Exploration weight. Higher values favor uncertain regions.
	beta float64
}

// NewNegativeLowerConfidenceBound creates an NLCB acquisition with the
// given exploration weight. Panics on a negative beta.
func NewNegativeLowerConfidenceBound(beta float64) *NegativeLowerConfidenceBound {
	if beta < 0 {
		panic("acquisition: beta must be non-negative")
	}
	return &NegativeLowerConfidenceBound{beta: beta}
}

// Score implements Acquisition.
func (a *NegativeLowerConfidenceBound) Score(m optloop.SurrogateModel, X *mat.Dense) (*mat.VecDense, error) {
	mean, variance, err := m.Predict(X)
	if err != nil {
		return nil, err
	}
	n, _ := X.Dims()
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		sigma := math.Sqrt(math.Max(0, variance.AtVec(i)))
		out.SetVec(i, a.beta*sigma-mean.AtVec(i))
	}
	return out, nil
}

// ProbabilityOfImprovement scores a point by the probability that its
// output improves on the incumbent best by at least xi. Scores lie in
// [0, 1].
type ProbabilityOfImprovement struct {
	best float64
	xi   float64
}

// NewProbabilityOfImprovement creates a PI acquisition.
func NewProbabilityOfImprovement(xi float64) *ProbabilityOfImprovement {
	return &ProbabilityOfImprovement{best: math.Inf(1), xi: xi}
}

// UpdateBest implements BestAware.
func (a *ProbabilityOfImprovement) UpdateBest(best float64) { a.best = best }

// Score implements Acquisition.
func (a *ProbabilityOfImprovement) Score(m optloop.SurrogateModel, X *mat.Dense) (*mat.VecDense, error) {
	mean, variance, err := m.Predict(X)
	if err != nil {
		return nil, err
	}
	n, _ := X.Dims()
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		if math.IsInf(a.best, 1) {
			out.SetVec(i, 0)
			continue
		}
		improvement := a.best - mean.AtVec(i) - a.xi
		sigma := math.Sqrt(math.Max(0, variance.AtVec(i)))
		if sigma <= sigmaFloor {
			if improvement > 0 {
				out.SetVec(i, 1)
			}
			continue
		}
		out.SetVec(i, distuv.UnitNormal.CDF(improvement/sigma))
	}
	return out, nil
}
