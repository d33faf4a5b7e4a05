package acquisition

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/harmonlabs/optloop/internal/optloop"
)

// sigmaFloor is the predictive standard deviation below which a prediction
// is treated as certain. Keeps scores finite at already-observed points
// where the model reports (near-)zero variance.
const sigmaFloor = 1e-10

// ExpectedImprovement scores a point by the expected amount it improves on
// the best observed value, under the model's Gaussian predictive
// distribution. Minimization orientation: lower outputs are better, but the
// score itself is higher-is-better and non-negative.
type ExpectedImprovement struct {
	// Best observed output so far.
	best float64
	// Exploration-exploitation trade-off parameter.
	xi float64
}

// NewExpectedImprovement creates an EI acquisition. Until the first
// UpdateBest the incumbent is +Inf, so every point scores zero.
func NewExpectedImprovement(xi float64) *ExpectedImprovement {
	return &ExpectedImprovement{
		best: math.Inf(1),
		xi:   xi,
	}
}

// UpdateBest implements BestAware.
func (ei *ExpectedImprovement) UpdateBest(best float64) {
	ei.best = best
}

// Best returns the incumbent best output.
func (ei *ExpectedImprovement) Best() float64 { return ei.best }

// SetXi sets the exploration-exploitation trade-off parameter.
func (ei *ExpectedImprovement) SetXi(xi float64) { ei.xi = xi }

// Score implements Acquisition.
func (ei *ExpectedImprovement) Score(m optloop.SurrogateModel, X *mat.Dense) (*mat.VecDense, error) {
	mean, variance, err := m.Predict(X)
	if err != nil {
		return nil, err
	}
	n, _ := X.Dims()
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		sigma := math.Sqrt(math.Max(0, variance.AtVec(i)))
		out.SetVec(i, ei.at(mean.AtVec(i), sigma))
	}
	return out, nil
}

// at computes EI = improvement*Φ(z) + sigma*φ(z) for one prediction, with
// improvement = best - mu - xi.
func (ei *ExpectedImprovement) at(mu, sigma float64) float64 {
	improvement := ei.best - mu - ei.xi
	if math.IsInf(ei.best, 1) {
		// No incumbent yet; nothing to improve on.
		return 0
	}
	if improvement <= 0 && sigma <= sigmaFloor {
		return 0
	}
	if sigma <= sigmaFloor {
		// Certain prediction: expected improvement is the improvement.
		return improvement
	}

	stdNormal := distuv.UnitNormal
	z := improvement / sigma
	value := improvement*stdNormal.CDF(z) + sigma*stdNormal.Prob(z)
	if math.IsNaN(value) || value < 0 {
		return 0
	}
	return value
}
