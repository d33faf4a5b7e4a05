package optimizer

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/harmonlabs/optloop/internal/optloop"
	"github.com/harmonlabs/optloop/internal/optloop/acquisition"
	"github.com/harmonlabs/optloop/internal/optloop/space"
	"github.com/harmonlabs/optloop/internal/optloop/state"
)

// BatchStrategy proposes k jointly useful points under the engine's
// sequential-feedback assumption: the true objective stays unknown between
// the k points, so independently taking the top-k of one acquisition
// landscape would collapse onto near-duplicates of its single maximizer.
type BatchStrategy interface {
	propose(o *Optimizer, m optloop.SurrogateModel, acq acquisition.Acquisition, sp *space.Space, hist state.Snapshot, k int) ([][]float64, error)
}

// Fantasize is the fantasize-and-repeat (constant liar) strategy: after
// selecting each point it pretends to observe the model's own predicted
// mean there, refits on the augmented history, and selects again. The
// refit deflates the model's uncertainty around selected points, steering
// later picks elsewhere.
type Fantasize struct{}

func (Fantasize) propose(o *Optimizer, m optloop.SurrogateModel, acq acquisition.Acquisition, sp *space.Space, hist state.Snapshot, k int) ([][]float64, error) {
	const op = "Fantasize.propose"

	dim := sp.Dim()
	inputs := append([][]float64(nil), hist.Inputs...)
	outputs := append([]float64(nil), hist.Outputs...)

	points := make([][]float64, 0, k)
	for i := 0; i < k; i++ {
		if i > 0 {
			// Refit on history + fantasies. The loop refits on the real
			// history at the start of every round, so the fantasies never
			// leak past this proposal.
			X := mat.NewDense(len(inputs), dim, nil)
			y := mat.NewVecDense(len(inputs), nil)
			for r, in := range inputs {
				for c, v := range in {
					X.Set(r, c, v)
				}
				y.SetVec(r, outputs[r])
			}
			if err := m.Fit(X, y); err != nil {
				return nil, optloop.Wrap(err, op+": refit on fantasized history")
			}
			if ba, ok := acq.(acquisition.BestAware); ok {
				ba.UpdateBest(outputs[argmin(outputs)])
			}
		}

		pt, err := o.next(m, acq, sp, state.Snapshot{Inputs: inputs, Outputs: outputs})
		if err != nil {
			return nil, err
		}

		mean, _, err := m.Predict(mat.NewDense(1, dim, append([]float64(nil), pt...)))
		if err != nil {
			return nil, optloop.Wrap(err, op+": predict at selected point")
		}

		inputs = append(inputs, pt)
		outputs = append(outputs, mean.AtVec(0))
		points = append(points, pt)
	}
	return points, nil
}

// LocalPenalization is a diversity heuristic for models that are expensive
// to refit: each selected point multiplies the acquisition by a penalty
// that vanishes at the point and recovers with distance, so later picks
// are pushed away without touching the model. Assumes a non-negative
// acquisition (EI, PI).
type LocalPenalization struct {
	// LengthScale controls the penalized radius around selected points.
	// Zero selects 10% of the space diagonal.
	LengthScale float64
}

func (lp LocalPenalization) propose(o *Optimizer, m optloop.SurrogateModel, acq acquisition.Acquisition, sp *space.Space, hist state.Snapshot, k int) ([][]float64, error) {
	ls := lp.LengthScale
	if ls <= 0 {
		ls = 0.1 * spaceDiagonal(sp)
	}

	points := make([][]float64, 0, k)
	for i := 0; i < k; i++ {
		cur := acq
		if len(points) > 0 {
			cur = &penalized{base: acq, centers: points, lengthScale: ls}
		}
		pt, err := o.next(m, cur, sp, hist)
		if err != nil {
			return nil, err
		}
		points = append(points, pt)
	}
	return points, nil
}

// penalized wraps an acquisition with multiplicative distance penalties
// around already-selected batch points.
type penalized struct {
	base        acquisition.Acquisition
	centers     [][]float64
	lengthScale float64
}

func (p *penalized) Score(m optloop.SurrogateModel, X *mat.Dense) (*mat.VecDense, error) {
	scores, err := p.base.Score(m, X)
	if err != nil {
		return nil, err
	}
	n, dim := X.Dims()
	twoLS2 := 2 * p.lengthScale * p.lengthScale
	for i := 0; i < n; i++ {
		factor := 1.0
		for _, c := range p.centers {
			var d2 float64
			for j := 0; j < dim; j++ {
				d := X.At(i, j) - c[j]
				d2 += d * d
			}
			factor *= 1 - math.Exp(-d2/twoLS2)
		}
		if s := scores.AtVec(i); s > 0 {
			scores.SetVec(i, s*factor)
		}
	}
	return scores, nil
}

func spaceDiagonal(sp *space.Space) float64 {
	var sum float64
	for _, b := range sp.Bounds() {
		d := b[1] - b[0]
		sum += d * d
	}
	diag := math.Sqrt(sum)
	if diag <= 0 {
		return 1
	}
	return diag
}
