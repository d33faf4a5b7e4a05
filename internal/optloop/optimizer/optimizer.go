// Package optimizer solves the acquisition-maximization sub-problem: given
// a fitted surrogate and an acquisition function, find the in-space
// point(s) with the highest score.
//
// Single-point proposals combine random candidate screening with
// multi-start Nelder-Mead refinement. Non-convergence is not an error: a
// flat acquisition landscape is the expected regime early in a run, and
// the optimizer always returns a valid in-space point.
package optimizer

import (
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/harmonlabs/optloop/internal/optloop"
	"github.com/harmonlabs/optloop/internal/optloop/acquisition"
	"github.com/harmonlabs/optloop/internal/optloop/space"
	"github.com/harmonlabs/optloop/internal/optloop/state"
)

// Config controls the search effort per proposal.
type Config struct {
	// Starts is the number of Nelder-Mead restarts. Zero selects
	// 5 + 5*sqrt(dim) automatically.
	Starts int

	// RandomCandidates is the number of uniformly sampled points screened
	// before local refinement. They double as the fallback proposal on a
	// flat landscape. Zero selects 64.
	RandomCandidates int

	// Seed seeds the internal RNG. Zero seeds from the clock.
	Seed int64

	// Batch selects the multi-point proposal strategy. Nil selects
	// Fantasize, which approximates sequential feedback by refitting the
	// model on its own predictions.
	Batch BatchStrategy
}

// Optimizer proposes acquisition maximizers over a parameter space.
type Optimizer struct {
	cfg Config
	rng *rand.Rand
}

// New creates an Optimizer.
func New(cfg Config) *Optimizer {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.RandomCandidates < 1 {
		cfg.RandomCandidates = 64
	}
	if cfg.Batch == nil {
		cfg.Batch = Fantasize{}
	}
	return &Optimizer{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Propose returns k points ranked by the order they were selected.
// Implements the loop's Proposer contract.
func (o *Optimizer) Propose(m optloop.SurrogateModel, acq acquisition.Acquisition, sp *space.Space, hist state.Snapshot, k int) ([][]float64, error) {
	if k <= 1 {
		pt, err := o.next(m, acq, sp, hist)
		if err != nil {
			return nil, err
		}
		return [][]float64{pt}, nil
	}
	return o.cfg.Batch.propose(o, m, acq, sp, hist, k)
}

// next returns the single best point found for the current acquisition
// landscape.
func (o *Optimizer) next(m optloop.SurrogateModel, acq acquisition.Acquisition, sp *space.Space, hist state.Snapshot) ([]float64, error) {
	dim := sp.Dim()

	score := func(point []float64) (float64, bool) {
		X := mat.NewDense(1, dim, append([]float64(nil), point...))
		s, err := acq.Score(m, X)
		if err != nil {
			return 0, false
		}
		v := s.AtVec(0)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	}

	var bestX []float64
	bestScore := math.Inf(-1)
	consider := func(point []float64) {
		clipped := sp.Clip(point)
		if v, ok := score(clipped); ok && v > bestScore {
			bestScore = v
			bestX = clipped
		}
	}

	// Screening pass: uniform random candidates. Guarantees a valid
	// proposal even when every local search stalls.
	for i := 0; i < o.cfg.RandomCandidates; i++ {
		consider(sp.Sample(o.rng))
	}

	// Refinement pass: Nelder-Mead from the incumbent best and random
	// starts. Derivative-free, so it only needs the score closure.
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			v, ok := score(sp.Clip(x))
			if !ok {
				return math.Inf(1)
			}
			return -v
		},
	}
	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-6,
			Relative:   1e-6,
			Iterations: 100,
		},
	}
	method := &optimize.NelderMead{}

	starts := o.cfg.Starts
	if starts < 1 {
		starts = 5 + int(5*math.Sqrt(float64(dim)))
	}
	for i := 0; i < starts; i++ {
		var start []float64
		if i == 0 && len(hist.Inputs) > 0 {
			start = append([]float64(nil), hist.Inputs[argmin(hist.Outputs)]...)
		} else {
			start = sp.Sample(o.rng)
		}
		result, err := optimize.Minimize(problem, start, settings, method)
		if err != nil || result == nil {
			continue
		}
		consider(result.X)
	}

	if bestX == nil {
		return nil, optloop.Wrap(errNoScorablePoint, "acquisition optimization failed")
	}
	return bestX, nil
}

var errNoScorablePoint = &optloop.Error{
	Kind:    optloop.KindInternal,
	Op:      "Optimizer.next",
	Message: "no candidate point could be scored",
}

func argmin(values []float64) int {
	idx := 0
	for i, v := range values[1:] {
		if v < values[idx] {
			idx = i + 1
		}
	}
	return idx
}
