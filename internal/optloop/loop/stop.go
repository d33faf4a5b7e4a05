package loop

import (
	"math"

	"github.com/harmonlabs/optloop/internal/optloop/state"
)

// StopReason names why a run stopped.
type StopReason string

const (
	// ReasonNone indicates no stopping condition has been met.
	ReasonNone StopReason = ""
	// ReasonMaxIterations indicates the iteration budget was reached.
	ReasonMaxIterations StopReason = "max_iterations"
	// ReasonConverged indicates the best value stagnated.
	ReasonConverged StopReason = "converged"
	// ReasonPredicate indicates a caller-supplied predicate fired.
	ReasonPredicate StopReason = "predicate"
)

// StopCondition decides when Run terminates. Done is called before every
// round with the current history and the number of completed rounds.
type StopCondition interface {
	Done(st *state.State, iteration int) (StopReason, bool)
}

type maxIterations struct {
	n int
}

// MaxIterations stops after n rounds.
func MaxIterations(n int) StopCondition {
	return &maxIterations{n: n}
}

func (c *maxIterations) Done(_ *state.State, iteration int) (StopReason, bool) {
	if iteration >= c.n {
		return ReasonMaxIterations, true
	}
	return ReasonNone, false
}

type converged struct {
	window   int
	tol      float64
	stale    int
	lastBest float64
	primed   bool
}

// Converged stops once the best observed value has failed to improve by
// more than tol for window consecutive rounds.
func Converged(window int, tol float64) StopCondition {
	return &converged{window: window, tol: tol, lastBest: math.Inf(1)}
}

func (c *converged) Done(st *state.State, _ int) (StopReason, bool) {
	best, ok := st.Best()
	if !ok {
		return ReasonNone, false
	}
	if !c.primed {
		c.primed = true
		c.lastBest = best.Output
		return ReasonNone, false
	}
	if c.lastBest-best.Output > c.tol {
		c.lastBest = best.Output
		c.stale = 0
		return ReasonNone, false
	}
	c.stale++
	if c.stale >= c.window {
		return ReasonConverged, true
	}
	return ReasonNone, false
}

type predicate struct {
	fn func(st *state.State, iteration int) bool
}

// Predicate stops when the given function returns true.
func Predicate(fn func(st *state.State, iteration int) bool) StopCondition {
	return &predicate{fn: fn}
}

func (c *predicate) Done(st *state.State, iteration int) (StopReason, bool) {
	if c.fn(st, iteration) {
		return ReasonPredicate, true
	}
	return ReasonNone, false
}

type anyOf struct {
	conds []StopCondition
}

// Any stops when any of the given conditions does.
func Any(conds ...StopCondition) StopCondition {
	return &anyOf{conds: conds}
}

func (c *anyOf) Done(st *state.State, iteration int) (StopReason, bool) {
	for _, cond := range c.conds {
		if reason, done := cond.Done(st, iteration); done {
			return reason, true
		}
	}
	return ReasonNone, false
}
