// Package state holds the accumulating record of evaluated samples. The
// history is append-only: observations are never removed or mutated, which
// is what allows a loop to be reconstructed from an exported snapshot
// without loss.
package state

import (
	"gonum.org/v1/gonum/mat"

	"github.com/harmonlabs/optloop/internal/optloop"
)

// Observation is one evaluated sample: an input point (one value per
// parameter, in declared order) and the output observed there. Immutable
// once appended; owned exclusively by the State that holds it.
type Observation struct {
	Input  []float64
	Output float64
}

// Snapshot is the exported (inputs, outputs) history in evaluation order.
// It is a deep copy, safe to hand to a surrogate model for refitting or to
// a caller for reconstructing an equivalent loop.
type Snapshot struct {
	Inputs  [][]float64 `json:"inputs"`
	Outputs []float64   `json:"outputs"`
}

// State owns the ordered sequence of all observations accumulated so far.
// Insertion order is evaluation order. A State is mutated only through
// Update and is not safe for concurrent use without external serialization.
type State struct {
	dim     int
	inputs  [][]float64
	outputs []float64
}

// New creates an empty history for points of the given dimensionality.
func New(dim int) (*State, error) {
	const op = "State.New"
	if dim < 1 {
		return nil, optloop.ShapeMismatch(op, "dimensionality must be positive, got %d", dim)
	}
	return &State{dim: dim}, nil
}

// FromSnapshot rehydrates a history from a previously exported snapshot.
// The snapshot's shapes are validated the same way Update validates a
// batch of observations.
func FromSnapshot(dim int, snap Snapshot) (*State, error) {
	const op = "State.FromSnapshot"
	st, err := New(dim)
	if err != nil {
		return nil, err
	}
	if len(snap.Inputs) != len(snap.Outputs) {
		return nil, optloop.ShapeMismatch(op, "snapshot has %d inputs but %d outputs", len(snap.Inputs), len(snap.Outputs))
	}
	obs := make([]Observation, len(snap.Inputs))
	for i, in := range snap.Inputs {
		obs[i] = Observation{Input: in, Output: snap.Outputs[i]}
	}
	if err := st.Update(obs); err != nil {
		return nil, err
	}
	return st, nil
}

// Dim returns the point dimensionality the history was created with.
func (s *State) Dim() int { return s.dim }

// Len returns the number of observations recorded so far.
func (s *State) Len() int { return len(s.inputs) }

// Update appends all given observations in order. The whole batch is
// validated before anything is appended, so a failing Update leaves the
// history exactly as it was.
func (s *State) Update(observations []Observation) error {
	const op = "State.Update"
	for i, obs := range observations {
		if len(obs.Input) != s.dim {
			return optloop.ShapeMismatch(op, "observation %d has %d values, space has %d parameters", i, len(obs.Input), s.dim)
		}
	}
	for _, obs := range observations {
		s.inputs = append(s.inputs, append([]float64(nil), obs.Input...))
		s.outputs = append(s.outputs, obs.Output)
	}
	return nil
}

// Snapshot returns the full history in evaluation order as a deep copy.
func (s *State) Snapshot() Snapshot {
	inputs := make([][]float64, len(s.inputs))
	for i, in := range s.inputs {
		inputs[i] = append([]float64(nil), in...)
	}
	return Snapshot{
		Inputs:  inputs,
		Outputs: append([]float64(nil), s.outputs...),
	}
}

// Matrices packs the history into gonum matrices for a model refit. The
// returned matrices are copies. Returns nil matrices for an empty history.
func (s *State) Matrices() (*mat.Dense, *mat.VecDense) {
	n := len(s.inputs)
	if n == 0 {
		return nil, nil
	}
	X := mat.NewDense(n, s.dim, nil)
	y := mat.NewVecDense(n, nil)
	for i, in := range s.inputs {
		for j, v := range in {
			X.Set(i, j, v)
		}
		y.SetVec(i, s.outputs[i])
	}
	return X, y
}

// Best returns the observation with the lowest output. The second return
// is false for an empty history.
func (s *State) Best() (Observation, bool) {
	if len(s.inputs) == 0 {
		return Observation{}, false
	}
	bestIdx := 0
	for i, v := range s.outputs[1:] {
		if v < s.outputs[bestIdx] {
			bestIdx = i + 1
		}
	}
	return Observation{
		Input:  append([]float64(nil), s.inputs[bestIdx]...),
		Output: s.outputs[bestIdx],
	}, true
}
