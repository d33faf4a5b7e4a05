// Package acquisition scores candidate points from surrogate model
// predictions. Scores are "higher is better" over the full parameter space
// and must be finite for valid in-space points: degenerate variance at
// already-observed points is clipped here, never by the loop.
package acquisition

import (
	"gonum.org/v1/gonum/mat"

	"github.com/harmonlabs/optloop/internal/optloop"
)

// Acquisition scores a batch of candidate points. Score is a pure function
// of the current model state and the points; there is no hidden state
// beyond what BestAware exposes.
type Acquisition interface {
	// Score returns one scalar per row of X, higher is better.
	Score(m optloop.SurrogateModel, X *mat.Dense) (*mat.VecDense, error)
}

// BestAware is implemented by acquisitions that condition on the best
// observed value (EI, PI). The loop pushes the incumbent best after every
// history update; combinators forward it to their terms.
type BestAware interface {
	UpdateBest(best float64)
}

// Sum combines acquisitions by adding their scores pointwise.
type Sum struct {
	terms []Acquisition
}

// NewSum creates a Sum of the given acquisitions.
func NewSum(terms ...Acquisition) *Sum {
	return &Sum{terms: terms}
}

// Score implements Acquisition.
func (s *Sum) Score(m optloop.SurrogateModel, X *mat.Dense) (*mat.VecDense, error) {
	return combine(s.terms, m, X, func(acc, v float64) float64 { return acc + v }, 0)
}

// UpdateBest implements BestAware by forwarding to best-aware terms.
func (s *Sum) UpdateBest(best float64) { forwardBest(s.terms, best) }

// Product combines acquisitions by multiplying their scores pointwise. The
// terms are assumed non-negative (EI, PI); mixing in signed scores breaks
// the "higher is better" contract.
type Product struct {
	terms []Acquisition
}

// NewProduct creates a Product of the given acquisitions.
func NewProduct(terms ...Acquisition) *Product {
	return &Product{terms: terms}
}

// Score implements Acquisition.
func (p *Product) Score(m optloop.SurrogateModel, X *mat.Dense) (*mat.VecDense, error) {
	return combine(p.terms, m, X, func(acc, v float64) float64 { return acc * v }, 1)
}

// UpdateBest implements BestAware by forwarding to best-aware terms.
func (p *Product) UpdateBest(best float64) { forwardBest(p.terms, best) }

func combine(terms []Acquisition, m optloop.SurrogateModel, X *mat.Dense, op func(acc, v float64) float64, identity float64) (*mat.VecDense, error) {
	n, _ := X.Dims()
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetVec(i, identity)
	}
	for _, term := range terms {
		scores, err := term.Score(m, X)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			out.SetVec(i, op(out.AtVec(i), scores.AtVec(i)))
		}
	}
	return out, nil
}

func forwardBest(terms []Acquisition, best float64) {
	for _, term := range terms {
		if ba, ok := term.(BestAware); ok {
			ba.UpdateBest(best)
		}
	}
}
