package optloop

import (
	"gonum.org/v1/gonum/mat"
)

// SurrogateModel is the probabilistic model the loop consults between
// evaluations. The engine treats it as an external collaborator: it only
// needs "fit to observed data" and "predict mean/variance at query points".
//
// Fit (re)trains on the full current history and may be called from scratch
// every round; cold refits are the required baseline. A model may retain
// hyperparameters across fits as a warm start, but the loop never depends
// on it. A model that cannot fit must return an error satisfying
// IsModelFit so the loop can surface it without mutating its state.
//
// Predict must be defined over the entire parameter space, including
// unobserved regions, and returns a predictive mean and variance per row
// of X.
type SurrogateModel interface {
	Fit(X *mat.Dense, y *mat.VecDense) error
	Predict(X *mat.Dense) (mean, variance *mat.VecDense, err error)
}
