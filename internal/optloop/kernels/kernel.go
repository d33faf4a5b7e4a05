// Package kernels provides covariance functions for the bundled Gaussian
// process surrogate.
package kernels

import (
	"fmt"
	"math"
)

// Kernel is a stationary covariance function over points of equal
// dimensionality.
type Kernel interface {
	// Eval computes the kernel value between x1 and x2.
	Eval(x1, x2 []float64) float64

	// Hyperparameters returns the current hyperparameters.
	Hyperparameters() []float64

	// SetHyperparameters sets the kernel's hyperparameters.
	SetHyperparameters(params []float64) error
}

// sqDist returns the squared Euclidean distance between x1 and x2.
func sqDist(x1, x2 []float64) float64 {
	var sum float64
	for i := range x1 {
		d := x1[i] - x2[i]
		sum += d * d
	}
	return sum
}

func checkPositive(name string, lengthScale, signalVar float64) {
	if lengthScale <= 0 {
		panic(fmt.Sprintf("%s: lengthScale must be positive, got %v", name, lengthScale))
	}
	if signalVar <= 0 {
		panic(fmt.Sprintf("%s: signalVar must be positive, got %v", name, signalVar))
	}
}

func setTwo(lengthScale, signalVar *float64, params []float64) error {
	if len(params) != 2 {
		return fmt.Errorf("expected 2 hyperparameters, got %d", len(params))
	}
	if params[0] <= 0 || params[1] <= 0 {
		return fmt.Errorf("hyperparameters must be positive, got %v", params)
	}
	*lengthScale = params[0]
	*signalVar = params[1]
	return nil
}

// RBF is the squared-exponential kernel. Larger length scales give smoother
// functions; the signal variance controls the amplitude.
type RBF struct {
	lengthScale float64
	signalVar   float64
}

// NewRBF creates an RBF kernel. Panics on non-positive parameters.
func NewRBF(lengthScale, signalVar float64) *RBF {
	checkPositive("kernels.NewRBF", lengthScale, signalVar)
	return &RBF{lengthScale: lengthScale, signalVar: signalVar}
}

// Eval implements Kernel.
func (k *RBF) Eval(x1, x2 []float64) float64 {
	return k.signalVar * math.Exp(-sqDist(x1, x2)/(2*k.lengthScale*k.lengthScale))
}

// Hyperparameters implements Kernel.
func (k *RBF) Hyperparameters() []float64 {
	return []float64{k.lengthScale, k.signalVar}
}

// SetHyperparameters implements Kernel.
func (k *RBF) SetHyperparameters(params []float64) error {
	return setTwo(&k.lengthScale, &k.signalVar, params)
}

// Matern52 is the Matérn kernel with smoothness 5/2, the usual default for
// Bayesian optimization: less smooth than RBF, which keeps the surrogate
// from over-committing between observations.
type Matern52 struct {
	lengthScale float64
	signalVar   float64
}

// NewMatern52 creates a Matérn 5/2 kernel. Panics on non-positive
// parameters.
func NewMatern52(lengthScale, signalVar float64) *Matern52 {
	checkPositive("kernels.NewMatern52", lengthScale, signalVar)
	return &Matern52{lengthScale: lengthScale, signalVar: signalVar}
}

// Eval implements Kernel.
func (k *Matern52) Eval(x1, x2 []float64) float64 {
	r := math.Sqrt(sqDist(x1, x2)) / k.lengthScale
	sqrt5r := math.Sqrt(5) * r
	poly := 1.0 + sqrt5r + (5.0/3.0)*r*r
	return k.signalVar * poly * math.Exp(-sqrt5r)
}

// Hyperparameters implements Kernel.
func (k *Matern52) Hyperparameters() []float64 {
	return []float64{k.lengthScale, k.signalVar}
}

// SetHyperparameters implements Kernel.
func (k *Matern52) SetHyperparameters(params []float64) error {
	return setTwo(&k.lengthScale, &k.signalVar, params)
}
