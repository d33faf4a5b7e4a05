package kernels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKernelBasics(t *testing.T) {
	tests := []struct {
		name   string
		kernel Kernel
	}{
		{name: "rbf", kernel: NewRBF(1.0, 2.0)},
		{name: "matern52", kernel: NewMatern52(1.0, 2.0)},
	}

	x := []float64{0.3, 0.7}
	near := []float64{0.4, 0.7}
	far := []float64{5.0, -3.0}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Identical inputs give the signal variance.
			assert.InDelta(t, 2.0, tt.kernel.Eval(x, x), 1e-12)

			// Symmetry.
			assert.Equal(t, tt.kernel.Eval(x, near), tt.kernel.Eval(near, x))

			// Covariance decays with distance and stays positive.
			closeVal := tt.kernel.Eval(x, near)
			farVal := tt.kernel.Eval(x, far)
			assert.Greater(t, closeVal, farVal)
			assert.Greater(t, farVal, 0.0)
			assert.Less(t, closeVal, 2.0)
		})
	}
}

func TestConstructorsPanicOnBadParams(t *testing.T) {
	assert.Panics(t, func() { NewRBF(0, 1) })
	assert.Panics(t, func() { NewRBF(1, -1) })
	assert.Panics(t, func() { NewMatern52(-1, 1) })
	assert.Panics(t, func() { NewMatern52(1, 0) })
}

func TestSetHyperparameters(t *testing.T) {
	for name, k := range map[string]Kernel{
		"rbf":      NewRBF(1, 1),
		"matern52": NewMatern52(1, 1),
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, k.SetHyperparameters([]float64{0.5, 3.0}))
			assert.Equal(t, []float64{0.5, 3.0}, k.Hyperparameters())

			assert.Error(t, k.SetHyperparameters([]float64{1}))
			assert.Error(t, k.SetHyperparameters([]float64{-1, 1}))
			assert.Error(t, k.SetHyperparameters([]float64{1, 0}))

			// A failed set leaves the previous values in place.
			assert.Equal(t, []float64{0.5, 3.0}, k.Hyperparameters())
		})
	}
}

func TestLongerLengthScaleDecaysSlower(t *testing.T) {
	short := NewRBF(0.5, 1.0)
	long := NewRBF(2.0, 1.0)

	x, y := []float64{0}, []float64{1}
	assert.Greater(t, long.Eval(x, y), short.Eval(x, y))
}
