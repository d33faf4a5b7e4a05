package space

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmonlabs/optloop/internal/optloop"
)

func testSpace(t *testing.T) *Space {
	t.Helper()
	sp, err := New(
		NewContinuous("x1", 0, 1),
		NewDiscrete("workers", []float64{1, 2, 4, 8}),
		NewCategorical("kernel", []string{"rbf", "matern52"}),
	)
	require.NoError(t, err)
	return sp
}

func TestNewRejectsBadDefinitions(t *testing.T) {
	_, err := New()
	assert.Error(t, err, "empty space")

	_, err = New(NewContinuous("x", 0, 1), NewContinuous("x", 2, 3))
	assert.Error(t, err, "duplicate name")
}

func TestConstructorPanics(t *testing.T) {
	assert.Panics(t, func() { NewContinuous("x", 1, 1) })
	assert.Panics(t, func() { NewDiscrete("d", nil) })
	assert.Panics(t, func() { NewCategorical("c", nil) })
}

func TestValidate(t *testing.T) {
	sp := testSpace(t)

	tests := []struct {
		name    string
		point   []float64
		wantErr bool
	}{
		{name: "valid", point: []float64{0.5, 4, 1}, wantErr: false},
		{name: "continuous out of range", point: []float64{1.5, 4, 1}, wantErr: true},
		{name: "discrete not in set", point: []float64{0.5, 3, 1}, wantErr: true},
		{name: "categorical fractional index", point: []float64{0.5, 4, 0.5}, wantErr: true},
		{name: "categorical index out of range", point: []float64{0.5, 4, 2}, wantErr: true},
		{name: "wrong dimensionality", point: []float64{0.5, 4}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sp.Validate(tt.point)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, optloop.IsShapeMismatch(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClipProjectsIntoSpace(t *testing.T) {
	sp := testSpace(t)

	clipped := sp.Clip([]float64{-0.2, 3.1, 7})
	require.NoError(t, sp.Validate(clipped))
	assert.Equal(t, []float64{0, 4, 1}, clipped)

	// Discrete snaps to the nearest set member, not just the bounds.
	assert.Equal(t, []float64{1, 2, 0}, sp.Clip([]float64{1.2, 2.9, -3}))
}

func TestClipDoesNotMutateInput(t *testing.T) {
	sp := testSpace(t)
	point := []float64{-1, 3, 5}
	_ = sp.Clip(point)
	assert.Equal(t, []float64{-1, 3, 5}, point)
}

func TestSampleIsAlwaysValid(t *testing.T) {
	sp := testSpace(t)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		assert.NoError(t, sp.Validate(sp.Sample(rng)))
	}
}

func TestBoundsFollowDeclaredOrder(t *testing.T) {
	sp := testSpace(t)
	assert.Equal(t, [][2]float64{{0, 1}, {1, 8}, {0, 1}}, sp.Bounds())
	assert.Equal(t, 3, sp.Dim())
}

func TestCategoricalLabel(t *testing.T) {
	c := NewCategorical("kernel", []string{"rbf", "matern52"})

	label, err := c.Label(1)
	require.NoError(t, err)
	assert.Equal(t, "matern52", label)

	_, err = c.Label(2)
	assert.Error(t, err)
}
