package loop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmonlabs/optloop/internal/optloop/state"
)

func historyWithOutputs(t *testing.T, outputs ...float64) *state.State {
	t.Helper()
	st, err := state.New(1)
	require.NoError(t, err)
	for _, out := range outputs {
		require.NoError(t, st.Update([]state.Observation{
			{Input: []float64{0.5}, Output: out},
		}))
	}
	return st
}

func TestMaxIterations(t *testing.T) {
	cond := MaxIterations(3)
	st := historyWithOutputs(t)

	for i := 0; i < 3; i++ {
		reason, done := cond.Done(st, i)
		assert.False(t, done, "iteration %d", i)
		assert.Equal(t, ReasonNone, reason)
	}

	reason, done := cond.Done(st, 3)
	assert.True(t, done)
	assert.Equal(t, ReasonMaxIterations, reason)
}

func TestConverged(t *testing.T) {
	cond := Converged(2, 0.01)
	st := historyWithOutputs(t, 5.0)

	// Empty history never converges.
	_, done := cond.Done(historyWithOutputs(t), 0)
	assert.False(t, done)

	// First sighting primes the incumbent.
	_, done = cond.Done(st, 0)
	assert.False(t, done)

	// A real improvement resets the stale counter.
	require.NoError(t, st.Update([]state.Observation{{Input: []float64{0.5}, Output: 4.0}}))
	_, done = cond.Done(st, 1)
	assert.False(t, done)

	// Two consecutive rounds without improvement beyond tol trip it.
	_, done = cond.Done(st, 2)
	assert.False(t, done)
	require.NoError(t, st.Update([]state.Observation{{Input: []float64{0.5}, Output: 3.995}}))
	reason, done := cond.Done(st, 3)
	assert.True(t, done)
	assert.Equal(t, ReasonConverged, reason)
}

func TestPredicate(t *testing.T) {
	cond := Predicate(func(st *state.State, iteration int) bool {
		best, ok := st.Best()
		return ok && best.Output < 1.0
	})

	_, done := cond.Done(historyWithOutputs(t, 5.0), 0)
	assert.False(t, done)

	reason, done := cond.Done(historyWithOutputs(t, 5.0, 0.5), 1)
	assert.True(t, done)
	assert.Equal(t, ReasonPredicate, reason)
}

func TestAnyReportsFirstFiringCondition(t *testing.T) {
	cond := Any(
		MaxIterations(100),
		Predicate(func(st *state.State, iteration int) bool { return iteration >= 2 }),
	)
	st := historyWithOutputs(t, 1.0)

	_, done := cond.Done(st, 1)
	assert.False(t, done)

	reason, done := cond.Done(st, 2)
	assert.True(t, done)
	assert.Equal(t, ReasonPredicate, reason)
}
