package optloop

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{
			name: "shape mismatch",
			err:  ShapeMismatch("State.Update", "want %d values, got %d", 2, 3),
			kind: KindShapeMismatch,
		},
		{
			name: "model fit",
			err:  ModelFit("GP.Fit", errors.New("matrix not positive definite")),
			kind: KindModelFit,
		},
		{
			name: "protocol violation",
			err:  ProtocolViolation("Loop.SuggestNext", "awaiting results"),
			kind: KindProtocolViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e *Error
			require.True(t, errors.As(tt.err, &e))
			assert.Equal(t, tt.kind, e.Kind)

			assert.Equal(t, tt.kind == KindShapeMismatch, IsShapeMismatch(tt.err))
			assert.Equal(t, tt.kind == KindModelFit, IsModelFit(tt.err))
			assert.Equal(t, tt.kind == KindProtocolViolation, IsProtocolViolation(tt.err))
		})
	}
}

func TestErrorMessageIncludesContext(t *testing.T) {
	err := ShapeMismatch("State.Update", "observation 0 has 3 values, space has 2 parameters").
		WithComponent("state")
	assert.Contains(t, err.Error(), "state: State.Update")
	assert.Contains(t, err.Error(), "observation 0")
}

func TestWrapPreservesKind(t *testing.T) {
	inner := ProtocolViolation("Loop.SuggestNext", "awaiting results")
	wrapped := Wrap(fmt.Errorf("handler: %w", inner), "request failed")

	require.NotNil(t, wrapped)
	assert.True(t, IsProtocolViolation(wrapped))
	assert.ErrorIs(t, wrapped, inner)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "nothing happened"))
	assert.Nil(t, ModelFit("GP.Fit", nil))
}

func TestPredicatesRejectPlainErrors(t *testing.T) {
	plain := errors.New("boom")
	assert.False(t, IsShapeMismatch(plain))
	assert.False(t, IsModelFit(plain))
	assert.False(t, IsProtocolViolation(plain))
}
