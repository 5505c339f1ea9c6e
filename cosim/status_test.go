package cosim

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "discard", StatusDiscard.String())
	assert.Equal(t, "fatal", StatusFatal.String())
	assert.Equal(t, "status(42)", Status(42).String())
}

func TestStatusOf_ClassifiesWrappedErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{name: "nil is ok", err: nil, want: StatusOK},
		{name: "plain error is error", err: errors.New("boom"), want: StatusError},
		{name: "fatal", err: fatal("DoStep", ErrStepRejected), want: StatusFatal},
		{name: "warning wrapped again", err: fmt.Errorf("outer: %w", warning("Reset", ErrUnsupported)), want: StatusWarning},
		{name: "discard", err: discard("GetBooleanStatus", ErrUnsupported), want: StatusDiscard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestError_UnwrapsToSentinel(t *testing.T) {
	err := failure("SetReal", fmt.Errorf("%w: 7", ErrUnknownReference))
	assert.ErrorIs(t, err, ErrUnknownReference)
	var classified *Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, StatusError, classified.Status)
	assert.Equal(t, "SetReal", classified.Op)
	assert.Equal(t, "SetReal: unknown value reference: 7", err.Error())
}
