package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(999).String())
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"circuit open", ErrCircuitOpen, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"invalid data", ErrInvalidData, false},
		{"type mismatch", ErrTypeMismatch, false},
		{"codec error mentioning connection", fmt.Errorf("field connection_id: %w", ErrTypeMismatch), false},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsTransient(test.err))
		})
	}
}

func TestIsInvalid_CodecSentinels(t *testing.T) {
	for _, err := range []error{
		ErrTypeMismatch, ErrInvalidInput, ErrUnexpectedField,
		ErrUnknownEnumSymbol, ErrNotAMessage, ErrUnknownType,
	} {
		wrapped := fmt.Errorf("outer.inner: %w", err)
		assert.True(t, IsInvalid(wrapped), "%v should be invalid", err)
		assert.Equal(t, ErrorInvalid, Classify(wrapped))
	}
	assert.False(t, IsInvalid(nil))
	assert.False(t, IsInvalid(ErrConnectionLost))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrInvalidConfig))
	assert.True(t, IsFatal(fmt.Errorf("load: %w", ErrMissingConfig)))
	assert.False(t, IsFatal(ErrConnectionTimeout))
	assert.False(t, IsFatal(nil))
}

func TestQueueClosedIsAlreadyStopped(t *testing.T) {
	assert.ErrorIs(t, ErrQueueClosed, ErrAlreadyStopped)
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "Store", "Emit", "deliver"))

	base := errors.New("boom")
	err := Wrap(base, "Store", "Emit", "deliver")
	assert.Equal(t, "Store.Emit: deliver failed: boom", err.Error())
	assert.ErrorIs(t, err, base)
}

func TestWrapClassified(t *testing.T) {
	base := errors.New("boom")

	transient := WrapTransient(base, "Relay", "Start", "connect")
	fatal := WrapFatal(base, "Relay", "Start", "connect")
	invalid := WrapInvalid(base, "Relay", "Start", "connect")

	assert.True(t, IsTransient(transient))
	assert.True(t, IsFatal(fatal))
	assert.True(t, IsInvalid(invalid))

	var ce *ClassifiedError
	require.True(t, errors.As(invalid, &ce))
	assert.Equal(t, "Relay", ce.Component)
	assert.Equal(t, "Start", ce.Operation)
	assert.ErrorIs(t, invalid, base)

	assert.Nil(t, WrapTransient(nil, "a", "b", "c"))
}

func TestRetryConfig(t *testing.T) {
	rc := DefaultRetryConfig()

	assert.True(t, rc.ShouldRetry(ErrConnectionLost, 0))
	assert.False(t, rc.ShouldRetry(ErrTypeMismatch, 0))
	assert.False(t, rc.ShouldRetry(ErrConnectionLost, rc.MaxRetries))

	cfg := rc.ToRetryConfig()
	assert.Equal(t, rc.MaxRetries+1, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.True(t, cfg.AddJitter)
}
