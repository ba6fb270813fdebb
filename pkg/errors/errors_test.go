package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	err := ErrValidation.WithDetail("field", "topic")

	assert.Equal(t, "topic", err.Details["field"])
	assert.NotContains(t, ErrValidation.Details, "field")
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("create: %w", ErrLimitExceeded.WithDetail("limit", 50))

	assert.True(t, errors.Is(err, ErrLimitExceeded))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.True(t, IsLimitExceeded(err))
	assert.Equal(t, http.StatusTooManyRequests, ToHTTPStatus(err))
}

func TestClassifiers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", ErrNotFound.WithDetail("id", "x"), IsNotFound},
		{"validation", ErrValidation, IsValidation},
		{"queue reject", ErrQueueReject.WithDetail("queue", "q"), IsQueueReject},
		{"delivery failure", Wrap(errors.New("closed"), ErrDeliveryFailure), IsDeliveryFailure},
		{"conflict", ErrConflict, IsConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.False(t, tt.check(errors.New("plain")))
		})
	}
}

func TestRetryability(t *testing.T) {
	assert.False(t, ErrValidation.IsRetryable())
	assert.False(t, ErrLimitExceeded.IsRetryable())
	assert.True(t, ErrServiceUnavailable.IsRetryable())
	assert.True(t, ErrValidation.AsRetryable().IsRetryable())
}

func TestToErrorResponse(t *testing.T) {
	resp := ToErrorResponse(ErrValidation.WithDetail("message", "topic is required"))
	assert.Equal(t, "topic is required", resp["error"])
	assert.Equal(t, "VALIDATION_ERROR", resp["error_code"])

	resp = ToErrorResponse(errors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR", resp["error_code"])
}

func TestRecoverPanic(t *testing.T) {
	assert.Nil(t, RecoverPanic(nil))

	err := RecoverPanic("boom")
	var appErr *Error
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.True(t, appErr.IsFatal())
}
