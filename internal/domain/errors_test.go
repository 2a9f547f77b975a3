package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"external service error", NewExternalServiceError("gemini", errors.New("503")), true},
		{"wrapped external service error", fmt.Errorf("run: %w", ErrExternalService), true},
		{"timeout", fmt.Errorf("job: %w", ErrTimeout), true},
		{"validation error", NewValidationError("title", "too short"), false},
		{"not found", &NotFoundError{Resource: "book", ID: "7"}, false},
		{"business rule", &BusinessRuleError{Rule: "x", Message: "y"}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.retryable, IsRetryable(tc.err))
		})
	}
}

func TestErrorUnwrapping(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, NewValidationError("f", "m"), ErrValidation)
	assert.ErrorIs(t, &NotFoundError{Resource: "book", ID: "1"}, ErrNotFound)
	assert.ErrorIs(t, &BusinessRuleError{Rule: "r", Message: "m"}, ErrBusinessRule)
	assert.ErrorIs(t, NewExternalServiceError("storage", errors.New("io")), ErrExternalService)
}
