package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("boom"), EINTERNAL},
		{"coded", NotFound("op", "request", "x"), ENOTFOUND},
		{"wrapped coded", fmt.Errorf("outer: %w", Forbidden("op", "no")), EFORBIDDEN},
		{"validation", NewValidationError("op", "category", "bad"), EINVALID},
		{"no candidates", &NoEligibleCandidatesError{RequestID: "r"}, ESEARCHING},
		{"conflict", &ConcurrentAssignmentConflict{RequestID: "r"}, EGONE},
		{"guarantee", &PriceGuaranteeViolation{RequestID: "r", Quoted: 100, Charged: 200}, EREVIEW},
		{"transition", &StateTransitionError{RequestID: "r"}, ESTATE},
		{"wrapped typed", Wrap(&StateTransitionError{}, ECONFLICT, "op", "outer wins"), ECONFLICT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "", ErrorMessage(nil))
	assert.Equal(t, "nothing here", ErrorMessage(Errorf(ENOTFOUND, "op", "nothing here")))
	assert.Contains(t, ErrorMessage(Internal(errors.New("db down"), "op", "db down")), "internal error")
	assert.Contains(t, ErrorMessage(errors.New("secret detail")), "internal error")
	assert.Contains(t, ErrorMessage(&ConcurrentAssignmentConflict{RequestID: "abc"}), "no longer available")
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("pricing.quote", "distance_km", "must not be negative")
	assert.Equal(t, "pricing.quote: distance_km must not be negative", err.Error())

	err.Add("demand_multiplier", "must be positive")
	assert.Len(t, err.Fields, 2)
	assert.Equal(t, "pricing.quote: validation failed", err.Error())
}

func TestErrorOp(t *testing.T) {
	assert.Equal(t, "dispatch.accept", ErrorOp(Conflict("dispatch.accept", "taken")))
	assert.Equal(t, "", ErrorOp(errors.New("x")))
}
