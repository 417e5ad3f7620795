package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Predicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		code  string
	}{
		{"not found", NewNotFoundError("enquiry"), IsNotFound, ErrCodeNotFound},
		{"validation", NewValidationError("invalid"), IsValidation, ErrCodeValidation},
		{"unauthorized", NewUnauthorizedError(), IsUnauthorized, ErrCodeUnauthorized},
		{"forbidden", NewForbiddenError("nope"), IsForbidden, ErrCodeForbidden},
		{"internal", NewInternalError(fmt.Errorf("boom")), IsInternal, ErrCodeInternal},
		{"conflict", NewConflictError("taken"), IsConflict, ErrCodeConflict},
		{"bad request", NewBadRequestError("bad"), IsBadRequest, ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.Equal(t, tt.code, GetErrorCode(tt.err))

			wrapped := fmt.Errorf("service: %w", tt.err)
			assert.True(t, tt.check(wrapped), "predicate must see through wrapping")
		})
	}
}

func TestDomainError_ValidationListsEveryViolation(t *testing.T) {
	err := NewValidationError("invalid enquiry", "phone is required", "priority must be one of HIGH MEDIUM LOW")

	assert.Contains(t, err.Error(), "phone is required")
	assert.Contains(t, err.Error(), "priority must be one of HIGH MEDIUM LOW")
}

func TestGetErrorCode_PlainError(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, GetErrorCode(fmt.Errorf("plain")))
	assert.False(t, IsNotFound(nil))
}
