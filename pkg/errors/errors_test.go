package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	t.Run("includes field list", func(t *testing.T) {
		err := NewValidationError("invalid sample",
			FieldError{Field: "patientInfo.name", Message: "is required"},
			FieldError{Field: "patientInfo.age", Message: "must be between 0 and 150"},
		)

		assert.Equal(t, "VALIDATION: invalid sample (patientInfo.name is required; patientInfo.age must be between 0 and 150)", err.Error())
	})

	t.Run("includes wrapped cause", func(t *testing.T) {
		err := NewInternalError("failed to save", fmt.Errorf("boom"))
		assert.Equal(t, "INTERNAL: failed to save: boom", err.Error())
	})
}

func TestTypeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewConflictError("stale version"))

	assert.Equal(t, ErrorTypeConflict, TypeOf(wrapped))
	assert.True(t, IsType(wrapped, ErrorTypeConflict))
	assert.False(t, IsType(wrapped, ErrorTypeNotFound))
	assert.Equal(t, ErrorTypeInternal, TypeOf(fmt.Errorf("plain")))
}
