package careflow

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCategorizeStatus(t *testing.T) {
	tests := []struct {
		code     int
		expected ErrorCategory
	}{
		{429, ErrorTransient},
		{500, ErrorTransient},
		{503, ErrorTransient},
		{400, ErrorUserInput},
		{404, ErrorUserInput},
		{422, ErrorUserInput},
		{401, ErrorPermanent},
		{403, ErrorPermanent},
		{418, ErrorPermanent},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.code), func(t *testing.T) {
			assert.Equal(t, tt.expected, CategorizeStatus(tt.code))
		})
	}
}

func TestNewStatusError(t *testing.T) {
	t.Run("retry after forces transient", func(t *testing.T) {
		err := NewStatusError("rate limited", 403, 2*time.Second, nil)
		assert.Equal(t, ErrorTransient, err.Category())
		assert.Equal(t, 2*time.Second, RetryAfterOf(err))
	})

	t.Run("wraps cause", func(t *testing.T) {
		cause := errors.New("boom")
		err := NewStatusError("upstream failed", 502, 0, cause)
		assert.True(t, errors.Is(err, cause))
		assert.Equal(t, "upstream failed: boom", err.Error())
		assert.Equal(t, 502, StatusCodeOf(err))
	})
}

func TestCategoryHelpers(t *testing.T) {
	transient := fmt.Errorf("wrapped: %w", NewStatusError("overloaded", 529, 0, nil))
	permanent := NewStatusError("bad key", 401, 0, nil)

	assert.True(t, IsTransient(transient))
	assert.False(t, IsPermanent(transient))
	assert.True(t, IsPermanent(permanent))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.Zero(t, StatusCodeOf(errors.New("plain")))
}
