package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsForeignKeyViolation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "foreign key violation",
			err:      &pq.Error{Code: "23503", Message: "insert or update violates foreign key constraint"},
			expected: true,
		},
		{
			name:     "wrapped foreign key violation",
			err:      fmt.Errorf("exec failed: %w", &pq.Error{Code: "23503"}),
			expected: true,
		},
		{
			name:     "unique violation is not a foreign key violation",
			err:      &pq.Error{Code: "23505"},
			expected: false,
		},
		{
			name:     "plain error",
			err:      errors.New("connection refused"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isForeignKeyViolation(tt.err))
		})
	}
}
