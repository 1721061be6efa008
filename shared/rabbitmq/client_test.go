package rabbitmq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishBackoff(t *testing.T) {
	tests := []struct {
		name     string
		base     time.Duration
		mult     float64
		attempt  int
		expected time.Duration
	}{
		{name: "first retry uses base", base: 100 * time.Millisecond, mult: 2, attempt: 0, expected: 100 * time.Millisecond},
		{name: "doubles per attempt", base: 100 * time.Millisecond, mult: 2, attempt: 2, expected: 400 * time.Millisecond},
		{name: "fractional multiplier", base: time.Second, mult: 1.5, attempt: 2, expected: 2250 * time.Millisecond},
		{name: "multiplier of one keeps delay flat", base: 250 * time.Millisecond, mult: 1, attempt: 5, expected: 250 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, publishBackoff(tt.base, tt.mult, tt.attempt))
		})
	}
}
