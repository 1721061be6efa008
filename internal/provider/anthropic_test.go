package provider

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
)

func TestMessageText(t *testing.T) {
	tests := []struct {
		name     string
		blocks   []anthropic.ContentBlockUnion
		expected string
	}{
		{
			name: "single text block",
			blocks: []anthropic.ContentBlockUnion{
				{Type: "text", Text: "summary"},
			},
			expected: "summary",
		},
		{
			name: "joins multiple text blocks",
			blocks: []anthropic.ContentBlockUnion{
				{Type: "text", Text: "part one "},
				{Type: "text", Text: "part two"},
			},
			expected: "part one part two",
		},
		{
			name: "skips non-text blocks",
			blocks: []anthropic.ContentBlockUnion{
				{Type: "thinking"},
				{Type: "text", Text: "the analysis"},
				{Type: "tool_use"},
			},
			expected: "the analysis",
		},
		{
			name:     "no content",
			blocks:   nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, messageText(tt.blocks))
		})
	}
}
