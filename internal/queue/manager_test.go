package queue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholaris/paper-analysis-be/internal/domain"
)

func TestValidateSubmission(t *testing.T) {
	tests := []struct {
		name      string
		paperID   string
		providers []string
		want      domain.ProviderList
		wantErr   bool
		errField  string
	}{
		{
			name:      "valid submission",
			paperID:   "3f1c2d44-9a1b-4a6e-8a8f-f20a7a1cdd01",
			providers: []string{"openai", "anthropic"},
			want:      domain.ProviderList{"openai", "anthropic"},
		},
		{
			name:      "provider names normalized to lowercase",
			paperID:   "3f1c2d44-9a1b-4a6e-8a8f-f20a7a1cdd01",
			providers: []string{"OpenAI", " Gemini "},
			want:      domain.ProviderList{"openai", "gemini"},
		},
		{
			name:      "duplicate providers collapsed",
			paperID:   "3f1c2d44-9a1b-4a6e-8a8f-f20a7a1cdd01",
			providers: []string{"openai", "openai", "xai"},
			want:      domain.ProviderList{"openai", "xai"},
		},
		{
			name:      "empty paper id",
			paperID:   "  ",
			providers: []string{"openai"},
			wantErr:   true,
			errField:  "paper_id",
		},
		{
			name:      "empty provider list",
			paperID:   "3f1c2d44-9a1b-4a6e-8a8f-f20a7a1cdd01",
			providers: []string{},
			wantErr:   true,
			errField:  "providers",
		},
		{
			name:      "unknown provider rejected",
			paperID:   "3f1c2d44-9a1b-4a6e-8a8f-f20a7a1cdd01",
			providers: []string{"openai", "mistral"},
			wantErr:   true,
			errField:  "providers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateSubmission(tt.paperID, tt.providers)

			if tt.wantErr {
				require.Error(t, err)

				var validationErr *domain.ValidationError
				require.True(t, errors.As(err, &validationErr))
				assert.Equal(t, tt.errField, validationErr.Field)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateSubmission_PreservesRequestOrder(t *testing.T) {
	got, err := validateSubmission("paper-1", []string{"xai", "anthropic", "openai"})
	require.NoError(t, err)

	// Normalization drops duplicates but never reorders; the fingerprint is
	// the order-insensitive form.
	assert.Equal(t, domain.ProviderList{"xai", "anthropic", "openai"}, got)
	assert.Equal(t, "anthropic,openai,xai", got.Fingerprint())
}
