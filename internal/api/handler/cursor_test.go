package handler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholaris/paper-analysis-be/internal/storage"
)

func TestJobCursor_RoundTrip(t *testing.T) {
	original := &storage.JobCursor{
		CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC),
		JobID:     "3f1c2d44-9a1b-4a6e-8a8f-f20a7a1cdd01",
	}

	encoded := EncodeJobCursor(original)
	decoded, err := DecodeJobCursor(encoded)
	require.NoError(t, err)

	assert.True(t, original.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, original.JobID, decoded.JobID)
}

func TestDecodeJobCursor(t *testing.T) {
	tests := []struct {
		name    string
		cursor  string
		wantErr bool
		wantNil bool
	}{
		{
			name:    "empty cursor means first page",
			cursor:  "",
			wantNil: true,
		},
		{
			name:    "not base64",
			cursor:  "!!!not-base64!!!",
			wantErr: true,
		},
		{
			name:    "missing separator",
			cursor:  base64.StdEncoding.EncodeToString([]byte("no-separator-here")),
			wantErr: true,
		},
		{
			name:    "non-numeric timestamp",
			cursor:  base64.StdEncoding.EncodeToString([]byte("abc|some-job-id")),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cursor, err := DecodeJobCursor(tt.cursor)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, cursor)
			}
		})
	}
}
