package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/scholaris/paper-analysis-be/internal/domain"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name         string
		err          error
		expectedCode int
		bodyContains string
	}{
		{
			name:         "validation error",
			err:          domain.NewValidationError("providers", "at least one provider is required"),
			expectedCode: http.StatusBadRequest,
			bodyContains: "providers",
		},
		{
			name:         "job not found",
			err:          domain.ErrJobNotFound,
			expectedCode: http.StatusNotFound,
			bodyContains: "job not found",
		},
		{
			name:         "unknown paper reference",
			err:          fmt.Errorf("%w: paper-404", domain.ErrPaperNotFound),
			expectedCode: http.StatusNotFound,
			bodyContains: "paper not found",
		},
		{
			name:         "invalid state",
			err:          domain.ErrInvalidState,
			expectedCode: http.StatusBadRequest,
			bodyContains: "not allowed",
		},
		{
			name:         "broker unavailable",
			err:          &domain.ConnectivityError{Service: "broker", Err: errors.New("dial refused")},
			expectedCode: http.StatusServiceUnavailable,
			bodyContains: "broker unavailable",
		},
		{
			name:         "unexpected error",
			err:          errors.New("boom"),
			expectedCode: http.StatusInternalServerError,
			bodyContains: "internal error",
		},
	}

	h := &JobHandler{logger: slog.New(slog.DiscardHandler)}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)

			h.respondError(c, tt.err)

			assert.Equal(t, tt.expectedCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.bodyContains)
		})
	}
}
