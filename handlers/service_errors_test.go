package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/bi-chat-gateway/services"
	"github.com/upb/bi-chat-gateway/utils"
	"go.uber.org/zap"
)

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name            string
		err             error
		expectedStatus  int
		expectedError   string
		expectedMessage string
	}{
		{
			name:            "not found error",
			err:             services.ErrDashboardNotFound,
			expectedStatus:  http.StatusNotFound,
			expectedError:   "not_found",
			expectedMessage: "dashboard not found",
		},
		{
			name:            "validation error",
			err:             services.ErrInvalidVisualOrder,
			expectedStatus:  http.StatusBadRequest,
			expectedError:   "bad_request",
			expectedMessage: "visualOrder must be an array",
		},
		{
			name:           "unauthorized error",
			err:            services.ErrUnauthorized,
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "unauthorized",
		},
		{
			name:           "conflict error",
			err:            services.ErrDuplicateSession,
			expectedStatus: http.StatusConflict,
			expectedError:  "conflict",
		},
		{
			name:            "unavailable error hides cause",
			err:             services.StoreUnavailable("save dashboard", errors.New("dial tcp 10.0.0.5:5432")),
			expectedStatus:  http.StatusServiceUnavailable,
			expectedError:   "service_unavailable",
			expectedMessage: "document store unavailable",
		},
		{
			name:           "external error",
			err:            services.ErrEmbedProviderError,
			expectedStatus: http.StatusBadGateway,
			expectedError:  "bad_gateway",
		},
		{
			name:            "internal error",
			err:             services.WrapInternal("boom", errors.New("nil map")),
			expectedStatus:  http.StatusInternalServerError,
			expectedError:   "internal_error",
			expectedMessage: "An internal error occurred",
		},
		{
			name:            "plain error",
			err:             errors.New("something unexpected"),
			expectedStatus:  http.StatusInternalServerError,
			expectedError:   "internal_error",
			expectedMessage: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			HandleServiceError(rec, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, rec.Code)

			var response utils.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
			assert.Equal(t, tt.expectedError, response.Error)
			if tt.expectedMessage != "" {
				assert.Equal(t, tt.expectedMessage, response.Message)
			}
			assert.NotContains(t, response.Message, "10.0.0.5")
		})
	}
}

func TestHandleServiceError_Nil(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleServiceError(rec, nil, zap.NewNop())
	assert.Zero(t, rec.Body.Len())
}

func TestHandleServiceError_ValidationFields(t *testing.T) {
	type payload struct {
		SessionID string `json:"sessionId" validate:"required"`
	}
	fieldErr := utils.ValidateStruct(&payload{})
	require.Error(t, fieldErr)

	rec := httptest.NewRecorder()
	HandleServiceError(rec, services.NewDomainError(services.ErrorTypeValidation, "invalid chat session", fieldErr), zap.NewNop())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var response utils.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "invalid chat session", response.Message)
	assert.Equal(t, "sessionId is required", response.Details["sessionId"])
}

