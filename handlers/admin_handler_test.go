package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/bi-chat-gateway/services/completion"
	"go.uber.org/zap"
)

// MockCompletionConfigSource is a mock implementation of CompletionConfigSource
type MockCompletionConfigSource struct {
	mock.Mock
}

func (m *MockCompletionConfigSource) GetWithSource(ctx context.Context, forceRefresh bool) (completion.Config, completion.Source) {
	args := m.Called(ctx, forceRefresh)
	return args.Get(0).(completion.Config), args.Get(1).(completion.Source)
}

func TestAdminHandler_CompletionConfig(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		refresh bool
		source  completion.Source
	}{
		{name: "cached", target: "/api/admin/completion-config", refresh: false, source: completion.SourceCache},
		{name: "forced refresh", target: "/api/admin/completion-config?refresh=true", refresh: true, source: completion.SourceStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configs := new(MockCompletionConfigSource)
			cfg := completion.Config{SystemPrompt: "Be brief.", Temperature: 0.3, MaxTokens: 400}
			configs.On("GetWithSource", mock.Anything, tt.refresh).Return(cfg, tt.source)

			rec := httptest.NewRecorder()
			NewAdminHandler(configs, zap.NewNop()).HandleCompletionConfig(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))

			require.Equal(t, http.StatusOK, rec.Code)
			var body struct {
				Data CompletionConfigResponse `json:"data"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, cfg, body.Data.Config)
			assert.Equal(t, tt.source, body.Data.Source)
			configs.AssertExpectations(t)
		})
	}
}
