package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/upb/bi-chat-gateway/services/completion"
	"github.com/upb/bi-chat-gateway/utils"
	"go.uber.org/zap"
)

// CompletionConfigSource exposes the effective completion configuration
type CompletionConfigSource interface {
	GetWithSource(ctx context.Context, forceRefresh bool) (completion.Config, completion.Source)
}

// CompletionConfigResponse is returned by GET /api/admin/completion-config
type CompletionConfigResponse struct {
	Config completion.Config `json:"config"`
	Source completion.Source `json:"source"`
}

// AdminHandler exposes operational views of gateway state
type AdminHandler struct {
	configs CompletionConfigSource
	logger  *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(configs CompletionConfigSource, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		configs: configs,
		logger:  logger,
	}
}

// HandleCompletionConfig handles GET /api/admin/completion-config
func (h *AdminHandler) HandleCompletionConfig(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	cfg, source := h.configs.GetWithSource(r.Context(), refresh)
	if err := utils.WriteOK(w, CompletionConfigResponse{Config: cfg, Source: source}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
