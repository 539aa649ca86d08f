package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/upb/bi-chat-gateway/middleware"
	"github.com/upb/bi-chat-gateway/models"
	"github.com/upb/bi-chat-gateway/utils"
	"go.uber.org/zap"
)

// DashboardService defines the dashboard layout operations
type DashboardService interface {
	Get(ctx context.Context, userID string) (*models.Dashboard, error)
	Save(ctx context.Context, userID string, visualOrder json.RawMessage) (*models.Dashboard, error)
}

// SaveDashboardRequest is the body of PUT /api/user/dashboard
type SaveDashboardRequest struct {
	VisualOrder json.RawMessage `json:"visualOrder"`
}

// DashboardHandler handles per-user dashboard layouts
type DashboardHandler struct {
	service DashboardService
	logger  *zap.Logger
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(service DashboardService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		service: service,
		logger:  logger,
	}
}

// HandleGet handles GET /api/user/dashboard and returns the saved page array
func (h *DashboardHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := middleware.GetPrincipalFromContext(ctx)
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	dashboard, err := h.service.Get(ctx, principal.ID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteJSON(w, http.StatusOK, dashboard.Pages); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.Error(err))
	}
}

// HandleSave handles PUT /api/user/dashboard
func (h *DashboardHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	principal := middleware.GetPrincipalFromContext(ctx)
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	var req SaveDashboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	dashboard, err := h.service.Save(ctx, principal.ID, req.VisualOrder)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("dashboard saved",
		zap.String("request_id", requestID),
		zap.String("user_id", principal.ID))

	if err := utils.WriteJSON(w, http.StatusOK, dashboard); err != nil {
		h.logger.Error("failed to write response", zap.String("request_id", requestID), zap.Error(err))
	}
}
