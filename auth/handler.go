package auth

import (
	"errors"
	"net/http"

	"github.com/upb/bi-chat-gateway/internal/observability"
	"github.com/upb/bi-chat-gateway/utils"
	"go.uber.org/zap"
)

// Handler handles OAuth2 authentication flows (login, callback, logout).
type Handler struct {
	flow    *FlowController
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewHandler creates a new auth handler. metrics may be nil.
func NewHandler(flow *FlowController, metrics *observability.Metrics, logger *zap.Logger) *Handler {
	return &Handler{
		flow:    flow,
		metrics: metrics,
		logger:  logger,
	}
}

// HandleLogin redirects to the identity provider's authorize endpoint
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.flow.BeginLogin(r.Context())
	if err != nil {
		h.logger.Error("failed to begin login", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to initiate login")
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback exchanges the authorization code and redirects to the front-end
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	redirectURL, err := h.flow.HandleCallback(r.Context(), code, state)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingParameters):
			h.observe("missing_parameters")
			_ = utils.WriteBadRequest(w, "Missing code or state parameter", nil)
		case errors.Is(err, ErrInvalidState):
			h.observe("invalid_state")
			h.logger.Warn("callback with invalid state")
			_ = utils.WriteBadRequest(w, "Invalid or expired state", nil)
		default:
			h.observe("exchange_failed")
			h.logger.Error("token exchange failed", zap.Error(err))
			_ = utils.WriteInternalServerError(w, "Authentication failed")
		}
		return
	}

	h.observe("success")
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// HandleLogout redirects to the provider end-session endpoint or the front-end
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.flow.LogoutURL(), http.StatusFound)
}

func (h *Handler) observe(outcome string) {
	if h.metrics != nil {
		h.metrics.OAuthCallbacks.WithLabelValues(outcome).Inc()
	}
}
