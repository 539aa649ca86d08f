package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/upb/bi-chat-gateway/middleware"
	"github.com/upb/bi-chat-gateway/services"
	"github.com/upb/bi-chat-gateway/services/embed"
	"github.com/upb/bi-chat-gateway/utils"
	"go.uber.org/zap"
)

// EmbedService defines the embed credential operations used by the handler
type EmbedService interface {
	GetCredential(ctx context.Context, resourceID string, forceRefresh bool) (*embed.Credential, embed.CacheStatus, error)
	Entries() []embed.EntryInfo
	PendingRefreshes() int
}

// EmbedTokenResponse is the body returned by GET /getEmbedToken
type EmbedTokenResponse struct {
	Token       string `json:"token"`
	EmbedURL    string `json:"embedUrl"`
	Expiration  string `json:"expiration"`
	ReportID    string `json:"reportId"`
	CacheStatus string `json:"cacheStatus"`
}

// EmbedErrorResponse is the error body of GET /getEmbedToken
type EmbedErrorResponse struct {
	Error        string                 `json:"error"`
	ErrorMessage string                 `json:"errorMessage"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// EmbedStatusResponse lists cached credentials without their tokens
type EmbedStatusResponse struct {
	Entries          []embed.EntryInfo `json:"entries"`
	PendingRefreshes int               `json:"pendingRefreshes"`
}

// EmbedHandler serves report embed credentials
type EmbedHandler struct {
	service         EmbedService
	defaultReportID string
	logger          *zap.Logger
}

// NewEmbedHandler creates a new EmbedHandler
func NewEmbedHandler(service EmbedService, defaultReportID string, logger *zap.Logger) *EmbedHandler {
	return &EmbedHandler{
		service:         service,
		defaultReportID: defaultReportID,
		logger:          logger,
	}
}

// HandleGetEmbedToken handles GET /getEmbedToken
func (h *EmbedHandler) HandleGetEmbedToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	reportID := r.URL.Query().Get("reportId")
	if reportID == "" {
		reportID = h.defaultReportID
	}
	forceRefresh, _ := strconv.ParseBool(r.URL.Query().Get("forceRefresh"))

	cred, status, err := h.service.GetCredential(ctx, reportID, forceRefresh)
	if err != nil {
		h.writeEmbedError(w, requestID, reportID, err)
		return
	}

	h.logger.Debug("embed token served",
		zap.String("request_id", requestID),
		zap.String("report_id", reportID),
		zap.String("cache_status", string(status)))

	if err := utils.WriteJSON(w, http.StatusOK, EmbedTokenResponse{
		Token:       cred.Token,
		EmbedURL:    cred.EmbedURL,
		Expiration:  cred.ExpiresAt.UTC().Format(time.RFC3339),
		ReportID:    cred.ResourceID,
		CacheStatus: string(status),
	}); err != nil {
		h.logger.Error("failed to write response", zap.String("request_id", requestID), zap.Error(err))
	}
}

// HandleStatus handles GET /api/embed/status
func (h *EmbedHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	entries := h.service.Entries()
	if entries == nil {
		entries = []embed.EntryInfo{}
	}
	_ = utils.WriteOK(w, EmbedStatusResponse{
		Entries:          entries,
		PendingRefreshes: h.service.PendingRefreshes(),
	})
}

func (h *EmbedHandler) writeEmbedError(w http.ResponseWriter, requestID, reportID string, err error) {
	status := http.StatusInternalServerError
	body := EmbedErrorResponse{
		Error:        "Failed to get embed token",
		ErrorMessage: err.Error(),
		Details:      services.GetErrorDetails(err),
	}

	if services.IsValidationError(err) {
		status = http.StatusBadRequest
		body.Error = "Invalid embed token request"
		body.ErrorMessage = publicMessage(err)
	} else {
		h.logger.Error("failed to get embed token",
			zap.String("request_id", requestID),
			zap.String("report_id", reportID),
			zap.Error(err))
	}
	if len(body.Details) == 0 {
		body.Details = nil
	}

	if err := utils.WriteJSON(w, status, body); err != nil {
		h.logger.Error("failed to write error response", zap.String("request_id", requestID), zap.Error(err))
	}
}
