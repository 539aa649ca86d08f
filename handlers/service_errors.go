package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/bi-chat-gateway/services"
	"github.com/upb/bi-chat-gateway/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var domainErr *services.DomainError
	errors.As(err, &domainErr)
	details := services.GetErrorDetails(err)
	message := publicMessage(err)

	switch {
	case services.IsNotFoundError(err):
		if err := utils.WriteNotFound(w, message); err != nil {
			logger.Error("failed to write not found response", zap.Error(err))
		}

	case services.IsValidationError(err):
		if err := utils.WriteBadRequest(w, message, validationDetails(err, details)); err != nil {
			logger.Error("failed to write bad request response", zap.Error(err))
		}

	case services.IsUnauthorizedError(err):
		if err := utils.WriteUnauthorized(w, message); err != nil {
			logger.Error("failed to write unauthorized response", zap.Error(err))
		}

	case services.IsConflictError(err):
		if err := utils.WriteConflict(w, message, details); err != nil {
			logger.Error("failed to write conflict response", zap.Error(err))
		}

	case services.IsUnavailableError(err):
		logger.Error("dependency unavailable", zap.Error(err))
		if err := utils.WriteServiceUnavailable(w, message); err != nil {
			logger.Error("failed to write unavailable response", zap.Error(err))
		}

	case services.IsExternalError(err):
		// upstream provider failures surface as 502
		if err := utils.WriteJSON(w, http.StatusBadGateway, utils.ErrorResponse{
			Error:   "bad_gateway",
			Message: message,
			Details: details,
		}); err != nil {
			logger.Error("failed to write bad gateway response", zap.Error(err))
		}

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		if err := utils.WriteInternalServerError(w, "An internal error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		if err := utils.WriteInternalServerError(w, "An unexpected error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
	}

	if domainErr != nil {
		logger.Debug("handled service error",
			zap.String("type", string(domainErr.Type)),
			zap.String("message", domainErr.Message),
			zap.Any("details", domainErr.Details))
	}
}

// publicMessage returns the client-facing message; wrapped causes stay in logs
func publicMessage(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}

func validationDetails(err error, details map[string]interface{}) map[string]interface{} {
	fields := utils.GetValidationFields(err)
	if len(fields) == 0 {
		if len(details) == 0 {
			return nil
		}
		return details
	}

	out := make(map[string]interface{}, len(details)+len(fields))
	for k, v := range details {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}
