package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "mission-control/backend/pkg/errors"
)

// statusFor maps an application error to an HTTP status code
func statusFor(err error) int {
	var notFound *apperrors.ErrNodeNotFound
	var inFlight *apperrors.ErrMutationInFlight
	var gateway *apperrors.ErrGatewayRequestFailed
	var invalid *apperrors.ErrInvalidInput

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &inFlight),
		errors.Is(err, apperrors.ErrNotDirty),
		errors.Is(err, apperrors.ErrGraphNotLoaded):
		return http.StatusConflict
	case errors.As(err, &gateway):
		return http.StatusBadGateway
	case errors.As(err, &invalid), apperrors.IsErrorType(err, apperrors.ErrorTypeValidation):
		return http.StatusBadRequest
	case apperrors.IsErrorType(err, apperrors.ErrorTypeContext):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// respondError writes {"error": ...} with the mapped status
func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
