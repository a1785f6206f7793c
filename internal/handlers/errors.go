package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"abhyasika/internal/identity"
	"abhyasika/internal/models"
	"abhyasika/internal/repositories"
	"abhyasika/internal/services"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var vErr *models.ValidationError
	switch {
	case errors.As(err, &vErr),
		errors.Is(err, identity.ErrWeakPassword),
		errors.Is(err, identity.ErrInvalidEmail),
		errors.Is(err, identity.ErrInvalidToken),
		errors.Is(err, services.ErrInvalidScan):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrEmailNotVerified),
		errors.Is(err, services.ErrAccountInactive),
		errors.Is(err, services.ErrLicenseExpired),
		errors.Is(err, services.ErrForbidden),
		errors.Is(err, repositories.ErrNoTenant):
		return http.StatusForbidden
	case errors.Is(err, services.ErrStudentNotFound),
		errors.Is(err, services.ErrSeatNotFound),
		errors.Is(err, services.ErrRoomNotFound),
		errors.Is(err, services.ErrEnquiryNotFound),
		errors.Is(err, services.ErrNotificationNotFound),
		errors.Is(err, services.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrSeatUnavailable),
		errors.Is(err, services.ErrOccupancyManaged),
		errors.Is(err, services.ErrStudentExists),
		errors.Is(err, services.ErrRoomExists),
		errors.Is(err, identity.ErrEmailAlreadyInUse):
		return http.StatusConflict
	case errors.Is(err, services.ErrProviderDisabled),
		errors.Is(err, identity.ErrProviderDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
