package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/avelkine/identity-service/internal/dto"
	"github.com/avelkine/identity-service/internal/oauth"
	"github.com/avelkine/identity-service/internal/service"
)

// respondError maps service errors to HTTP responses. Unrecognized errors
// fall back to the given status with the error text as the message.
func respondError(c *gin.Context, err error, fallbackStatus int) {
	if cooldown, ok := service.AsCooldownError(err); ok {
		c.Header("Retry-After", strconv.Itoa(cooldown.RemainingSeconds()))
		c.JSON(http.StatusTooManyRequests, dto.ErrorResponse{
			Error:   "Too Many Requests",
			Message: err.Error(),
		})
		return
	}

	status := fallbackStatus
	label := http.StatusText(fallbackStatus)

	switch {
	case errors.Is(err, service.ErrEmailAlreadyRegistered),
		errors.Is(err, service.ErrChangeAlreadyPending),
		errors.Is(err, service.ErrAlreadyLinked),
		errors.Is(err, service.ErrDuplicateAuthMethod),
		errors.Is(err, service.ErrLastAuthMethod):
		status, label = http.StatusConflict, "Conflict"
	case errors.Is(err, service.ErrAuthMethodNotFound),
		errors.Is(err, service.ErrNoAccountToLink),
		errors.Is(err, service.ErrNoPendingRequest),
		errors.Is(err, oauth.ErrUnsupportedProvider):
		status, label = http.StatusNotFound, "Not Found"
	case errors.Is(err, service.ErrSameEmail),
		errors.Is(err, service.ErrIncompleteProviderProfile),
		errors.Is(err, service.ErrInvalidOrExpiredToken),
		errors.Is(err, service.ErrWrongTokenPurpose):
		status, label = http.StatusBadRequest, "Bad Request"
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, oauth.ErrIdentityTokenInvalid):
		status, label = http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, oauth.ErrProviderUnavailable):
		status, label = http.StatusBadGateway, "Bad Gateway"
	}

	c.JSON(status, dto.ErrorResponse{
		Error:   label,
		Message: err.Error(),
	})
}
