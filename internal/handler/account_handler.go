package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avelkine/identity-service/internal/domain"
	"github.com/avelkine/identity-service/internal/dto"
	"github.com/avelkine/identity-service/internal/service"
)

// AccountHandler handles auth-method management requests
type AccountHandler struct {
	accountService service.AccountService
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(accountService service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

// ChangePassword changes the password of the authenticated user
func (h *AccountHandler) ChangePassword(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	if err := h.accountService.ChangePassword(c.Request.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{
		Message: "Password changed successfully",
	})
}

// LinkLocal attaches local credentials to the authenticated account
func (h *AccountHandler) LinkLocal(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req dto.LinkLocalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	if _, err := h.accountService.LinkLocal(c.Request.Context(), userID, req.Password); err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}

	c.JSON(http.StatusCreated, dto.SuccessResponse{
		Message: "Local credentials linked, verification email sent",
	})
}

// Unlink removes one of the user's authentication methods
func (h *AccountHandler) Unlink(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	provider := domain.ProviderType(c.Param("provider"))
	if !provider.Valid() {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Bad request",
			Message: "unknown provider type",
		})
		return
	}

	if err := h.accountService.UnlinkAuthMethod(c.Request.Context(), userID, provider); err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{
		Message: "Authentication method removed",
	})
}

// RequestEmailChange starts an email change flow
func (h *AccountHandler) RequestEmailChange(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req dto.EmailChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	if err := h.accountService.RequestEmailChange(c.Request.Context(), userID, req.NewEmail); err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}

	c.JSON(http.StatusAccepted, dto.SuccessResponse{
		Message: "Confirmation email sent to the new address",
	})
}

// ConfirmEmailChange redeems an email change token
func (h *AccountHandler) ConfirmEmailChange(c *gin.Context) {
	var req dto.EmailChangeConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	user, err := h.accountService.ConfirmEmailChange(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}

	c.JSON(http.StatusOK, dto.UserInfo{
		ID:    user.ID,
		Email: user.Email,
	})
}

// ResendEmailChange re-issues the email change token
func (h *AccountHandler) ResendEmailChange(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	if err := h.accountService.ResendEmailChangeRequest(c.Request.Context(), userID); err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{
		Message: "Confirmation email re-sent",
	})
}

// CancelEmailChange aborts a pending email change
func (h *AccountHandler) CancelEmailChange(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	if err := h.accountService.CancelEmailChangeRequest(c.Request.Context(), userID); err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{
		Message: "Email change request cancelled",
	})
}

// requireUserID pulls the authenticated user id set by AuthMiddleware
func requireUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "Unauthorized",
			Message: "User ID not found in context",
		})
		return "", false
	}
	return userID.(string), true
}
