package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"room_chat/internal/service"
	"room_chat/pkg/logger"
)

type AuthHandler struct {
	authService service.AuthService
	log         logger.Logger
}

func NewAuthHandler(authService service.AuthService, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		log:         log,
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type GuestRequest struct {
	Name string `json:"name"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterInput
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		h.log.Warn("Registration failed", "error", err)
		_ = c.Error(err)
		return
	}

	h.log.Info("User registered", "user_id", resp.User.ID)
	c.JSON(http.StatusCreated, resp)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.log.Warn("Login failed", "error", err)
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Guest signs in a new anonymous user. The body is optional.
func (h *AuthHandler) Guest(c *gin.Context) {
	var req GuestRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.InitGuest(c.Request.Context(), req.Name)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.log.Info("Guest signed in", "user_id", resp.User.ID)
	c.JSON(http.StatusCreated, resp)
}

func (h *AuthHandler) UpgradeGuest(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req service.RegisterInput
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.UpgradeGuest(c.Request.Context(), id, req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.log.Info("Guest upgraded", "user_id", id.ID)
	c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshTokenRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	var req RefreshTokenRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) Me(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	user, err := h.authService.Me(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, user)
}
