package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"sketch-lobby/internal/middleware"
	"sketch-lobby/internal/service"
)

// AuthHandler serves member accounts, guest issuance and identity lookups.
type AuthHandler struct {
	authService  *service.AuthService
	guestService *service.GuestService
}

func NewAuthHandler(authService *service.AuthService, guestService *service.GuestService) *AuthHandler {
	return &AuthHandler{authService: authService, guestService: guestService}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=191"`
	Nickname string `json:"nickname" binding:"required,min=1,max=20"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

// Register creates a member account.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Register: invalid input")
		ErrorResponse(c, http.StatusBadRequest, service.Code(service.ErrInvalidRequest), "Invalid input: "+err.Error())
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req.Email, req.Nickname, req.Password)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logrus.WithField("user_id", user.ID).Info("Handler.Register: user registered")
	SuccessResponse(c, http.StatusOK, gin.H{
		"message":  "User registered successfully",
		"userId":   user.ID,
		"nickname": user.Nickname,
	})
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// Login exchanges credentials for an access token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Login: invalid input")
		ErrorResponse(c, http.StatusBadRequest, service.Code(service.ErrInvalidRequest), "Invalid input: email and password required")
		return
	}

	token, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, LoginResponse{Message: "Login successful", Token: token})
}

type GuestRequest struct {
	Nickname string `json:"nickname"`
}

type GuestResponse struct {
	Guest    string `json:"guest"`
	Nickname string `json:"nickname"`
}

// IssueGuest hands out an anonymous identity. The encoded marker is returned
// in the guest header, which the client echoes on later requests.
func (h *AuthHandler) IssueGuest(c *gin.Context) {
	var req GuestRequest
	// the body is optional
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			ErrorResponse(c, http.StatusBadRequest, service.Code(service.ErrInvalidRequest), "Invalid input: "+err.Error())
			return
		}
	}

	guest, marker, err := h.guestService.Issue(c.Request.Context(), req.Nickname)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	c.Header(service.GuestHeader, marker)
	SuccessResponse(c, http.StatusOK, GuestResponse{
		Guest:    formatID(guest.ID),
		Nickname: guest.Nickname,
	})
}

// RandomNickname suggests a nickname for the guest form.
func (h *AuthHandler) RandomNickname(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, gin.H{"nickname": service.RandomNickname()})
}

// Me returns the resolved caller.
func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		HandleServiceError(c, service.ErrUnauthenticated)
		return
	}
	SuccessResponse(c, http.StatusOK, identity)
}
