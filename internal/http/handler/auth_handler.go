package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ittiee/liff-auth/internal/config"
	"github.com/ittiee/liff-auth/internal/http/middleware"
	"github.com/ittiee/liff-auth/internal/service"
)

// RefreshCookie is the name of the HTTP-only cookie carrying the refresh
// token.
const RefreshCookie = "refreshToken"

// AuthHandler exposes the auth endpoints.
type AuthHandler struct {
	Auth *service.AuthService
	cfg  config.Config
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *service.AuthService, cfg config.Config) *AuthHandler {
	return &AuthHandler{Auth: auth, cfg: cfg}
}

// Login authenticates email/password and opens a session. The refresh token
// travels only in the cookie; the body carries the access token and user.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST", "message": "email and password are required"})
		return
	}

	result, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"accessToken": result.AccessToken,
		"user":        result.User,
	})
}

// Refresh rotates the session behind the cookie and returns a new access
// token. The cookie is replaced with the rotated refresh token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken, _ := c.Cookie(RefreshCookie)

	result, err := h.Auth.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"accessToken": result.AccessToken})
}

// Logout revokes the session and clears the cookie. Always 200; a missing
// or unknown session still ends logged out.
func (h *AuthHandler) Logout(c *gin.Context) {
	refreshToken, _ := c.Cookie(RefreshCookie)
	h.Auth.Logout(c.Request.Context(), refreshToken)
	h.clearRefreshCookie(c)
	c.Status(http.StatusOK)
}

// Me returns the profile of the bearer-authenticated user.
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": service.CodeNoAccessToken, "message": "No access token provided"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// Sessions lists live sessions. Debug surface, admin-shaped in a real
// deployment.
func (h *AuthHandler) Sessions(c *gin.Context) {
	sessions := h.Auth.ActiveSessions()
	out := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, gin.H{
			"id":        s.ID,
			"userId":    s.UserID,
			"createdAt": s.CreatedAt,
			"expiresAt": s.ExpiresAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// RevokeSessions drops every live session.
func (h *AuthHandler) RevokeSessions(c *gin.Context) {
	h.Auth.RevokeAllSessions()
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     RefreshCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cfg.RefreshTokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     RefreshCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) respondError(c *gin.Context, err error) {
	if authErr, ok := err.(*service.AuthError); ok {
		c.JSON(authErr.Status, gin.H{"error": authErr.Code, "message": authErr.Message})
		return
	}
	zap.L().Error("auth service failure", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "SERVER_ERROR", "message": "Internal server error"})
}
