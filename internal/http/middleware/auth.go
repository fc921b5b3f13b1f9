package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ittiee/liff-auth/internal/domain"
	"github.com/ittiee/liff-auth/internal/service"
)

const currentUserKey = "currentUser"

// Auth validates the Authorization header and attaches the resolved user.
type Auth struct {
	AuthService *service.AuthService
}

// RequireBearer resolves the bearer token through the auth service. The
// error codes it emits (NO_ACCESS_TOKEN, ACCESS_TOKEN_EXPIRED,
// INVALID_ACCESS_TOKEN, USER_NOT_FOUND) are part of the wire contract.
func (m *Auth) RequireBearer(c *gin.Context) {
	user, err := m.AuthService.Me(c.Request.Context(), bearerToken(c))
	if err != nil {
		if authErr, ok := err.(*service.AuthError); ok {
			c.AbortWithStatusJSON(authErr.Status, gin.H{"error": authErr.Code, "message": authErr.Message})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "SERVER_ERROR", "message": "Internal server error"})
		return
	}
	c.Set(currentUserKey, user)
	c.Next()
}

// CurrentUser returns the user attached by RequireBearer.
func CurrentUser(c *gin.Context) (domain.User, bool) {
	value, ok := c.Get(currentUserKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := value.(domain.User)
	return user, ok
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
