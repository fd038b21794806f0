package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-groupchat/pkg/jwt"
)

const (
	UsernameKey   = "username"
	TokenIDKey    = "token_id"
	ClaimsKey     = "claims"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenValidator validates a raw session token.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// SessionMiddleware resolves the session cookie (or bearer header) into the
// acting username.
type SessionMiddleware struct {
	validator  TokenValidator
	cookieName string
}

// NewSessionMiddleware creates a new session middleware.
func NewSessionMiddleware(validator TokenValidator, cookieName string) *SessionMiddleware {
	return &SessionMiddleware{validator: validator, cookieName: cookieName}
}

// Resolve sets the username in the Gin context when a valid token is present.
// Requests without one continue anonymously.
func (m *SessionMiddleware) Resolve() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.token(c)
		if token != "" {
			if claims, err := m.validator.ValidateToken(token); err == nil {
				c.Set(UsernameKey, claims.Username())
				c.Set(TokenIDKey, claims.ID)
				c.Set(ClaimsKey, claims)
			}
		}
		c.Next()
	}
}

// RequireSession aborts anonymous requests. Browsers are redirected to
// redirectTo; API clients get a 401.
func (m *SessionMiddleware) RequireSession(redirectTo string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUsername(c) != "" {
			c.Next()
			return
		}

		if strings.Contains(c.GetHeader("Accept"), "application/json") || c.ContentType() == "application/json" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "sign in required",
			})
			return
		}
		c.Redirect(http.StatusSeeOther, redirectTo)
		c.Abort()
	}
}

func (m *SessionMiddleware) token(c *gin.Context) string {
	if cookie, err := c.Cookie(m.cookieName); err == nil && cookie != "" {
		return cookie
	}
	if h := c.GetHeader(AuthHeaderKey); strings.HasPrefix(h, BearerPrefix) {
		return strings.TrimPrefix(h, BearerPrefix)
	}
	return ""
}

// GetUsername extracts the username from Gin context, empty when anonymous.
func GetUsername(c *gin.Context) string {
	if username, exists := c.Get(UsernameKey); exists {
		if s, ok := username.(string); ok {
			return s
		}
	}
	return ""
}

// GetClaims extracts the session claims from Gin context.
func GetClaims(c *gin.Context) *jwt.Claims {
	if claims, exists := c.Get(ClaimsKey); exists {
		if cl, ok := claims.(*jwt.Claims); ok {
			return cl
		}
	}
	return nil
}
