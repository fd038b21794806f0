// Package session issues signed session cookies and maps them to usernames.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-groupchat/internal/config"
	"github.com/weiawesome/wes-io-groupchat/internal/domain"
	"github.com/weiawesome/wes-io-groupchat/pkg/jwt"
	"github.com/weiawesome/wes-io-groupchat/pkg/log"
	"github.com/weiawesome/wes-io-groupchat/pkg/middleware"
)

type Manager struct {
	tokens     *jwt.Manager
	cookieName string
	secure     bool
}

// NewManager builds a session manager. Without a configured secret a random
// one is generated, so sessions do not survive a restart.
func NewManager(cfg config.SessionConfig) (*Manager, error) {
	secret := cfg.Secret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		secret = hex.EncodeToString(buf)
		l := log.L()
		l.Warn().Msg("session.secret not set, using a random secret; sessions end on restart")
	}

	tokens, err := jwt.NewManager(secret, cfg.TTL, cfg.Issuer)
	if err != nil {
		return nil, err
	}

	return &Manager{
		tokens:     tokens,
		cookieName: cfg.CookieName,
		secure:     cfg.Secure,
	}, nil
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

// ValidateToken implements middleware.TokenValidator.
func (m *Manager) ValidateToken(token string) (*jwt.Claims, error) {
	return m.tokens.ValidateToken(token)
}

// ResolveIdentity returns the username a token belongs to, or Guest.
func (m *Manager) ResolveIdentity(token string) string {
	if token == "" {
		return domain.GuestUsername
	}
	claims, err := m.tokens.ValidateToken(token)
	if err != nil {
		return domain.GuestUsername
	}
	return claims.Username()
}

// Issue starts a session for username and sets the cookie.
func (m *Manager) Issue(c *gin.Context, username string) error {
	token, exp, err := m.tokens.GenerateToken(username)
	if err != nil {
		return err
	}

	m.setCookie(c, token, int(time.Until(exp).Seconds()))
	return nil
}

// Revoke ends the request's current session and clears the cookie.
func (m *Manager) Revoke(c *gin.Context) {
	if claims := middleware.GetClaims(c); claims != nil {
		m.tokens.RevokeToken(claims)
	}
	m.Clear(c)
}

// RevokeUser ends every session issued to username.
func (m *Manager) RevokeUser(username string) {
	m.tokens.RevokeUserTokens(username)
}

func (m *Manager) Clear(c *gin.Context) {
	m.setCookie(c, "", -1)
}

func (m *Manager) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, value, maxAge, "/", "", m.secure, true)
}

// Run drops expired revocations every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tokens.CleanupExpiredRevocations()
		}
	}
}
