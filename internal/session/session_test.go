package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-groupchat/internal/config"
	"github.com/weiawesome/wes-io-groupchat/internal/domain"
	"github.com/weiawesome/wes-io-groupchat/pkg/middleware"
)

func newManager(t *testing.T, secret string) *Manager {
	t.Helper()
	m, err := NewManager(config.SessionConfig{
		Secret:     secret,
		TTL:        time.Hour,
		CookieName: "session",
		Issuer:     "groupchat",
	})
	require.NoError(t, err)
	return m
}

func issue(t *testing.T, m *Manager, username string) *http.Cookie {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/signin", nil)

	require.NoError(t, m.Issue(c, username))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestIssueSetsCookie(t *testing.T) {
	m := newManager(t, "secret")
	cookie := issue(t, m, "alice")

	assert.Equal(t, "session", cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Greater(t, cookie.MaxAge, 0)
	assert.Equal(t, "alice", m.ResolveIdentity(cookie.Value))
}

func TestResolveIdentityFallsBackToGuest(t *testing.T) {
	m := newManager(t, "secret")
	other := newManager(t, "other-secret")

	assert.Equal(t, domain.GuestUsername, m.ResolveIdentity(""))
	assert.Equal(t, domain.GuestUsername, m.ResolveIdentity("alice"))
	assert.Equal(t, domain.GuestUsername, m.ResolveIdentity(issue(t, other, "alice").Value))
}

func TestRandomSecretWhenUnset(t *testing.T) {
	a := newManager(t, "")
	b := newManager(t, "")

	token := issue(t, a, "alice").Value
	assert.Equal(t, "alice", a.ResolveIdentity(token))
	assert.Equal(t, domain.GuestUsername, b.ResolveIdentity(token))
}

func TestRevoke(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newManager(t, "secret")
	token := issue(t, m, "alice").Value

	r := gin.New()
	r.Use(middleware.NewSessionMiddleware(m, m.CookieName()).Resolve())
	r.GET("/signout", func(c *gin.Context) {
		m.Revoke(c)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/signout", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)
	assert.Equal(t, domain.GuestUsername, m.ResolveIdentity(token))
}

func TestRevokeUser(t *testing.T) {
	m := newManager(t, "secret")
	first := issue(t, m, "alice").Value
	second := issue(t, m, "alice").Value
	bob := issue(t, m, "bob").Value

	m.RevokeUser("alice")

	assert.Equal(t, domain.GuestUsername, m.ResolveIdentity(first))
	assert.Equal(t, domain.GuestUsername, m.ResolveIdentity(second))
	assert.Equal(t, "bob", m.ResolveIdentity(bob))
}
