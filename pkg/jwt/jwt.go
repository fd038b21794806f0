package jwt

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrRevokedToken = errors.New("token has been revoked")
	ErrEmptySecret  = errors.New("signing secret must not be empty")
)

// Claims represents session token claims. Subject holds the username and ID
// the token id used for revocation.
type Claims struct {
	jwt.RegisteredClaims
}

// Username returns the subject of the token.
func (c *Claims) Username() string {
	return c.Subject
}

// Manager issues and validates HS256 session tokens.
type Manager struct {
	secret   []byte
	duration time.Duration
	issuer   string

	// In-memory revocation store keyed by token id, value is token expiry.
	revokedTokens map[string]time.Time
	// Live token ids per username so a user can be revoked wholesale.
	issued map[string]map[string]time.Time
	mu     sync.RWMutex
}

// NewManager creates a new JWT manager.
func NewManager(secret string, duration time.Duration, issuer string) (*Manager, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if duration <= 0 {
		duration = 24 * time.Hour
	}

	return &Manager{
		secret:        []byte(secret),
		duration:      duration,
		issuer:        issuer,
		revokedTokens: make(map[string]time.Time),
		issued:        make(map[string]map[string]time.Time),
	}, nil
}

// Duration returns the lifetime of issued tokens.
func (m *Manager) Duration() time.Duration {
	return m.duration
}

// GenerateToken issues a token for username and returns it with its expiry.
func (m *Manager) GenerateToken(username string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(m.duration)
	jti := uuid.New().String()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    m.issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	m.mu.Lock()
	if m.issued[username] == nil {
		m.issued[username] = make(map[string]time.Time)
	}
	m.issued[username][jti] = exp
	m.mu.Unlock()

	return token, exp, nil
}

// ValidateToken validates a token and returns claims.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	if m.IsRevoked(claims.ID) {
		return nil, ErrRevokedToken
	}

	return claims, nil
}

// RevokeToken revokes a single token until it would have expired anyway.
func (m *Manager) RevokeToken(claims *Claims) {
	exp := time.Now().Add(m.duration)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokedTokens[claims.ID] = exp
	if ids, ok := m.issued[claims.Subject]; ok {
		delete(ids, claims.ID)
	}
}

// RevokeUserTokens revokes every token issued to username by this manager.
func (m *Manager) RevokeUserTokens(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for jti, exp := range m.issued[username] {
		m.revokedTokens[jti] = exp
	}
	delete(m.issued, username)
}

// IsRevoked checks if a token id is revoked.
func (m *Manager) IsRevoked(jti string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	expiry, exists := m.revokedTokens[jti]
	return exists && time.Now().Before(expiry)
}

// CleanupExpiredRevocations removes expired revocation and issuance entries.
func (m *Manager) CleanupExpiredRevocations() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for jti, expiry := range m.revokedTokens {
		if now.After(expiry) {
			delete(m.revokedTokens, jti)
		}
	}
	for username, ids := range m.issued {
		for jti, expiry := range ids {
			if now.After(expiry) {
				delete(ids, jti)
			}
		}
		if len(ids) == 0 {
			delete(m.issued, username)
		}
	}
}
