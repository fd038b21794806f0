package service

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

var legacyDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

// HashPassword returns a bcrypt digest of password.
func HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword checks password against digest. Unsalted SHA-256 hex digests
// from older credential files are accepted and reported as needing rehash.
func VerifyPassword(digest, password string) (ok, rehash bool) {
	if legacyDigest.MatchString(digest) {
		sum := sha256.Sum256([]byte(password))
		return subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(digest)) == 1, true
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil, false
}
