package util

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

const tokenBytes = 32

// GenerateToken returns a hex-encoded random token with 256 bits of entropy.
func GenerateToken() (string, error) {
	bytes := make([]byte, tokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// TokenPrefix returns the short identifying prefix of a session token, used
// wherever the raw token must not be exposed.
func TokenPrefix(token string) string {
	if len(token) < 8 {
		return token
	}
	return token[:8]
}

// MaskToken hides all but the first characters of a session token for logs.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "********"
	}
	return token[:8] + "..."
}
