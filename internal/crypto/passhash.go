// Package crypto hashes admin passwords in the bcrypt format that pgcrypto's
// crypt() understands, so seeded hashes verify inside admin_create_session.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Cost matches pgcrypto gen_salt('bf') default.
const Cost = 10

// MinPasswordLen guards seeding against trivial passwords.
const MinPasswordLen = 8

var ErrWeakPassword = errors.New("password too short")

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// GeneratePassword returns a random URL-safe password of n random bytes.
func GeneratePassword(n int) (string, error) {
	b, err := RandBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashPassword returns a $2a$ bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLen {
		return "", ErrWeakPassword
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), Cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// VerifyPassword reports whether password matches hash.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
