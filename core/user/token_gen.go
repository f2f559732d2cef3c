package user

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"
)

const tokenBytes = 20

var (
	NowFunc = time.Now // mockable

	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// newToken generates a random hex token. Only its hash is stored.
func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashToken returns the hex encoded sha256 of a token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// verifyToken checks that token matches the stored hash and that it has not expired.
func verifyToken(hash string, expiry time.Time, token string) error {
	if token == "" || hash == "" {
		return errInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(hash)) == 0 {
		return errInvalidToken
	}
	if !NowFunc().Before(expiry) {
		return errTokenExpired
	}
	return nil
}
