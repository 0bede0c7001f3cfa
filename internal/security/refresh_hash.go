package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashRefreshToken hex-encodes the SHA-256 of the raw refresh token. Only
// this digest is persisted; the raw token never touches the database.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RefreshTokenHashEqual compares the presented token against the stored
// digest in constant time.
func RefreshTokenHashEqual(providedToken, storedHash string) bool {
	got := HashRefreshToken(providedToken)
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHash)) == 1
}
