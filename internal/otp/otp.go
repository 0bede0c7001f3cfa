package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
)

const codeDigits = 6

var codeSpace = big.NewInt(1_000_000)

// GenerateCode draws a uniform 6-digit numeric code from crypto/rand,
// zero-padded ("042913" is valid).
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	buf := make([]byte, codeDigits)
	v := n.Int64()
	for i := codeDigits - 1; i >= 0; i-- {
		buf[i] = '0' + byte(v%10)
		v /= 10
	}
	return string(buf), nil
}

// HashCode hex-encodes the SHA-256 of the code. Only the digest is stored;
// the plain code exists only in the delivery email.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// CodeEqual compares the submitted code against the stored digest in
// constant time.
func CodeEqual(submittedCode, storedHash string) bool {
	got := HashCode(submittedCode)
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHash)) == 1
}
