package secret

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// ErrInvalidToken is returned when a token does not match its hash.
var ErrInvalidToken = errors.New("invalid token")

// HashToken hashes an API token using bcrypt.
func HashToken(token string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(token), bcryptCost)
}

// VerifyToken checks a plaintext token against a bcrypt hash.
// Returns ErrInvalidToken if the token does not match.
func VerifyToken(token string, hash []byte) error {
	if err := bcrypt.CompareHashAndPassword(hash, []byte(token)); err != nil {
		return ErrInvalidToken
	}
	return nil
}
