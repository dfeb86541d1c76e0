// Package cryptox holds the password and token hashing shared by the server
// and the client's offline login.
package cryptox

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/comicsync/internal/common"
)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password []byte) (string, error) {
	if len(password) == 0 {
		return "", common.NewFieldError("password", "must not be empty")
	}
	h, err := bcrypt.GenerateFromPassword(password, bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// CheckPassword compares password with a hash from HashPassword. A mismatch
// is common.ErrUnauthorized.
func CheckPassword(hash string, password []byte) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), password)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return common.ErrUnauthorized
	default:
		return fmt.Errorf("check password: %w", err)
	}
}

// HashToken returns the hex SHA-256 of an opaque token. Refresh tokens are
// stored only in this form.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
