// Package secrets wraps bcrypt hashing for sensitive enrollment material,
// currently the biometric fingerprint templates agents enroll with.
package secrets

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	dErrors "fieldwatch/pkg/domain-errors"
)

// Hash creates a bcrypt hash of the provided template.
// Use this at enrollment time; store only the hash.
func Hash(template string) (string, error) {
	if template == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "template cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(template), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "template is too long")
		}
		return "", fmt.Errorf("could not hash template: %w", err)
	}
	return string(hashed), nil
}

// Verify checks if a presented sample matches an enrolled hash.
// Returns ErrMismatch on a clean non-match so callers can distinguish a
// failed comparison from an infrastructure failure.
var ErrMismatch = errors.New("sample does not match enrolled template")

func Verify(sample, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(sample)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatch
		}
		return fmt.Errorf("could not verify template: %w", err)
	}
	return nil
}
