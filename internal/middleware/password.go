package middleware

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const passwordHashCost = bcrypt.DefaultCost

// HashPassword returns a salted bcrypt hash for a user password, stored in
// the users table and checked by the login handler against POST
// /v1/sessions credentials.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	if err != nil {
		return "", fmt.Errorf("middleware: hash password: %w", err)
	}
	return string(hash), nil
}

// PasswordMatchesHash reports whether password is the plaintext behind
// expectedHash.
func PasswordMatchesHash(expectedHash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(expectedHash), []byte(password)) == nil
}
