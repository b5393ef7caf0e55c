package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrEmptyPassword is returned for an empty password and for accounts
	// that have no stored hash; such accounts can never log in.
	ErrEmptyPassword = errors.New("auth: empty password")

	ErrPasswordMismatch = errors.New("auth: password mismatch")
)

const passwordCost = bcrypt.DefaultCost

// HashPassword returns the value stored in users.passwd.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks a login password against users.passwd.
func VerifyPassword(hash, password string) error {
	if hash == "" || password == "" {
		return ErrEmptyPassword
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}
