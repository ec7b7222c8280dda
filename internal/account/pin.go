package account

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPINLength = 4
	maxPINLength = 6
)

// ErrInvalidPIN indicates a PIN that is not 4 to 6 digits.
var ErrInvalidPIN = errors.New("PIN must be 4 to 6 digits")

// ValidatePIN checks the PIN shape.
func ValidatePIN(pin string) error {
	if len(pin) < minPINLength || len(pin) > maxPINLength {
		return ErrInvalidPIN
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return ErrInvalidPIN
		}
	}
	return nil
}

// HashPIN validates and bcrypt-hashes pin.
func HashPIN(pin string) ([]byte, error) {
	if err := ValidatePIN(pin); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash pin: %w", err)
	}
	return hash, nil
}

// CheckPIN reports whether pin matches hash. An empty hash never matches.
func CheckPIN(hash []byte, pin string) bool {
	if len(hash) == 0 || pin == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(pin)) == nil
}
