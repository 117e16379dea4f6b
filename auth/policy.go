package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nbutton23/zxcvbn-go"
)

var (
	// ErrIdentifierRequired is returned for an empty username/identifier.
	ErrIdentifierRequired = errors.New("username is required")
	// ErrPasswordRequired is returned for an empty password.
	ErrPasswordRequired = errors.New("password is required")
	// ErrSecretRequired is returned for an empty imported key.
	ErrSecretRequired = errors.New("key to import is required")
	// ErrWeakPassword is returned when a password scores below the configured floor.
	ErrWeakPassword = errors.New("password is too weak")
)

// Policy holds credential validation rules.
type Policy struct {
	// MinStrength is the lowest accepted zxcvbn score (0-4). Zero disables
	// the strength check, leaving only the non-empty rules.
	MinStrength int
}

// ValidateCreate checks the inputs of the create-account flow.
func (p Policy) ValidateCreate(username, password string) error {
	if strings.TrimSpace(username) == "" {
		return ErrIdentifierRequired
	}
	return p.validatePassword(password, username)
}

// ValidateImport checks the inputs of the import flow.
func (p Policy) ValidateImport(secret, password string) error {
	if strings.TrimSpace(secret) == "" {
		return ErrSecretRequired
	}
	return p.validatePassword(password)
}

func (p Policy) validatePassword(password string, userInputs ...string) error {
	if password == "" {
		return ErrPasswordRequired
	}
	if p.MinStrength <= 0 {
		return nil
	}
	if score := Strength(password, userInputs...); score < p.MinStrength {
		return fmt.Errorf("%w: score %d, need %d", ErrWeakPassword, score, p.MinStrength)
	}
	return nil
}

// Strength returns the zxcvbn score (0-4) of password, penalising reuse of userInputs.
func Strength(password string, userInputs ...string) int {
	return zxcvbn.PasswordStrength(password, userInputs).Score
}
