package session

import (
	"errors"

	"github.com/Hussein-Mazeh/nostr-identity/internal/vault"
	"github.com/Hussein-Mazeh/nostr-identity/krypto"
	"github.com/Hussein-Mazeh/nostr-identity/store"
)

var (
	// ErrValidation wraps empty or malformed user input.
	ErrValidation = errors.New("invalid input")
	// ErrBiometryUnsupported is returned when the platform has no biometric
	// gate and the password fallback is disabled.
	ErrBiometryUnsupported = errors.New("biometry not supported on this device")
	// ErrBiometryCancelled is returned when the prompt was cancelled, locked
	// out or timed out and the password fallback is disabled.
	ErrBiometryCancelled = errors.New("biometric authentication did not complete")
	// ErrNoIdentity is returned by unlock when nothing has been created or imported.
	ErrNoIdentity = errors.New("no identity on this device")
	// ErrIdentityExists is returned by create and import when the device
	// already holds an identity. Only Reset removes it.
	ErrIdentityExists = errors.New("an identity already exists on this device")
	// ErrIdentityMismatch means the stored public key does not derive from the decrypted secret.
	ErrIdentityMismatch = errors.New("stored public key does not match the decrypted secret")
	// ErrBusy is returned when another flow is still in flight.
	ErrBusy = errors.New("another identity operation is in progress")
	// ErrTooManyAttempts is returned when unlock attempts exceed the configured rate.
	ErrTooManyAttempts = errors.New("too many unlock attempts; try again later")
	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("session is closed")
)

// Errors surfaced unchanged from lower layers, re-exported so callers can
// match every outcome against this package.
var (
	ErrInvalidSecretFormat = krypto.ErrInvalidSecretFormat
	ErrEncryption          = vault.ErrEncryption
	ErrDecryption          = vault.ErrDecryption
	ErrBiometrySave        = vault.ErrBiometrySave
	ErrStorageUnavailable  = store.ErrStorageUnavailable

	// ErrNoBiometricCredential means nothing is sealed for this identity, as
	// after a password-fallback create; unlock with the password instead.
	ErrNoBiometricCredential = vault.ErrNoCredential
)

// Classify maps err onto a short error class for logs and metrics.
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrBiometryUnsupported):
		return "biometry_unsupported"
	case errors.Is(err, ErrBiometryCancelled):
		return "biometry_cancelled"
	case errors.Is(err, ErrNoBiometricCredential):
		return "no_biometric_credential"
	case errors.Is(err, ErrIdentityExists):
		return "identity_exists"
	case errors.Is(err, ErrBiometrySave):
		return "biometry_save"
	case errors.Is(err, ErrInvalidSecretFormat):
		return "invalid_secret"
	case errors.Is(err, ErrEncryption):
		return "encryption"
	case errors.Is(err, ErrDecryption), errors.Is(err, ErrIdentityMismatch):
		return "decryption"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, ErrNoIdentity):
		return "no_identity"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrTooManyAttempts):
		return "rate_limited"
	default:
		return "internal"
	}
}
