package commands

import (
	"errors"

	"github.com/Hussein-Mazeh/nostr-identity/internal/session"
)

// UserError is a failure the user can act on; it exits with status 1.
type UserError struct {
	msg string
}

func (e UserError) Error() string { return e.msg }

func userError(msg string) error { return UserError{msg: msg} }

// explain turns session errors into user-facing messages. Anything it does
// not recognise is returned unchanged.
func explain(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrValidation):
		return userError(err.Error())
	case errors.Is(err, session.ErrInvalidSecretFormat):
		return userError("the key is not a valid 64-character hex secret or nsec")
	case errors.Is(err, session.ErrBiometryUnsupported):
		return userError("biometry is not available on this device; enable biometry.allowPasswordFallback to continue without it")
	case errors.Is(err, session.ErrBiometryCancelled):
		return userError("biometric authentication was cancelled")
	case errors.Is(err, session.ErrNoBiometricCredential):
		return userError("no biometric credential for this identity; unlock with your password")
	case errors.Is(err, session.ErrIdentityExists):
		return userError("an identity already exists on this device; run 'nostrid reset --yes' first")
	case errors.Is(err, session.ErrBiometrySave):
		return userError("could not save credentials with biometry; run 'nostrid reset --yes' to clear a stale credential")
	case errors.Is(err, session.ErrDecryption), errors.Is(err, session.ErrIdentityMismatch):
		return userError("failed to unlock identity")
	case errors.Is(err, session.ErrNoIdentity):
		return userError("no identity on this device; run 'nostrid create' or 'nostrid import' first")
	case errors.Is(err, session.ErrTooManyAttempts):
		return userError(err.Error())
	case errors.Is(err, session.ErrStorageUnavailable):
		return userError("identity storage is unavailable: " + err.Error())
	default:
		return err
	}
}
