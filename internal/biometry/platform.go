// Package biometry adapts platform biometric gates (Touch ID / Face ID backed
// keychains) to a small interface the credential vault can drive.
package biometry

import (
	"context"
	"errors"
)

var (
	// ErrUnsupported signals that no biometric gate is available on this platform.
	ErrUnsupported = errors.New("biometry not supported on this platform")
	// ErrCancelled covers user cancellation, lockout and prompt timeout.
	ErrCancelled = errors.New("biometric authentication cancelled")
	// ErrNotFound is returned when no sealed item exists for an account.
	ErrNotFound = errors.New("biometric item not found")
	// ErrDuplicate is returned by Save when the account already holds an item.
	ErrDuplicate = errors.New("biometric item already exists")
)

// DefaultReason is shown in the platform prompt when the caller gives none.
const DefaultReason = "Authenticate to unlock your Nostr identity"

// Platform is a biometric-sealed secret store.
//
// Retrieve must show the platform prompt before releasing the secret and
// should honour ctx's deadline as the prompt timeout.
type Platform interface {
	IsSupported(ctx context.Context) bool
	Save(ctx context.Context, account string, secret []byte) error
	Replace(ctx context.Context, account string, secret []byte) error
	Retrieve(ctx context.Context, account, reason string) ([]byte, error)
	Delete(ctx context.Context, account string) error
}
