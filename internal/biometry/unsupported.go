//go:build !darwin || !cgo

package biometry

import "context"

// Keychain is unavailable outside macOS; every call reports ErrUnsupported.
type Keychain struct{}

// NewKeychain returns the unsupported platform stub.
func NewKeychain(service string) *Keychain { return &Keychain{} }

func (*Keychain) IsSupported(context.Context) bool { return false }

func (*Keychain) Save(context.Context, string, []byte) error { return ErrUnsupported }

func (*Keychain) Replace(context.Context, string, []byte) error { return ErrUnsupported }

func (*Keychain) Retrieve(context.Context, string, string) ([]byte, error) {
	return nil, ErrUnsupported
}

func (*Keychain) Delete(context.Context, string) error { return ErrUnsupported }
