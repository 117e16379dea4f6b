package session

import (
	"encoding/hex"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"

	"github.com/Hussein-Mazeh/nostr-identity/krypto"
)

// Session is an authenticated identity. It is the only owner of the live
// secret key, which sits in a locked, read-only memguard buffer until Close.
type Session struct {
	ID        string
	PublicKey string
	Mode      Mode
	// Warning is set when the session was established in a reduced-security mode.
	Warning string

	mu     sync.Mutex
	secret *memguard.LockedBuffer
}

// newSession takes ownership of secret; the slice is wiped before returning.
func newSession(publicKey string, secret []byte, mode Mode, warning string) *Session {
	buf := memguard.NewBufferFromBytes(secret)
	buf.Freeze()
	return &Session{
		ID:        uuid.NewString(),
		PublicKey: publicKey,
		Mode:      mode,
		Warning:   warning,
		secret:    buf,
	}
}

// Degraded reports whether the session skipped biometric confirmation.
func (s *Session) Degraded() bool {
	return s.Mode == ModePasswordFallback
}

// Npub renders the public key in NIP-19 form.
func (s *Session) Npub() (string, error) {
	return krypto.EncodeNpub(s.PublicKey)
}

// Sign produces a BIP-340 signature over a 32-byte digest.
func (s *Session) Sign(hash []byte) ([]byte, error) {
	var sig []byte
	err := s.WithSecret(func(secret []byte) error {
		var err error
		sig, err = krypto.SignHash(secret, hash)
		return err
	})
	return sig, err
}

// WithSecret lends the raw secret to fn. fn must not retain the slice.
func (s *Session) WithSecret(fn func(secret []byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secret == nil || !s.secret.IsAlive() {
		return ErrSessionClosed
	}
	return fn(s.secret.Bytes())
}

// ExportSecretHex returns the secret for a one-off backup display.
func (s *Session) ExportSecretHex() (string, error) {
	var out string
	err := s.WithSecret(func(secret []byte) error {
		out = hex.EncodeToString(secret)
		return nil
	})
	return out, err
}

// ExportNsec returns the secret in NIP-19 form for a one-off backup display.
func (s *Session) ExportNsec() (string, error) {
	var out string
	err := s.WithSecret(func(secret []byte) error {
		var err error
		out, err = krypto.EncodeNsec(secret)
		return err
	})
	return out, err
}

// Close zeroes and releases the secret. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secret != nil {
		s.secret.Destroy()
		s.secret = nil
	}
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secret == nil
}
