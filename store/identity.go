package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Hussein-Mazeh/nostr-identity/internal/vault"
)

// Storage keys.
const (
	keyPublicKey  = "publicKey"
	keyPrivateKey = "privateKey"
	keyIdentifier = "identifier"
)

// IdentityStore persists the public key, the encrypted private key and the
// (non-secret) identifier used to derive password material.
//
// It never sees plaintext key material: StorePrivateKey accepts only an
// envelope produced by the vault.
type IdentityStore struct {
	kv KV
}

// NewIdentityStore returns an IdentityStore on top of kv.
func NewIdentityStore(kv KV) *IdentityStore {
	return &IdentityStore{kv: kv}
}

// StorePublicKey persists the hex public key.
func (s *IdentityStore) StorePublicKey(ctx context.Context, publicKey string) error {
	if publicKey == "" {
		return errors.New("public key is required")
	}
	if err := s.kv.Set(ctx, keyPublicKey, []byte(publicKey)); err != nil {
		return fmt.Errorf("store public key: %w", err)
	}
	return nil
}

// RetrievePublicKey returns the stored public key; ok is false when none exists.
func (s *IdentityStore) RetrievePublicKey(ctx context.Context) (publicKey string, ok bool, err error) {
	return s.getString(ctx, keyPublicKey)
}

// StorePrivateKey persists an encrypted private key envelope.
func (s *IdentityStore) StorePrivateKey(ctx context.Context, enc vault.EncryptedPrivateKey) error {
	if enc.IsZero() {
		return errors.New("refusing to store an empty private key envelope")
	}
	data, err := enc.Marshal()
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, keyPrivateKey, data); err != nil {
		return fmt.Errorf("store private key: %w", err)
	}
	return nil
}

// RetrievePrivateKey loads the envelope, returning ErrNotFound when none exists.
func (s *IdentityStore) RetrievePrivateKey(ctx context.Context) (vault.EncryptedPrivateKey, error) {
	data, err := s.kv.Get(ctx, keyPrivateKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return vault.EncryptedPrivateKey{}, err
		}
		return vault.EncryptedPrivateKey{}, fmt.Errorf("retrieve private key: %w", err)
	}
	return vault.UnmarshalEnvelope(data)
}

// StoreIdentifier persists the identifier the password material is bound to.
func (s *IdentityStore) StoreIdentifier(ctx context.Context, identifier string) error {
	if identifier == "" {
		return errors.New("identifier is required")
	}
	if err := s.kv.Set(ctx, keyIdentifier, []byte(identifier)); err != nil {
		return fmt.Errorf("store identifier: %w", err)
	}
	return nil
}

// RetrieveIdentifier returns the stored identifier; ok is false when none exists.
func (s *IdentityStore) RetrieveIdentifier(ctx context.Context) (identifier string, ok bool, err error) {
	return s.getString(ctx, keyIdentifier)
}

// Reset removes every identity record. It is the only path that destroys an
// encrypted private key.
func (s *IdentityStore) Reset(ctx context.Context) error {
	for _, key := range []string{keyPrivateKey, keyPublicKey, keyIdentifier} {
		if err := s.kv.Delete(ctx, key); err != nil {
			return fmt.Errorf("reset %s: %w", key, err)
		}
	}
	return nil
}

func (s *IdentityStore) getString(ctx context.Context, key string) (string, bool, error) {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("retrieve %s: %w", key, err)
	}
	if len(data) == 0 {
		return "", false, nil
	}
	return string(data), true, nil
}
