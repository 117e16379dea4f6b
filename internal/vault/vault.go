// Package vault gates the Nostr private key behind a password and a
// platform biometric check.
//
// Credentials (identifier + password) are sealed in the biometric platform.
// The private key itself is encrypted under an Argon2id key stretched from
// password material and handed to the identity store as an opaque envelope.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Hussein-Mazeh/nostr-identity/internal/biometry"
	"github.com/Hussein-Mazeh/nostr-identity/krypto"
)

// ErrNoCredential is returned when no credential is sealed for the account,
// as for an identity established on the password fallback.
var ErrNoCredential = errors.New("no credential sealed with biometry")

// ErrBiometrySave is returned when credentials cannot be sealed, including
// when the account already holds a sealed credential.
var ErrBiometrySave = errors.New("cannot save credentials with biometry")

// Credential is the identifier/password pair sealed behind biometry.
type Credential struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Options configures a Vault.
type Options struct {
	// Account keys the sealed credential in the platform store.
	Account string
	// Reason is shown in the biometric prompt.
	Reason string
	// KDF stretches password material into the envelope key.
	KDF krypto.Argon2Params
}

// Vault is the credential vault for one identity.
type Vault struct {
	platform biometry.Platform
	account  string
	reason   string
	kdf      krypto.Argon2Params
}

// New returns a Vault sealing credentials in platform.
func New(platform biometry.Platform, opts Options) (*Vault, error) {
	if platform == nil {
		return nil, errors.New("biometric platform is required")
	}
	if strings.TrimSpace(opts.Account) == "" {
		return nil, errors.New("vault account is required")
	}
	if opts.KDF == (krypto.Argon2Params{}) {
		opts.KDF = krypto.DefaultArgon2Params()
	}
	if err := checkEnvelopeKDF(opts.KDF); err != nil {
		return nil, fmt.Errorf("kdf parameters: %w", err)
	}
	if opts.Reason == "" {
		opts.Reason = biometry.DefaultReason
	}
	return &Vault{
		platform: platform,
		account:  opts.Account,
		reason:   opts.Reason,
		kdf:      opts.KDF,
	}, nil
}

// IsBiometrySupported queries the platform capability without side effects.
func (v *Vault) IsBiometrySupported(ctx context.Context) bool {
	return v.platform.IsSupported(ctx)
}

// SaveCredentialsWithBiometry seals the credential. An existing sealed
// credential is conflicting state; use ResaveCredentialsWithBiometry to
// overwrite it deliberately.
func (v *Vault) SaveCredentialsWithBiometry(ctx context.Context, identifier, password string) error {
	return v.seal(ctx, identifier, password, false)
}

// ResaveCredentialsWithBiometry seals the credential, replacing any existing one.
func (v *Vault) ResaveCredentialsWithBiometry(ctx context.Context, identifier, password string) error {
	return v.seal(ctx, identifier, password, true)
}

func (v *Vault) seal(ctx context.Context, identifier, password string, overwrite bool) error {
	if identifier == "" || password == "" {
		return fmt.Errorf("%w: identifier and password are required", ErrBiometrySave)
	}

	payload, err := json.Marshal(Credential{Identifier: identifier, Password: password})
	if err != nil {
		return fmt.Errorf("%w: encode credential: %v", ErrBiometrySave, err)
	}
	defer krypto.Wipe(payload)

	if overwrite {
		err = v.platform.Replace(ctx, v.account, payload)
	} else {
		err = v.platform.Save(ctx, v.account, payload)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, biometry.ErrDuplicate):
		return fmt.Errorf("%w: a credential is already sealed for this identity", ErrBiometrySave)
	default:
		return fmt.Errorf("%w: %w", ErrBiometrySave, err)
	}
}

// GetCredentialsWithBiometry prompts for biometric proof and returns the
// sealed credential. Cancellation, lockout and timeout yield (nil, nil): the
// caller is simply not authenticated. A missing item is ErrNoCredential.
func (v *Vault) GetCredentialsWithBiometry(ctx context.Context) (*Credential, error) {
	payload, err := v.platform.Retrieve(ctx, v.account, v.reason)
	if err != nil {
		switch {
		case errors.Is(err, biometry.ErrCancelled):
			return nil, nil
		case errors.Is(err, biometry.ErrNotFound):
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("retrieve credentials: %w", err)
	}
	defer krypto.Wipe(payload)

	var cred Credential
	if err := json.Unmarshal(payload, &cred); err != nil {
		return nil, fmt.Errorf("decode sealed credential: %w", err)
	}
	return &cred, nil
}

// DeleteCredentials removes the sealed credential, if any.
func (v *Vault) DeleteCredentials(ctx context.Context) error {
	if err := v.platform.Delete(ctx, v.account); err != nil && !errors.Is(err, biometry.ErrUnsupported) {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

// GeneratePassword derives password material for identifier and password.
func (v *Vault) GeneratePassword(identifier, password string) (string, error) {
	return GeneratePassword(identifier, password)
}

// StorePrivateKey encrypts secretHex under passwordMaterial.
func (v *Vault) StorePrivateKey(secretHex, passwordMaterial string) (EncryptedPrivateKey, error) {
	return StorePrivateKey(secretHex, passwordMaterial, v.kdf)
}

// SealPrivateKey encrypts a raw secret under passwordMaterial.
func (v *Vault) SealPrivateKey(secret []byte, passwordMaterial string) (EncryptedPrivateKey, error) {
	return SealPrivateKey(secret, passwordMaterial, v.kdf)
}

// RetrievePrivateKey decrypts enc and returns the secret hex.
func (v *Vault) RetrievePrivateKey(enc EncryptedPrivateKey, passwordMaterial string) (string, error) {
	return RetrievePrivateKey(enc, passwordMaterial)
}

// OpenPrivateKey decrypts enc into a raw secret the caller must wipe.
func (v *Vault) OpenPrivateKey(enc EncryptedPrivateKey, passwordMaterial string) ([]byte, error) {
	return OpenPrivateKey(enc, passwordMaterial)
}
