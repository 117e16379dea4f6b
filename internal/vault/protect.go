package vault

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/Hussein-Mazeh/nostr-identity/krypto"
)

var (
	// ErrEncryption wraps any failure while protecting a private key.
	ErrEncryption = errors.New("private key encryption failed")
	// ErrDecryption covers wrong passwords and corrupted envelopes.
	ErrDecryption = errors.New("private key decryption failed")
	// ErrNoEnvelope means there is nothing to decrypt, which is not the same
	// as failing to decrypt.
	ErrNoEnvelope = errors.New("no encrypted private key")
)

// envelopeKeyLen is the AES-256 key size every envelope is sealed under.
const envelopeKeyLen = 32

var envelopeAAD = []byte("nostr-identity.privkey.v1")

const materialInfo = "nostr-identity password v1"

// GeneratePassword derives the per-identity password material used to
// encrypt the private key. It is deterministic in identifier and password.
func GeneratePassword(identifier, password string) (string, error) {
	if identifier == "" || password == "" {
		return "", errors.New("identifier and password are required")
	}
	pw := []byte(password)
	defer krypto.Wipe(pw)

	material, err := krypto.HKDFSHA256(pw, []byte(identifier), []byte(materialInfo), 32)
	if err != nil {
		return "", fmt.Errorf("derive password material: %w", err)
	}
	defer krypto.Wipe(material)
	return hex.EncodeToString(material), nil
}

// StorePrivateKey encrypts secretHex under a key stretched from
// passwordMaterial. Every call draws a fresh salt and nonce.
func StorePrivateKey(secretHex, passwordMaterial string, params krypto.Argon2Params) (EncryptedPrivateKey, error) {
	secret, err := krypto.ParseSecret(secretHex)
	if err != nil {
		return EncryptedPrivateKey{}, err
	}
	defer krypto.Wipe(secret[:])
	return SealPrivateKey(secret[:], passwordMaterial, params)
}

// SealPrivateKey is StorePrivateKey for a raw 32-byte secret.
func SealPrivateKey(secret []byte, passwordMaterial string, params krypto.Argon2Params) (EncryptedPrivateKey, error) {
	if len(secret) != krypto.SecretKeySize {
		return EncryptedPrivateKey{}, krypto.ErrInvalidSecretFormat
	}
	if passwordMaterial == "" {
		return EncryptedPrivateKey{}, fmt.Errorf("%w: password material is required", ErrEncryption)
	}
	if err := checkEnvelopeKDF(params); err != nil {
		return EncryptedPrivateKey{}, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	salt, err := krypto.NewRandomSalt()
	if err != nil {
		return EncryptedPrivateKey{}, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	pw := []byte(passwordMaterial)
	defer krypto.Wipe(pw)

	key, err := krypto.DeriveKeyArgon2id(pw, salt, params)
	if err != nil {
		return EncryptedPrivateKey{}, fmt.Errorf("%w: derive key: %v", ErrEncryption, err)
	}
	defer krypto.Wipe(key)

	nonce, ciphertext, err := krypto.EncryptAESGCM(key, secret, envelopeAAD)
	if err != nil {
		return EncryptedPrivateKey{}, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	return EncryptedPrivateKey{
		Version: EnvelopeVersion,
		KDF: KDFConfig{
			Name:        kdfArgon2id,
			MemoryKB:    params.MemoryKB,
			Time:        params.Time,
			Parallelism: params.Parallelism,
			KeyLen:      params.KeyLen,
		},
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// RetrievePrivateKey decrypts the envelope and returns the secret as hex.
func RetrievePrivateKey(enc EncryptedPrivateKey, passwordMaterial string) (string, error) {
	secret, err := OpenPrivateKey(enc, passwordMaterial)
	if err != nil {
		return "", err
	}
	defer krypto.Wipe(secret)
	return hex.EncodeToString(secret), nil
}

// OpenPrivateKey decrypts the envelope into a raw secret the caller must wipe.
func OpenPrivateKey(enc EncryptedPrivateKey, passwordMaterial string) ([]byte, error) {
	if enc.IsZero() {
		return nil, ErrNoEnvelope
	}
	if enc.Version != EnvelopeVersion {
		return nil, fmt.Errorf("%w: unsupported envelope version %d", ErrDecryption, enc.Version)
	}
	if enc.KDF.Name != kdfArgon2id {
		return nil, fmt.Errorf("%w: unsupported kdf %q", ErrDecryption, enc.KDF.Name)
	}
	if passwordMaterial == "" {
		return nil, fmt.Errorf("%w: password material is required", ErrDecryption)
	}

	salt, err := base64.StdEncoding.DecodeString(enc.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: decode salt: %v", ErrDecryption, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(enc.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: decode nonce: %v", ErrDecryption, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(enc.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: decode ciphertext: %v", ErrDecryption, err)
	}

	params := krypto.Argon2Params{
		MemoryKB:    enc.KDF.MemoryKB,
		Time:        enc.KDF.Time,
		Parallelism: enc.KDF.Parallelism,
		KeyLen:      enc.KDF.KeyLen,
	}
	if err := checkEnvelopeKDF(params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	pw := []byte(passwordMaterial)
	defer krypto.Wipe(pw)

	key, err := krypto.DeriveKeyArgon2id(pw, salt, params)
	if err != nil {
		return nil, fmt.Errorf("%w: derive key: %v", ErrDecryption, err)
	}
	defer krypto.Wipe(key)

	secret, err := krypto.DecryptAESGCM(key, nonce, ciphertext, envelopeAAD)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if _, err := krypto.PublicKeyFromSecretBytes(secret); err != nil {
		krypto.Wipe(secret)
		return nil, fmt.Errorf("%w: envelope holds an invalid secret", ErrDecryption)
	}
	return secret, nil
}

// checkEnvelopeKDF rejects parameters that cannot have produced an
// AES-256 envelope key or that exceed the Argon2id cost bounds.
func checkEnvelopeKDF(p krypto.Argon2Params) error {
	if p.KeyLen != envelopeKeyLen {
		return fmt.Errorf("kdf key length %d, want %d", p.KeyLen, envelopeKeyLen)
	}
	return p.Validate()
}
