package vault

import (
	"encoding/json"
	"fmt"
	"time"
)

// EnvelopeVersion is the current EncryptedPrivateKey layout.
const EnvelopeVersion = 1

// kdfArgon2id names the only supported key-derivation function.
const kdfArgon2id = "argon2id"

// KDFConfig records the Argon2id parameters used to wrap a private key, so a
// later unlock derives the same key even if defaults change.
type KDFConfig struct {
	Name        string `json:"name"`
	MemoryKB    uint32 `json:"memoryKB"`
	Time        uint32 `json:"time"`
	Parallelism uint8  `json:"parallelism"`
	KeyLen      uint32 `json:"keyLen"`
}

// EncryptedPrivateKey is the persisted form of a password-protected secret key.
// Byte fields are base64 encoded.
type EncryptedPrivateKey struct {
	Version    int       `json:"version"`
	KDF        KDFConfig `json:"kdf"`
	Salt       string    `json:"salt"`
	Nonce      string    `json:"nonce"`
	Ciphertext string    `json:"ciphertext"`
	CreatedAt  time.Time `json:"createdAt"`
}

// IsZero reports whether the envelope carries no ciphertext.
func (e EncryptedPrivateKey) IsZero() bool {
	return e.Ciphertext == ""
}

// Marshal encodes the envelope for storage.
func (e EncryptedPrivateKey) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode private key envelope: %w", err)
	}
	return data, nil
}

// UnmarshalEnvelope decodes a stored envelope.
func UnmarshalEnvelope(data []byte) (EncryptedPrivateKey, error) {
	var e EncryptedPrivateKey
	if err := json.Unmarshal(data, &e); err != nil {
		return EncryptedPrivateKey{}, fmt.Errorf("%w: decode envelope: %v", ErrDecryption, err)
	}
	return e, nil
}
