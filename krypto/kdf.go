package krypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// SaltLengthBytes is the Argon2id salt length used for private key envelopes.
const SaltLengthBytes = 16

// Upper bounds on Argon2id cost. Parameters read back from storage are
// untrusted and must not be able to exhaust memory or stall the caller.
const (
	MaxArgon2MemoryKB    = 1 << 20 // 1 GiB
	MaxArgon2Time        = 16
	MaxArgon2Parallelism = 16
	MaxArgon2KeyLen      = 64
)

// Argon2Params captures tunable parameters for Argon2id.
type Argon2Params struct {
	MemoryKB    uint32
	Time        uint32
	Parallelism uint8
	KeyLen      uint32
}

// DefaultArgon2Params returns the parameters used for a 256-bit envelope key.
// The memory cost is sized for phones, which is where these identities live.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		MemoryKB:    64 * 1024,
		Time:        3,
		Parallelism: 1,
		KeyLen:      32,
	}
}

// Validate reports whether p can be used for derivation.
func (p Argon2Params) Validate() error {
	switch {
	case p.KeyLen == 0:
		return errors.New("key length must be positive")
	case p.MemoryKB == 0:
		return errors.New("memory parameter must be positive")
	case p.Time == 0:
		return errors.New("time parameter must be positive")
	case p.Parallelism == 0:
		return errors.New("parallelism must be positive")
	case p.KeyLen > MaxArgon2KeyLen:
		return fmt.Errorf("key length %d exceeds %d", p.KeyLen, MaxArgon2KeyLen)
	case p.MemoryKB > MaxArgon2MemoryKB:
		return fmt.Errorf("memory parameter %d KiB exceeds %d KiB", p.MemoryKB, MaxArgon2MemoryKB)
	case p.Time > MaxArgon2Time:
		return fmt.Errorf("time parameter %d exceeds %d", p.Time, MaxArgon2Time)
	case p.Parallelism > MaxArgon2Parallelism:
		return fmt.Errorf("parallelism %d exceeds %d", p.Parallelism, MaxArgon2Parallelism)
	}
	return nil
}

// DeriveKeyArgon2id derives a key using Argon2id with the provided parameters.
func DeriveKeyArgon2id(password []byte, salt []byte, p Argon2Params) ([]byte, error) {
	if len(password) == 0 {
		return nil, errors.New("password is required")
	}
	if len(salt) != SaltLengthBytes {
		return nil, fmt.Errorf("salt must be %d bytes", SaltLengthBytes)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	key := argon2.IDKey(password, salt, p.Time, p.MemoryKB, p.Parallelism, p.KeyLen)
	if uint32(len(key)) != p.KeyLen {
		return nil, fmt.Errorf("derived key has unexpected length %d", len(key))
	}
	return key, nil
}

// NewRandomSalt returns a fresh SaltLengthBytes salt from the system CSPRNG.
func NewRandomSalt() ([]byte, error) {
	salt := make([]byte, SaltLengthBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Wipe overwrites sensitive byte slices in place.
func Wipe(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
