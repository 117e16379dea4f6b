package krypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// SecretKeySize is the width of a raw secp256k1 secret scalar.
const SecretKeySize = 32

var (
	// ErrInvalidSecretFormat is returned when a secret is not a valid
	// secp256k1 scalar in one of the accepted encodings.
	ErrInvalidSecretFormat = errors.New("invalid secret key format")
	// ErrEntropy is returned when the random source cannot supply a full scalar.
	ErrEntropy = errors.New("insufficient entropy for key generation")
)

// maxScalarDraws bounds redraws for scalars outside [1, n-1]. Hitting it
// means the random source is broken, not unlucky.
const maxScalarDraws = 4

// Keypair is a Nostr identity keypair. PublicKey is the hex BIP-340 x-only
// public key derived from SecretKey.
type Keypair struct {
	SecretKey    [SecretKeySize]byte
	SecretKeyHex string
	PublicKey    string
}

// Wipe zeroes the raw secret. SecretKeyHex is a Go string and cannot be
// scrubbed, so callers should drop the Keypair promptly.
func (k *Keypair) Wipe() {
	Wipe(k.SecretKey[:])
	k.SecretKeyHex = ""
}

// KeyEngine generates and derives secp256k1 keypairs.
type KeyEngine struct {
	rand io.Reader
}

// NewKeyEngine returns an engine that draws from r, or from crypto/rand when r is nil.
func NewKeyEngine(r io.Reader) *KeyEngine {
	if r == nil {
		r = rand.Reader
	}
	return &KeyEngine{rand: r}
}

// GenerateRandomKeypair draws a fresh secret scalar and derives its public key.
// A failing random source is reported as ErrEntropy and is never retried.
func (e *KeyEngine) GenerateRandomKeypair() (Keypair, error) {
	var secret [SecretKeySize]byte
	for i := 0; i < maxScalarDraws; i++ {
		if _, err := io.ReadFull(e.rand, secret[:]); err != nil {
			return Keypair{}, fmt.Errorf("%w: %v", ErrEntropy, err)
		}
		if validScalar(secret[:]) {
			pub, err := PublicKeyFromSecretBytes(secret[:])
			if err != nil {
				return Keypair{}, err
			}
			kp := Keypair{
				SecretKey:    secret,
				SecretKeyHex: hex.EncodeToString(secret[:]),
				PublicKey:    pub,
			}
			Wipe(secret[:])
			return kp, nil
		}
	}
	Wipe(secret[:])
	return Keypair{}, fmt.Errorf("%w: random source produced no valid scalar", ErrEntropy)
}

// PublicKeyFromSecret derives the hex x-only public key from a secret given
// as 64 hex characters or as a NIP-19 nsec string.
func PublicKeyFromSecret(secret string) (string, error) {
	raw, err := ParseSecret(secret)
	if err != nil {
		return "", err
	}
	defer Wipe(raw[:])
	return PublicKeyFromSecretBytes(raw[:])
}

// PublicKeyFromSecretBytes derives the hex x-only public key from a raw 32-byte scalar.
func PublicKeyFromSecretBytes(secret []byte) (string, error) {
	if len(secret) != SecretKeySize || !validScalar(secret) {
		return "", ErrInvalidSecretFormat
	}
	priv := secp256k1.PrivKeyFromBytes(secret)
	defer priv.Zero()

	// Compressed form is 0x02/0x03 || X; BIP-340 keys are X alone.
	compressed := priv.PubKey().SerializeCompressed()
	return hex.EncodeToString(compressed[1:]), nil
}

// ParseSecret converts any accepted secret encoding into the canonical raw scalar.
func ParseSecret(secret string) ([SecretKeySize]byte, error) {
	var out [SecretKeySize]byte

	secret = strings.TrimSpace(secret)
	if strings.HasPrefix(strings.ToLower(secret), NsecPrefix+"1") {
		raw, err := DecodeNsec(secret)
		if err != nil {
			return out, err
		}
		copy(out[:], raw)
		Wipe(raw)
		return out, nil
	}

	if len(secret) != hex.EncodedLen(SecretKeySize) {
		return out, fmt.Errorf("%w: expected %d hex characters, got %d",
			ErrInvalidSecretFormat, hex.EncodedLen(SecretKeySize), len(secret))
	}
	if _, err := hex.Decode(out[:], []byte(secret)); err != nil {
		Wipe(out[:])
		return out, fmt.Errorf("%w: not hex", ErrInvalidSecretFormat)
	}
	if !validScalar(out[:]) {
		Wipe(out[:])
		return out, fmt.Errorf("%w: scalar out of range", ErrInvalidSecretFormat)
	}
	return out, nil
}

// NormalizeSecretHex returns the canonical lowercase hex form of secret.
func NormalizeSecretHex(secret string) (string, error) {
	raw, err := ParseSecret(secret)
	if err != nil {
		return "", err
	}
	defer Wipe(raw[:])
	return hex.EncodeToString(raw[:]), nil
}

// validScalar reports whether b encodes a secret in [1, n-1].
func validScalar(b []byte) bool {
	var s secp256k1.ModNScalar
	overflow := s.SetByteSlice(b)
	valid := !overflow && !s.IsZero()
	s.Zero()
	return valid
}
