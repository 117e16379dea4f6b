package krypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/bech32"
)

// NIP-19 human readable prefixes.
const (
	NpubPrefix = "npub"
	NsecPrefix = "nsec"
)

// EncodeNpub renders a hex x-only public key as an npub string.
func EncodeNpub(publicKeyHex string) (string, error) {
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(raw) != 32 {
		return "", fmt.Errorf("invalid public key %q", publicKeyHex)
	}
	return encodeBech32(NpubPrefix, raw)
}

// DecodeNpub converts an npub string into the hex public key.
func DecodeNpub(npub string) (string, error) {
	raw, err := decodeBech32(NpubPrefix, npub)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// EncodeNsec renders a raw secret scalar as an nsec string.
func EncodeNsec(secret []byte) (string, error) {
	if len(secret) != SecretKeySize || !validScalar(secret) {
		return "", ErrInvalidSecretFormat
	}
	return encodeBech32(NsecPrefix, secret)
}

// DecodeNsec converts an nsec string into a raw secret scalar.
func DecodeNsec(nsec string) ([]byte, error) {
	raw, err := decodeBech32(NsecPrefix, nsec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecretFormat, err)
	}
	if !validScalar(raw) {
		Wipe(raw)
		return nil, fmt.Errorf("%w: scalar out of range", ErrInvalidSecretFormat)
	}
	return raw, nil
}

func encodeBech32(hrp string, data []byte) (string, error) {
	conv, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert bits: %w", err)
	}
	return bech32.Encode(hrp, conv)
}

func decodeBech32(wantHRP, s string) ([]byte, error) {
	hrp, data, err := bech32.Decode(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode bech32: %w", err)
	}
	if hrp != wantHRP {
		return nil, fmt.Errorf("unexpected prefix %q, want %q", hrp, wantHRP)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("convert bits: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("unexpected payload length %d", len(raw))
	}
	return raw, nil
}
