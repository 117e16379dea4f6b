package krypto

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// SignHash produces a 64-byte BIP-340 signature over a 32-byte digest, the
// form Nostr uses for event ids.
func SignHash(secret []byte, hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, errors.New("hash must be 32 bytes")
	}
	if len(secret) != SecretKeySize || !validScalar(secret) {
		return nil, ErrInvalidSecretFormat
	}
	priv := secp256k1.PrivKeyFromBytes(secret)
	defer priv.Zero()

	sig, err := schnorr.Sign(priv, hash)
	if err != nil {
		return nil, fmt.Errorf("schnorr sign: %w", err)
	}
	return sig.Serialize(), nil
}

// VerifyHash checks a BIP-340 signature against a hex x-only public key.
func VerifyHash(publicKeyHex string, hash, sig []byte) bool {
	rawPub, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return false
	}
	pub, err := schnorr.ParsePubKey(rawPub)
	if err != nil {
		return false
	}
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(hash, pub)
}
