package krypto_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Hussein-Mazeh/nostr-identity/krypto"
)

func TestAESGCMRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)

	for size := 0; size <= 64; size++ {
		plaintext := bytes.Repeat([]byte{byte(size)}, size)
		nonce, ct, err := krypto.EncryptAESGCM(key, plaintext, []byte("aad"))
		if err != nil {
			t.Fatalf("encrypt %d bytes: %v", size, err)
		}
		got, err := krypto.DecryptAESGCM(key, nonce, ct, []byte("aad"))
		if err != nil {
			t.Fatalf("decrypt %d bytes: %v", size, err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("round trip mismatch at %d bytes", size)
		}
	}
}

func TestAESGCMFreshNonce(t *testing.T) {
	key := bytes.Repeat([]byte{1}, 32)
	n1, _, err := krypto.EncryptAESGCM(key, []byte("secret"), nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	n2, _, err := krypto.EncryptAESGCM(key, []byte("secret"), nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(n1, n2) {
		t.Fatalf("nonce reused across calls")
	}
}

func TestAESGCMWrongKeyFails(t *testing.T) {
	nonce, ct, err := krypto.EncryptAESGCM(bytes.Repeat([]byte{1}, 32), []byte("secret"), nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	_, err = krypto.DecryptAESGCM(bytes.Repeat([]byte{2}, 32), nonce, ct, nil)
	if !errors.Is(err, krypto.ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestDeriveKeyArgon2idDeterministic(t *testing.T) {
	params := krypto.Argon2Params{MemoryKB: 1024, Time: 1, Parallelism: 1, KeyLen: 32}
	salt := bytes.Repeat([]byte{9}, krypto.SaltLengthBytes)

	k1, err := krypto.DeriveKeyArgon2id([]byte("p4ssw0rd"), salt, params)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	k2, err := krypto.DeriveKeyArgon2id([]byte("p4ssw0rd"), salt, params)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if !bytes.Equal(k1, k2) || len(k1) != 32 {
		t.Fatalf("argon2id output not stable")
	}

	if _, err := krypto.DeriveKeyArgon2id([]byte("p4ssw0rd"), salt[:4], params); err == nil {
		t.Fatalf("expected short salt to be rejected")
	}
	if _, err := krypto.DeriveKeyArgon2id(nil, salt, params); err == nil {
		t.Fatalf("expected empty password to be rejected")
	}
}

func TestArgon2ParamsValidateBounds(t *testing.T) {
	ok := krypto.DefaultArgon2Params()
	if err := ok.Validate(); err != nil {
		t.Fatalf("default params rejected: %v", err)
	}

	cases := []struct {
		name string
		edit func(*krypto.Argon2Params)
	}{
		{"zero memory", func(p *krypto.Argon2Params) { p.MemoryKB = 0 }},
		{"memory over bound", func(p *krypto.Argon2Params) { p.MemoryKB = krypto.MaxArgon2MemoryKB + 1 }},
		{"time over bound", func(p *krypto.Argon2Params) { p.Time = krypto.MaxArgon2Time + 1 }},
		{"parallelism over bound", func(p *krypto.Argon2Params) { p.Parallelism = krypto.MaxArgon2Parallelism + 1 }},
		{"key over bound", func(p *krypto.Argon2Params) { p.KeyLen = krypto.MaxArgon2KeyLen + 1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := krypto.DefaultArgon2Params()
			tc.edit(&p)
			if err := p.Validate(); err == nil {
				t.Fatalf("expected %+v to be rejected", p)
			}
		})
	}
}

func TestHKDFSHA256(t *testing.T) {
	a, err := krypto.HKDFSHA256([]byte("ikm"), []byte("salt"), []byte("info"), 32)
	if err != nil {
		t.Fatalf("hkdf: %v", err)
	}
	b, _ := krypto.HKDFSHA256([]byte("ikm"), []byte("salt"), []byte("info"), 32)
	c, _ := krypto.HKDFSHA256([]byte("ikm"), []byte("other"), []byte("info"), 32)
	if !bytes.Equal(a, b) {
		t.Fatalf("hkdf not deterministic")
	}
	if bytes.Equal(a, c) {
		t.Fatalf("hkdf ignored salt")
	}
	if _, err := krypto.HKDFSHA256([]byte("ikm"), nil, nil, 0); err == nil {
		t.Fatalf("expected zero length to be rejected")
	}
}
