package session_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Hussein-Mazeh/nostr-identity/internal/biometry"
	"github.com/Hussein-Mazeh/nostr-identity/internal/observability"
	"github.com/Hussein-Mazeh/nostr-identity/internal/session"
	"github.com/Hussein-Mazeh/nostr-identity/internal/vault"
	"github.com/Hussein-Mazeh/nostr-identity/krypto"
	"github.com/Hussein-Mazeh/nostr-identity/store"
)

var fastKDF = krypto.Argon2Params{MemoryKB: 1024, Time: 1, Parallelism: 1, KeyLen: 32}

type harness struct {
	m        *session.Manager
	platform *biometry.Memory
	ids      *store.IdentityStore
	kv       *store.FileKV
	logs     *bytes.Buffer
}

func newHarness(t *testing.T, supported bool, opts session.Options) harness {
	t.Helper()
	platform := biometry.NewMemory(supported)
	v, err := vault.New(platform, vault.Options{Account: "test", KDF: fastKDF})
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	kv, err := store.OpenFileKV(filepath.Join(t.TempDir(), "identity"))
	if err != nil {
		t.Fatalf("OpenFileKV: %v", err)
	}
	ids := store.NewIdentityStore(kv)

	var logs bytes.Buffer
	opts.Logger = observability.NewLogger("nostrid-test", "test", "debug", &logs)
	m, err := session.NewManager(v, ids, opts)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(m.Logout)
	return harness{m: m, platform: platform, ids: ids, kv: kv, logs: &logs}
}

func (h harness) assertNothingStored(t *testing.T) {
	t.Helper()
	if _, err := os.Stat(h.kv.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no identity file, stat err=%v", err)
	}
	if n := h.platform.Len(); n != 0 {
		t.Fatalf("expected no sealed credentials, got %d", n)
	}
}

func cancelPrompt(context.Context, string) error { return biometry.ErrCancelled }

func TestCreateAccountWithBiometry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, session.Options{})

	sess, err := h.m.CreateAccount(ctx, "alice", "p4ssw0rd")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if h.m.State() != session.Authenticated {
		t.Fatalf("expected authenticated, got %s", h.m.State())
	}
	if sess.Mode != session.ModeBiometric || sess.Degraded() || sess.Warning != "" {
		t.Fatalf("expected a biometric session, got mode=%s warning=%q", sess.Mode, sess.Warning)
	}
	if h.platform.Prompts() != 1 {
		t.Fatalf("expected exactly one prompt, got %d", h.platform.Prompts())
	}

	pk, ok, err := h.ids.RetrievePublicKey(ctx)
	if err != nil || !ok || pk != sess.PublicKey {
		t.Fatalf("stored public key %q ok=%v err=%v, want %q", pk, ok, err, sess.PublicKey)
	}
	secretHex, err := sess.ExportSecretHex()
	if err != nil {
		t.Fatalf("ExportSecretHex: %v", err)
	}
	derived, err := krypto.PublicKeyFromSecret(secretHex)
	if err != nil || derived != pk {
		t.Fatalf("stored public key does not derive from session secret")
	}

	enc, err := h.ids.RetrievePrivateKey(ctx)
	if err != nil {
		t.Fatalf("RetrievePrivateKey: %v", err)
	}
	material, _ := vault.GeneratePassword("alice", "p4ssw0rd")
	opened, err := vault.RetrievePrivateKey(enc, material)
	if err != nil || opened != secretHex {
		t.Fatalf("envelope does not decrypt to the session secret: %v", err)
	}
	raw, _ := os.ReadFile(h.kv.Path())
	if bytes.Contains(raw, []byte(secretHex)) {
		t.Fatalf("secret key persisted in clear")
	}
}

func TestCreateAccountRejectsEmptyInput(t *testing.T) {
	cases := []struct {
		name, username, password string
	}{
		{"empty username", "", "p4ssw0rd"},
		{"blank username", "   ", "p4ssw0rd"},
		{"empty password", "alice", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, true, session.Options{})
			_, err := h.m.CreateAccount(context.Background(), tc.username, tc.password)
			if !errors.Is(err, session.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if h.m.State() != session.Unauthenticated {
				t.Fatalf("expected unauthenticated, got %s", h.m.State())
			}
			if h.platform.Prompts() != 0 {
				t.Fatalf("expected no prompt")
			}
			h.assertNothingStored(t)
		})
	}
}

func TestImportAccountRejectsMalformedSecret(t *testing.T) {
	for _, secret := range []string{"not-a-key", strings.Repeat("0", 64), "nsec1qqqq"} {
		h := newHarness(t, true, session.Options{})
		_, err := h.m.ImportAccount(context.Background(), secret, "p4ssw0rd")
		if !errors.Is(err, session.ErrInvalidSecretFormat) {
			t.Fatalf("%q: expected ErrInvalidSecretFormat, got %v", secret, err)
		}
		if h.m.State() != session.Unauthenticated {
			t.Fatalf("%q: expected unauthenticated, got %s", secret, h.m.State())
		}
		if h.platform.Prompts() != 0 {
			t.Fatalf("%q: expected no prompt", secret)
		}
		h.assertNothingStored(t)
	}
}

func TestImportAccountMatchesDerivedPublicKey(t *testing.T) {
	ctx := context.Background()
	kp, err := krypto.NewKeyEngine(nil).GenerateRandomKeypair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	nsec, err := krypto.EncodeNsec(kp.SecretKey[:])
	if err != nil {
		t.Fatalf("EncodeNsec: %v", err)
	}

	for _, input := range []string{kp.SecretKeyHex, strings.ToUpper(kp.SecretKeyHex), " " + nsec + "\n"} {
		h := newHarness(t, true, session.Options{})
		sess, err := h.m.ImportAccount(ctx, input, "p4ssw0rd")
		if err != nil {
			t.Fatalf("ImportAccount: %v", err)
		}
		if sess.PublicKey != kp.PublicKey {
			t.Fatalf("expected %s, got %s", kp.PublicKey, sess.PublicKey)
		}
		id, ok, err := h.ids.RetrieveIdentifier(ctx)
		if err != nil || !ok || id != kp.PublicKey {
			t.Fatalf("expected identifier bound to public key, got %q ok=%v err=%v", id, ok, err)
		}
	}
}

func TestCreateAccountUnsupportedWithoutFallback(t *testing.T) {
	h := newHarness(t, false, session.Options{})

	_, err := h.m.CreateAccount(context.Background(), "alice", "p4ssw0rd")
	if !errors.Is(err, session.ErrBiometryUnsupported) {
		t.Fatalf("expected ErrBiometryUnsupported, got %v", err)
	}
	if h.m.State() != session.Unauthenticated {
		t.Fatalf("expected unauthenticated, got %s", h.m.State())
	}
	if !errors.Is(h.m.LastFailure(), session.ErrBiometryUnsupported) {
		t.Fatalf("expected LastFailure to record the error, got %v", h.m.LastFailure())
	}
	h.assertNothingStored(t)
}

func TestCreateAccountCancelledWithoutFallback(t *testing.T) {
	h := newHarness(t, true, session.Options{})
	h.platform.SetPrompt(cancelPrompt)

	_, err := h.m.CreateAccount(context.Background(), "alice", "p4ssw0rd")
	if !errors.Is(err, session.ErrBiometryCancelled) {
		t.Fatalf("expected ErrBiometryCancelled, got %v", err)
	}
	if h.m.State() != session.Unauthenticated {
		t.Fatalf("expected unauthenticated, got %s", h.m.State())
	}
	h.assertNothingStored(t)
}

func TestCreateAccountFallbackIsDegradedAndAudited(t *testing.T) {
	ctx := context.Background()

	t.Run("unsupported", func(t *testing.T) {
		h := newHarness(t, false, session.Options{AllowPasswordFallback: true})
		sess, err := h.m.CreateAccount(ctx, "alice", "p4ssw0rd")
		if err != nil {
			t.Fatalf("CreateAccount: %v", err)
		}
		if !sess.Degraded() || sess.Warning == "" {
			t.Fatalf("expected a degraded session with a warning")
		}
		if !strings.Contains(h.logs.String(), `"audit":true`) {
			t.Fatalf("expected an audit log line, got %s", h.logs.String())
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		h := newHarness(t, true, session.Options{AllowPasswordFallback: true})
		h.platform.SetPrompt(cancelPrompt)
		sess, err := h.m.CreateAccount(ctx, "alice", "p4ssw0rd")
		if err != nil {
			t.Fatalf("CreateAccount: %v", err)
		}
		if sess.Mode != session.ModePasswordFallback {
			t.Fatalf("expected password fallback, got %s", sess.Mode)
		}
		if h.platform.Len() != 0 {
			t.Fatalf("expected the unconfirmed seal to be discarded")
		}
		if _, err := h.m.Unlock(ctx, "p4ssw0rd"); err != nil {
			t.Fatalf("Unlock after fallback: %v", err)
		}
	})
}

func TestCreateAccountPromptTimeout(t *testing.T) {
	h := newHarness(t, true, session.Options{PromptTimeout: 20 * time.Millisecond})
	h.platform.SetPrompt(func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return biometry.ErrCancelled
	})

	_, err := h.m.CreateAccount(context.Background(), "alice", "p4ssw0rd")
	if !errors.Is(err, session.ErrBiometryCancelled) {
		t.Fatalf("expected ErrBiometryCancelled, got %v", err)
	}
}

func TestCreateAccountConflictingSeal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, session.Options{})
	if err := h.platform.Save(ctx, "test", []byte(`{"identifier":"stale","password":"x"}`)); err != nil {
		t.Fatalf("seed stale seal: %v", err)
	}

	_, err := h.m.CreateAccount(ctx, "alice", "p4ssw0rd")
	if !errors.Is(err, session.ErrBiometrySave) {
		t.Fatalf("expected ErrBiometrySave, got %v", err)
	}
	if h.m.State() != session.Unauthenticated {
		t.Fatalf("expected unauthenticated, got %s", h.m.State())
	}
	if _, ok, _ := h.ids.RetrievePublicKey(ctx); ok {
		t.Fatalf("expected nothing persisted")
	}
}

func TestCreateAndImportRefuseExistingIdentity(t *testing.T) {
	ctx := context.Background()
	other, err := krypto.NewKeyEngine(nil).GenerateRandomKeypair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	cases := []struct {
		name      string
		supported bool
		setup     func(h harness)
	}{
		{"biometric", true, func(harness) {}},
		{"unsupported fallback", false, func(harness) {}},
		{"cancelled fallback", true, func(h harness) { h.platform.SetPrompt(cancelPrompt) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, tc.supported, session.Options{AllowPasswordFallback: true})
			tc.setup(h)
			first, err := h.m.CreateAccount(ctx, "alice", "p4ssw0rd")
			if err != nil {
				t.Fatalf("CreateAccount: %v", err)
			}
			original := first.PublicKey
			h.m.Logout()
			h.platform.SetPrompt(nil)
			prompts := h.platform.Prompts()

			if _, err := h.m.CreateAccount(ctx, "mallory", "other"); !errors.Is(err, session.ErrIdentityExists) {
				t.Fatalf("expected ErrIdentityExists on create, got %v", err)
			}
			if _, err := h.m.ImportAccount(ctx, other.SecretKeyHex, "other"); !errors.Is(err, session.ErrIdentityExists) {
				t.Fatalf("expected ErrIdentityExists on import, got %v", err)
			}
			if h.platform.Prompts() != prompts {
				t.Fatalf("a refused flow must not prompt")
			}
			if h.m.State() != session.Unauthenticated {
				t.Fatalf("expected unauthenticated, got %s", h.m.State())
			}

			pk, _, err := h.ids.RetrievePublicKey(ctx)
			if err != nil || pk != original {
				t.Fatalf("stored public key changed from %s to %s (err=%v)", original, pk, err)
			}
			sess, err := h.m.Unlock(ctx, "p4ssw0rd")
			if err != nil {
				t.Fatalf("original password must still unlock: %v", err)
			}
			if sess.PublicKey != original {
				t.Fatalf("expected %s, got %s", original, sess.PublicKey)
			}
		})
	}
}

func TestCreateAccountRefusesOrphanEnvelope(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, session.Options{})
	kp, _ := krypto.NewKeyEngine(nil).GenerateRandomKeypair()
	enc, err := vault.SealPrivateKey(kp.SecretKey[:], "material", fastKDF)
	if err != nil {
		t.Fatalf("SealPrivateKey: %v", err)
	}
	if err := h.ids.StorePrivateKey(ctx, enc); err != nil {
		t.Fatalf("StorePrivateKey: %v", err)
	}

	if _, err := h.m.CreateAccount(ctx, "alice", "p4ssw0rd"); !errors.Is(err, session.ErrIdentityExists) {
		t.Fatalf("expected ErrIdentityExists, got %v", err)
	}
	stored, err := h.ids.RetrievePrivateKey(ctx)
	if err != nil || stored.Ciphertext != enc.Ciphertext {
		t.Fatalf("envelope must be left untouched: %v", err)
	}
}

type brokenKV struct{}

func (brokenKV) Get(context.Context, string) ([]byte, error) { return nil, store.ErrNotFound }
func (brokenKV) Set(context.Context, string, []byte) error   { return store.ErrStorageUnavailable }
func (brokenKV) Delete(context.Context, string) error        { return store.ErrStorageUnavailable }

func TestCreateAccountStorageUnavailable(t *testing.T) {
	platform := biometry.NewMemory(true)
	v, err := vault.New(platform, vault.Options{Account: "test", KDF: fastKDF})
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	m, err := session.NewManager(v, store.NewIdentityStore(brokenKV{}), session.Options{})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	_, err = m.CreateAccount(context.Background(), "alice", "p4ssw0rd")
	if !errors.Is(err, session.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if m.State() != session.Unauthenticated || m.Current() != nil {
		t.Fatalf("expected no session after a failed write")
	}
	if platform.Len() != 0 {
		t.Fatalf("expected sealed credentials to be discarded")
	}
}

func TestResumeIfPossible(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, session.Options{})

	if _, ok, err := h.m.ResumeIfPossible(ctx); err != nil || ok {
		t.Fatalf("expected no identity, got ok=%v err=%v", ok, err)
	}
	sess, err := h.m.CreateAccount(ctx, "alice", "p4ssw0rd")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	h.m.Logout()

	pk, ok, err := h.m.ResumeIfPossible(ctx)
	if err != nil || !ok || pk != sess.PublicKey {
		t.Fatalf("expected %s, got %q ok=%v err=%v", sess.PublicKey, pk, ok, err)
	}
	if h.m.State() != session.Unauthenticated {
		t.Fatalf("resume must not authenticate, got %s", h.m.State())
	}
	if h.platform.Prompts() != 1 {
		t.Fatalf("resume must not prompt")
	}
}

func TestUnlock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, session.Options{})

	if _, err := h.m.Unlock(ctx, "p4ssw0rd"); !errors.Is(err, session.ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}

	created, err := h.m.CreateAccount(ctx, "alice", "p4ssw0rd")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	h.m.Logout()
	if !created.Closed() {
		t.Fatalf("logout must destroy the session secret")
	}

	if _, err := h.m.Unlock(ctx, "wrong"); !errors.Is(err, session.ErrDecryption) {
		t.Fatalf("expected ErrDecryption, got %v", err)
	}
	if h.m.State() != session.Unauthenticated {
		t.Fatalf("expected unauthenticated, got %s", h.m.State())
	}

	sess, err := h.m.Unlock(ctx, "p4ssw0rd")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if sess.PublicKey != created.PublicKey || sess.Mode != session.ModePassword {
		t.Fatalf("unexpected session %s mode=%s", sess.PublicKey, sess.Mode)
	}

	bio, err := h.m.UnlockWithBiometry(ctx)
	if err != nil {
		t.Fatalf("UnlockWithBiometry: %v", err)
	}
	if bio.Mode != session.ModeBiometric || bio.PublicKey != created.PublicKey {
		t.Fatalf("unexpected biometric session %s mode=%s", bio.PublicKey, bio.Mode)
	}
	if !sess.Closed() {
		t.Fatalf("a new session must replace the previous one")
	}
}

func TestUnlockWithBiometryCancelled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, session.Options{AllowPasswordFallback: true})
	if _, err := h.m.CreateAccount(ctx, "alice", "p4ssw0rd"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	h.m.Logout()
	h.platform.SetPrompt(cancelPrompt)

	if _, err := h.m.UnlockWithBiometry(ctx); !errors.Is(err, session.ErrBiometryCancelled) {
		t.Fatalf("expected ErrBiometryCancelled, got %v", err)
	}
	if h.m.State() != session.Unauthenticated {
		t.Fatalf("expected unauthenticated, got %s", h.m.State())
	}
}

func TestFailedUnlockKeepsLiveSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, session.Options{})
	sess, err := h.m.CreateAccount(ctx, "alice", "p4ssw0rd")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	if _, err := h.m.Unlock(ctx, "wrong"); !errors.Is(err, session.ErrDecryption) {
		t.Fatalf("expected ErrDecryption, got %v", err)
	}
	h.platform.SetPrompt(cancelPrompt)
	if _, err := h.m.UnlockWithBiometry(ctx); !errors.Is(err, session.ErrBiometryCancelled) {
		t.Fatalf("expected ErrBiometryCancelled, got %v", err)
	}

	if sess.Closed() || h.m.Current() != sess {
		t.Fatalf("a failed unlock must not destroy the live session")
	}
	if h.m.State() != session.Authenticated {
		t.Fatalf("expected authenticated, got %s", h.m.State())
	}
	digest := sha256.Sum256([]byte("still here"))
	if _, err := sess.Sign(digest[:]); err != nil {
		t.Fatalf("Sign after failed unlock: %v", err)
	}
}

func TestUnlockWithBiometryWithoutSeal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, session.Options{AllowPasswordFallback: true})
	h.platform.SetPrompt(cancelPrompt)
	if _, err := h.m.CreateAccount(ctx, "alice", "p4ssw0rd"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	h.m.Logout()
	h.platform.SetPrompt(nil)

	_, err := h.m.UnlockWithBiometry(ctx)
	if !errors.Is(err, session.ErrNoBiometricCredential) {
		t.Fatalf("expected ErrNoBiometricCredential, got %v", err)
	}
	if errors.Is(err, session.ErrBiometryCancelled) {
		t.Fatalf("a missing seal must not look like a cancelled prompt")
	}
	if got := session.Classify(err); got != "no_biometric_credential" {
		t.Fatalf("unexpected class %q", got)
	}
	if _, err := h.m.Unlock(ctx, "p4ssw0rd"); err != nil {
		t.Fatalf("password unlock: %v", err)
	}
}

func TestUnlockRateLimited(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, session.Options{UnlockInterval: time.Hour, UnlockBurst: 2})
	if _, err := h.m.CreateAccount(ctx, "alice", "p4ssw0rd"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := h.m.Unlock(ctx, "wrong"); !errors.Is(err, session.ErrDecryption) {
			t.Fatalf("attempt %d: expected ErrDecryption, got %v", i, err)
		}
	}
	if _, err := h.m.Unlock(ctx, "p4ssw0rd"); !errors.Is(err, session.ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
}

func TestConcurrentFlowIsBusy(t *testing.T) {
	h := newHarness(t, true, session.Options{})
	entered := make(chan struct{})
	release := make(chan struct{})
	h.platform.SetPrompt(func(context.Context, string) error {
		close(entered)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := h.m.CreateAccount(context.Background(), "alice", "p4ssw0rd")
		done <- err
	}()
	<-entered

	if h.m.State() != session.Authenticating {
		t.Fatalf("expected authenticating, got %s", h.m.State())
	}
	if _, err := h.m.ImportAccount(context.Background(), strings.Repeat("1", 64), "pw"); !errors.Is(err, session.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, session.Options{})
	sess, err := h.m.CreateAccount(ctx, "alice", "p4ssw0rd")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	if err := h.m.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !sess.Closed() || h.m.Current() != nil {
		t.Fatalf("reset must log out")
	}
	if _, ok, _ := h.m.ResumeIfPossible(ctx); ok {
		t.Fatalf("expected no identity after reset")
	}
	if h.platform.Len() != 0 {
		t.Fatalf("expected sealed credentials removed")
	}
	if _, err := h.m.CreateAccount(ctx, "bob", "hunter22"); err != nil {
		t.Fatalf("CreateAccount after reset: %v", err)
	}
}

func TestSessionSign(t *testing.T) {
	h := newHarness(t, true, session.Options{})
	sess, err := h.m.CreateAccount(context.Background(), "alice", "p4ssw0rd")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	digest := sha256.Sum256([]byte("hello nostr"))
	sig, err := sess.Sign(digest[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !krypto.VerifyHash(sess.PublicKey, digest[:], sig) {
		t.Fatalf("signature %s does not verify", hex.EncodeToString(sig))
	}

	sess.Close()
	if _, err := sess.Sign(digest[:]); !errors.Is(err, session.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}
