// Package session orchestrates the identity lifecycle: account creation,
// key import, resume and unlock. It drives the credential vault, the key
// engine and the identity store, and owns the resulting authenticated
// Session.
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Hussein-Mazeh/nostr-identity/auth"
	"github.com/Hussein-Mazeh/nostr-identity/internal/observability"
	"github.com/Hussein-Mazeh/nostr-identity/internal/vault"
	"github.com/Hussein-Mazeh/nostr-identity/krypto"
	"github.com/Hussein-Mazeh/nostr-identity/store"
)

// DefaultPromptTimeout bounds a biometric prompt when Options leave it unset.
const DefaultPromptTimeout = 60 * time.Second

const (
	flowCreate = "create"
	flowImport = "import"
	flowUnlock = "unlock"
	flowReset  = "reset"
)

// CredentialVault is the subset of *vault.Vault the manager drives.
type CredentialVault interface {
	IsBiometrySupported(ctx context.Context) bool
	SaveCredentialsWithBiometry(ctx context.Context, identifier, password string) error
	GetCredentialsWithBiometry(ctx context.Context) (*vault.Credential, error)
	DeleteCredentials(ctx context.Context) error
	GeneratePassword(identifier, password string) (string, error)
	SealPrivateKey(secret []byte, passwordMaterial string) (vault.EncryptedPrivateKey, error)
	OpenPrivateKey(enc vault.EncryptedPrivateKey, passwordMaterial string) ([]byte, error)
}

// IdentityStore is the subset of *store.IdentityStore the manager drives.
type IdentityStore interface {
	StorePublicKey(ctx context.Context, publicKey string) error
	RetrievePublicKey(ctx context.Context) (string, bool, error)
	StorePrivateKey(ctx context.Context, enc vault.EncryptedPrivateKey) error
	RetrievePrivateKey(ctx context.Context) (vault.EncryptedPrivateKey, error)
	StoreIdentifier(ctx context.Context, identifier string) error
	RetrieveIdentifier(ctx context.Context) (string, bool, error)
	Reset(ctx context.Context) error
}

// Options configures a Manager. The zero value is usable: biometry is
// mandatory, prompts time out after DefaultPromptTimeout and unlock is not
// rate limited.
type Options struct {
	// AllowPasswordFallback lets create and import complete on the entered
	// password when biometry is unsupported or the prompt does not complete.
	AllowPasswordFallback bool
	PromptTimeout         time.Duration
	// UnlockInterval and UnlockBurst configure the unlock rate limiter.
	// A zero interval disables it.
	UnlockInterval time.Duration
	UnlockBurst    int

	Policy  auth.Policy
	Engine  *krypto.KeyEngine
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Manager is the identity session orchestrator. At most one flow runs at a
// time; a concurrent call fails fast with ErrBusy.
type Manager struct {
	vault  CredentialVault
	store  IdentityStore
	engine *krypto.KeyEngine
	policy auth.Policy

	fallback      bool
	promptTimeout time.Duration
	limiter       *rate.Limiter

	log     *observability.Logger
	metrics *observability.Metrics

	op sync.Mutex

	mu          sync.Mutex
	state       State
	current     *Session
	lastFailure error
}

// NewManager wires a Manager over a credential vault and an identity store.
func NewManager(v CredentialVault, s IdentityStore, opts Options) (*Manager, error) {
	if v == nil {
		return nil, errors.New("credential vault is required")
	}
	if s == nil {
		return nil, errors.New("identity store is required")
	}
	if opts.Engine == nil {
		opts.Engine = krypto.NewKeyEngine(rand.Reader)
	}
	if opts.Logger == nil {
		opts.Logger = observability.Nop()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics(nil)
	}
	if opts.PromptTimeout <= 0 {
		opts.PromptTimeout = DefaultPromptTimeout
	}

	m := &Manager{
		vault:         v,
		store:         s,
		engine:        opts.Engine,
		policy:        opts.Policy,
		fallback:      opts.AllowPasswordFallback,
		promptTimeout: opts.PromptTimeout,
		log:           opts.Logger,
		metrics:       opts.Metrics,
	}
	if opts.UnlockInterval > 0 {
		burst := opts.UnlockBurst
		if burst < 1 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Every(opts.UnlockInterval), burst)
	}
	return m, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns the authenticated session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// LastFailure returns the error of the most recent failed flow, or nil.
func (m *Manager) LastFailure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFailure
}

// ResumeIfPossible reports whether this device already holds an identity.
// It never prompts, decrypts or mutates state.
func (m *Manager) ResumeIfPossible(ctx context.Context) (string, bool, error) {
	publicKey, ok, err := m.store.RetrievePublicKey(ctx)
	if err != nil {
		return "", false, fmt.Errorf("resume: %w", err)
	}
	if ok {
		m.log.Debug("previous identity found")
	}
	return publicKey, ok, nil
}

// CreateAccount generates a fresh keypair and binds it to username and
// password. Biometric confirmation is required unless the manager allows
// the password fallback, in which case the returned session is Degraded.
// An identity already on the device yields ErrIdentityExists; Reset first.
func (m *Manager) CreateAccount(ctx context.Context, username, password string) (*Session, error) {
	if !m.op.TryLock() {
		return nil, ErrBusy
	}
	defer m.op.Unlock()

	log := m.log.WithFlow(flowCreate)
	if err := m.policy.ValidateCreate(username, password); err != nil {
		return nil, m.reject(log, flowCreate, fmt.Errorf("%w: %w", ErrValidation, err))
	}
	if err := m.ensureNoIdentity(ctx); err != nil {
		return nil, m.reject(log, flowCreate, err)
	}

	m.begin()
	sess, err := m.establish(ctx, log, username, password, func() ([]byte, string, error) {
		kp, err := m.engine.GenerateRandomKeypair()
		if err != nil {
			return nil, "", err
		}
		secret := make([]byte, krypto.SecretKeySize)
		copy(secret, kp.SecretKey[:])
		kp.Wipe()
		return secret, kp.PublicKey, nil
	})
	if err != nil {
		return nil, m.fail(log, flowCreate, CreationFailed, err)
	}
	return m.succeed(log, flowCreate, sess), nil
}

// ImportAccount adopts an existing secret (64 hex chars or nsec1...) and
// protects it with password. The identifier bound into the password
// material is the derived public key. A malformed secret or an existing
// identity fails before any prompt or storage write.
func (m *Manager) ImportAccount(ctx context.Context, secret, password string) (*Session, error) {
	if !m.op.TryLock() {
		return nil, ErrBusy
	}
	defer m.op.Unlock()

	log := m.log.WithFlow(flowImport)
	if err := m.policy.ValidateImport(secret, password); err != nil {
		return nil, m.reject(log, flowImport, fmt.Errorf("%w: %w", ErrValidation, err))
	}
	parsed, err := krypto.ParseSecret(secret)
	if err != nil {
		return nil, m.reject(log, flowImport, err)
	}
	defer clear(parsed[:])
	publicKey, err := krypto.PublicKeyFromSecretBytes(parsed[:])
	if err != nil {
		return nil, m.reject(log, flowImport, err)
	}
	if err := m.ensureNoIdentity(ctx); err != nil {
		return nil, m.reject(log, flowImport, err)
	}

	m.begin()
	sess, err := m.establish(ctx, log, publicKey, password, func() ([]byte, string, error) {
		out := make([]byte, krypto.SecretKeySize)
		copy(out, parsed[:])
		return out, publicKey, nil
	})
	if err != nil {
		return nil, m.fail(log, flowImport, ImportFailed, err)
	}
	return m.succeed(log, flowImport, sess), nil
}

// Unlock opens the stored identity with the user's password.
func (m *Manager) Unlock(ctx context.Context, password string) (*Session, error) {
	if !m.op.TryLock() {
		return nil, ErrBusy
	}
	defer m.op.Unlock()

	log := m.log.WithFlow(flowUnlock)
	if password == "" {
		return nil, m.reject(log, flowUnlock, fmt.Errorf("%w: %w", ErrValidation, auth.ErrPasswordRequired))
	}
	if m.limiter != nil && !m.limiter.Allow() {
		return nil, m.reject(log, flowUnlock, ErrTooManyAttempts)
	}

	m.begin()
	identifier, ok, err := m.store.RetrieveIdentifier(ctx)
	if err != nil {
		return nil, m.fail(log, flowUnlock, Unauthenticated, err)
	}
	if !ok {
		return nil, m.fail(log, flowUnlock, Unauthenticated, ErrNoIdentity)
	}
	sess, err := m.open(ctx, identifier, password, ModePassword)
	if err != nil {
		return nil, m.fail(log, flowUnlock, Unauthenticated, err)
	}
	return m.succeed(log, flowUnlock, sess), nil
}

// UnlockWithBiometry opens the stored identity with the biometric-sealed
// credential. A cancelled prompt yields ErrBiometryCancelled and an
// identity with nothing sealed yields ErrNoBiometricCredential; neither
// falls back to a password on its own.
func (m *Manager) UnlockWithBiometry(ctx context.Context) (*Session, error) {
	if !m.op.TryLock() {
		return nil, ErrBusy
	}
	defer m.op.Unlock()

	log := m.log.WithFlow(flowUnlock)
	if m.limiter != nil && !m.limiter.Allow() {
		return nil, m.reject(log, flowUnlock, ErrTooManyAttempts)
	}
	if !m.vault.IsBiometrySupported(ctx) {
		m.metrics.Prompt("unsupported")
		return nil, m.reject(log, flowUnlock, ErrBiometryUnsupported)
	}

	m.begin()
	cred, err := m.prompt(ctx)
	if err != nil {
		return nil, m.fail(log, flowUnlock, Unauthenticated, err)
	}
	if cred == nil {
		return nil, m.fail(log, flowUnlock, Unauthenticated, ErrBiometryCancelled)
	}
	sess, err := m.open(ctx, cred.Identifier, cred.Password, ModeBiometric)
	if err != nil {
		return nil, m.fail(log, flowUnlock, Unauthenticated, err)
	}
	return m.succeed(log, flowUnlock, sess), nil
}

// Logout destroys the live session, if any.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropCurrentLocked()
	m.transitionLocked(Unauthenticated)
}

// Reset logs out and destroys the stored identity and the sealed
// credential. It is the only path that removes an encrypted private key.
func (m *Manager) Reset(ctx context.Context) error {
	if !m.op.TryLock() {
		return ErrBusy
	}
	defer m.op.Unlock()

	log := m.log.WithFlow(flowReset)
	publicKey, _, err := m.store.RetrievePublicKey(ctx)
	if err != nil {
		m.metrics.Flow(flowReset, Classify(err))
		return fmt.Errorf("reset: %w", err)
	}
	m.Logout()
	if err := m.store.Reset(ctx); err != nil {
		m.metrics.Flow(flowReset, Classify(err))
		return fmt.Errorf("reset: %w", err)
	}
	if err := m.vault.DeleteCredentials(ctx); err != nil {
		m.metrics.Flow(flowReset, Classify(err))
		return fmt.Errorf("reset: %w", err)
	}
	log.IdentityReset(publicKey)
	m.metrics.Flow(flowReset, "ok")
	return nil
}

// keySource yields the secret to protect and its public key. The caller
// owns the returned slice.
type keySource func() (secret []byte, publicKey string, err error)

// establish runs the shared tail of create and import: biometric seal and
// confirm (or the password fallback), key material, encryption and
// persistence.
func (m *Manager) establish(ctx context.Context, log *observability.Logger, identifier, password string, keys keySource) (*Session, error) {
	mode := ModeBiometric
	var bypass string

	if m.vault.IsBiometrySupported(ctx) {
		if err := m.vault.SaveCredentialsWithBiometry(ctx, identifier, password); err != nil {
			return nil, err
		}
		cred, err := m.prompt(ctx)
		if err != nil {
			m.discardCredentials(ctx, log)
			return nil, err
		}
		if cred == nil {
			// An unconfirmed seal is never left behind.
			m.discardCredentials(ctx, log)
			if !m.fallback {
				return nil, ErrBiometryCancelled
			}
			mode, bypass = ModePasswordFallback, "biometric confirmation did not complete"
		} else {
			identifier, password = cred.Identifier, cred.Password
		}
	} else {
		m.metrics.Prompt("unsupported")
		if !m.fallback {
			return nil, ErrBiometryUnsupported
		}
		mode, bypass = ModePasswordFallback, "biometry not supported on this device"
	}

	secret, publicKey, err := keys()
	if err != nil {
		m.discardCredentials(ctx, log)
		return nil, err
	}
	defer krypto.Wipe(secret)

	if err := m.protect(ctx, identifier, password, secret, publicKey); err != nil {
		m.discardCredentials(ctx, log)
		return nil, err
	}

	var warning string
	if mode == ModePasswordFallback {
		warning = "Biometric protection is not active; your key is protected by your password only."
		log.BiometryBypassed(publicKey, bypass)
		m.metrics.DegradedSessions.Inc()
	}
	return newSession(publicKey, secret, mode, warning), nil
}

// protect encrypts secret under password material and persists the identity.
// The public key is written last so an interrupted write never looks like a
// resumable identity.
func (m *Manager) protect(ctx context.Context, identifier, password string, secret []byte, publicKey string) error {
	material, err := m.vault.GeneratePassword(identifier, password)
	if err != nil {
		return err
	}
	enc, err := m.vault.SealPrivateKey(secret, material)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.store.StorePrivateKey(ctx, enc); err != nil {
		return err
	}
	if err := m.store.StoreIdentifier(ctx, identifier); err != nil {
		return err
	}
	return m.store.StorePublicKey(ctx, publicKey)
}

// open decrypts the stored envelope and checks it against the stored public key.
func (m *Manager) open(ctx context.Context, identifier, password string, mode Mode) (*Session, error) {
	enc, err := m.store.RetrievePrivateKey(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoIdentity
		}
		return nil, err
	}
	material, err := m.vault.GeneratePassword(identifier, password)
	if err != nil {
		return nil, err
	}
	secret, err := m.vault.OpenPrivateKey(enc, material)
	if err != nil {
		return nil, err
	}
	defer krypto.Wipe(secret)

	derived, err := krypto.PublicKeyFromSecretBytes(secret)
	if err != nil {
		return nil, err
	}
	stored, ok, err := m.store.RetrievePublicKey(ctx)
	if err != nil {
		return nil, err
	}
	if ok && stored != derived {
		return nil, ErrIdentityMismatch
	}
	if !ok {
		if err := m.store.StorePublicKey(ctx, derived); err != nil {
			return nil, err
		}
	}
	return newSession(derived, secret, mode, ""), nil
}

// prompt asks for biometric proof under the prompt timeout. A nil credential
// with a nil error means the user was not authenticated.
func (m *Manager) prompt(ctx context.Context) (*vault.Credential, error) {
	pctx, cancel := context.WithTimeout(ctx, m.promptTimeout)
	defer cancel()

	cred, err := m.vault.GetCredentialsWithBiometry(pctx)
	switch {
	case errors.Is(err, vault.ErrNoCredential):
		m.metrics.Prompt("missing")
	case err != nil:
		m.metrics.Prompt("error")
	case cred == nil:
		m.metrics.Prompt("cancelled")
	default:
		m.metrics.Prompt("approved")
	}
	return cred, err
}

func (m *Manager) discardCredentials(ctx context.Context, log *observability.Logger) {
	if err := m.vault.DeleteCredentials(context.WithoutCancel(ctx)); err != nil {
		log.Error(err, "discard sealed credentials")
	}
}

// ensureNoIdentity refuses to start a flow that would overwrite a stored
// identity. An envelope left without a public key counts as an identity.
func (m *Manager) ensureNoIdentity(ctx context.Context) error {
	if _, ok, err := m.store.RetrievePublicKey(ctx); err != nil {
		return err
	} else if ok {
		return ErrIdentityExists
	}
	_, err := m.store.RetrievePrivateKey(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return err
	default:
		return ErrIdentityExists
	}
}

// begin enters Authenticating. Any live session survives until a new one
// replaces it in succeed.
func (m *Manager) begin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionLocked(Authenticating)
}

func (m *Manager) succeed(log *observability.Logger, flow string, sess *Session) *Session {
	m.mu.Lock()
	m.dropCurrentLocked()
	m.current = sess
	m.lastFailure = nil
	m.transitionLocked(Authenticated)
	m.mu.Unlock()

	m.metrics.ActiveSessions.Inc()
	m.metrics.Flow(flow, "ok")
	log.WithSession(sess.ID).IdentityEstablished(sess.PublicKey, sess.Mode.String())
	return sess
}

// fail passes through the flow's failure state and settles back in
// Authenticated when a live session survived the attempt, Unauthenticated
// otherwise.
func (m *Manager) fail(log *observability.Logger, flow string, via State, err error) error {
	m.mu.Lock()
	if via != Unauthenticated {
		m.transitionLocked(via)
	}
	if m.current != nil {
		m.transitionLocked(Authenticated)
	} else {
		m.transitionLocked(Unauthenticated)
	}
	m.lastFailure = err
	m.mu.Unlock()

	class := Classify(err)
	m.metrics.Flow(flow, class)
	log.FlowFailed(class, err)
	return err
}

// reject records a failure that happened before the flow started; state is
// left untouched.
func (m *Manager) reject(log *observability.Logger, flow string, err error) error {
	m.mu.Lock()
	m.lastFailure = err
	m.mu.Unlock()

	class := Classify(err)
	m.metrics.Flow(flow, class)
	log.FlowFailed(class, err)
	return err
}

func (m *Manager) dropCurrentLocked() {
	if m.current == nil {
		return
	}
	m.current.Close()
	m.current = nil
	m.metrics.ActiveSessions.Dec()
}

func (m *Manager) transitionLocked(to State) {
	if m.state == to {
		return
	}
	m.log.StateChanged(m.state.String(), to.String())
	m.state = to
}
