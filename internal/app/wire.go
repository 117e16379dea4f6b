package app

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Hussein-Mazeh/nostr-identity/auth"
	"github.com/Hussein-Mazeh/nostr-identity/internal/biometry"
	"github.com/Hussein-Mazeh/nostr-identity/internal/config"
	"github.com/Hussein-Mazeh/nostr-identity/internal/db"
	"github.com/Hussein-Mazeh/nostr-identity/internal/observability"
	"github.com/Hussein-Mazeh/nostr-identity/internal/session"
	"github.com/Hussein-Mazeh/nostr-identity/internal/vault"
	"github.com/Hussein-Mazeh/nostr-identity/krypto"
	"github.com/Hussein-Mazeh/nostr-identity/store"
)

// Version is reported in logs and by the CLI.
const Version = "0.1.0"

// Wire bundles the stores, vault and session manager for one data directory.
type Wire struct {
	Config   config.Config
	Platform biometry.Platform
	Vault    *vault.Vault
	Store    *store.IdentityStore
	Sessions *session.Manager
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Registry *prometheus.Registry

	closer io.Closer
}

// NewWire constructs the dependency graph from cfg. Logs go to logOut, or
// stderr when nil.
func NewWire(cfg config.Config, logOut io.Writer) (*Wire, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.DataDir = dataDir

	logger := observability.NewLogger("nostrid", Version, cfg.Log.Level, logOut)
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	kv, closer, err := openKV(cfg)
	if err != nil {
		return nil, err
	}

	platform := NewPlatform(cfg.Biometry)
	v, err := vault.New(platform, vault.Options{
		Account: dataDir,
		KDF: krypto.Argon2Params{
			MemoryKB:    cfg.KDF.MemoryKB,
			Time:        cfg.KDF.Time,
			Parallelism: cfg.KDF.Parallelism,
			KeyLen:      32,
		},
	})
	if err != nil {
		closeQuietly(closer)
		return nil, fmt.Errorf("credential vault: %w", err)
	}

	ids := store.NewIdentityStore(kv)
	mgr, err := session.NewManager(v, ids, session.Options{
		AllowPasswordFallback: cfg.Biometry.AllowPasswordFallback,
		PromptTimeout:         cfg.Biometry.PromptTimeout,
		UnlockInterval:        cfg.Unlock.Interval,
		UnlockBurst:           cfg.Unlock.Burst,
		Policy:                auth.Policy{MinStrength: cfg.Policy.MinStrength},
		Logger:                logger,
		Metrics:               metrics,
	})
	if err != nil {
		closeQuietly(closer)
		return nil, err
	}

	logger.Debug("wired " + cfg.Storage.Backend + " store with " + cfg.Biometry.Mode + " biometry")
	return &Wire{
		Config:   cfg,
		Platform: platform,
		Vault:    v,
		Store:    ids,
		Sessions: mgr,
		Logger:   logger,
		Metrics:  metrics,
		Registry: registry,
		closer:   closer,
	}, nil
}

// NewPlatform selects the biometric platform for cfg.Mode.
func NewPlatform(cfg config.BiometryConfig) biometry.Platform {
	switch cfg.Mode {
	case config.BiometrySimulated:
		return biometry.NewMemory(true)
	case config.BiometryDisabled:
		return biometry.NewMemory(false)
	default:
		return biometry.NewKeychain(cfg.KeychainService)
	}
}

func openKV(cfg config.Config) (store.KV, io.Closer, error) {
	switch cfg.Storage.Backend {
	case config.BackendFile:
		kv, err := store.OpenFileKV(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return kv, nil, nil
	default:
		database, err := db.Open(filepath.Join(cfg.DataDir, "identity.db"))
		if err != nil {
			return nil, nil, err
		}
		return database, database, nil
	}
}

// Close logs out and releases the store.
func (w *Wire) Close() error {
	w.Sessions.Logout()
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
