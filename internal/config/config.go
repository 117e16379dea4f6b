// Package config loads nostrid settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Biometry modes.
const (
	// BiometryPlatform uses the OS biometric gate (macOS Keychain + Touch ID).
	BiometryPlatform = "platform"
	// BiometrySimulated uses an in-process platform that always approves.
	// It exists for development builds and offers no hardware protection.
	BiometrySimulated = "simulated"
	// BiometryDisabled reports biometry as unsupported.
	BiometryDisabled = "disabled"
)

// Config holds nostrid configuration.
type Config struct {
	DataDir  string         `yaml:"dataDir"`
	Storage  StorageConfig  `yaml:"storage"`
	Biometry BiometryConfig `yaml:"biometry"`
	KDF      KDFConfig      `yaml:"kdf"`
	Policy   PolicyConfig   `yaml:"policy"`
	Unlock   UnlockConfig   `yaml:"unlock"`
	Log      LogConfig      `yaml:"log"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"`
}

type BiometryConfig struct {
	Mode string `yaml:"mode"`
	// AllowPasswordFallback enables the reduced-security path that encrypts
	// with the entered password when biometric confirmation is unavailable.
	AllowPasswordFallback bool          `yaml:"allowPasswordFallback"`
	PromptTimeout         time.Duration `yaml:"promptTimeout"`
	KeychainService       string        `yaml:"keychainService"`
}

type KDFConfig struct {
	MemoryKB    uint32 `yaml:"memoryKB"`
	Time        uint32 `yaml:"time"`
	Parallelism uint8  `yaml:"parallelism"`
}

type PolicyConfig struct {
	// MinStrength is the minimum zxcvbn score (0-4) for new passwords; 0 disables the check.
	MinStrength int `yaml:"minStrength"`
}

type UnlockConfig struct {
	Interval time.Duration `yaml:"interval"`
	Burst    int           `yaml:"burst"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	dataDir := ".nostrid"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".local", "share", "nostrid")
	}

	return Config{
		DataDir: dataDir,
		Storage: StorageConfig{Backend: BackendSQLite},
		Biometry: BiometryConfig{
			Mode:            BiometryPlatform,
			PromptTimeout:   60 * time.Second,
			KeychainService: "io.joyboy.nostrid.credential",
		},
		KDF: KDFConfig{
			MemoryKB:    64 * 1024,
			Time:        3,
			Parallelism: 1,
		},
		Unlock: UnlockConfig{
			Interval: 2 * time.Second,
			Burst:    5,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads configPath (or the default candidates when empty) over the
// defaults and applies NOSTRID_* environment overrides. A missing file is
// not an error; a malformed one is.
func Load(configPath string) (Config, error) {
	cfg := Default()

	candidates := []string{configPath}
	if configPath == "" {
		candidates = []string{"nostrid.yaml", filepath.Join(cfg.DataDir, "config.yaml")}
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && configPath == "" {
				continue
			}
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
		break
	}

	if err := ApplyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies NOSTRID_* variables on top of cfg.
func ApplyEnvOverrides(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("NOSTRID_DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("NOSTRID_STORAGE_BACKEND")); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("NOSTRID_BIOMETRY_MODE")); v != "" {
		cfg.Biometry.Mode = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("NOSTRID_ALLOW_PASSWORD_FALLBACK")); v != "" {
		allow, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("NOSTRID_ALLOW_PASSWORD_FALLBACK: %w", err)
		}
		cfg.Biometry.AllowPasswordFallback = allow
	}
	if v := strings.TrimSpace(os.Getenv("NOSTRID_PROMPT_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NOSTRID_PROMPT_TIMEOUT: %w", err)
		}
		cfg.Biometry.PromptTimeout = d
	}
	if v := strings.TrimSpace(os.Getenv("NOSTRID_LOG_LEVEL")); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	return nil
}

// Validate rejects settings the rest of the module cannot honour.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("config: dataDir is required")
	}
	switch c.Storage.Backend {
	case BackendSQLite, BackendFile:
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Biometry.Mode {
	case BiometryPlatform, BiometrySimulated, BiometryDisabled:
	default:
		return fmt.Errorf("config: unknown biometry mode %q", c.Biometry.Mode)
	}
	if c.Biometry.PromptTimeout <= 0 {
		return errors.New("config: biometry.promptTimeout must be positive")
	}
	if c.KDF.MemoryKB == 0 || c.KDF.Time == 0 || c.KDF.Parallelism == 0 {
		return errors.New("config: kdf parameters must be positive")
	}
	if c.Policy.MinStrength < 0 || c.Policy.MinStrength > 4 {
		return errors.New("config: policy.minStrength must be between 0 and 4")
	}
	if c.Unlock.Interval <= 0 || c.Unlock.Burst <= 0 {
		return errors.New("config: unlock interval and burst must be positive")
	}
	return nil
}
