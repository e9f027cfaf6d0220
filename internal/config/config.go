// Package config loads biovault settings: defaults, then the YAML file,
// then BIOVAULT_* environment variables. Command-line flags are applied
// last by the binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/n1/biovault/internal/biometrics"
	"github.com/n1/biovault/internal/presence"
	"github.com/n1/biovault/internal/secretstore"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is where Load looks when no path is given.
	DefaultConfigPath = "~/.config/biovault/config.yaml"
	// DefaultDataDir holds the lock database and the file store fallback.
	DefaultDataDir = "~/.local/share/biovault"
	// DefaultService namespaces every secret key.
	DefaultService = "biovault"
)

// Config is the full biovault configuration.
type Config struct {
	// Service namespaces secret keys in the OS vault.
	Service string `yaml:"service" env:"SERVICE"`
	// DataDir holds biovault.db and, on Linux without a Secret Service,
	// the file store.
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`
	// Backend is auto, keyring, file or memory.
	Backend  string `yaml:"backend" env:"BACKEND"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	Presence PresenceConfig `yaml:"presence" envPrefix:"PRESENCE_"`
	Lock     LockConfig     `yaml:"lock" envPrefix:"LOCK_"`
	Daemon   DaemonConfig   `yaml:"daemon" envPrefix:"DAEMON_"`
}

// PresenceConfig tunes the native presence prompt.
type PresenceConfig struct {
	PolkitAction        string        `yaml:"polkit_action" env:"POLKIT_ACTION"`
	AllowDevicePasscode bool          `yaml:"allow_device_passcode" env:"ALLOW_DEVICE_PASSCODE"`
	Timeout             time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LockConfig tunes the biometric lock.
type LockConfig struct {
	Name        string        `yaml:"name" env:"NAME"`
	MaxAttempts int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	TTL         time.Duration `yaml:"ttl" env:"TTL"`
}

// DaemonConfig tunes biovaultd.
type DaemonConfig struct {
	Socket  string `yaml:"socket" env:"SOCKET"`
	PIDFile string `yaml:"pid_file" env:"PID_FILE"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Service:  DefaultService,
		DataDir:  DefaultDataDir,
		Backend:  secretstore.BackendAuto,
		LogLevel: "info",
		Presence: PresenceConfig{
			PolkitAction: presence.DefaultPolkitAction,
			Timeout:      time.Minute,
		},
		Lock: LockConfig{
			Name:        "default",
			MaxAttempts: 3,
			TTL:         15 * time.Minute,
		},
		Daemon: DaemonConfig{
			Socket:  "~/.local/share/biovault/biovaultd.sock",
			PIDFile: "~/.local/share/biovault/biovaultd.pid",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path and
// the environment. A missing file is only an error when path was given
// explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}
	path = ExpandPath(path)

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "BIOVAULT_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.DataDir = ExpandPath(cfg.DataDir)
	cfg.Daemon.Socket = ExpandPath(cfg.Daemon.Socket)
	cfg.Daemon.PIDFile = ExpandPath(cfg.Daemon.PIDFile)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a backend.
func (c Config) Validate() error {
	if err := biometrics.ValidateKey(c.Service); err != nil {
		return fmt.Errorf("service: %w", err)
	}
	switch c.Backend {
	case secretstore.BackendAuto, secretstore.BackendKeyring, secretstore.BackendFile, secretstore.BackendMemory:
	default:
		return fmt.Errorf("backend: unknown value %q", c.Backend)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.Lock.MaxAttempts < 1 {
		return fmt.Errorf("lock.max_attempts must be at least 1")
	}
	if c.Lock.TTL < 0 || c.Presence.Timeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

// BiometricsOptions maps the configuration onto the backend selection.
func (c Config) BiometricsOptions() biometrics.Options {
	return biometrics.Options{
		Store: secretstore.Options{
			Backend: c.Backend,
			Service: c.Service,
			Dir:     c.DataDir,
		},
		Presence: presence.Options{
			PolkitAction:        c.Presence.PolkitAction,
			AllowDevicePasscode: c.Presence.AllowDevicePasscode,
		},
	}
}

// DatabasePath is the lock database location.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "biovault.db")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
