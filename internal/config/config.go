// Package config loads the lockstep configuration file and resolves where
// data is stored.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/julianstephens/lockstep/internal/constants"
	"github.com/julianstephens/lockstep/internal/keyring"
)

// EnvConnection overrides the connection string of a server backend.
const EnvConnection = "LOCKSTEP_DB_CONNECTION"

type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
	BackendFile     Backend = "file"
	BackendMemory   Backend = "memory"
)

// FilePrefix selects the file backend on the command line: dir:<path>.
const FilePrefix = "dir:"

type Config struct {
	Storage       Storage       `yaml:"storage"`
	User          string        `yaml:"user"`
	Timezone      string        `yaml:"timezone"`
	Notifications Notifications `yaml:"notifications"`
	Debug         bool          `yaml:"debug"`
	LogLevel      string        `yaml:"log_level,omitempty"`

	// Dir is the directory holding the config file, logs and backups.
	Dir string `yaml:"-"`
}

type Storage struct {
	Backend Backend `yaml:"backend"`
	// Path is the SQLite file or the file backend directory.
	Path string `yaml:"path,omitempty"`
	// DSN is a PostgreSQL connection string or Redis URL. Passwords belong
	// in the keyring or the environment, not here.
	DSN string `yaml:"dsn,omitempty"`
}

type Notifications struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

// NotificationsEnabled defaults to true.
func (c Config) NotificationsEnabled() bool {
	return c.Notifications.Enabled == nil || *c.Notifications.Enabled
}

// Load reads the config file at path. A missing file yields the defaults.
func Load(path string) (Config, error) {
	path = ExpandPath(path)
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.Dir = filepath.Dir(path)
	ApplyDefaults(&cfg)
	return cfg, cfg.Validate()
}

// ApplyDefaults fills in default values for any unset fields
func ApplyDefaults(cfg *Config) {
	if cfg.Dir == "" {
		cfg.Dir = ExpandPath(constants.DefaultConfigDir)
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendSQLite
	}
	if cfg.Storage.Path == "" {
		switch cfg.Storage.Backend {
		case BackendSQLite:
			cfg.Storage.Path = filepath.Join(cfg.Dir, constants.DefaultDBFile)
		case BackendFile:
			cfg.Storage.Path = filepath.Join(cfg.Dir, "data")
		}
	}
	cfg.Storage.Path = ExpandPath(cfg.Storage.Path)
	if cfg.User == "" {
		cfg.User = constants.DefaultUserID
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
}

func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendFile:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s backend", c.Storage.Backend)
		}
	case BackendPostgres, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if strings.TrimSpace(c.User) == "" {
		return errors.New("user must not be empty")
	}
	return nil
}

// ApplyTarget overrides the storage from a command-line target: a
// PostgreSQL connection string, a Redis URL, dir:<path> for the file
// backend, :memory:, or a SQLite file path.
func (c *Config) ApplyTarget(target string) {
	switch {
	case target == "":
		return
	case strings.HasPrefix(target, "postgres://"), strings.HasPrefix(target, "postgresql://"):
		c.Storage = Storage{Backend: BackendPostgres, DSN: target}
	case strings.HasPrefix(target, "redis://"), strings.HasPrefix(target, "rediss://"):
		c.Storage = Storage{Backend: BackendRedis, DSN: target}
	case strings.HasPrefix(target, FilePrefix):
		c.Storage = Storage{Backend: BackendFile, Path: ExpandPath(strings.TrimPrefix(target, FilePrefix))}
	case target == ":memory:":
		c.Storage = Storage{Backend: BackendMemory}
	default:
		c.Storage = Storage{Backend: BackendSQLite, Path: ExpandPath(target)}
	}
}

// ConnectionString resolves the DSN of a server backend. The environment
// wins over the config file, which wins over the OS keyring.
func (c Config) ConnectionString() (string, error) {
	var secret keyring.Backend
	switch c.Storage.Backend {
	case BackendPostgres:
		secret = keyring.BackendPostgres
	case BackendRedis:
		secret = keyring.BackendRedis
	default:
		return "", fmt.Errorf("%s backend has no connection string", c.Storage.Backend)
	}

	if v := os.Getenv(EnvConnection); v != "" {
		return v, nil
	}
	if c.Storage.DSN != "" {
		return c.Storage.DSN, nil
	}

	connStr, err := keyring.GetConnectionString(secret)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("no %s connection string: set storage.dsn, %s, or run 'lockstep keyring set %s'", secret, EnvConnection, secret)
	}
	return connStr, err
}

// Save writes cfg as YAML to path, creating the directory if needed.
func Save(path string, cfg Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
