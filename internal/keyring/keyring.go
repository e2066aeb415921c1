// Package keyring keeps storage connection strings in the OS keyring.
package keyring

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/lockstep/internal/constants"
)

var (
	// ErrNotFound is returned when no credentials are found in the keyring
	ErrNotFound = errors.New("credentials not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring is not available
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// Backend names the storage backend a secret belongs to.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
)

// ParseBackend accepts the backend names used on the command line.
func ParseBackend(name string) (Backend, error) {
	switch Backend(name) {
	case BackendPostgres, BackendRedis:
		return Backend(name), nil
	case "postgresql":
		return BackendPostgres, nil
	}
	return "", fmt.Errorf("unknown keyring backend %q (want postgres or redis)", name)
}

func account(b Backend) string {
	return constants.DefaultKeyringUser + ":" + string(b)
}

// GetConnectionString retrieves the connection string for b.
// Returns ErrNotFound if no credentials are stored.
func GetConnectionString(b Backend) (string, error) {
	connStr, err := keyring.Get(constants.AppName, account(b))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return connStr, nil
}

// SetConnectionString stores the connection string for b.
func SetConnectionString(b Backend, connStr string) error {
	if connStr == "" {
		return errors.New("connection string cannot be empty")
	}
	if err := keyring.Set(constants.AppName, account(b), connStr); err != nil {
		return fmt.Errorf("failed to store credentials in keyring: %w", err)
	}
	return nil
}

// DeleteConnectionString removes the connection string for b.
func DeleteConnectionString(b Backend) error {
	err := keyring.Delete(constants.AppName, account(b))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete credentials from keyring: %w", err)
	}
	return nil
}

// IsAvailable checks if the OS keyring can be reached. A missing entry still
// counts as available.
func IsAvailable() bool {
	_, err := keyring.Get(constants.AppName, "test-availability")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
