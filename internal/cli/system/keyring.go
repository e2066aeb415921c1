package system

import (
	"errors"
	"fmt"
	"strings"

	"github.com/julianstephens/lockstep/internal/cli"
	"github.com/julianstephens/lockstep/internal/config"
	"github.com/julianstephens/lockstep/internal/constants"
	"github.com/julianstephens/lockstep/internal/keyring"
	"github.com/julianstephens/lockstep/internal/kv/postgres"
	"github.com/julianstephens/lockstep/internal/kv/redis"
)

// KeyringSetCmd stores a storage connection string in the OS keyring
type KeyringSetCmd struct {
	Backend          string `arg:"" enum:"postgres,postgresql,redis" help:"Backend the connection string belongs to (postgres or redis)."`
	ConnectionString string `arg:"" help:"Connection string to store in keyring."`
}

func (cmd *KeyringSetCmd) Run(ctx *cli.Context) error {
	if err := routeKeyring(ctx); err != nil {
		return err
	}

	backend, err := keyring.ParseBackend(cmd.Backend)
	if err != nil {
		return err
	}

	switch backend {
	case keyring.BackendPostgres:
		if !postgres.IsConnString(cmd.ConnectionString) && !strings.Contains(cmd.ConnectionString, "host=") {
			return errors.New("connection string must be a valid PostgreSQL connection string")
		}
		if _, err := postgres.ValidateConnString(cmd.ConnectionString); err != nil {
			if !errors.Is(err, postgres.ErrEmbeddedCredentials) {
				return fmt.Errorf("invalid connection string: %w", err)
			}
			// The keyring is encrypted, so embedded credentials are allowed here.
			ctx.Println("⚠️  Warning: Connection string contains embedded credentials.")
			ctx.Println("   It will be stored as-is in the encrypted OS keyring.")
		}
	case keyring.BackendRedis:
		if !redis.IsURL(cmd.ConnectionString) {
			return errors.New("connection string must be a redis:// or rediss:// URL")
		}
	}

	if err := keyring.SetConnectionString(backend, cmd.ConnectionString); err != nil {
		return fmt.Errorf("failed to store connection string in keyring: %w", err)
	}

	ctx.Printf("✓ %s connection string stored successfully in OS keyring\n", backend)
	ctx.Printf("  It is used when neither %s nor the config file sets one\n", config.EnvConnection)
	return nil
}

// KeyringGetCmd retrieves a connection string from the OS keyring
type KeyringGetCmd struct {
	Backend string `arg:"" enum:"postgres,postgresql,redis" help:"Backend to look up."`
}

func (cmd *KeyringGetCmd) Run(ctx *cli.Context) error {
	if err := routeKeyring(ctx); err != nil {
		return err
	}

	backend, err := keyring.ParseBackend(cmd.Backend)
	if err != nil {
		return err
	}
	connStr, err := keyring.GetConnectionString(backend)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("no %s connection string found in keyring. Use '%s keyring set' to store one", backend, constants.AppName)
		}
		return fmt.Errorf("failed to retrieve connection string from keyring: %w", err)
	}

	ctx.Println("Connection string retrieved from keyring:")
	ctx.Println(maskPassword(connStr))
	return nil
}

// KeyringDeleteCmd removes a connection string from the OS keyring
type KeyringDeleteCmd struct {
	Backend string `arg:"" enum:"postgres,postgresql,redis" help:"Backend to forget."`
}

func (cmd *KeyringDeleteCmd) Run(ctx *cli.Context) error {
	if err := routeKeyring(ctx); err != nil {
		return err
	}

	backend, err := keyring.ParseBackend(cmd.Backend)
	if err != nil {
		return err
	}
	if err := keyring.DeleteConnectionString(backend); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("no %s connection string found in keyring", backend)
		}
		return fmt.Errorf("failed to delete connection string from keyring: %w", err)
	}

	ctx.Printf("✓ %s connection string deleted from OS keyring\n", backend)
	return nil
}

// KeyringStatusCmd checks the availability of the OS keyring
type KeyringStatusCmd struct{}

func (cmd *KeyringStatusCmd) Run(ctx *cli.Context) error {
	if !keyring.IsAvailable() {
		ctx.Println("❌ OS keyring is not available on this system")
		return errors.New("keyring unavailable")
	}
	ctx.Println("✓ OS keyring is available")

	for _, b := range []keyring.Backend{keyring.BackendPostgres, keyring.BackendRedis} {
		_, err := keyring.GetConnectionString(b)
		switch {
		case err == nil:
			ctx.Printf("✓ %s connection string is stored in keyring\n", b)
		case errors.Is(err, keyring.ErrNotFound):
			ctx.Printf("ℹ No %s connection string stored in keyring\n", b)
		default:
			ctx.Printf("⚠ %s: %v\n", b, err)
		}
	}
	return nil
}

// routeKeyring checks MANAGE_KEYRING when storage could be opened. Keyring
// commands still work without storage so a missing secret can be fixed.
func routeKeyring(ctx *cli.Context) error {
	if ctx.Service == nil || ctx.Store == nil {
		return nil
	}
	if err := ctx.Store.Load(); err != nil {
		return nil
	}
	return ctx.Route(constants.ActionManageKeyring, nil)
}

// maskPassword masks passwords in connection strings for display
func maskPassword(connStr string) string {
	if idx := strings.Index(connStr, "://"); idx != -1 {
		remaining := connStr[idx+3:]
		// The last @ separates user info from host
		if atIdx := strings.LastIndex(remaining, "@"); atIdx != -1 {
			userInfo := remaining[:atIdx]
			if colonIdx := strings.Index(userInfo, ":"); colonIdx != -1 {
				return connStr[:idx+3] + userInfo[:colonIdx] + ":****" + connStr[idx+3+atIdx:]
			}
		}
	}

	if strings.Contains(connStr, "password=") {
		parts := strings.Fields(connStr)
		masked := make([]string, 0, len(parts))
		for _, part := range parts {
			if strings.HasPrefix(part, "password=") {
				masked = append(masked, "password=****")
			} else {
				masked = append(masked, part)
			}
		}
		return strings.Join(masked, " ")
	}

	return connStr
}
