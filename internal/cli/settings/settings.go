package settings

import (
	"fmt"
	"path/filepath"

	"github.com/julianstephens/lockstep/internal/cli"
	"github.com/julianstephens/lockstep/internal/clock"
	"github.com/julianstephens/lockstep/internal/config"
	"github.com/julianstephens/lockstep/internal/constants"
)

type SettingsCmd struct {
	List bool `help:"List current settings."`

	Notifications *bool   `help:"Enable or disable tray notifications."`
	Timezone      *string `help:"IANA timezone used to show and parse times."`
	LogLevel      *string `help:"Log level (debug, info, warn, error)." enum:"debug,info,warn,error,"`
	User          *string `name:"default-user" help:"User commands act as by default."`
}

func (c *SettingsCmd) Run(ctx *cli.Context) error {
	if err := ctx.Route(constants.ActionOpenSettings, nil); err != nil {
		return err
	}

	path := ctx.ConfigPath
	if path == "" {
		path = filepath.Join(ctx.Config.Dir, constants.DefaultConfigFile)
	}
	// ctx.Config carries command-line overrides; edit the file itself.
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if c.List {
		ctx.Println("Current Settings:")
		ctx.Printf("  Config File:           %s\n", config.ExpandPath(path))
		ctx.Printf("  User:                  %s\n", cfg.User)
		ctx.Printf("  Timezone:              %s\n", cfg.Timezone)
		ctx.Printf("  Storage Backend:       %s\n", cfg.Storage.Backend)
		if cfg.Storage.Path != "" {
			ctx.Printf("  Storage Path:          %s\n", cfg.Storage.Path)
		}
		ctx.Printf("  Notifications Enabled: %v\n", cfg.NotificationsEnabled())
		ctx.Printf("  Log Level:             %s\n", valueOr(cfg.LogLevel, "info"))
		return nil
	}

	updated := false
	if c.Notifications != nil {
		cfg.Notifications.Enabled = c.Notifications
		updated = true
	}
	if c.Timezone != nil {
		if _, err := clock.LoadLocation(*c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", *c.Timezone, err)
		}
		cfg.Timezone = *c.Timezone
		updated = true
	}
	if c.LogLevel != nil {
		cfg.LogLevel = *c.LogLevel
		updated = true
	}
	if c.User != nil {
		cfg.User = *c.User
		updated = true
	}

	if !updated {
		ctx.Println("No changes specified. Use --list to view settings or flags to update them.")
		return nil
	}

	if err := ctx.Route(constants.ActionChangeSettings, nil); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	ctx.Println("Settings updated successfully.")
	return nil
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
