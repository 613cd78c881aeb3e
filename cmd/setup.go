package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/songcrate/internal/auth"
	"github.com/desertthunder/songcrate/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates config.toml from the template when it does not exist, then initializes the database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return err
		}
		r.writePlain("✓ Created %s. Set your Spotify client credentials and an encryption key (songcrate keygen).\n", configPath)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	if cmd.Bool("rollback") {
		return r.rollback(config)
	}

	r.logger.Info("initializing database", "path", config.Database.Path)
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer r.close()

	versions, err := shared.AppliedVersions(db)
	if err != nil {
		return err
	}

	r.writePlain("✓ Database ready: %s (schema version %d)\n", config.Database.Path, latest(versions))
	return nil
}

func (r *Runner) rollback(config *shared.Config) error {
	db := r.db
	if db == nil {
		var err error
		if db, err = shared.NewDatabase(config.Database.Path); err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
	}

	if err := shared.RollbackMigration(db); err != nil {
		return err
	}

	versions, err := shared.AppliedVersions(db)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Rolled back to schema version %d\n", latest(versions))
}

func latest(versions []int) int {
	if len(versions) == 0 {
		return 0
	}
	return versions[len(versions)-1]
}

// Keygen prints a random 32-byte key, hex encoded.
func (r *Runner) Keygen(ctx context.Context, cmd *cli.Command) error {
	key, err := auth.GenerateKey()
	if err != nil {
		return err
	}
	return r.writePlain("%s\n", key)
}
