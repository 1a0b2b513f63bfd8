package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/soaringjerry/Footprint/internal/api"
	dbstore "github.com/soaringjerry/Footprint/internal/db"
)

var importPath string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply pending SQLite migrations.

With --import, a memory-store snapshot is copied into a database that does
not exist yet.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&importPath, "import", "", "memory-store snapshot to import on first run")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	snapshot := importPath
	if snapshot == "" {
		snapshot = cfg.SnapshotPath
	}
	if err := MigrateIfNeeded(snapshot, cfg.DBPath, cfg.MigrationsDir, logger); err != nil {
		return err
	}
	db, err := dbstore.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	applied, err := dbstore.RunMigrations(db, cfg.MigrationsDir, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) applied\n", len(applied))
	return nil
}

// MigrateIfNeeded creates the SQLite database from a memory-store snapshot
// the first time it runs. An existing database or a missing snapshot is left
// alone.
func MigrateIfNeeded(snapshotPath, sqlitePath, migrationsDir string, logger zerolog.Logger) error {
	if sqlitePath == "" {
		return errors.New("sqlite path is required")
	}
	if snapshotPath == "" {
		return nil
	}
	if _, err := os.Stat(sqlitePath); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("check sqlite file: %w", err)
	}

	snap, err := api.LoadSnapshot(snapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	logger.Info().Str("snapshot", snapshotPath).Msg("first run detected, importing snapshot")
	db, err := dbstore.Open(sqlitePath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("failed to close sqlite db")
		}
	}()
	if _, err := dbstore.RunMigrations(db, migrationsDir, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	dst, err := dbstore.NewStore(db, logger)
	if err != nil {
		return fmt.Errorf("init sqlite store: %w", err)
	}
	if err := api.CopySnapshot(context.Background(), snap, dst); err != nil {
		return fmt.Errorf("copy data: %w", err)
	}
	logger.Info().
		Int("identities", len(snap.Identities)).
		Int("profiles", len(snap.Profiles)).
		Int("readings", len(snap.Readings)).
		Msg("snapshot import completed")
	return nil
}
