package commands

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
)

var (
	migrateDown    bool
	migrateVersion uint
	migrationsDir  string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back the relational schema",
	Long: `migrate runs golang-migrate against the configured Postgres DSN,
applying the SQL files under --dir in order. By default it migrates up
to the latest version; --down rolls back one step, --version jumps to
a specific migration version.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll back one migration instead of migrating up")
	migrateCmd.Flags().UintVar(&migrateVersion, "version", 0, "migrate to this specific version instead of the latest")
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", "migrations", "directory containing the numbered .sql migration files")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	m, err := migrate.New("file://"+migrationsDir, container.Config.Store.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	switch {
	case migrateVersion > 0:
		err = m.Migrate(migrateVersion)
	case migrateDown:
		err = m.Steps(-1)
	default:
		err = m.Up()
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: %w", err)
	}

	container.Logger.Info("migration complete")
	return nil
}
