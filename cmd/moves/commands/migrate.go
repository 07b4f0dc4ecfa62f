package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// migrateCmd applies the schema and seeds missing risk limits
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and seed risk limits",
	Long: `Apply the embedded schema (idempotent) and insert every risk limit
type that is missing from the limit table, using risk_defaults from the
core config. Existing limits are never overwritten.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if demoMode {
		return fmt.Errorf("migrate needs a database; drop --demo")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if err := a.db.Migrate(ctx); err != nil {
		return err
	}
	PrintSuccess("Schema applied")

	seeded, err := a.risk.SeedLimits(ctx, a.core.Limits())
	if err != nil {
		return fmt.Errorf("seed risk limits: %w", err)
	}
	PrintSuccess(fmt.Sprintf("Risk limits seeded: %d new", seeded))
	return nil
}
