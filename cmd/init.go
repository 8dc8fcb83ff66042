package cmd

import (
	"fmt"
	"github.com/arcward/fellowship/fellowship"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the interaction audit log database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Database == "" {
			return fmt.Errorf(
				"%w: database (%s_DATABASE must be a database connection "+
					"string or sqlite file path)",
				fellowship.ErrMissingConfig,
				fellowship.DefaultEnvPrefix,
			)
		}

		db, err := fellowship.CreateDB(
			ctx,
			cfg.DatabaseType,
			cfg.Database,
			nil,
			cfg.DatabaseSlowThreshold,
		)
		if err != nil {
			return fmt.Errorf("error creating database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		defer func() {
			_ = sqlDB.Close()
		}()

		var count int64
		if err = db.WithContext(ctx).Model(&fellowship.InteractionLog{}).Count(&count).Error; err != nil {
			return fmt.Errorf("error reading interaction log: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Database ready (%s), %d interactions logged.\n", cfg.DatabaseType, count)
		fmt.Fprintln(
			out,
			"Initialization complete. You can now start the bot with the 'run' subcommand.",
		)
		return nil
	},
}

//nolint:gochecknoinits // cobra setup
func init() {
	rootCmd.AddCommand(initCmd)
}
