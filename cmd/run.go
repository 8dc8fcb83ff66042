package cmd

import (
	"github.com/arcward/fellowship/fellowship"
	"github.com/spf13/cobra"
)

var (
	runCmd = &cobra.Command{
		Use:   "run [flags]",
		Short: "Connects the bot to discord and (optionally) starts the webhook server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bot, err := fellowship.New(cfg)
			if err != nil {
				return err
			}
			return bot.Run(cmd.Context())
		},
	}
)

//nolint:gochecknoinits // cobra setup
func init() {
	rootCmd.AddCommand(runCmd)
}
