package cmd

import (
	"fmt"
	"github.com/arcward/fellowship/fellowship"
	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
)

var (
	registerGuildID string
	registerDelete  bool
)

var registerCmd = &cobra.Command{
	Use:   "register [flags]",
	Short: "Registers (or deletes) the bot's slash commands",
	Long: "Registers the bot's slash commands globally, or to a single guild " +
		"with --guild. With --delete, the commands are removed instead.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		bot, err := fellowship.New(cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = bot.Close()
		}()

		scope := "globally"
		if registerGuildID != "" {
			scope = fmt.Sprintf("in guild %s", registerGuildID)
		}
		out := cmd.OutOrStdout()
		ctxOpt := discordgo.WithContext(cmd.Context())

		if registerDelete {
			if err = bot.DeleteSlashCommands(registerGuildID, ctxOpt); err != nil {
				return fmt.Errorf("error deleting commands: %w", err)
			}
			fmt.Fprintf(out, "Deleted all commands %s\n", scope)
			return nil
		}

		commands, err := bot.RegisterSlashCommands(registerGuildID, ctxOpt)
		if err != nil {
			return fmt.Errorf("error registering commands: %w", err)
		}
		for _, c := range commands {
			fmt.Fprintf(out, "Registered /%s (%s)\n", c.Name, c.ID)
		}
		fmt.Fprintf(out, "Registered %d commands %s\n", len(commands), scope)
		return nil
	},
}

//nolint:gochecknoinits // cobra setup
func init() {
	registerCmd.Flags().StringVar(
		&registerGuildID,
		"guild",
		"",
		"Guild ID to register commands in (default: global)",
	)
	registerCmd.Flags().BoolVar(
		&registerDelete,
		"delete",
		false,
		"Delete the commands instead of registering them",
	)
	rootCmd.AddCommand(registerCmd)
}
