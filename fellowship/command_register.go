package fellowship

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
)

var ErrNotOwner = errors.New("user is not a bot owner")

// registerCommand shows the registration buttons to bot owners
func (b *Bot) registerCommand(
	_ context.Context,
	i *discordgo.InteractionCreate,
) (*discordgo.InteractionResponse, error) {
	u := getDiscordUser(i)
	if u == nil || !b.isOwner(u.ID) {
		return nil, newUserError("Only bot owners can use this command.", ErrNotOwner)
	}

	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    "Choose what to do with the application commands:",
			Flags:      discordgo.MessageFlagsEphemeral,
			Components: registerButtons(i.GuildID != ""),
		},
	}, nil
}

// registerButtonPressed performs the registration action for the clicked
// button, and replaces the buttons with the result.
func (b *Bot) registerButtonPressed(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (*discordgo.InteractionResponse, error) {
	u := getDiscordUser(i)
	if u == nil || !b.isOwner(u.ID) {
		return nil, newUserError("Only bot owners can use this command.", ErrNotOwner)
	}

	customID := i.MessageComponentData().CustomID
	var guildID string
	switch customID {
	case registerButtonGuild, registerButtonGuildDelete:
		if i.GuildID == "" {
			return nil, newUserError(
				"Guild registration only works in a server.",
				fmt.Errorf("no guild for %s", customID),
			)
		}
		guildID = i.GuildID
	case registerButtonGlobal, registerButtonGlobalDelete:
	default:
		return nil, fmt.Errorf("unknown register button: %q", customID)
	}

	scope := "globally"
	if guildID != "" {
		scope = "in this guild"
	}

	var content string
	switch customID {
	case registerButtonGuild, registerButtonGlobal:
		created, err := b.discord.registerCommands(guildID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, newUserError("Failed to register commands.", err)
		}
		content = fmt.Sprintf("Registered %d commands %s.", len(created), scope)
	default:
		if err := b.discord.deleteCommands(guildID, discordgo.WithContext(ctx)); err != nil {
			return nil, newUserError("Failed to delete commands.", err)
		}
		content = fmt.Sprintf("Deleted all commands %s.", scope)
	}

	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: []discordgo.MessageComponent{},
		},
	}, nil
}

// isOwner returns true if userID is one of the bot's owners
func (b *Bot) isOwner(userID string) bool {
	b.ownersMu.RLock()
	defer b.ownersMu.RUnlock()
	_, ok := b.owners[userID]
	return ok
}

// setOwners replaces the set of owners allowed to use /register
func (b *Bot) setOwners(ids []string) {
	owners := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			owners[id] = struct{}{}
		}
	}
	b.ownersMu.Lock()
	defer b.ownersMu.Unlock()
	b.owners = owners
}
