package fellowship

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"time"
)

// ageCommand replies with the account creation date of the selected user,
// or of the invoking user if none was selected. Creation dates are
// derived from the user's snowflake ID.
func (b *Bot) ageCommand(
	_ context.Context,
	i *discordgo.InteractionCreate,
) (*discordgo.InteractionResponse, error) {
	target := getDiscordUser(i)
	if u, ok := resolvedUserOption(i, discordInteractionOptions(i), ageCommandUserOption); ok {
		target = u
	}
	if target == nil {
		return nil, errors.New("no user found in interaction")
	}
	return accountAgeResponse(target)
}

func accountAgeResponse(u *discordgo.User) (*discordgo.InteractionResponse, error) {
	created, err := discordgo.SnowflakeTimestamp(u.ID)
	if err != nil {
		return nil, fmt.Errorf("error parsing user ID %q: %w", u.ID, err)
	}
	name := displayName(u)
	if name == "" {
		name = u.Mention()
	}
	return ephemeralResponse(
		fmt.Sprintf(
			"%s's account was created at %s",
			name,
			created.UTC().Format(time.RFC3339),
		),
	), nil
}
