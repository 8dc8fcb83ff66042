package fellowship

import (
	"context"
	"errors"
	"github.com/bwmarrin/discordgo"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrMissingAnnouncement = errors.New("announcement message is required")
	ErrAnnouncementTooLong = errors.New("announcement message is too long")
)

// announcementCommand posts the given message to the invoking channel.
// Without a message (or with one too long to post), nothing is posted and
// the user gets an ephemeral error.
func (*Bot) announcementCommand(
	_ context.Context,
	i *discordgo.InteractionCreate,
) (*discordgo.InteractionResponse, error) {
	message, _ := stringOption(discordInteractionOptions(i), announcementCommandMessageOption)
	if strings.TrimSpace(message) == "" {
		return nil, newUserError(
			"Please include a message to announce.",
			ErrMissingAnnouncement,
		)
	}
	// discord enforces the option's max length, except on webhook payloads
	if utf8.RuneCountInString(message) > discordMessageMaxLength {
		return nil, newUserError(
			fmt.Sprintf(
				"Announcements can be at most %d characters.",
				discordMessageMaxLength,
			),
			ErrAnnouncementTooLong,
		)
	}
	return channelResponse(message), nil
}
