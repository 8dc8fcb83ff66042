package fellowship

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"strings"
	"unicode/utf8"
)

const (
	// quietTimeEmbedColor is discord's 'gold' role colour
	quietTimeEmbedColor     = 0xF1C40F
	quietTimeEmbedThumbnail = "https://cdn.dribbble.com/users/113758/screenshots/4257859/media/47f55de9a2ddd003143b2dc792a12f1e.jpg?resize=400x300&vertical=center"

	discordEmbedAuthorNameMaxLength = 256
	discordEmbedTitleMaxLength      = 256
)

var (
	ErrInvalidVerse          = errors.New("invalid verse")
	ErrQuietTimeChannelUnset = errors.New("quiet time channel not configured")
)

// QuietTimeSubmission holds the values submitted in the quiet time form
type QuietTimeSubmission struct {
	StartVerse string
	EndVerse   string

	// Summary is nil when the optional field was left empty
	Summary *string
}

// Validate checks field lengths. Discord enforces the same limits
// client-side, but webhook payloads aren't guaranteed to respect them.
func (q QuietTimeSubmission) Validate() error {
	var errs []error
	for _, field := range []struct {
		name  string
		value string
	}{
		{"start verse", q.StartVerse},
		{"end verse", q.EndVerse},
	} {
		n := utf8.RuneCountInString(field.value)
		if n < quietTimeVerseMinLength || n > quietTimeVerseMaxLength {
			errs = append(
				errs,
				fmt.Errorf(
					"%w: %s must be between %d and %d characters",
					ErrInvalidVerse,
					field.name,
					quietTimeVerseMinLength,
					quietTimeVerseMaxLength,
				),
			)
		}
	}
	if q.Summary != nil {
		n := utf8.RuneCountInString(*q.Summary)
		if n < quietTimeSummaryMinLen || n > quietTimeSummaryMaxLen {
			errs = append(
				errs,
				fmt.Errorf(
					"%w: summary must be between %d and %d characters",
					ErrInvalidVerse,
					quietTimeSummaryMinLen,
					quietTimeSummaryMaxLen,
				),
			)
		}
	}
	return errors.Join(errs...)
}

// Embed builds the message embed shared to the quiet time channel
func (q QuietTimeSubmission) Embed(author *discordgo.User) *discordgo.MessageEmbed {
	name := displayName(author)
	embed := &discordgo.MessageEmbed{
		Author: &discordgo.MessageEmbedAuthor{
			Name:    truncate(name, discordEmbedAuthorNameMaxLength),
			IconURL: author.AvatarURL(""),
		},
		Title:     truncate(fmt.Sprintf("%s's Quiet Time", name), discordEmbedTitleMaxLength),
		Color:     quietTimeEmbedColor,
		Thumbnail: &discordgo.MessageEmbedThumbnail{URL: quietTimeEmbedThumbnail},
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Verses",
				Value:  fmt.Sprintf("From **%s** to **%s**", q.StartVerse, q.EndVerse),
				Inline: false,
			},
		},
	}
	if q.Summary != nil {
		embed.Fields = append(
			embed.Fields,
			&discordgo.MessageEmbedField{
				Name:   "Summary",
				Value:  *q.Summary,
				Inline: false,
			},
		)
	}
	return embed
}

// quietTimeSubmission extracts the form values from a submitted quiet
// time modal
func quietTimeSubmission(data discordgo.ModalSubmitInteractionData) QuietTimeSubmission {
	values := modalTextInputValues(data)
	submission := QuietTimeSubmission{
		StartVerse: strings.TrimSpace(values[quietTimeStartVerseID]),
		EndVerse:   strings.TrimSpace(values[quietTimeEndVerseID]),
	}
	// the summary is kept as typed, whitespace only counts as empty
	if summary := values[quietTimeSummaryID]; strings.TrimSpace(summary) != "" {
		submission.Summary = &summary
	}
	return submission
}

// modalTextInputValues returns the values of all text inputs in a
// submitted modal, keyed by custom ID
func modalTextInputValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	values := map[string]string{}
	for _, c := range data.Components {
		var row *discordgo.ActionsRow
		switch r := c.(type) {
		case *discordgo.ActionsRow:
			row = r
		case discordgo.ActionsRow:
			row = &r
		default:
			continue
		}
		for _, rc := range row.Components {
			switch ti := rc.(type) {
			case *discordgo.TextInput:
				values[ti.CustomID] = ti.Value
			case discordgo.TextInput:
				values[ti.CustomID] = ti.Value
			}
		}
	}
	return values
}

// quietTimeCommand responds with the quiet time form
func (b *Bot) quietTimeCommand(
	_ context.Context,
	_ *discordgo.InteractionCreate,
) (*discordgo.InteractionResponse, error) {
	if b.config.Discord.QuietTimeChannelID == "" {
		return nil, newUserError(
			"Quiet time sharing isn't set up on this bot yet.",
			ErrQuietTimeChannelUnset,
		)
	}
	return quietTimeModal(), nil
}

// quietTimeModalSubmit posts the submitted quiet time as an embed to the
// quiet time channel, then confirms to the user.
func (b *Bot) quietTimeModalSubmit(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (*discordgo.InteractionResponse, error) {
	u := getDiscordUser(i)
	if u == nil {
		return nil, errors.New("no user found in interaction")
	}

	channelID := b.config.Discord.QuietTimeChannelID
	if channelID == "" {
		return nil, newUserError(
			"Quiet time sharing isn't set up on this bot yet.",
			ErrQuietTimeChannelUnset,
		)
	}

	submission := quietTimeSubmission(i.ModalSubmitData())
	if err := submission.Validate(); err != nil {
		return nil, newUserError(
			fmt.Sprintf(
				"Verses must be between %d and %d characters, and the summary between %d and %d.",
				quietTimeVerseMinLength,
				quietTimeVerseMaxLength,
				quietTimeSummaryMinLen,
				quietTimeSummaryMaxLen,
			),
			err,
		)
	}

	msg, err := b.discord.session.ChannelMessageSendComplex(
		channelID,
		&discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{submission.Embed(u)},
		},
		discordgo.WithContext(ctx),
	)
	if err != nil {
		return nil, newUserError(
			"Sorry, I couldn't share your quiet time. Please try again later.",
			fmt.Errorf("error sending quiet time to channel %s: %w", channelID, err),
		)
	}
	if msg != nil {
		b.logger.InfoContext(
			ctx,
			"shared quiet time",
			"channel_id", channelID,
			"message_id", msg.ID,
			"user_id", u.ID,
		)
	}

	return channelResponse(
		fmt.Sprintf("Hey %s! Your quiet time has been shared!", u.Mention()),
	), nil
}
