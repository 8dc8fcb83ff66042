package fellowship

import (
	"context"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"strings"
	"testing"
)

func TestAnnouncementCommand(t *testing.T) {
	testCases := []struct {
		name      string
		options   []*discordgo.ApplicationCommandInteractionDataOption
		content   string
		ephemeral bool
	}{
		{
			name:    "message",
			options: []*discordgo.ApplicationCommandInteractionDataOption{stringOpt("message", "Potluck on Sunday!")},
			content: "Potluck on Sunday!",
		},
		{
			name:      "missing message",
			content:   "Please include a message to announce.",
			ephemeral: true,
		},
		{
			name:      "blank message",
			options:   []*discordgo.ApplicationCommandInteractionDataOption{stringOpt("message", "   ")},
			content:   "Please include a message to announce.",
			ephemeral: true,
		},
		{
			name:    "longest message",
			options: []*discordgo.ApplicationCommandInteractionDataOption{stringOpt("message", strings.Repeat("a", 2000))},
			content: strings.Repeat("a", 2000),
		},
		{
			name:      "message too long",
			options:   []*discordgo.ApplicationCommandInteractionDataOption{stringOpt("message", strings.Repeat("a", 2001))},
			content:   "Announcements can be at most 2000 characters.",
			ephemeral: true,
		},
	}

	for _, tc := range testCases {
		t.Run(
			tc.name, func(t *testing.T) {
				b, session, _ := newTestBot(t)
				handler := newStubInteractionHandler(
					t,
					commandInteraction(
						DiscordSlashCommandAnnouncement,
						testUser(testUserID),
						tc.options...,
					),
				)
				b.handleInteraction(context.Background(), handler)

				resp := handler.response(t)
				assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, resp.Type)
				assert.Equal(t, tc.content, resp.Data.Content)
				if tc.ephemeral {
					assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
				} else {
					assert.Zero(t, resp.Data.Flags)
				}
				assert.Empty(t, session.sentMessages())
			},
		)
	}
}
