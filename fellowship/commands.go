package fellowship

import (
	"github.com/bwmarrin/discordgo"
)

const (
	DiscordSlashCommandAge           = "age"
	DiscordSlashCommandLegalBirthday = "legal_birthday"
	DiscordSlashCommandQuietTime     = "quiet_time"
	DiscordSlashCommandAnnouncement  = "announcement"
	DiscordSlashCommandRegister      = "register"

	ageCommandUserOption             = "user"
	birthdayCommandMonthOption       = "month"
	birthdayCommandDayOption         = "day"
	birthdayCommandYearOption        = "year"
	announcementCommandMessageOption = "message"

	// discordMessageMaxLength is the most characters a message can hold
	discordMessageMaxLength = 2000

	quietTimeModalCustomID  = "quiet_time_modal"
	quietTimeStartVerseID   = "start_verse"
	quietTimeEndVerseID     = "end_verse"
	quietTimeSummaryID      = "summary"
	quietTimeVerseMinLength = 5
	quietTimeVerseMaxLength = 15
	quietTimeSummaryMinLen  = 5
	quietTimeSummaryMaxLen  = 1024

	// registerButtonPrefix prefixes the custom IDs of the /register buttons
	registerButtonPrefix       = "register:"
	registerButtonGuild        = registerButtonPrefix + "guild"
	registerButtonGuildDelete  = registerButtonPrefix + "guild_delete"
	registerButtonGlobal       = registerButtonPrefix + "global"
	registerButtonGlobalDelete = registerButtonPrefix + "global_delete"
)

// applicationCommands returns every command the bot registers
func applicationCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		appCommandAge(),
		appCommandLegalBirthday(),
		appCommandQuietTime(),
		appCommandAnnouncement(),
		appCommandRegister(),
	}
}

func appCommandAge() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        DiscordSlashCommandAge,
		Type:        discordgo.ChatApplicationCommand,
		Description: "Displays your or another user's account creation date",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        ageCommandUserOption,
				Description: "Selected user",
				Required:    false,
			},
		},
	}
}

func appCommandLegalBirthday() *discordgo.ApplicationCommand {
	minMonth := float64(1)
	minDay := float64(1)
	minYear := float64(1)
	return &discordgo.ApplicationCommand{
		Name:        DiscordSlashCommandLegalBirthday,
		Type:        discordgo.ChatApplicationCommand,
		Description: "Save your birthday",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        birthdayCommandMonthOption,
				Description: "Month",
				Required:    true,
				MinValue:    &minMonth,
				MaxValue:    12,
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        birthdayCommandDayOption,
				Description: "Day",
				Required:    true,
				MinValue:    &minDay,
				MaxValue:    31,
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        birthdayCommandYearOption,
				Description: "Year",
				Required:    true,
				MinValue:    &minYear,
				MaxValue:    9999,
			},
		},
	}
}

func appCommandQuietTime() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        DiscordSlashCommandQuietTime,
		Type:        discordgo.ChatApplicationCommand,
		Description: "Share your quiet time in the quiet time channel",
	}
}

func appCommandAnnouncement() *discordgo.ApplicationCommand {
	var permissions int64 = discordgo.PermissionManageMessages
	return &discordgo.ApplicationCommand{
		Name:                     DiscordSlashCommandAnnouncement,
		Type:                     discordgo.ChatApplicationCommand,
		Description:              "Make an announcement",
		DefaultMemberPermissions: &permissions,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        announcementCommandMessageOption,
				Description: "Make an announcement",
				Required:    false,
				MaxLength:   discordMessageMaxLength,
			},
		},
	}
}

func appCommandRegister() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        DiscordSlashCommandRegister,
		Type:        discordgo.ChatApplicationCommand,
		Description: "Register the application commands",
	}
}

// quietTimeModal is the form shown in response to /quiet_time
func quietTimeModal() *discordgo.InteractionResponse {
	verseInput := func(customID, label string) discordgo.ActionsRow {
		return discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.TextInput{
					CustomID:    customID,
					Label:       label,
					Style:       discordgo.TextInputShort,
					Placeholder: "Enter the Book Chapter:Verse here",
					Required:    true,
					MinLength:   quietTimeVerseMinLength,
					MaxLength:   quietTimeVerseMaxLength,
				},
			},
		}
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: quietTimeModalCustomID,
			Title:    "Quiet Time Form",
			Components: []discordgo.MessageComponent{
				verseInput(quietTimeStartVerseID, "Starting Verse"),
				verseInput(quietTimeEndVerseID, "Ending Verse"),
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    quietTimeSummaryID,
							Label:       "Summary",
							Style:       discordgo.TextInputParagraph,
							Placeholder: "Optional: Enter a short summary",
							Required:    false,
							MinLength:   quietTimeSummaryMinLen,
							MaxLength:   quietTimeSummaryMaxLen,
						},
					},
				},
			},
		},
	}
}

// registerButtons is the action row shown in response to /register
func registerButtons(inGuild bool) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Register in guild",
					Style:    discordgo.PrimaryButton,
					CustomID: registerButtonGuild,
					Disabled: !inGuild,
				},
				discordgo.Button{
					Label:    "Delete in guild",
					Style:    discordgo.DangerButton,
					CustomID: registerButtonGuildDelete,
					Disabled: !inGuild,
				},
				discordgo.Button{
					Label:    "Register globally",
					Style:    discordgo.PrimaryButton,
					CustomID: registerButtonGlobal,
				},
				discordgo.Button{
					Label:    "Delete globally",
					Style:    discordgo.DangerButton,
					CustomID: registerButtonGlobalDelete,
				},
			},
		},
	}
}
