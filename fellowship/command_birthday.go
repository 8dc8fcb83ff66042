package fellowship

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// legalBirthdayCommand validates the given date, writes a fresh profile
// with it as the user's legal birthday, and confirms the saved date.
// Any previously saved profile is replaced.
func (b *Bot) legalBirthdayCommand(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (*discordgo.InteractionResponse, error) {
	u := getDiscordUser(i)
	if u == nil {
		return nil, errors.New("no user found in interaction")
	}

	options := discordInteractionOptions(i)
	month, ok := intOption(options, birthdayCommandMonthOption)
	if !ok {
		return nil, newUserError("Please provide a month.", ErrInvalidBirthday)
	}
	day, ok := intOption(options, birthdayCommandDayOption)
	if !ok {
		return nil, newUserError("Please provide a day.", ErrInvalidBirthday)
	}
	birthday := Birthday{Month: month, Day: day}
	if year, hasYear := intOption(options, birthdayCommandYearOption); hasYear {
		birthday.Year = &year
	}

	if err := birthday.Validate(); err != nil {
		return nil, newUserError(
			fmt.Sprintf("%s isn't a valid date.", birthday),
			err,
		)
	}

	profile := NewUserProfile(displayName(u), u.ID)
	profile.LegalBirthday = &birthday

	if err := SaveProfile(ctx, b.store, profile); err != nil {
		b.logger.ErrorContext(
			ctx,
			"error saving profile",
			tint.Err(err),
			"user_id", u.ID,
		)
		return nil, newUserError(
			"Sorry, I couldn't save your birthday right now. Please try again later.",
			err,
		)
	}

	return ephemeralResponse(
		fmt.Sprintf(
			"Hey %s! Your birthday is saved as %s!",
			u.Mention(),
			birthday,
		),
	), nil
}
