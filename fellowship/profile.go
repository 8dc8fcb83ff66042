package fellowship

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const profileKeyPrefix = "user:"

var ErrInvalidBirthday = errors.New("invalid birthday")

// UserProfile is the record persisted for each user, keyed by
// [ProfileKey]. DisplayName is captured at write time and isn't kept in
// sync afterward.
type UserProfile struct {
	DisplayName       string    `json:"name"`
	UserID            string    `json:"user_id"`
	Age               *uint8    `json:"age"`
	LegalBirthday     *Birthday `json:"legal_birthday"`
	SpiritualBirthday *Birthday `json:"spiritual_birthday"`
}

// NewUserProfile returns an empty profile for the given user
func NewUserProfile(displayName string, userID string) *UserProfile {
	return &UserProfile{DisplayName: displayName, UserID: userID}
}

// Birthday is a month/day pair with an optional year.
type Birthday struct {
	Month int  `json:"month"`
	Day   int  `json:"day"`
	Year  *int `json:"year"`
}

// Validate checks that the birthday is a real calendar date. Without a
// year, February 29th is accepted.
func (b Birthday) Validate() error {
	if b.Month < 1 || b.Month > 12 {
		return fmt.Errorf("%w: month must be between 1 and 12", ErrInvalidBirthday)
	}
	if b.Year != nil && *b.Year < 1 {
		return fmt.Errorf("%w: year must be positive", ErrInvalidBirthday)
	}

	// 2000 is a leap year, so Feb 29 is allowed when the year is unknown
	year := 2000
	if b.Year != nil {
		year = *b.Year
	}
	if maxDay := daysIn(time.Month(b.Month), year); b.Day < 1 || b.Day > maxDay {
		return fmt.Errorf(
			"%w: day must be between 1 and %d for %s",
			ErrInvalidBirthday,
			maxDay,
			time.Month(b.Month),
		)
	}
	return nil
}

// String formats the birthday as M/D/Y, or M/D when the year is unknown
func (b Birthday) String() string {
	if b.Year == nil {
		return fmt.Sprintf("%d/%d", b.Month, b.Day)
	}
	return fmt.Sprintf("%d/%d/%d", b.Month, b.Day, *b.Year)
}

// daysIn returns the number of days in the given month/year
func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ProfileKey returns the store key for the given user ID
func ProfileKey(userID string) string {
	return profileKeyPrefix + userID
}

// SaveProfile serializes the profile and writes it to the store under
// the user's key, with a single Put.
func SaveProfile(ctx context.Context, store KeyValueStore, p *UserProfile) error {
	if p.UserID == "" {
		return errors.New("profile has no user ID")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("error marshaling profile: %w", err)
	}
	return store.Put(ctx, ProfileKey(p.UserID), string(data))
}

// LoadProfile reads the profile for the given user ID. Returns an error
// wrapping ErrNotFound if the user has no profile.
func LoadProfile(ctx context.Context, store KeyValueStore, userID string) (*UserProfile, error) {
	data, err := store.Get(ctx, ProfileKey(userID))
	if err != nil {
		return nil, err
	}
	var p UserProfile
	if err = json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("error unmarshaling profile for user %s: %w", userID, err)
	}
	return &p, nil
}
