package fellowship

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func intPtr(i int) *int {
	return &i
}

func TestBirthday_Validate(t *testing.T) {
	testCases := []struct {
		name     string
		birthday Birthday
		valid    bool
	}{
		{name: "valid with year", birthday: Birthday{Month: 6, Day: 15, Year: intPtr(1990)}, valid: true},
		{name: "valid without year", birthday: Birthday{Month: 12, Day: 31}, valid: true},
		{name: "month zero", birthday: Birthday{Month: 0, Day: 1}},
		{name: "month thirteen", birthday: Birthday{Month: 13, Day: 1}},
		{name: "day zero", birthday: Birthday{Month: 1, Day: 0}},
		{name: "day thirty two", birthday: Birthday{Month: 1, Day: 32}},
		{name: "april 31", birthday: Birthday{Month: 4, Day: 31}},
		{name: "leap day in leap year", birthday: Birthday{Month: 2, Day: 29, Year: intPtr(2000)}, valid: true},
		{name: "leap day in non-leap year", birthday: Birthday{Month: 2, Day: 29, Year: intPtr(1900)}},
		{name: "leap day without year", birthday: Birthday{Month: 2, Day: 29}, valid: true},
		{name: "february 30", birthday: Birthday{Month: 2, Day: 30}},
		{name: "zero year", birthday: Birthday{Month: 1, Day: 1, Year: intPtr(0)}},
		{name: "negative year", birthday: Birthday{Month: 1, Day: 1, Year: intPtr(-5)}},
	}

	for _, tc := range testCases {
		t.Run(
			tc.name, func(t *testing.T) {
				err := tc.birthday.Validate()
				if tc.valid {
					assert.NoError(t, err)
				} else {
					assert.ErrorIs(t, err, ErrInvalidBirthday)
				}
			},
		)
	}
}

func TestBirthday_String(t *testing.T) {
	assert.Equal(t, "3/7/1999", Birthday{Month: 3, Day: 7, Year: intPtr(1999)}.String())
	assert.Equal(t, "11/22", Birthday{Month: 11, Day: 22}.String())
}

func TestProfileKey(t *testing.T) {
	assert.Equal(t, "user:123456789", ProfileKey("123456789"))
	assert.NotEqual(t, ProfileKey("1"), ProfileKey("2"))
}

func TestUserProfile_JSON(t *testing.T) {
	p := NewUserProfile("Bob", "42")
	p.LegalBirthday = &Birthday{Month: 1, Day: 2, Year: intPtr(2003)}

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(
		t,
		`{
			"name": "Bob",
			"user_id": "42",
			"age": null,
			"legal_birthday": {"month": 1, "day": 2, "year": 2003},
			"spiritual_birthday": null
		}`,
		string(data),
	)
}

func TestSaveLoadProfile(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	age := uint8(30)
	p := NewUserProfile("<@42>", "42")
	p.Age = &age
	p.LegalBirthday = &Birthday{Month: 2, Day: 29, Year: intPtr(2004)}
	p.SpiritualBirthday = &Birthday{Month: 9, Day: 1}

	require.NoError(t, SaveProfile(ctx, store, p))
	assert.True(t, mr.Exists(ProfileKey("42")))

	loaded, err := LoadProfile(ctx, store, "42")
	require.NoError(t, err)
	assert.Equal(t, p, loaded)

	// a fresh write replaces the previous record
	replacement := NewUserProfile("<@42>", "42")
	replacement.LegalBirthday = &Birthday{Month: 3, Day: 3}
	require.NoError(t, SaveProfile(ctx, store, replacement))

	loaded, err = LoadProfile(ctx, store, "42")
	require.NoError(t, err)
	assert.Equal(t, replacement, loaded)
	assert.Nil(t, loaded.SpiritualBirthday)
}

func TestLoadProfile_NotFound(t *testing.T) {
	store, _ := newTestStore(t)
	p, err := LoadProfile(context.Background(), store, "nobody")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, p)
}

func TestLoadProfile_InvalidJSON(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	require.NoError(t, mr.Set(ProfileKey("7"), "{not json"))

	_, err := LoadProfile(ctx, store, "7")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestSaveProfile_NoUserID(t *testing.T) {
	store, mr := newTestStore(t)
	err := SaveProfile(context.Background(), store, NewUserProfile("x", ""))
	require.Error(t, err)
	assert.Empty(t, mr.Keys())
}
