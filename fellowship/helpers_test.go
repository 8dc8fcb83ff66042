package fellowship

import (
	"context"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"log/slog"
	"testing"
)

func TestTruncate(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		limit    int
		expected string
	}{
		{name: "shorter than limit", input: "Short string", limit: 20, expected: "Short string"},
		{name: "exactly at limit", input: "Exactly twenty chars", limit: 20, expected: "Exactly twenty chars"},
		{name: "longer than limit", input: "This string is too long", limit: 4, expected: "This"},
		{name: "multibyte", input: "요한복음", limit: 2, expected: "요한"},
		{name: "empty", input: "", limit: 5, expected: ""},
	}

	for _, tc := range testCases {
		t.Run(
			tc.name, func(t *testing.T) {
				assert.Equal(t, tc.expected, truncate(tc.input, tc.limit))
			},
		)
	}
}

func TestIntOption(t *testing.T) {
	options := map[string]*discordgo.ApplicationCommandInteractionDataOption{
		"float":  intOpt("float", 12),
		"int64":  {Name: "int64", Type: discordgo.ApplicationCommandOptionInteger, Value: int64(7)},
		"string": stringOpt("string", "12"),
		"bad":    {Name: "bad", Type: discordgo.ApplicationCommandOptionInteger, Value: "12"},
	}

	v, ok := intOption(options, "float")
	assert.True(t, ok)
	assert.Equal(t, 12, v)

	v, ok = intOption(options, "int64")
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = intOption(options, "string")
	assert.False(t, ok)

	_, ok = intOption(options, "bad")
	assert.False(t, ok)

	_, ok = intOption(options, "missing")
	assert.False(t, ok)
}

func TestStringOption(t *testing.T) {
	options := map[string]*discordgo.ApplicationCommandInteractionDataOption{
		"message": stringOpt("message", "hello"),
		"number":  intOpt("number", 1),
	}

	v, ok := stringOption(options, "message")
	assert.True(t, ok)
	assert.Equal(t, "hello", v)

	_, ok = stringOption(options, "number")
	assert.False(t, ok)
}

func TestGetDiscordUser(t *testing.T) {
	u := testUser(testUserID)

	guildInteraction := commandInteraction(DiscordSlashCommandAge, u)
	assert.Equal(t, u, getDiscordUser(guildInteraction))

	dmInteraction := componentInteraction(registerButtonGlobal, u, "")
	assert.Equal(t, u, getDiscordUser(dmInteraction))

	dmInteraction.User = nil
	assert.Nil(t, getDiscordUser(dmInteraction))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Test User", displayName(testUser(testUserID)))
	assert.Equal(t, "nelly", displayName(&discordgo.User{Username: "nelly"}))
	assert.Equal(t, "", displayName(nil))
}

func TestGenerateRandomHexString(t *testing.T) {
	a, err := generateRandomHexString(32)
	require.NoError(t, err)
	assert.Len(t, a, 32)

	b, err := generateRandomHexString(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	odd, err := generateRandomHexString(7)
	require.NoError(t, err)
	assert.Len(t, odd, 8)
}

func TestContextLogger(t *testing.T) {
	_, ok := ContextLogger(context.Background())
	assert.False(t, ok)

	logger := slog.Default().With("foo", "bar")
	ctx := WithLogger(context.Background(), logger)
	got, ok := ContextLogger(ctx)
	require.True(t, ok)
	assert.Same(t, logger, got)
}

func TestStructToSlogValue(t *testing.T) {
	type inner struct {
		Secret string `json:"secret" log:"[redacted]"`
		Name   string `json:"name"`
	}
	type outer struct {
		Inner *inner `json:"inner"`
		Empty string `json:"empty"`
		Count int    `json:"count"`
	}

	v := structToSlogValue(outer{Inner: &inner{Secret: "hunter2", Name: "x"}, Count: 3})
	require.Equal(t, slog.KindGroup, v.Kind())

	attrs := map[string]slog.Value{}
	for _, a := range v.Group() {
		attrs[a.Key] = a.Value
	}
	assert.NotContains(t, attrs, "empty")
	assert.Equal(t, int64(3), attrs["count"].Int64())

	innerAttrs := map[string]string{}
	for _, a := range attrs["inner"].Group() {
		innerAttrs[a.Key] = a.Value.String()
	}
	assert.Equal(t, map[string]string{"secret": "[redacted]", "name": "x"}, innerAttrs)
}
