package fellowship

import (
	"context"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type testContextKey struct{}

func TestGatewayHandler_RespondUsesContext(t *testing.T) {
	session := newMockDiscordSession()
	handler := GatewayHandler{
		session:     session,
		interaction: commandInteraction(DiscordSlashCommandAge, testUser(testUserID)),
		logger:      slog.Default(),
	}

	ctx := context.WithValue(context.Background(), testContextKey{}, "respond")
	require.NoError(t, handler.Respond(ctx, ephemeralResponse("hello")))

	session.mu.Lock()
	defer session.mu.Unlock()
	require.Len(t, session.respondOptions, 1)

	// applying the options the way discordgo does should carry ctx
	// through to the outgoing request
	cfg := &discordgo.RequestConfig{
		Request: httptest.NewRequest(http.MethodPost, "/interactions", nil),
	}
	for _, opt := range session.respondOptions[0] {
		opt(cfg)
	}
	assert.Equal(t, "respond", cfg.Request.Context().Value(testContextKey{}))
}

func TestErrorResponse(t *testing.T) {
	resp := errorResponse(newUserError("Try again later.", ErrNotFound))
	assert.Equal(t, "Try again later.", resp.Data.Content)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)

	resp = errorResponse(ErrConnectionUnavailable)
	assert.Equal(t, DefaultDiscordErrorMessage, resp.Data.Content)
}
