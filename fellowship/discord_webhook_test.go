package fellowship

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

// newTestWebhookServer returns a bot with a webhook server verifying
// requests against a generated key pair
func newTestWebhookServer(t testing.TB) (*Bot, *mockDiscordSession, ed25519.PrivateKey) {
	t.Helper()
	b, session, _ := newTestBot(t)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	b.discord.publicKey = pub
	b.config.Discord.WebhookServer.Enabled = true
	b.config.Discord.WebhookServer.PublicKey = hex.EncodeToString(pub)

	server, err := newWebhookServer(b, b.config.Discord.WebhookServer)
	require.NoError(t, err)
	b.webhookServer = server
	return b, session, priv
}

func signedInteractionRequest(
	t testing.TB,
	key ed25519.PrivateKey,
	i *discordgo.InteractionCreate,
) *http.Request {
	t.Helper()
	body, err := json.Marshal(i)
	require.NoError(t, err)

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	sig := ed25519.Sign(key, append([]byte(timestamp), body...))

	req := httptest.NewRequest(http.MethodPost, apiDiscordInteractions, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(sig))
	req.Header.Set("X-Signature-Timestamp", timestamp)
	return req
}

func TestWebhook_Ping(t *testing.T) {
	b, _, key := newTestWebhookServer(t)

	req := signedInteractionRequest(
		t,
		key,
		&discordgo.InteractionCreate{
			Interaction: &discordgo.Interaction{ID: "1", Type: discordgo.InteractionPing},
		},
	)
	w := httptest.NewRecorder()
	b.webhookServer.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"type": 1}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(xRequestIDHeader))
}

func TestWebhook_InvalidSignature(t *testing.T) {
	b, _, key := newTestWebhookServer(t)

	t.Run(
		"tampered body", func(t *testing.T) {
			req := signedInteractionRequest(
				t,
				key,
				&discordgo.InteractionCreate{
					Interaction: &discordgo.Interaction{ID: "1", Type: discordgo.InteractionPing},
				},
			)
			req.Body = http.NoBody
			w := httptest.NewRecorder()
			b.webhookServer.engine.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		},
	)

	t.Run(
		"wrong key", func(t *testing.T) {
			_, otherKey, err := ed25519.GenerateKey(rand.Reader)
			require.NoError(t, err)
			req := signedInteractionRequest(
				t,
				otherKey,
				&discordgo.InteractionCreate{
					Interaction: &discordgo.Interaction{ID: "1", Type: discordgo.InteractionPing},
				},
			)
			w := httptest.NewRecorder()
			b.webhookServer.engine.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		},
	)

	t.Run(
		"missing headers", func(t *testing.T) {
			req := httptest.NewRequest(
				http.MethodPost,
				apiDiscordInteractions,
				bytes.NewReader([]byte(`{"type":1}`)),
			)
			w := httptest.NewRecorder()
			b.webhookServer.engine.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var resp httpError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "invalid signature", resp.Error)
		},
	)
}

func TestWebhook_Command(t *testing.T) {
	b, session, key := newTestWebhookServer(t)

	req := signedInteractionRequest(
		t,
		key,
		commandInteraction(
			DiscordSlashCommandAnnouncement,
			testUser(testUserID),
			stringOpt(announcementCommandMessageOption, "Game night at 7"),
		),
	)
	w := httptest.NewRecorder()
	b.webhookServer.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Type discordgo.InteractionResponseType `json:"type"`
		Data struct {
			Content string                `json:"content"`
			Flags   discordgo.MessageFlags `json:"flags"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, resp.Type)
	assert.Equal(t, "Game night at 7", resp.Data.Content)
	assert.Zero(t, resp.Data.Flags)

	// webhook responses are written to the HTTP response, not sent
	// via the session
	session.mu.Lock()
	assert.Empty(t, session.responses)
	session.mu.Unlock()
}

func TestWebhook_IgnoredInteraction(t *testing.T) {
	b, _, key := newTestWebhookServer(t)
	u := testUser(testUserID)
	u.Bot = true

	req := signedInteractionRequest(t, key, commandInteraction(DiscordSlashCommandAge, u))
	w := httptest.NewRecorder()
	b.webhookServer.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestWebhook_HealthCheck(t *testing.T) {
	b, _, _ := newTestWebhookServer(t)

	b.discord.metricConnects.Store(2)
	b.discord.metricDisconnects.Store(1)

	for _, connected := range []bool{false, true} {
		b.discord.connected.Store(connected)

		req := httptest.NewRequest(http.MethodGet, apiHealthCheck, nil)
		w := httptest.NewRecorder()
		b.webhookServer.engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(
			t,
			fmt.Sprintf(
				`{"discord_gateway_connected": %t, "discord_connects": 2, "discord_disconnects": 1}`,
				connected,
			),
			w.Body.String(),
		)
	}
}

func TestWebhook_Serve(t *testing.T) {
	b, _, key := newTestWebhookServer(t)
	b.webhookServer.config.Listen = "127.0.0.1:0"

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.webhookServer.Serve(context.Background())
	}()

	var addr string
	require.Eventually(
		t, func() bool {
			if a := b.webhookServer.Addr(); a != nil {
				addr = a.String()
				return true
			}
			return false
		}, 5*time.Second, 10*time.Millisecond,
	)

	req := signedInteractionRequest(
		t,
		key,
		&discordgo.InteractionCreate{
			Interaction: &discordgo.Interaction{ID: "1", Type: discordgo.InteractionPing},
		},
	)
	req.RequestURI = ""
	req.URL.Scheme = "http"
	req.URL.Host = addr

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.webhookServer.Shutdown(ctx))
	assert.True(t, errors.Is(<-errCh, http.ErrServerClosed))
}

func TestVerifyRequest_RestoresBody(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	req := signedInteractionRequest(
		t,
		priv,
		&discordgo.InteractionCreate{
			Interaction: &discordgo.Interaction{ID: "1", Type: discordgo.InteractionPing},
		},
	)
	require.True(t, verifyRequest(req, pub))

	var i discordgo.InteractionCreate
	require.NoError(t, json.NewDecoder(req.Body).Decode(&i))
	assert.Equal(t, discordgo.InteractionPing, i.Type)
}
