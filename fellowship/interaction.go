package fellowship

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"log/slog"
)

// DiscordInteractionReceiveMethod indicates how an interaction was
// received: over the gateway websocket, or via the webhook endpoint
type DiscordInteractionReceiveMethod string

const (
	discordInteractionReceiveMethodGateway DiscordInteractionReceiveMethod = "gateway"
	discordInteractionReceiveMethodWebhook DiscordInteractionReceiveMethod = "webhook"
)

// InteractionHandler is how command handlers reply to an interaction,
// regardless of how it was received.
type InteractionHandler interface {
	// Respond sends the initial response to the interaction.
	Respond(ctx context.Context, response *discordgo.InteractionResponse) error

	// GetInteraction returns the original InteractionCreate event.
	GetInteraction() *discordgo.InteractionCreate

	// InteractionReceiveMethod returns the method used to receive the
	// interaction (webhook or gateway).
	InteractionReceiveMethod() DiscordInteractionReceiveMethod

	// Logger returns the logger associated with this handler.
	Logger() *slog.Logger
}

// GatewayHandler implements [InteractionHandler] when receiving interactions
// via the discord websocket gateway.
type GatewayHandler struct {
	session     DiscordSessionHandler
	interaction *discordgo.InteractionCreate
	logger      *slog.Logger
}

func (GatewayHandler) InteractionReceiveMethod() DiscordInteractionReceiveMethod {
	return discordInteractionReceiveMethodGateway
}

func (w GatewayHandler) Respond(
	ctx context.Context,
	response *discordgo.InteractionResponse,
) error {
	err := w.session.InteractionRespond(
		w.interaction.Interaction,
		response,
		discordgo.WithContext(ctx),
	)
	if err != nil {
		w.logger.ErrorContext(ctx, "error responding to interaction", tint.Err(err))
	} else {
		w.logger.InfoContext(ctx, "responded to interaction", "response_type", response.Type)
	}
	return err
}

func (w GatewayHandler) GetInteraction() *discordgo.InteractionCreate {
	return w.interaction
}

func (w GatewayHandler) Logger() *slog.Logger {
	return w.logger
}

// InteractionLog is an audit record of each interaction received, written
// when a database is configured.
//
//nolint:lll // struct tags can't be split
type InteractionLog struct {
	ModelUintID
	Method        DiscordInteractionReceiveMethod `json:"method"` // webhook or gateway
	InteractionID string                          `json:"interaction_id" gorm:"not null;index"`
	Type          string                          `json:"type"`
	Name          string                          `json:"name"`
	UserID        string                          `json:"user_id" gorm:"not null;index"`
	Username      string                          `json:"username"`
	GuildID       string                          `json:"guild_id"`
	ChannelID     string                          `json:"channel_id"`
	Payload       string                          `json:"payload"`
	Error         string                          `json:"error"`
	CreatedAt     int64                           `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
}

func newInteractionLog(
	i *discordgo.InteractionCreate,
	u *discordgo.User,
	method DiscordInteractionReceiveMethod,
) (*InteractionLog, error) {
	p, err := json.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("error marshaling interaction: %w", err)
	}

	interactionLog := &InteractionLog{
		InteractionID: i.ID,
		Type:          i.Type.String(),
		Name:          interactionName(i),
		UserID:        u.ID,
		Username:      u.String(),
		GuildID:       i.GuildID,
		ChannelID:     i.ChannelID,
		Payload:       string(p),
		Method:        method,
	}
	return interactionLog, nil
}

// interactionName returns the command name, modal ID or component ID
// the interaction refers to
func interactionName(i *discordgo.InteractionCreate) string {
	switch data := i.Data.(type) {
	case discordgo.ApplicationCommandInteractionData:
		return data.Name
	case discordgo.ModalSubmitInteractionData:
		return data.CustomID
	case discordgo.MessageComponentInteractionData:
		return data.CustomID
	default:
		return ""
	}
}

func (l InteractionLog) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("interaction_id", l.InteractionID),
		slog.String("method", string(l.Method)),
		slog.String("type", l.Type),
		slog.String("name", l.Name),
		slog.String("user_id", l.UserID),
	)
}

// userError is an error with a message that's safe to show the user who
// triggered it. The wrapped error is only logged.
type userError struct {
	message string
	err     error
}

func newUserError(message string, err error) *userError {
	return &userError{message: message, err: err}
}

func (e *userError) Error() string {
	if e.err == nil {
		return e.message
	}
	return fmt.Sprintf("%s: %s", e.message, e.err.Error())
}

func (e *userError) Unwrap() error {
	return e.err
}

// errorResponse returns an ephemeral reply describing err. Only the
// message of a [userError] is shown, anything else gets
// DefaultDiscordErrorMessage.
func errorResponse(err error) *discordgo.InteractionResponse {
	message := DefaultDiscordErrorMessage
	var ue *userError
	if errors.As(err, &ue) && ue.message != "" {
		message = ue.message
	}
	return ephemeralResponse(message)
}

// ephemeralResponse returns a message reply only visible to the invoking user
func ephemeralResponse(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
}

// channelResponse returns a message reply visible to the whole channel
func channelResponse(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	}
}
