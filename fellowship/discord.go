package fellowship

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
)

// Discord manages the discord session, connection state and command
// registration.
type Discord struct {
	session                     DiscordSessionHandler
	config                      *DiscordConfig
	logger                      *slog.Logger
	publicKey                   ed25519.PublicKey
	metricConnects              atomic.Int64
	metricDisconnects           atomic.Int64
	connected                   atomic.Bool
	discordgoRemoveHandlerFuncs []func()

	// applicationID is DiscordConfig.ApplicationID, or the ID looked up
	// from the bot's own application when that's empty
	applicationID string
	appMu         sync.Mutex
}

// newDiscord initializes a new Discord instance with the provided configuration
func newDiscord(config *DiscordConfig) (*Discord, error) {
	d := &Discord{
		config:                      config,
		logger:                      slog.Default().With(loggerNameKey, "discord"),
		discordgoRemoveHandlerFuncs: []func(){},
		applicationID:               config.ApplicationID,
	}

	if config.WebhookServer.PublicKey != "" {
		publicKey, err := hex.DecodeString(config.WebhookServer.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("error decoding public key: %w", err)
		}
		if len(publicKey) != ed25519.PublicKeySize {
			return nil, fmt.Errorf(
				"invalid public key length: expected %d bytes, got %d",
				ed25519.PublicKeySize,
				len(publicKey),
			)
		}
		d.publicKey = ed25519.PublicKey(publicKey)
	}

	return d, nil
}

// newSession initializes a new Discord session for the Discord struct.
// It sets up the session with the appropriate logger, token, and configuration.
func (d *Discord) newSession() (DiscordSessionHandler, error) {
	session := DiscordSession{logger: d.logger.With(loggerNameKey, "discord_session_handler")}
	disc, err := discordgo.New("Bot " + d.config.Token)
	if err != nil {
		return session, fmt.Errorf("error creating discord session: %w", err)
	}
	disc.SyncEvents = false
	disc.StateEnabled = true
	session.session = disc
	if d.config.httpClient != nil {
		session.SetHTTPClient(d.config.httpClient)
	}

	level := slog.LevelWarn
	if d.config.DiscordGoLogLevel != nil {
		level = d.config.DiscordGoLogLevel.Level()
	}
	if err = session.SetLogLevel(level); err != nil {
		return session, err
	}

	return session, nil
}

// registerCommands sends the bot's commands to the discord bulk overwrite
// endpoint. With an empty guildID, commands are registered globally.
func (d *Discord) registerCommands(
	guildID string,
	options ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	appID, err := d.appID()
	if err != nil {
		return nil, err
	}
	created, err := d.session.ApplicationCommandBulkOverwrite(
		appID,
		guildID,
		applicationCommands(),
		options...,
	)
	if err != nil {
		d.logger.Error(
			"error overwriting discord commands",
			tint.Err(err),
			"guild_id", guildID,
		)
		return created, err
	}
	d.logger.Info("registered commands", "guild_id", guildID, "count", len(created))
	return created, nil
}

// deleteCommands removes all of the bot's commands from the given guild,
// or globally if guildID is empty
func (d *Discord) deleteCommands(
	guildID string,
	options ...discordgo.RequestOption,
) error {
	appID, err := d.appID()
	if err != nil {
		return err
	}
	_, err = d.session.ApplicationCommandBulkOverwrite(
		appID,
		guildID,
		[]*discordgo.ApplicationCommand{},
		options...,
	)
	if err != nil {
		d.logger.Error(
			"error deleting discord commands",
			tint.Err(err),
			"guild_id", guildID,
		)
		return err
	}
	d.logger.Info("deleted commands", "guild_id", guildID)
	return nil
}

// appID returns the configured application ID. If none was configured,
// it's looked up (once) from the bot's own application.
func (d *Discord) appID() (string, error) {
	d.appMu.Lock()
	defer d.appMu.Unlock()
	if d.applicationID != "" {
		return d.applicationID, nil
	}
	app, err := d.application()
	if err != nil {
		return "", err
	}
	return app.ID, nil
}

// application retrieves the bot's own application, keeping its ID if
// no application ID is known yet. Must be called with appMu held.
func (d *Discord) application() (*discordgo.Application, error) {
	app, err := d.session.Application("@me")
	if err != nil {
		return nil, fmt.Errorf("error retrieving application: %w", err)
	}
	if app.ID == "" {
		return nil, errors.New("error retrieving application: no application ID")
	}
	if d.applicationID == "" {
		d.applicationID = app.ID
		d.logger.Info("resolved application ID", "application_id", app.ID)
	}
	return app, nil
}

// applicationOwners returns the IDs of the application's owner, or the
// members of the team that owns it
func (d *Discord) applicationOwners() ([]string, error) {
	d.appMu.Lock()
	app, err := d.application()
	d.appMu.Unlock()
	if err != nil {
		return nil, err
	}
	var owners []string
	if app.Team != nil {
		for _, member := range app.Team.Members {
			if member.User != nil {
				owners = append(owners, member.User.ID)
			}
		}
	}
	if app.Owner != nil && app.Owner.ID != "" {
		owners = append(owners, app.Owner.ID)
	}
	return owners, nil
}

// channelMessageSend sends the given message to the given discord channel ID
func (d *Discord) channelMessageSend(
	channelID string,
	message string,
	opts ...discordgo.RequestOption,
) error {
	_, err := d.session.ChannelMessageSend(channelID, message, opts...)
	return err
}

func (d *Discord) handlerReady() func(
	s *discordgo.Session,
	r *discordgo.Ready,
) {
	return func(_ *discordgo.Session, r *discordgo.Ready) {
		var userID, username string
		if r.User != nil {
			userID = r.User.ID
			username = r.User.Username
		}
		d.logger.Info(
			"Ready",
			"session_id", r.SessionID,
			"user_id", userID,
			"username", username,
			"guilds", len(r.Guilds),
		)
	}
}

func (d *Discord) handlerConnect() func(
	s *discordgo.Session,
	r *discordgo.Connect,
) {
	return func(s *discordgo.Session, _ *discordgo.Connect) {
		d.metricConnects.Add(1)
		d.connected.Store(true)
		var sessionID string
		var userID string
		var username string

		if s != nil && s.State != nil {
			sessionID = s.State.SessionID
			if s.State.User != nil {
				userID = s.State.User.ID
				username = s.State.User.Username
			}
		}
		d.logger.Info(
			"Connected",
			"session_id", sessionID,
			slog.Group("user", "id", userID, "username", username),
		)
		if d.config.NotificationChannelID != "" && d.config.StartupMessage != "" {
			if sendErr := d.channelMessageSend(
				d.config.NotificationChannelID,
				d.config.StartupMessage,
				discordgo.WithRetryOnRatelimit(false),
				discordgo.WithRestRetries(1),
			); sendErr != nil {
				d.logger.Error("unable to send startup message", tint.Err(sendErr))
			} else {
				d.logger.Info("sent startup notification")
			}
		}
	}
}

func (d *Discord) handlerDisconnect() func(
	s *discordgo.Session,
	r *discordgo.Disconnect,
) {
	return func(s *discordgo.Session, _ *discordgo.Disconnect) {
		d.connected.Store(false)
		d.metricDisconnects.Add(1)

		var sessionID string
		if s != nil && s.State != nil {
			sessionID = s.State.SessionID
		}
		d.logger.Warn("disconnected", "session_id", sessionID)
	}
}

// DiscordSessionHandler is the subset of `discordgo.Session` methods used
// by the bot, to enable testing/mocking.
type DiscordSessionHandler interface {
	// Open creates a websocket connection to Discord
	Open() error

	// Close closes the websocket connection to Discord
	Close() error

	// ChannelMessageSend sends a message to a specified channel.
	ChannelMessageSend(
		channelID string,
		message string,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// ChannelMessageSendComplex sends a message (ex: with embeds) to the
	// specified channel.
	ChannelMessageSendComplex(
		channelID string,
		data *discordgo.MessageSend,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// ApplicationCommandBulkOverwrite overwrites Discord application
	// commands in bulk. An empty guildID overwrites global commands.
	ApplicationCommandBulkOverwrite(
		appID string,
		guildID string,
		commands []*discordgo.ApplicationCommand,
		options ...discordgo.RequestOption,
	) ([]*discordgo.ApplicationCommand, error)

	// Application retrieves the given application ("@me" for the bot's own)
	Application(appID string) (*discordgo.Application, error)

	// AddHandler adds a discord gateway event handler
	AddHandler(handler any) func()

	// InteractionRespond sends an interaction response to Discord
	InteractionRespond(
		interaction *discordgo.Interaction,
		resp *discordgo.InteractionResponse,
		options ...discordgo.RequestOption,
	) error

	// SetHTTPClient sets the HTTP client for the session
	SetHTTPClient(client *http.Client)

	// SetIdentify sets the identify object that's sent during the initial
	// handshake with the discord gateway
	SetIdentify(discordgo.Identify)

	// SetLogLevel modifies the session's log level
	SetLogLevel(lvl slog.Level) error
}

// DiscordSession implements DiscordSessionHandler, wrapping a
// [discordgo.Session](https://pkg.go.dev/github.com/bwmarrin/discordgo#Session)
type DiscordSession struct {
	session *discordgo.Session
	logger  *slog.Logger
}

func (d DiscordSession) SetLogLevel(lvl slog.Level) error {
	switch lvl.Level() {
	case slog.LevelInfo:
		d.session.LogLevel = discordgo.LogInformational
	case slog.LevelWarn:
		d.session.LogLevel = discordgo.LogWarning
	case slog.LevelDebug:
		d.session.LogLevel = discordgo.LogDebug
	case slog.LevelError:
		d.session.LogLevel = discordgo.LogError
	default:
		return fmt.Errorf("invalid log level: %s", lvl)
	}
	return nil
}

func (d DiscordSession) SetHTTPClient(client *http.Client) {
	d.session.Client = client
}

func (d DiscordSession) SetIdentify(i discordgo.Identify) {
	d.session.Identify = i
}

func (d DiscordSession) InteractionRespond(
	interaction *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	options ...discordgo.RequestOption,
) error {
	return d.session.InteractionRespond(interaction, resp, options...)
}

func (d DiscordSession) AddHandler(handler any) func() {
	return d.session.AddHandler(handler)
}

func (d DiscordSession) Open() error {
	return d.session.Open()
}

func (d DiscordSession) Close() error {
	return d.session.Close()
}

func (d DiscordSession) ChannelMessageSend(
	channelID string,
	message string,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessageSend(channelID, message, opts...)
}

func (d DiscordSession) ChannelMessageSendComplex(
	channelID string,
	data *discordgo.MessageSend,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	msg, err := d.session.ChannelMessageSendComplex(channelID, data, opts...)
	if err != nil {
		d.logger.Error(
			"error sending message",
			tint.Err(err),
			"channel_id", channelID,
		)
	} else {
		d.logger.Info("sent message", "channel_id", channelID, "message_id", msg.ID)
	}
	return msg, err
}

func (d DiscordSession) Application(appID string) (*discordgo.Application, error) {
	return d.session.Application(appID)
}

func (d DiscordSession) ApplicationCommandBulkOverwrite(
	appID string,
	guildID string,
	commands []*discordgo.ApplicationCommand,
	options ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	created, err := d.session.ApplicationCommandBulkOverwrite(
		appID,
		guildID,
		commands,
		options...,
	)
	if err != nil {
		return created, err
	}
	for _, c := range created {
		d.logger.Debug("created command", "command", c.Name, "id", c.ID)
	}

	return created, nil
}
