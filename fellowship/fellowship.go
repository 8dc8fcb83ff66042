package fellowship

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"
)

var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

// Bot is the discord bot: it receives interactions over the gateway (and
// optionally a webhook endpoint), dispatches them to command handlers,
// and persists user profiles to the profile store.
type Bot struct {
	config     *Config
	logger     *slog.Logger
	logHandler slog.Handler

	// store persists user profiles
	store KeyValueStore

	discord       *Discord
	webhookServer *DiscordWebhookServer

	// db is the optional interaction audit log. nil when no database
	// is configured.
	db *database

	ownersMu sync.RWMutex
	owners   map[string]struct{}

	// getInteractionHandlerFunc returns the InteractionHandler for an
	// incoming interaction. Replaced in tests.
	getInteractionHandlerFunc func(
		ctx context.Context,
		i *discordgo.InteractionCreate,
	) InteractionHandler

	// eventReady is closed once Run has finished starting up
	eventReady chan struct{}
	readyOnce  sync.Once
	runMu      sync.Mutex
	startedAt  time.Time
}

// New validates the config and builds a Bot. Nothing is connected until
// [Bot.Run] is called. A config missing required values returns an error
// wrapping ErrMissingConfig for each.
func New(config *Config) (*Bot, error) {
	if config == nil {
		return nil, errors.New("nil config")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	setDefaultLevels(config)

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	b := &Bot{
		config:     config,
		eventReady: make(chan struct{}),
	}

	b.logHandler = newLogHandler(config.LogLevel)
	b.logger = slog.New(b.logHandler)
	slog.SetDefault(b.logger)

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		newLogHandler(config.Discord.DiscordGoLogLevel).WithAttrs(
			[]slog.Attr{slog.String(loggerNameKey, "discordgo")},
		),
	)
	redis.SetLogger(newRedisLogger(newLogHandler(config.Redis.LogLevel)))

	var errs []error

	store, err := OpenProfileStore(
		config.Redis.URL,
		slog.New(newLogHandler(config.Redis.LogLevel)),
	)
	if err != nil {
		errs = append(errs, err)
	} else {
		b.store = store
	}

	config.Discord.httpClient = config.HTTPClient
	disc, err := newDiscord(config.Discord)
	if err != nil {
		errs = append(errs, err)
	} else {
		disc.logger = slog.New(newLogHandler(config.Discord.LogLevel)).With(
			loggerNameKey, "discord",
		)
		b.discord = disc
	}

	b.setOwners(config.Discord.OwnerIDs)

	b.getInteractionHandlerFunc = func(
		_ context.Context,
		i *discordgo.InteractionCreate,
	) InteractionHandler {
		return GatewayHandler{
			session:     b.discord.session,
			interaction: i,
			logger: b.logger.With(
				slog.Group("interaction", interactionLogAttrs(*i)...),
			),
		}
	}

	if config.Discord.WebhookServer.Enabled && b.discord != nil {
		webhookServer, e := newWebhookServer(b, config.Discord.WebhookServer)
		if e != nil {
			errs = append(errs, e)
		}
		b.webhookServer = webhookServer
	}

	return b, errors.Join(errs...)
}

// setDefaultLevels fills in any log levels left unset
func setDefaultLevels(config *Config) {
	levels := []struct {
		lv  **slog.LevelVar
		def slog.Level
	}{
		{&config.LogLevel, DefaultLogLevel},
		{&config.DatabaseLogLevel, DefaultDatabaseLogLevel},
		{&config.Redis.LogLevel, DefaultRedisLogLevel},
		{&config.Discord.LogLevel, DefaultDiscordLogLevel},
		{&config.Discord.DiscordGoLogLevel, DefaultDiscordgoLogLevel},
		{&config.Discord.WebhookServer.LogLevel, DefaultDiscordWebhookLogLevel},
	}
	for _, l := range levels {
		if *l.lv == nil {
			*l.lv = &slog.LevelVar{}
			(*l.lv).Set(l.def)
		}
	}
}

// RegisterSlashCommands registers the bot's commands to the given guild,
// or globally when guildID is empty. This only uses the REST API, so
// the gateway doesn't need to be connected.
func (b *Bot) RegisterSlashCommands(
	guildID string,
	options ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	if err := b.ensureSession(); err != nil {
		return nil, err
	}
	return b.discord.registerCommands(guildID, options...)
}

// DeleteSlashCommands removes the bot's commands from the given guild,
// or globally when guildID is empty
func (b *Bot) DeleteSlashCommands(guildID string, options ...discordgo.RequestOption) error {
	if err := b.ensureSession(); err != nil {
		return err
	}
	return b.discord.deleteCommands(guildID, options...)
}

// Ready returns a channel which is closed once Run has finished starting up
func (b *Bot) Ready() <-chan struct{} {
	return b.eventReady
}

// Run connects to discord (and starts the webhook server, if enabled),
// and handles interactions until ctx is cancelled. Shutdown waits up to
// Config.ShutdownTimeout for in-flight interactions to finish.
func (b *Bot) Run(ctx context.Context) error {
	// prevents concurrent runs
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.startedAt = time.Now()
	logger := b.logger
	ctx = WithLogger(ctx, logger)
	logger.LogAttrs(ctx, slog.LevelInfo, "starting", slog.Any("config", b.config))

	runtimeWG := &sync.WaitGroup{}

	startCtx, startCancel := context.WithTimeout(ctx, b.config.StartupTimeout)
	defer startCancel()

	if err := b.initDB(startCtx); err != nil {
		_ = b.closeResources()
		return fmt.Errorf("error initializing database: %w", err)
	}

	if err := b.initDiscordSession(ctx, runtimeWG); err != nil {
		_ = b.closeResources()
		return err
	}

	logger.InfoContext(ctx, "connecting to discord")
	if err := b.discord.session.Open(); err != nil {
		logger.ErrorContext(ctx, "error connecting to discord!", tint.Err(err))
		_ = b.closeResources()
		return fmt.Errorf("error connecting to discord: %w", err)
	}

	if guildID := b.config.Discord.GuildID; guildID != "" {
		if _, err := b.discord.registerCommands(
			guildID,
			discordgo.WithContext(startCtx),
		); err != nil {
			_ = b.discord.session.Close()
			_ = b.closeResources()
			return fmt.Errorf("error registering guild commands: %w", err)
		}
	}

	b.resolveOwners(startCtx)
	startCancel()

	g, gctx := errgroup.WithContext(ctx)
	if b.webhookServer != nil {
		g.Go(
			func() error {
				err := b.webhookServer.Serve(gctx)
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.ErrorContext(gctx, "error serving webhook HTTP", tint.Err(err))
					return fmt.Errorf("webhook server: %w", err)
				}
				return nil
			},
		)
	}
	g.Go(
		func() error {
			// block until the runtime context is cancelled, generally
			// from an interrupt, or the webhook server failing
			<-gctx.Done()
			return b.shutdown(ctx, runtimeWG)
		},
	)

	b.readyOnce.Do(func() { close(b.eventReady) })
	logger.InfoContext(ctx, "ready", "startup_duration", time.Since(b.startedAt))

	return g.Wait()
}

// initDB opens the interaction audit log database, if configured
func (b *Bot) initDB(ctx context.Context) error {
	if b.config.Database == "" || b.db != nil {
		return nil
	}
	handler := newLogHandler(b.config.DatabaseLogLevel)
	db, err := CreateDB(
		ctx,
		b.config.DatabaseType,
		b.config.Database,
		handler,
		b.config.DatabaseSlowThreshold,
	)
	if err != nil {
		return err
	}
	b.db = newDatabase(
		db,
		slog.New(handler),
		b.config.DatabaseType != dbTypeSQLite,
	)
	return nil
}

// ensureSession creates the discord session if it doesn't already exist
func (b *Bot) ensureSession() error {
	if b.discord.session != nil {
		return nil
	}
	disc, err := b.discord.newSession()
	if err != nil {
		return fmt.Errorf("error creating discord session: %w", err)
	}
	b.discord.session = disc
	return nil
}

// initDiscordSession creates the discord session (if needed) and adds
// gateway event handlers. Interactions are each handled in their own
// goroutine, tracked by runtimeWG.
func (b *Bot) initDiscordSession(ctx context.Context, runtimeWG *sync.WaitGroup) error {
	if err := b.ensureSession(); err != nil {
		return err
	}

	for _, h := range b.discord.discordgoRemoveHandlerFuncs {
		h()
	}

	b.discord.session.SetIdentify(
		discordgo.Identify{Intents: b.config.Discord.GatewayIntents},
	)

	b.discord.discordgoRemoveHandlerFuncs = []func(){
		b.discord.session.AddHandler(b.discord.handlerConnect()),
		b.discord.session.AddHandler(b.discord.handlerDisconnect()),
		b.discord.session.AddHandler(b.discord.handlerReady()),
		b.discord.session.AddHandler(
			func(
				_ *discordgo.Session,
				i *discordgo.InteractionCreate,
			) {
				handler := b.getInteractionHandlerFunc(ctx, i)
				runtimeWG.Add(1)
				go func() {
					defer runtimeWG.Done()
					b.handleInteraction(ctx, handler)
				}()
			},
		),
	}
	return nil
}

// resolveOwners looks up the application's owners when none were
// configured. Failure is logged, leaving /register unusable.
func (b *Bot) resolveOwners(ctx context.Context) {
	if len(b.config.Discord.OwnerIDs) > 0 {
		return
	}
	owners, err := b.discord.applicationOwners()
	if err != nil {
		b.logger.ErrorContext(ctx, "error resolving application owners", tint.Err(err))
		return
	}
	b.logger.InfoContext(ctx, "resolved application owners", "owners", owners)
	b.setOwners(owners)
}

// shutdown stops the webhook server and gateway connection, waits for
// in-flight interactions, then closes the profile store and database.
// Waits at most Config.ShutdownTimeout.
func (b *Bot) shutdown(ctx context.Context, runtimeWG *sync.WaitGroup) error {
	shutdownStart := time.Now()
	shutdownDeadline := shutdownStart.Add(b.config.ShutdownTimeout)
	b.logger.WarnContext(
		ctx,
		"shutting down",
		"shutdown_timeout", b.config.ShutdownTimeout,
		"shutdown_deadline", shutdownDeadline,
	)

	closeCtx, closeCancel := context.WithDeadline(context.Background(), shutdownDeadline)
	defer closeCancel()

	var errs []error

	if b.webhookServer != nil {
		if err := b.webhookServer.Shutdown(closeCtx); err != nil {
			errs = append(errs, fmt.Errorf("error shutting down webhook server: %w", err))
		}
	}

	if err := b.discord.session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing discord session: %w", err))
	}

	waitCh := make(chan struct{})
	go func() {
		runtimeWG.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
		b.logger.InfoContext(ctx, "interactions finished", "duration", time.Since(shutdownStart))
	case <-closeCtx.Done():
		errs = append(errs, errors.New("interactions did not finish before shutdown timeout"))
	}

	if err := b.closeResources(); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err != nil {
		b.logger.ErrorContext(ctx, "shutdown finished with errors", tint.Err(err))
	} else {
		b.logger.InfoContext(ctx, "shutdown complete", "duration", time.Since(shutdownStart))
	}
	return err
}

// Close releases the profile store and database connections of a bot
// that was created but never run. Run closes them itself on shutdown.
func (b *Bot) Close() error {
	return b.closeResources()
}

// closeResources closes the profile store and database
func (b *Bot) closeResources() error {
	var errs []error
	if closer, ok := b.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing profile store: %w", err))
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// handleInteraction processes an incoming Discord interaction: it
// answers pings, ignores bots, and dispatches application commands,
// modal submissions and message components to their handlers. Handler
// errors (and panics) produce an ephemeral error reply.
func (b *Bot) handleInteraction(
	ctx context.Context,
	handler InteractionHandler,
) {
	i := handler.GetInteraction()
	logger := handler.Logger()
	if logger == nil {
		logger = b.logger
	}
	ctx = WithLogger(ctx, logger)

	if i.Type == discordgo.InteractionPing {
		_ = handler.Respond(
			ctx, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponsePong,
			},
		)
		return
	}

	discordUser := getDiscordUser(i)
	if discordUser == nil {
		logger.ErrorContext(ctx, "no user found in interaction")
		return
	}
	logger = logger.With(slog.Group("user", userLogAttrs(*discordUser)...))
	ctx = WithLogger(ctx, logger)
	logger.InfoContext(ctx, "received interaction", "name", interactionName(i))

	if discordUser.Bot {
		logger.WarnContext(ctx, "user is bot, ignoring")
		return
	}

	var handlerErr error
	defer func() {
		if rc := recover(); rc != nil {
			b.handleRecover(ctx, rc)
			handlerErr = fmt.Errorf("recovered from panic: %v", rc)
			_ = handler.Respond(ctx, errorResponse(handlerErr))
		}
		b.logInteraction(ctx, i, discordUser, handler.InteractionReceiveMethod(), handlerErr)
	}()

	var response *discordgo.InteractionResponse
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		response, handlerErr = b.commandResponse(ctx, i)
	case discordgo.InteractionModalSubmit:
		response, handlerErr = b.modalSubmitResponse(ctx, i)
	case discordgo.InteractionMessageComponent:
		response, handlerErr = b.messageComponentResponse(ctx, i)
	default:
		logger.WarnContext(ctx, "unhandled interaction type")
		return
	}

	if handlerErr != nil {
		logger.ErrorContext(ctx, "error handling interaction", tint.Err(handlerErr))
		response = errorResponse(handlerErr)
	}
	if response == nil {
		return
	}
	if err := handler.Respond(ctx, response); err != nil {
		logger.ErrorContext(ctx, "error responding to interaction", tint.Err(err))
	}
}

// commandResponse dispatches an application command to its handler
func (b *Bot) commandResponse(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (*discordgo.InteractionResponse, error) {
	switch name := i.ApplicationCommandData().Name; name {
	case DiscordSlashCommandAge:
		return b.ageCommand(ctx, i)
	case DiscordSlashCommandLegalBirthday:
		return b.legalBirthdayCommand(ctx, i)
	case DiscordSlashCommandQuietTime:
		return b.quietTimeCommand(ctx, i)
	case DiscordSlashCommandAnnouncement:
		return b.announcementCommand(ctx, i)
	case DiscordSlashCommandRegister:
		return b.registerCommand(ctx, i)
	default:
		return nil, fmt.Errorf("unknown command: %q", name)
	}
}

// modalSubmitResponse dispatches a submitted modal to its handler
func (b *Bot) modalSubmitResponse(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (*discordgo.InteractionResponse, error) {
	switch customID := i.ModalSubmitData().CustomID; customID {
	case quietTimeModalCustomID:
		return b.quietTimeModalSubmit(ctx, i)
	default:
		return nil, fmt.Errorf("unknown modal: %q", customID)
	}
}

// messageComponentResponse dispatches a button click to its handler
func (b *Bot) messageComponentResponse(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (*discordgo.InteractionResponse, error) {
	switch customID := i.MessageComponentData().CustomID; customID {
	case registerButtonGuild,
		registerButtonGuildDelete,
		registerButtonGlobal,
		registerButtonGlobalDelete:
		return b.registerButtonPressed(ctx, i)
	default:
		return nil, fmt.Errorf("unknown component: %q", customID)
	}
}

// logInteraction writes an InteractionLog record, if the audit log is
// enabled
func (b *Bot) logInteraction(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	u *discordgo.User,
	method DiscordInteractionReceiveMethod,
	handlerErr error,
) {
	if b.db == nil {
		return
	}
	logger, ok := ContextLogger(ctx)
	if !ok || logger == nil {
		logger = b.logger
	}
	interactionLog, err := newInteractionLog(i, u, method)
	if err != nil {
		logger.ErrorContext(ctx, "error creating interaction log", tint.Err(err))
		return
	}
	if handlerErr != nil {
		interactionLog.Error = handlerErr.Error()
	}
	// the interaction context may already be cancelled at this point
	if _, err = b.db.Create(context.WithoutCancel(ctx), interactionLog); err != nil {
		logger.ErrorContext(ctx, "error logging interaction", tint.Err(err))
	}
}

// handleRecover logs a recovered panic from an interaction handler
func (*Bot) handleRecover(ctx context.Context, rc any) {
	logger, ok := ContextLogger(ctx)
	if logger == nil || !ok {
		logger = slog.Default()
	}
	stackTrace := string(debug.Stack())
	if nerr, ok := rc.(error); ok {
		logger.ErrorContext(
			ctx,
			"recovered from panic",
			tint.Err(nerr),
			"stack_trace", stackTrace,
		)
		return
	}
	if nerr, ok := rc.(string); ok {
		logger.ErrorContext(
			ctx,
			"recovered from panic",
			tint.Err(errors.New(nerr)),
			"stack_trace", stackTrace,
		)
		return
	}
	logger.ErrorContext(
		ctx,
		"recovered from panic",
		"panic_arg", rc,
		"stack_trace", stackTrace,
	)
}
