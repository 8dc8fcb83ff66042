package fellowship

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	apiHealthCheck         = "/healthz"
	apiDiscordInteractions = "/discord/interactions"
	xRequestIDHeader       = "X-Request-ID"
)

// httpError is an error message returned to the client
type httpError struct {
	Error string `json:"error"`
}

type healthCheckResponse struct {
	DiscordGatewayConnected bool  `json:"discord_gateway_connected"`
	DiscordConnects         int64 `json:"discord_connects"`
	DiscordDisconnects      int64 `json:"discord_disconnects"`
}

// DiscordWebhookServer receives interactions over HTTP, as an alternative
// to the gateway.
// See: https://discord.com/developers/docs/interactions/overview#preparing-for-interactions
type DiscordWebhookServer struct {
	config     DiscordWebhookServerConfig
	httpServer *http.Server
	engine     *gin.Engine
	logger     *slog.Logger

	listenerMu sync.Mutex
	listener   net.Listener
}

// Serve listens on the configured address and serves until Shutdown is
// called. Returns http.ErrServerClosed after a shutdown.
func (d *DiscordWebhookServer) Serve(ctx context.Context) error {
	network := d.config.ListenNetwork
	if network == "" {
		network = defaultListenNetwork
	}
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, network, d.config.Listen)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", d.config.Listen, err)
	}
	d.listenerMu.Lock()
	d.listener = ln
	d.listenerMu.Unlock()

	d.logger.InfoContext(ctx, "webhook server listening", "addr", ln.Addr().String())
	if d.httpServer.TLSConfig == nil {
		d.logger.WarnContext(ctx, "starting server without TLS")
		return d.httpServer.Serve(ln)
	}
	return d.httpServer.ServeTLS(ln, "", "")
}

// Addr returns the listener address, or nil if the server isn't listening
func (d *DiscordWebhookServer) Addr() net.Addr {
	d.listenerMu.Lock()
	defer d.listenerMu.Unlock()
	if d.listener == nil {
		return nil
	}
	return d.listener.Addr()
}

// Shutdown gracefully stops the server
func (d *DiscordWebhookServer) Shutdown(ctx context.Context) error {
	return d.httpServer.Shutdown(ctx)
}

// newWebhookServer creates and returns a new [DiscordWebhookServer], and/or
// any errors that occurred during creation.
func newWebhookServer(
	b *Bot,
	config DiscordWebhookServerConfig,
) (*DiscordWebhookServer, error) {
	var level slog.Leveler = DefaultDiscordWebhookLogLevel
	if config.LogLevel != nil {
		level = config.LogLevel
	}
	logger := slog.New(newLogHandler(level)).With(loggerNameKey, "discord_webhook")

	if b.config.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	api := &DiscordWebhookServer{config: config, engine: r, logger: logger}

	httpServer := &http.Server{
		Handler:           r,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}
	if config.SSL.CertFile != "" && config.SSL.KeyFile != "" {
		tlsCfg, e := tlsConfig(config.SSL.CertFile, config.SSL.KeyFile, config.SSL.TLSMinVersion)
		if e != nil {
			return nil, fmt.Errorf("error loading webhook SSL certs: %w", e)
		}
		httpServer.TLSConfig = tlsCfg
	}
	api.httpServer = httpServer

	r.Use(
		gin.Recovery(),
		requestIDMiddleware(),
		ginLoggingMiddleware(logger),
	)

	r.GET(
		apiHealthCheck, func(c *gin.Context) {
			c.JSON(
				http.StatusOK,
				healthCheckResponse{
					DiscordGatewayConnected: b.discord.connected.Load(),
					DiscordConnects:         b.discord.metricConnects.Load(),
					DiscordDisconnects:      b.discord.metricDisconnects.Load(),
				},
			)
		},
	)
	r.POST(
		apiDiscordInteractions,
		discordRequestAuthenticationMiddleware(b.discord.publicKey),
		webhookReceiveHandler(b),
	)
	return api, nil
}

// WebhookHandler is a handler for Discord interactions received via webhook.
// The initial response is written as the HTTP response body.
// See: https://discord.com/developers/docs/interactions/overview#setting-up-an-endpoint-validating-security-request-headers
//
//nolint:lll  // can't split link
type WebhookHandler struct {
	ginContext *gin.Context
	InteractionHandler
}

func (WebhookHandler) InteractionReceiveMethod() DiscordInteractionReceiveMethod {
	return discordInteractionReceiveMethodWebhook
}

func (w WebhookHandler) Respond(
	_ context.Context,
	response *discordgo.InteractionResponse,
) error {
	if w.ginContext.Writer.Written() {
		return errors.New("interaction already responded to")
	}
	w.ginContext.JSON(http.StatusOK, response)
	return nil
}

// webhookReceiveHandler returns a [gin.HandlerFunc] for handling Discord
// webhook interactions
func webhookReceiveHandler(b *Bot) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID, _ := c.Get(xRequestIDHeader)
		logger := ginContextLogger(c).With(
			slog.Group(
				"webhook_request",
				"remote_ip", c.RemoteIP(),
				xRequestIDHeader, requestID,
			),
		)
		ctx := WithLogger(c.Request.Context(), logger)

		defer func() {
			_ = c.Request.Body.Close()
		}()
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			logger.ErrorContext(ctx, "error getting raw data", tint.Err(err))
			c.JSON(http.StatusInternalServerError, httpError{Error: "error getting raw data"})
			return
		}

		var interaction discordgo.InteractionCreate
		if e := json.Unmarshal(body, &interaction); e != nil {
			logger.ErrorContext(ctx, "error unmarshalling body", tint.Err(e))
			c.JSON(http.StatusBadRequest, httpError{Error: "error unmarshalling body"})
			return
		}
		handler := WebhookHandler{
			ginContext:         c,
			InteractionHandler: b.getInteractionHandlerFunc(ctx, &interaction),
		}
		b.handleInteraction(ctx, handler)

		if !c.Writer.Written() {
			c.Status(http.StatusNoContent)
		}
	}
}

// discordRequestAuthenticationMiddleware is a middleware for verifying Discord
// webhook requests.
// See: https://discord.com/developers/docs/interactions/overview#setting-up-an-endpoint-validating-security-request-headers
//
//nolint:lll // can't split link
func discordRequestAuthenticationMiddleware(publicKey ed25519.PublicKey) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := ginContextLogger(c)
		if len(publicKey) != ed25519.PublicKeySize || !verifyRequest(c.Request, publicKey) {
			logger.WarnContext(c, "invalid signature")
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpError{Error: "invalid signature"})
			return
		}
		c.Next()
	}
}

// verifyRequest verifies the authenticity of a Discord webhook request.
//
// This function checks the request's signature and timestamp headers to validate
// the request. The body is read for verification, then restored so later
// handlers can read it again.
func verifyRequest(r *http.Request, key ed25519.PublicKey) bool {
	var msg bytes.Buffer

	signature := r.Header.Get("X-Signature-Ed25519")
	if signature == "" {
		return false
	}

	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	if len(sig) != ed25519.SignatureSize || sig[63]&224 != 0 {
		return false
	}

	timestamp := r.Header.Get("X-Signature-Timestamp")
	if timestamp == "" {
		return false
	}

	msg.WriteString(timestamp)

	defer func() {
		_ = r.Body.Close()
	}()
	var body bytes.Buffer

	defer func() {
		r.Body = io.NopCloser(&body)
	}()

	_, err = io.Copy(&msg, io.TeeReader(r.Body, &body))
	if err != nil {
		return false
	}

	return ed25519.Verify(key, msg.Bytes(), sig)
}

// requestIDMiddleware assigns a random request ID to each incoming
// request, set in the gin context and the response headers
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := generateRandomHexString(32)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Set(xRequestIDHeader, id)
		c.Header(xRequestIDHeader, id)
		c.Next()
	}
}

// ginContextLogger returns the slog.Logger from the given gin context,
// or, if it doesn't exist, creates a logger with request details included,
// and sets the logger in the context so the next call to ginContextLogger
// will return the new logger.
func ginContextLogger(c *gin.Context) *slog.Logger {
	if logger, ok := c.Get(string(loggerContextKey)); ok {
		if requestLogger, isLogger := logger.(*slog.Logger); isLogger {
			return requestLogger
		}
	}
	requestLogger := slog.Default()
	requestID, _ := c.Get(xRequestIDHeader)

	requestLogger = requestLogger.With(
		slog.Group(
			"request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"remote_addr", c.Request.RemoteAddr,
			"user_agent", c.Request.UserAgent(),
		),
		slog.Any(xRequestIDHeader, requestID),
	)
	c.Set(string(loggerContextKey), requestLogger)
	return requestLogger
}

// ginLoggingMiddleware logs each request once it has been handled, with
// its duration and response status
func ginLoggingMiddleware(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID, _ := c.Get(xRequestIDHeader)
		requestLogger := base.With(
			slog.Group(
				"request",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"remote_addr", c.Request.RemoteAddr,
				"user_agent", c.Request.UserAgent(),
			),
			slog.Any(xRequestIDHeader, requestID),
		)
		c.Set(string(loggerContextKey), requestLogger)

		c.Next()
		latency := time.Since(start)

		response := slog.Group(
			"response",
			"status_code", c.Writer.Status(),
			"body_size", c.Writer.Size(),
		)
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			requestLogger.Error(
				fmt.Sprintf("%s %s finished with errors", c.Request.Method, c.Request.URL.Path),
				"duration", latency,
				"errors", errs.Errors(),
				response,
			)
			return
		}
		requestLogger.Info(
			fmt.Sprintf("%s %s finished", c.Request.Method, c.Request.URL.Path),
			"duration", latency,
			response,
		)
	}
}
