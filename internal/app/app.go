package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/securechat-server/internal/auth"
	"github.com/vovakirdan/securechat-server/internal/blob"
	"github.com/vovakirdan/securechat-server/internal/config"
	"github.com/vovakirdan/securechat-server/internal/core"
	"github.com/vovakirdan/securechat-server/internal/notify"
	"github.com/vovakirdan/securechat-server/internal/service/chats"
	"github.com/vovakirdan/securechat-server/internal/service/contacts"
	"github.com/vovakirdan/securechat-server/internal/service/delivery"
	"github.com/vovakirdan/securechat-server/internal/service/users"
	"github.com/vovakirdan/securechat-server/internal/store"
	"github.com/vovakirdan/securechat-server/internal/store/mongodb"
	"github.com/vovakirdan/securechat-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/securechat-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	chats           *chats.Service
	store           store.Store
	log             *zerolog.Logger
}

// OpenStore opens the durable store selected by cfg.StoreDriver.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch strings.ToLower(cfg.StoreDriver) {
	case "", "sqlite":
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "mongo", "mongodb":
		st, err := mongodb.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("driver", cfg.StoreDriver).Msg("store initialized")

	blobs, err := blob.NewLocalStore(cfg.BlobDir, cfg.BlobBaseURL, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init blob store: %w", err)
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.FCMServerKey != "" {
		notifier = notify.NewFCM(cfg.FCMServerKey, cfg.FCMEndpoint, st, logger)
		logger.Info().Msg("push notifications enabled")
	}

	hub := core.NewHub(st, logger, core.Options{
		SendBuffer:      cfg.SendBuffer,
		PresenceTimeout: cfg.PresenceTimeout,
	})
	events := hub.Dispatcher()
	chatService := chats.New(st, events, notifier, logger)

	gin.SetMode(gin.ReleaseMode)
	server := transporthttp.NewServer(transporthttp.Deps{
		Hub:      hub,
		Gate:     auth.NewGate(jwtConfig),
		Auth:     auth.NewService(st, jwtConfig),
		Users:    users.New(st),
		Contacts: contacts.New(st, events),
		Chats:    chatService,
		Delivery: delivery.New(st, events, logger),
		Blobs:    blobs,
	}, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		chats:           chatService,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup(context.Background())
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		err := a.server.Shutdown(shutdownCtx)
		a.cleanup(shutdownCtx)
		if err != nil {
			return err
		}
		return <-serverErr
	}
}

// cleanup waits for in-flight presence and push work, then closes the store.
func (a *App) cleanup(ctx context.Context) {
	if err := a.hub.Shutdown(ctx); err != nil {
		a.log.Warn().Err(err).Msg("presence work still running at shutdown")
	}
	if err := a.chats.Shutdown(ctx); err != nil {
		a.log.Warn().Err(err).Msg("push notifications still running at shutdown")
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

// Migrate opens the configured store, which applies its schema or indexes, and closes it again.
func Migrate(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info().Str("driver", cfg.StoreDriver).Msg("store schema up to date")
	return st.Close()
}
