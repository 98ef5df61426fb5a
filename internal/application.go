package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/config"
	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/pkg"
	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/repository"
	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/repository/storage"
	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/service"
	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/usecase"
	"github.com/rocketscienceinc/fading-tictactoe-backend/transport/mcp"
	"github.com/rocketscienceinc/fading-tictactoe-backend/transport/rest"
	"github.com/rocketscienceinc/fading-tictactoe-backend/transport/websocket"
)

const shutdownTimeout = 10 * time.Second

var ErrAddrNotFound = errors.New("redis address string is empty")

// core holds everything both entry points share.
type core struct {
	storage *redis.Client
	events  *repository.MatchEvents
	users   service.UserService
	auth    service.AuthService
	matches *usecase.MatchManager
}

func newCore(ctx context.Context, logger *slog.Logger, conf *config.Config) (*core, error) {
	redisAddrString := conf.Redis.GetRedisAddr()
	if conf.Redis.Host == "" || redisAddrString == "" {
		return nil, ErrAddrNotFound
	}

	redisStorage, err := storage.New(ctx, redisAddrString, conf.Redis.Password, conf.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("could not connect to redis storage: %w", err)
	}

	authService, err := service.NewAuthService(conf.JWTSecretKey, conf.TokenTTL)
	if err != nil {
		_ = redisStorage.Close()
		return nil, fmt.Errorf("could not create auth service: %w", err)
	}

	userRepo := repository.NewUserRepository(redisStorage)
	matchRepo := repository.NewMatchRepository(redisStorage, repository.MatchOptions{
		FinishedTTL:    conf.Match.FinishedTTL,
		UpdateAttempts: conf.Match.UpdateAttempts,
	})
	matchEvents := repository.NewMatchEvents(logger, redisStorage)

	matchManager := usecase.NewMatchManager(logger, matchRepo, matchEvents, pkg.GenerateMatchCode, usecase.MatchOptions{
		CodeLength:   conf.Match.CodeLength,
		CodeAttempts: conf.Match.CodeAttempts,
	})

	return &core{
		storage: redisStorage,
		events:  matchEvents,
		users:   service.NewUserService(userRepo, conf.PasswordCost),
		auth:    authService,
		matches: matchManager,
	}, nil
}

func (that *core) close(log *slog.Logger) {
	if err := that.storage.Close(); err != nil {
		log.Error("could not close redis storage", "error", err)
	}
}

// withSignals cancels the returned context on SIGINT or SIGTERM.
func withSignals(ctx context.Context, log *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigs)

		select {
		case sig := <-sigs:
			log.Info("Received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// RunApp - serves the REST API, the match WebSocket feed and MCP over HTTP until a signal arrives.
func RunApp(ctx context.Context, logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := withSignals(ctx, log)
	defer cancel()

	app, err := newCore(ctx, logger, conf)
	if err != nil {
		return err
	}
	defer app.close(log)

	hub := websocket.NewHub(logger, app.matches, conf.CORS.AllowOrigins)
	go hub.Run(ctx)

	eventsErrCh := make(chan error, 1)
	go func() {
		eventsErrCh <- app.events.Subscribe(ctx, hub.Publish)
	}()

	mcpServer := mcp.New(logger, app.matches, app.auth)
	restServer := rest.New(
		logger,
		rest.Options{Port: conf.HTTPPort, AllowOrigins: conf.CORS.AllowOrigins},
		app.users,
		app.auth,
		app.matches,
		hub,
		mcpServer,
	)

	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		httpErrCh <- restServer.Start()
	}()

	select {
	case err = <-httpErrCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}

		return nil
	case err = <-eventsErrCh:
		if err != nil {
			err = fmt.Errorf("match events error: %w", err)
		}
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if shutdownErr := restServer.Shutdown(shutdownCtx); shutdownErr != nil {
		return errors.Join(err, shutdownErr)
	}

	return err
}

// RunMCPStdio - serves the MCP tools over stdin/stdout against the same store as RunApp.
func RunMCPStdio(ctx context.Context, logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := withSignals(ctx, log)
	defer cancel()

	app, err := newCore(ctx, logger, conf)
	if err != nil {
		return err
	}
	defer app.close(log)

	log.Info("Starting MCP stdio server")

	if err = mcp.New(logger, app.matches, app.auth).ServeStdio(ctx, os.Stdin, os.Stdout); err != nil &&
		!errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
