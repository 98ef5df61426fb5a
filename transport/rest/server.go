package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/entity"
)

const (
	readTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
	idleTimeout  = 30 * time.Second

	mcpBodyLimit = "1M"
)

type userService interface {
	SignUp(ctx context.Context, email, password string) (*entity.User, error)
	Authenticate(ctx context.Context, email, password string) (*entity.User, error)
}

type authService interface {
	GenerateToken(playerID string) (string, error)
	ParseToken(token string) (string, error)
}

type matchUseCase interface {
	CreateMatch(ctx context.Context, playerID string) (*entity.Match, error)
	JoinMatch(ctx context.Context, code, playerID string) (*entity.Match, error)
	MakeMove(ctx context.Context, code, playerID string, position int) (*entity.Match, error)
	GetMatch(ctx context.Context, code string) (*entity.Match, error)
}

type subscriptionHandler interface {
	ServeWS(w http.ResponseWriter, r *http.Request, code string)
}

type mcpHandler interface {
	HandleMessage(ctx context.Context, body []byte) mcp.JSONRPCMessage
}

type Options struct {
	Port         string
	AllowOrigins []string
}

type Server struct {
	logger *slog.Logger
	echo   *echo.Echo

	options Options

	users   userService
	auth    authService
	matches matchUseCase
	hub     subscriptionHandler
	mcp     mcpHandler
}

func New(
	logger *slog.Logger,
	options Options,
	users userService,
	auth authService,
	matches matchUseCase,
	hub subscriptionHandler,
	mcpServer mcpHandler,
) *Server {
	that := &Server{
		logger:  logger.With("component", "rest"),
		echo:    echo.New(),
		options: options,
		users:   users,
		auth:    auth,
		matches: matches,
		hub:     hub,
		mcp:     mcpServer,
	}

	that.echo.HideBanner = true
	that.echo.HidePort = true
	that.echo.Validator = newRequestValidator()
	that.echo.HTTPErrorHandler = that.handleError

	that.echo.Server.ReadTimeout = readTimeout
	that.echo.Server.WriteTimeout = writeTimeout
	that.echo.Server.IdleTimeout = idleTimeout

	that.echo.Use(middleware.Recover())
	that.echo.Use(middleware.RequestID())
	that.echo.Use(that.requestLogger())
	that.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: options.AllowOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	that.routes()

	return that
}

func (that *Server) routes() {
	that.echo.GET("/ping", that.ping)

	api := that.echo.Group("/api")
	api.POST("/signup", that.signUp)
	api.POST("/login", that.login)

	game := api.Group("/game", that.requireBearer)
	game.POST("/create", that.createMatch)
	game.POST("/join", that.joinMatch)
	game.POST("/move", that.makeMove)
	game.GET("/:code", that.getMatch)
	game.GET("/:code/moves", that.getMoves)

	that.echo.GET("/ws/:code", that.subscribe)
	that.echo.POST("/mcp", that.handleMCP, middleware.BodyLimit(mcpBodyLimit))
}

// ServeHTTP lets the server be mounted or exercised without a listener.
func (that *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	that.echo.ServeHTTP(w, r)
}

// Start blocks until the listener fails or Shutdown is called.
func (that *Server) Start() error {
	err := that.echo.Start(":" + that.options.Port)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) Shutdown(ctx context.Context) error {
	if err := that.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

func (that *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			that.logger.LogAttrs(c.Request().Context(), slog.LevelDebug, "request",
				slog.String("http_method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			)

			return nil
		},
	})
}
