package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/apperror"
	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/entity"
)

const (
	serverName    = "Fading Tic-Tac-Toe"
	serverVersion = "1.0.0"

	instructions = `Fading Tic-Tac-Toe - MCP Interface

Two players take turns placing X and O on a 3x3 board (cells 0-8, row by row).
At most six marks stay on the board: the seventh placement removes the oldest mark.
Three in a row on the board after that removal wins. There are no draws.

AVAILABLE TOOLS:
- create_match: open a match as X and get its share code
- join_match: join a waiting match as O
- make_move: place your mark on a cell
- get_match: read the current state of a match

Mutating tools take the bearer token returned by POST /api/login.`
)

var (
	errMissingArgument = errors.New("missing argument")
	errInvalidArgument = errors.New("invalid argument")
)

type matchUseCase interface {
	CreateMatch(ctx context.Context, playerID string) (*entity.Match, error)
	JoinMatch(ctx context.Context, code, playerID string) (*entity.Match, error)
	MakeMove(ctx context.Context, code, playerID string, position int) (*entity.Match, error)
	GetMatch(ctx context.Context, code string) (*entity.Match, error)
}

type tokenParser interface {
	ParseToken(token string) (string, error)
}

// Server exposes the match operations as MCP tools.
type Server struct {
	logger *slog.Logger

	matches matchUseCase
	auth    tokenParser

	mcpServer *server.MCPServer
}

func New(logger *slog.Logger, matches matchUseCase, auth tokenParser) *Server {
	that := &Server{
		logger:  logger.With("component", "mcp"),
		matches: matches,
		auth:    auth,
	}

	that.mcpServer = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
		server.WithInstructions(instructions),
	)

	that.registerTools()

	return that
}

// HandleMessage serves one JSON-RPC message; the result is nil for notifications.
func (that *Server) HandleMessage(ctx context.Context, body []byte) mcp.JSONRPCMessage {
	return that.mcpServer.HandleMessage(ctx, body)
}

// ServeStdio serves newline-delimited JSON-RPC until ctx is cancelled or in is exhausted.
func (that *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	if err := server.NewStdioServer(that.mcpServer).Listen(ctx, in, out); err != nil {
		return fmt.Errorf("failed to serve mcp over stdio: %w", err)
	}

	return nil
}

func (that *Server) registerTools() {
	tokenProperty := map[string]any{
		"type":        "string",
		"description": "Bearer token returned by POST /api/login",
	}
	codeProperty := map[string]any{
		"type":        "string",
		"description": "Six character match code",
	}

	that.mcpServer.AddTool(mcp.Tool{
		Name:        "create_match",
		Description: "Create a new match and wait for an opponent; the caller plays X",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"token": tokenProperty,
			},
			Required: []string{"token"},
		},
	}, that.handleCreateMatch)

	that.mcpServer.AddTool(mcp.Tool{
		Name:        "join_match",
		Description: "Join a waiting match as O",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"token": tokenProperty,
				"code":  codeProperty,
			},
			Required: []string{"token", "code"},
		},
	}, that.handleJoinMatch)

	that.mcpServer.AddTool(mcp.Tool{
		Name:        "make_move",
		Description: "Place your mark on a cell; the oldest mark vanishes once six are on the board",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"token": tokenProperty,
				"code":  codeProperty,
				"position": map[string]any{
					"type":        "integer",
					"minimum":     0,
					"maximum":     entity.BoardSize - 1,
					"description": "Cell index 0-8, row by row from the top left",
				},
			},
			Required: []string{"token", "code", "position"},
		},
	}, that.handleMakeMove)

	that.mcpServer.AddTool(mcp.Tool{
		Name:        "get_match",
		Description: "Get the board, move history, turn, winner and status of a match",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": codeProperty,
			},
			Required: []string{"code"},
		},
	}, that.handleGetMatch)
}

func (that *Server) handleCreateMatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	playerID, err := that.authenticate(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	match, err := that.matches.CreateMatch(ctx, playerID)

	return that.matchResult("create_match", match, err)
}

func (that *Server) handleJoinMatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	playerID, err := that.authenticate(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	code, err := codeArgument(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	match, err := that.matches.JoinMatch(ctx, code, playerID)

	return that.matchResult("join_match", match, err)
}

func (that *Server) handleMakeMove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	playerID, err := that.authenticate(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	code, err := codeArgument(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	position, err := intArgument(args, "position")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	match, err := that.matches.MakeMove(ctx, code, playerID, position)

	return that.matchResult("make_move", match, err)
}

func (that *Server) handleGetMatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := codeArgument(arguments(request))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	match, err := that.matches.GetMatch(ctx, code)

	return that.matchResult("get_match", match, err)
}

func (that *Server) authenticate(args map[string]any) (string, error) {
	token, err := stringArgument(args, "token")
	if err != nil {
		return "", err
	}

	playerID, err := that.auth.ParseToken(token)
	if err != nil {
		return "", apperror.ErrUnauthorized
	}

	return playerID, nil
}

// matchResult turns domain errors into tool errors; only unexpected failures are logged.
func (that *Server) matchResult(tool string, match *entity.Match, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		if !isDomainError(err) {
			that.logger.Error("tool call failed", "tool", tool, "error", err)
		}

		return mcp.NewToolResultError(err.Error()), nil
	}

	matchJSON, err := json.MarshalIndent(match, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("could not marshal match: %w", err)
	}

	return mcp.NewToolResultText(string(matchJSON)), nil
}

func isDomainError(err error) bool {
	for _, target := range []error{
		apperror.ErrNotFound,
		apperror.ErrAlreadyFull,
		apperror.ErrSelfJoin,
		apperror.ErrMatchNotActive,
		apperror.ErrNotAPlayer,
		apperror.ErrNotYourTurn,
		apperror.ErrInvalidPosition,
		apperror.ErrPositionOccupied,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

func arguments(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	return args
}

func stringArgument(args map[string]any, name string) (string, error) {
	value, _ := args[name].(string)
	if value == "" {
		return "", fmt.Errorf("%w: %s", errMissingArgument, name)
	}

	return value, nil
}

func codeArgument(args map[string]any) (string, error) {
	code, err := stringArgument(args, "code")
	if err != nil {
		return "", err
	}

	return entity.NormalizeCode(code), nil
}

// intArgument accepts JSON numbers, which decode as float64, as long as they are whole.
// Range checks are left to the caller.
func intArgument(args map[string]any, name string) (int, error) {
	switch value := args[name].(type) {
	case int:
		return value, nil
	case float64:
		if value != math.Trunc(value) || math.Abs(value) > math.MaxInt32 {
			return 0, fmt.Errorf("%w: %s must be an integer, got %v", errInvalidArgument, name, value)
		}

		return int(value), nil
	case nil:
		return 0, fmt.Errorf("%w: %s", errMissingArgument, name)
	default:
		return 0, fmt.Errorf("%w: %s must be a number, got %T", errInvalidArgument, name, value)
	}
}
