package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	app "github.com/rocketscienceinc/fading-tictactoe-backend/internal"
	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/config"
)

// main - is the entry point of the application. It loads the environment, then runs the selected command.
func main() {
	defer func() {
		if err := recover(); err != nil {
			fmt.Fprintf(os.Stderr, "recovered from panic: %v\n", err)
			os.Exit(1)
		}
	}()

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cmd := &cli.Command{
		Name:  "fading-tictactoe",
		Usage: "Tic-Tac-Toe where only the last six marks stay on the board",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config.yml",
				Usage:   "path to the YAML config file",
				Sources: cli.EnvVars("CONFIG_PATH"),
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "serve the REST API, the match WebSocket feed and MCP over HTTP",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "serve the MCP tools over stdin/stdout",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		panic(fmt.Errorf("app run failed: %w", err))
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	conf := config.MustLoad(cmd.String("config"))

	return app.RunApp(ctx, initLogger(conf, os.Stdout), conf)
}

// stdout carries the protocol in stdio mode, so logs go to stderr.
func serveMCP(ctx context.Context, cmd *cli.Command) error {
	conf := config.MustLoad(cmd.String("config"))

	return app.RunMCPStdio(ctx, initLogger(conf, os.Stderr), conf)
}

// initialize logger.
func initLogger(conf *config.Config, out io.Writer) *slog.Logger {
	var level slog.Level

	switch conf.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
}
