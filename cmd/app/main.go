package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/bearlinks/internal"
	pkgconfig "github.com/starford/bearlinks/pkg/config"
)

var version = "dev"

func action(command internal.Command) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		configPath := cmd.String("config")

		cfg := internal.NewDefaultConfig()
		if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}

		if store := cmd.String("store"); store != "" {
			cfg.Store.Path = store
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid store override: %w", err)
			}
		}

		opts := []internal.Option{
			internal.WithConfig(cfg),
			internal.WithCommand(command),
			internal.WithDryRun(cmd.Bool("dry-run")),
			internal.WithVersion(version),
		}

		if err := internal.Run(ctx, opts...); err != nil {
			return fmt.Errorf("app run error: %w", err)
		}

		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "bearlinks",
		Usage:   "Maintain a backlinks section in every Bear note",
		Version: version,
		Action:  action(internal.CommandSync),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("BEARLINKS_CONFIG"),
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Usage:   "Log updates instead of sending them to Bear",
				Sources: cli.EnvVars("BEARLINKS_DRY_RUN"),
			},
			&cli.StringFlag{
				Name:    "store",
				Usage:   "Path to the Bear database (overrides store.path)",
				Sources: cli.EnvVars("BEAR_DATABASE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "sync",
				Usage:  "Rewrite the backlinks section of every note that needs it",
				Action: action(internal.CommandSync),
			},
			{
				Name:   "strip",
				Usage:  "Remove the backlinks section from every note",
				Action: action(internal.CommandStrip),
			},
			{
				Name:   "snapshot",
				Usage:  "Record note modification times without changing notes",
				Action: action(internal.CommandSnapshot),
			},
			{
				Name:   "watch",
				Usage:  "Sync, then sync again whenever the database changes",
				Action: action(internal.CommandWatch),
			},
			{
				Name:   "mcp",
				Usage:  "Serve backlinks tools over MCP stdio",
				Action: action(internal.CommandMCP),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
