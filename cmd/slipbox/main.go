package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/slipbox/internal"
	pkgconfig "github.com/starford/slipbox/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func init() {
	// -v belongs to --verbose.
	cli.VersionFlag = &cli.BoolFlag{Name: "version", Usage: "print the version"}
}

// loadConfig reads the optional config file and applies command-line
// overrides on top of it.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cmd.IsSet("notes-dir") {
		cfg.Notes.Root = cmd.String("notes-dir")
	}
	if cmd.IsSet("search-backend") {
		cfg.Search.Backend = cmd.String("search-backend")
	}
	return cfg, nil
}

// appOptions builds the options shared by every command.
func appOptions(cmd *cli.Command, cfg *internal.Config) []internal.Option {
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVerbose(cmd.Bool("verbose")),
		internal.WithVersion(version),
	}
}

func runBacklinks(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("backlinks: expected exactly one FILE argument")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("nested") {
		cfg.Notes.Nested = cmd.Bool("nested")
	}
	if cmd.IsSet("absolute") {
		cfg.Notes.Absolute = cmd.Bool("absolute")
	}
	if cmd.Bool("graph") {
		cfg.Notes.Mode = "graph"
	}
	return internal.Backlinks(ctx, cmd.Args().First(), appOptions(cmd, cfg)...)
}

func runSearch(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("search: expected exactly one QUERY argument")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Search(ctx, cmd.Args().First(), int(cmd.Int("limit")), cmd.Bool("reindex"),
		appOptions(cmd, cfg)...)
}

func runNew(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("new: expected exactly one PATH argument")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.NewNote(ctx, cmd.Args().First(), cmd.String("title"), appOptions(cmd, cfg)...)
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("port") {
		cfg.App.HTTP.Port = int(cmd.Int("port"))
	}
	if err := internal.Serve(ctx, appOptions(cmd, cfg)...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, appOptions(cmd, cfg)...)
}

func main() {
	cmd := &cli.Command{
		Name:    "slipbox",
		Usage:   "Find the notes that reference a note, across a flat or nested note tree",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (optional)",
				Value:   "config/config.yaml",
				Sources: cli.EnvVars("SLIPBOX_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "notes-dir",
				Aliases: []string{"d"},
				Usage:   "Notes root directory (default: home directory)",
				Sources: cli.EnvVars("SLIPBOX_NOTES_DIR"),
			},
			&cli.StringFlag{
				Name:    "search-backend",
				Usage:   "Content search backend: native or ripgrep",
				Sources: cli.EnvVars("SLIPBOX_SEARCH_BACKEND"),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log debug output and report skipped directories",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "backlinks",
				Usage:     "Print the notes that reference FILE",
				ArgsUsage: "FILE",
				Action:    runBacklinks,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "nested", Aliases: []string{"n"}, Usage: "Search from every directory under the notes root"},
					&cli.BoolFlag{Name: "absolute", Aliases: []string{"a"}, Usage: "Print absolute paths"},
					&cli.BoolFlag{Name: "graph", Aliases: []string{"g"}, Usage: "Resolve links through the parsed note graph"},
				},
			},
			{
				Name:      "search",
				Usage:     "Full-text search of the note tree",
				ArgsUsage: "QUERY",
				Action:    runSearch,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "reindex", Usage: "Rebuild the search index before searching"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum number of results", Value: 15},
				},
			},
			{
				Name:      "new",
				Usage:     "Create a note at PATH, relative to the notes root",
				ArgsUsage: "PATH",
				Action:    runNew,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Title written as frontmatter and heading"},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API and event stream",
				Action: runServe,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "HTTP port", Sources: cli.EnvVars("SLIPBOX_PORT")},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools over stdio",
				Action: runMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
