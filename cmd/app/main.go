package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"unicode/utf8"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/tablekit/internal"
	"github.com/starford/tablekit/internal/datasource"
	pkgconfig "github.com/starford/tablekit/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(cmd.String("config"), "", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg))
}

func locatorArg(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", fmt.Errorf("%s: expected exactly one file path or URL", cmd.Name)
	}
	return cmd.Args().First(), nil
}

func headers(ctx context.Context, cmd *cli.Command) error {
	locator, err := locatorArg(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.PrintHeaders(ctx, locator, cmd.String("workdir"), internal.WithConfig(cfg))
}

func rows(ctx context.Context, cmd *cli.Command) error {
	locator, err := locatorArg(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.PrintRows(ctx, locator, cmd.String("workdir"), int(cmd.Int("limit")), internal.WithConfig(cfg))
}

func export(ctx context.Context, cmd *cli.Command) error {
	locator, err := locatorArg(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := datasource.DefaultFormat()
	switch d := cmd.String("delimiter"); {
	case d == "tab" || d == `\t`:
		out.Delimiter = '\t'
	case utf8.RuneCountInString(d) == 1:
		out.Delimiter, _ = utf8.DecodeRuneInString(d)
	default:
		return fmt.Errorf("export: delimiter must be a single character or 'tab'")
	}
	out.HasHeader = !cmd.Bool("no-header")
	out.UseCRLF = cmd.Bool("crlf")

	return internal.Export(ctx, locator, cmd.String("workdir"), out, internal.WithConfig(cfg))
}

func fk(ctx context.Context, cmd *cli.Command) error {
	file, err := locatorArg(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.CheckDeclarations(ctx, file, cmd.Bool("strict"), internal.WithConfig(cfg))
}

func workdirFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "workdir",
		Aliases: []string{"w"},
		Usage:   "Directory or .zip archive that file paths are resolved inside",
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "tablekit",
		Usage:  "Tabular data catalog with CSV/JSON ingestion and foreign key validation",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the data directory watcher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdio",
				Action: runMCP,
			},
			{
				Name:      "headers",
				Usage:     "Print the header row of a CSV/JSON file or URL",
				ArgsUsage: "<path|url>",
				Flags:     []cli.Flag{workdirFlag()},
				Action:    headers,
			},
			{
				Name:      "rows",
				Usage:     "Print data rows as JSON lines",
				ArgsUsage: "<path|url>",
				Flags: []cli.Flag{
					workdirFlag(),
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Max rows (0 for all)"},
				},
				Action: rows,
			},
			{
				Name:      "export",
				Usage:     "Re-render a table as delimited text",
				ArgsUsage: "<path|url>",
				Flags: []cli.Flag{
					workdirFlag(),
					&cli.StringFlag{Name: "delimiter", Aliases: []string{"d"}, Value: ",", Usage: "Output delimiter, or 'tab'"},
					&cli.BoolFlag{Name: "no-header", Usage: "Omit the header row"},
					&cli.BoolFlag{Name: "crlf", Usage: "Use CRLF line endings"},
				},
				Action: export,
			},
			{
				Name:      "fk",
				Usage:     "Validate foreign key declarations from a JSON or YAML file",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "strict", Usage: "Stop at the first invalid declaration"},
				},
				Action: fk,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
