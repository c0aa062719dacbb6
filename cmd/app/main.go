package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/hippomind/internal"
	pkgconfig "github.com/starford/hippomind/pkg/config"
)

// loadConfig reads --config over the defaults. A missing file is fine for
// the one-shot commands; serve and license-server require it.
func loadConfig(cmd *cli.Command, required bool) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	load := pkgconfig.LoadOptional[internal.Config]
	if required {
		load = pkgconfig.Load[internal.Config]
	}
	if err := load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func licenseServer(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	if err := internal.RunLicenseServer(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("license server error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg))
}

func shell(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	opts := []internal.Option{internal.WithConfig(cfg)}
	if script := cmd.String("script"); script != "" {
		opts = append(opts, internal.WithScript(script))
	}
	return internal.RunShell(ctx, cmd.Args().First(), opts...)
}

func render(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 2 {
		return fmt.Errorf("usage: hippomind render <file.mindmap> <out.svg|out.png>")
	}
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	return internal.Render(ctx, cmd.Args().Get(0), cmd.Args().Get(1), internal.WithConfig(cfg))
}

func keygen(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	return internal.Keygen(cmd.String("session"), internal.WithConfig(cfg))
}

func hashToken(_ context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("usage: hippomind hash-token <token>")
	}
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	return internal.HashToken(cmd.Args().First(), internal.WithConfig(cfg))
}

func activate(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("usage: hippomind activate <license key>")
	}
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	return internal.Activate(ctx, cmd.Args().First(), internal.WithConfig(cfg))
}

func main() {
	cmd := &cli.Command{
		Name:   "hippomind",
		Usage:  "Mind map editor engine with a local library, HTTP and MCP hosts, and license service",
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
				Usage:  "Run the editor HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "license-server",
				Usage:  "Run the license verification and Stripe webhook server",
				Action: licenseServer,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the library to an MCP client over stdio",
				Action: mcp,
			},
			{
				Name:      "shell",
				Usage:     "Edit a mind map in the terminal",
				ArgsUsage: "[file.mindmap]",
				Action:    shell,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "script",
						Usage: "Run the commands in this file instead of prompting",
					},
				},
			},
			{
				Name:      "render",
				Usage:     "Export a mind map to SVG or PNG",
				ArgsUsage: "<file.mindmap> <out.svg|out.png>",
				Action:    render,
			},
			{
				Name:  "keygen",
				Usage: "Print a new license key",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "session",
						Usage: "Derive the key a Stripe checkout session is issued",
					},
				},
				Action: keygen,
			},
			{
				Name:      "hash-token",
				Usage:     "Print the bcrypt hash of an admin token",
				ArgsUsage: "<token>",
				Action:    hashToken,
			},
			{
				Name:      "activate",
				Usage:     "Activate a license key on this machine",
				ArgsUsage: "<license key>",
				Action:    activate,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
