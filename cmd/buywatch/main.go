package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "buywatch",
		Usage: "Solana token buy-alert bot CLI",
		Description: `A command-line tool for operating and debugging the buywatch bot.

Use this CLI to edit the watch list, inspect cursors, try the enrichment
sources against a live mint and follow published buy events.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			tokensCommands(),
			cursorCommands(),
			{
				Name:  "lookup",
				Usage: "Run enrichment and classification against live sources",
				Subcommands: []*cli.Command{
					resolveCommand(),
					priceCommand(),
					classifyCommand(),
				},
			},
			{
				Name:  "nats",
				Usage: "NATS buy event streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					remoteTokensCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "storage",
				Usage:   "Storage backend (file or postgres)",
				EnvVars: []string{"STORAGE_BACKEND"},
				Value:   "file",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Directory of the file storage backend",
				EnvVars: []string{"DATA_DIR"},
				Value:   "./data",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "Solana RPC URL",
				EnvVars: []string{"SOLANA_RPC_URL"},
				Value:   "https://api.mainnet-beta.solana.com",
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Bot HTTP server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:10000",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
