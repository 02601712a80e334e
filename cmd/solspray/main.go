package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Local development convenience; production sets real env vars.
	godotenv.Load()

	app := &cli.App{
		Name:  "solspray",
		Usage: "Solana batch distribution service CLI",
		Description: `A command-line tool for running and inspecting token distributions.

Use this CLI to start distributions from CSV files, preview costs, browse
run history, and follow live progress events.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			distributeCommand(),
			summaryCommand(),
			// Run history commands
			{
				Name:  "runs",
				Usage: "Distribution run history commands",
				Subcommands: []*cli.Command{
					listRunsCommand(),
					getRunCommand(),
				},
			},
			// Pass commands
			{
				Name:  "pass",
				Usage: "Membership pass commands",
				Subcommands: []*cli.Command{
					getPassCommand(),
					setPassCommand(),
				},
			},
			watchCommand(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Distribution server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
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

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
