package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check whether the distribution server is reachable",
		Action: func(c *cli.Context) error {
			cl := newServiceClient(c)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := cl.Health(ctx); err != nil {
				return fmt.Errorf("server unhealthy: %w", err)
			}
			fmt.Printf("Server %s is healthy\n", c.String("server-url"))
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print CLI version information",
		Action: func(c *cli.Context) error {
			fmt.Printf("solspray %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}
