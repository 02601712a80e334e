package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"
)

func getPassCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show the membership pass for a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}
			address := c.Args().Get(0)

			resp, err := http.Get(fmt.Sprintf("%s/api/v1/passes/%s", c.String("server-url"), address))
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound {
				return fmt.Errorf("no pass found for %s", address)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("request failed with status %d", resp.StatusCode)
			}

			var pass struct {
				WalletAddress string    `json:"wallet_address"`
				MintAddress   string    `json:"mint_address"`
				Tier          string    `json:"tier"`
				AcquiredAt    time.Time `json:"acquired_at"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&pass); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(pass, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Pass for %s\n", pass.WalletAddress)
			fmt.Printf("  Tier:     %s\n", pass.Tier)
			fmt.Printf("  Mint:     %s\n", pass.MintAddress)
			fmt.Printf("  Acquired: %s\n", pass.AcquiredAt.Format(time.RFC3339))
			return nil
		},
	}
}

func setPassCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Record a membership pass for a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "tier",
				Usage:    "Pass tier",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "pass-mint",
				Usage: "Mint address of the pass token",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}

			body, err := json.Marshal(map[string]string{
				"wallet_address": c.Args().Get(0),
				"mint_address":   c.String("pass-mint"),
				"tier":           c.String("tier"),
			})
			if err != nil {
				return fmt.Errorf("failed to marshal request: %w", err)
			}

			resp, err := http.Post(c.String("server-url")+"/api/v1/passes", "application/json", bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusCreated {
				return fmt.Errorf("request failed with status %d", resp.StatusCode)
			}

			fmt.Printf("Pass saved for %s (tier %s)\n", c.Args().Get(0), c.String("tier"))
			return nil
		},
	}
}
