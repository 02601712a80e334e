package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/solspray/solspray/client"
	"github.com/solspray/solspray/service/distribute"
)

func distributeCommand() *cli.Command {
	return &cli.Command{
		Name:      "distribute",
		Usage:     "Start a distribution from a CSV recipient list",
		ArgsUsage: "RECIPIENTS_CSV",
		Description: `Start a batched distribution to the recipients in a CSV file.

The CSV has one recipient per line: address,amount. A header line starting
with "address" is skipped. With --equal, per-line amounts are ignored and
--total is split evenly instead.

Examples:
  solspray distribute recipients.csv
  solspray distribute recipients.csv --equal --total 100
  solspray distribute recipients.csv --mint EPjFW...Dt1v --decimals 6`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "mint",
				Usage: "SPL token mint address (omit for native SOL)",
			},
			&cli.UintFlag{
				Name:  "decimals",
				Usage: "Token decimals (required with --mint)",
			},
			&cli.BoolFlag{
				Name:  "equal",
				Usage: "Split --total equally instead of using per-line amounts",
			},
			&cli.Float64Flag{
				Name:  "total",
				Usage: "Total amount to split (required with --equal)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print the cost summary instead of starting the run",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("recipients CSV file is required")
			}

			recipients, err := readRecipientsCSV(c.Args().Get(0))
			if err != nil {
				return err
			}

			req, err := buildRequest(c, recipients)
			if err != nil {
				return err
			}

			cl := newServiceClient(c)
			ctx := context.Background()

			if c.Bool("dry-run") {
				summary, err := cl.Summary(ctx, req)
				if err != nil {
					return fmt.Errorf("failed to get summary: %w", err)
				}
				return printSummary(summary, c.Bool("json"))
			}

			start, err := cl.Start(ctx, req)
			if err != nil {
				return fmt.Errorf("failed to start distribution: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(start, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Distribution accepted\n")
			fmt.Printf("  Run ID:     %s\n", start.RunID)
			fmt.Printf("  Recipients: %d\n", start.Recipients)
			fmt.Printf("\nFollow progress with:\n  solspray watch %s\n", start.RunID)
			return nil
		},
	}
}

func summaryCommand() *cli.Command {
	return &cli.Command{
		Name:      "summary",
		Usage:     "Preview the cost and readiness of a distribution",
		ArgsUsage: "RECIPIENTS_CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "mint",
				Usage: "SPL token mint address (omit for native SOL)",
			},
			&cli.UintFlag{
				Name:  "decimals",
				Usage: "Token decimals (required with --mint)",
			},
			&cli.BoolFlag{
				Name:  "equal",
				Usage: "Split --total equally instead of using per-line amounts",
			},
			&cli.Float64Flag{
				Name:  "total",
				Usage: "Total amount to split (required with --equal)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("recipients CSV file is required")
			}

			recipients, err := readRecipientsCSV(c.Args().Get(0))
			if err != nil {
				return err
			}

			req, err := buildRequest(c, recipients)
			if err != nil {
				return err
			}

			cl := newServiceClient(c)
			summary, err := cl.Summary(context.Background(), req)
			if err != nil {
				return fmt.Errorf("failed to get summary: %w", err)
			}
			return printSummary(summary, c.Bool("json"))
		},
	}
}

// buildRequest assembles the request body from CLI flags and the parsed
// recipient list.
func buildRequest(c *cli.Context, recipients []client.RecipientInput) (*client.DistributionRequest, error) {
	req := &client.DistributionRequest{
		Asset:      distribute.AssetSelection{Type: distribute.AssetSOL},
		Recipients: recipients,
	}

	if mint := c.String("mint"); mint != "" {
		if !c.IsSet("decimals") {
			return nil, fmt.Errorf("--decimals is required with --mint")
		}
		req.Asset = distribute.AssetSelection{
			Type: distribute.AssetToken,
			Token: &distribute.Token{
				MintAddress: mint,
				Decimals:    uint8(c.Uint("decimals")),
			},
		}
	}

	if c.Bool("equal") {
		total := c.Float64("total")
		if total <= 0 {
			return nil, fmt.Errorf("--total must be positive with --equal")
		}
		req.Mode = string(distribute.ModeEqual)
		req.TotalAmount = total
	} else {
		req.Mode = string(distribute.ModeManual)
	}

	return req, nil
}

// readRecipientsCSV parses an address,amount CSV file. A header row whose
// first cell is "address" is skipped; blank lines are ignored.
func readRecipientsCSV(path string) ([]client.RecipientInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return parseRecipients(f)
}

func parseRecipients(r io.Reader) ([]client.RecipientInput, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var recipients []client.RecipientInput
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		line++

		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "address") {
			continue
		}

		rec := client.RecipientInput{Address: strings.TrimSpace(record[0])}
		if len(record) > 1 && strings.TrimSpace(record[1]) != "" {
			amount, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid amount %q: %w", line, record[1], err)
			}
			rec.Amount = amount
		}
		recipients = append(recipients, rec)
	}

	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients found in CSV")
	}
	return recipients, nil
}

func printSummary(summary *distribute.SummaryData, jsonOutput bool) error {
	if jsonOutput {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	asset := "SOL"
	if summary.AssetSelection.Type == distribute.AssetToken && summary.AssetSelection.Token != nil {
		asset = summary.AssetSelection.Token.MintAddress
	}

	fmt.Printf("Distribution summary\n")
	fmt.Printf("  Asset:            %s\n", asset)
	fmt.Printf("  Recipients:       %d (%d valid)\n", summary.Recipients, summary.ValidRecipients)
	fmt.Printf("  Total to send:    %.9f\n", summary.TotalCost)
	fmt.Printf("  Network fees:     %.9f SOL\n", summary.NetworkFees)
	fmt.Printf("  Wallet balance:   %.9f SOL\n", summary.WalletBalance)
	if summary.IsReady {
		fmt.Printf("  Ready:            yes\n")
	} else {
		fmt.Printf("  Ready:            no\n")
	}
	return nil
}

// newServiceClient builds the HTTP client shared by all commands.
func newServiceClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	return client.NewClient(c.String("server-url"), nil, logger)
}
