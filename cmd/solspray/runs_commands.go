package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/solspray/solspray/client"
)

func listRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List distribution runs, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "wallet",
				Usage: "Filter by sender wallet address",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to return",
				Value: 20,
			},
			&cli.StringFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "jq expression applied to each run; only truthy matches are shown (e.g. '.status == \"failed\"')",
			},
		},
		Action: func(c *cli.Context) error {
			cl := newServiceClient(c)
			runs, err := cl.ListRuns(context.Background(), c.String("wallet"), c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if filter := c.String("filter"); filter != "" {
				runs, err = filterRuns(runs, filter)
				if err != nil {
					return err
				}
			}

			if c.Bool("json") {
				data, err := json.MarshalIndent(runs, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal runs: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			if len(runs) == 0 {
				fmt.Println("No runs found")
				return nil
			}
			for _, run := range runs {
				printRunLine(&run)
			}
			return nil
		},
	}
}

func getRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show one run with its batches",
		ArgsUsage: "RUN_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("run id is required")
			}

			cl := newServiceClient(c)
			detail, err := cl.GetRun(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}

			if c.Bool("json") {
				data, err := json.MarshalIndent(detail, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal run: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			printRunDetail(detail)
			return nil
		},
	}
}

// filterRuns keeps the runs for which the jq expression yields a truthy
// value. Each run is round-tripped through JSON so the expression sees
// the same field names the API returns.
func filterRuns(runs []client.Run, filter string) ([]client.Run, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	var out []client.Run
	for _, run := range runs {
		raw, err := json.Marshal(run)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal run: %w", err)
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run: %w", err)
		}

		if matchesFilter(code, doc) {
			out = append(out, run)
		}
	}
	return out, nil
}

// matchesFilter runs the compiled filter and reports whether its first
// result is truthy.
func matchesFilter(code *gojq.Code, doc any) bool {
	iter := code.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return false
	}
	if _, isErr := v.(error); isErr {
		return false
	}
	return isTruthy(v)
}

// isTruthy follows jq semantics: false and null are falsy, everything
// else is truthy.
func isTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	default:
		return true
	}
}

func printRunLine(run *client.Run) {
	finished := "-"
	if run.FinishedAt != nil {
		finished = run.FinishedAt.Format(time.RFC3339)
	}
	fmt.Printf("%s  %-9s  %-9s  %d/%d recipients  %s\n",
		run.ID, run.Status, run.AssetType,
		len(run.Completed), run.TotalRecipients, finished)
}

func printRunDetail(detail *client.RunDetail) {
	run := detail.Run
	fmt.Printf("Run %s\n", run.ID)
	fmt.Printf("  Wallet:     %s\n", run.WalletAddress)
	fmt.Printf("  Asset:      %s", run.AssetType)
	if run.TokenMint != nil {
		fmt.Printf(" (%s)", *run.TokenMint)
	}
	fmt.Println()
	fmt.Printf("  Status:     %s\n", run.Status)
	fmt.Printf("  Recipients: %d total, %d completed, %d failed\n",
		run.TotalRecipients, len(run.Completed), len(run.Failed))
	fmt.Printf("  Started:    %s\n", run.CreatedAt.Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Printf("  Finished:   %s\n", run.FinishedAt.Format(time.RFC3339))
	}

	if len(detail.Batches) > 0 {
		fmt.Printf("\nBatches:\n")
		for _, b := range detail.Batches {
			sig := "-"
			if b.Signature != nil {
				sig = *b.Signature
			}
			fmt.Printf("  #%d  %-9s  %d recipients  %s\n", b.BatchIndex, b.Status, len(b.Recipients), sig)
			if b.Error != nil {
				fmt.Printf("      error: %s\n", *b.Error)
			}
		}
	}
}
