package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"

	natspkg "github.com/solspray/solspray/service/nats"
)

// watchCommand streams live progress events for a run (or all runs) from
// NATS JetStream.
func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Stream live progress events for a run",
		ArgsUsage: "[run_id]",
		Description: `Subscribe to real-time progress events published to NATS JetStream.

Events are published to the subject: distributions.{run_id}. Without a
run id, events for all runs are streamed.

Examples:
  solspray watch 2f1f9c3e-...
  solspray watch --filter '.kind == "batch.failed"'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "jq expression applied to each event; only truthy matches are shown",
			},
		},
		Action: func(c *cli.Context) error {
			subject := "distributions.*"
			if c.NArg() >= 1 {
				subject = fmt.Sprintf("distributions.%s", c.Args().Get(0))
			}
			natsURL := c.String("nats-url")
			jsonOutput := c.Bool("json")

			var code *gojq.Code
			if filter := c.String("filter"); filter != "" {
				query, err := gojq.Parse(filter)
				if err != nil {
					return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
				}
				code, err = gojq.Compile(query)
				if err != nil {
					return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
				}
			}

			nc, err := nats.Connect(natsURL)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, jetstream.ConsumerConfig{
				FilterSubject: subject,
				AckPolicy:     jetstream.AckExplicitPolicy,
				DeliverPolicy: jetstream.DeliverNewPolicy,
			})
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Watching %s (ctrl-c to stop)\n\n", subject)
			}

			cc, err := cons.Consume(func(msg jetstream.Msg) {
				defer msg.Ack()

				var event natspkg.ProgressMessage
				if err := json.Unmarshal(msg.Data(), &event); err != nil {
					fmt.Fprintf(os.Stderr, "skipping malformed event: %v\n", err)
					return
				}

				if code != nil {
					var doc any
					if err := json.Unmarshal(msg.Data(), &doc); err != nil {
						return
					}
					if !matchesFilter(code, doc) {
						return
					}
				}

				if jsonOutput {
					fmt.Println(string(msg.Data()))
					return
				}
				printProgressEvent(&event)
			})
			if err != nil {
				return fmt.Errorf("failed to start consuming messages: %w", err)
			}
			defer cc.Stop()

			// Block until interrupted.
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop
			return nil
		},
	}
}

func printProgressEvent(event *natspkg.ProgressMessage) {
	switch event.Kind {
	case "run.started":
		fmt.Printf("▶ run %s started: %d recipients in %d batches\n",
			event.RunID, event.Progress.Total, event.Progress.TotalBatches)
	case "batch.confirmed":
		fmt.Printf("✓ run %s batch %d/%d confirmed (%s), %d/%d recipients settled\n",
			event.RunID, event.BatchIndex+1, event.Progress.TotalBatches,
			event.Signature, event.Progress.Current, event.Progress.Total)
	case "batch.failed":
		fmt.Printf("✗ run %s batch %d/%d failed: %s\n",
			event.RunID, event.BatchIndex+1, event.Progress.TotalBatches, event.Error)
	case "run.finished":
		fmt.Printf("■ run %s finished: %s (%d completed, %d failed)\n",
			event.RunID, event.Status,
			len(event.Progress.Completed), len(event.Progress.Failed))
	default:
		fmt.Printf("? run %s: %s\n", event.RunID, event.Kind)
	}
}
