package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/brojonat/buywatch/service/nats"
	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand follows buy events, optionally for a single mint.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Stream buy events published by the bot",
		ArgsUsage: "[mint]",
		Description: `Subscribe to buy events published to NATS JetStream.

Events are published to the subject: buys.{mint}. Without a mint every
tracked token is streamed. Repeatable --jq filters are evaluated against
each event and all must be truthy for it to be printed.

Example:
  buywatch nats subscribe --jq '.quote_value != null' --jq '(.native_spent | tonumber) > 1'`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "buywatch-cli",
			},
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq expression an event must satisfy (repeatable)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Stop after this long (0 waits for Ctrl-C)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 1 {
				return fmt.Errorf("accepts at most one argument: token mint address")
			}
			subject := natspkg.StreamSubjects
			if c.NArg() == 1 {
				subject = natspkg.Subject(c.Args().First())
			}

			filters, err := compileFilters(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout := c.Duration("timeout"); timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			return streamBuys(ctx, c, subject, filters)
		},
	}
}

func streamBuys(ctx context.Context, c *cli.Context, subject string, filters []*gojq.Code) error {
	natsURL := c.String("nats-url")
	jsonOutput := c.Bool("json")
	out := c.App.Writer

	nc, err := natspkg.Connect(natsURL, "buywatch-cli")
	if err != nil {
		return err
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}
	if c.Bool("durable") {
		consumerConfig.Durable = c.String("consumer-name")
		consumerConfig.Name = c.String("consumer-name")
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if !jsonOutput {
		fmt.Fprintf(out, "📡 Subscribing to: %s\n", subject)
		fmt.Fprintf(out, "   NATS: %s\n\nWaiting for buys... (Ctrl-C to exit)\n\n", natsURL)
	}

	msgChan := make(chan jetstream.Msg, 10)
	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer consumeCtx.Stop()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			printed, err := handleBuyMessage(out, msg.Data(), filters, jsonOutput)
			if err != nil {
				fmt.Fprintf(c.App.ErrWriter, "Error handling event: %v\n", err)
			}
			if printed {
				count++
			}
			msg.Ack()
		case <-ctx.Done():
			if !jsonOutput {
				fmt.Fprintf(out, "\n✅ Received %d buys\n", count)
			}
			return nil
		}
	}
}

// handleBuyMessage prints one event if it passes every filter.
func handleBuyMessage(out io.Writer, data []byte, filters []*gojq.Code, jsonOutput bool) (bool, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("failed to parse event: %w", err)
	}
	ok, err := matchesFilters(filters, doc)
	if err != nil || !ok {
		return false, err
	}

	if jsonOutput {
		fmt.Fprintln(out, string(data))
		return true, nil
	}

	var event natspkg.BuyMessage
	if err := json.Unmarshal(data, &event); err != nil {
		return false, fmt.Errorf("failed to parse event: %w", err)
	}
	quote := "unknown"
	if event.QuoteValue != nil {
		quote = "$" + event.QuoteValue.StringFixed(2)
	}
	fmt.Fprintf(out, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(out, "Token:        %s (%s)\n", event.Name, event.Symbol)
	fmt.Fprintf(out, "Mint:         %s\n", event.Token)
	fmt.Fprintf(out, "Spent:        %s SOL (%s)\n", event.NativeSpent.StringFixed(4), quote)
	fmt.Fprintf(out, "Received:     %s\n", event.Received)
	fmt.Fprintf(out, "Buyer:        %s\n", event.Buyer)
	fmt.Fprintf(out, "Market Cap:   %s\n", event.MarketCap)
	fmt.Fprintf(out, "Signature:    %s\n", event.Signature)
	fmt.Fprintf(out, "Published:    %s\n\n", event.PublishedAt.Format(time.RFC3339))
	return true, nil
}

func compileFilters(exprs []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, len(exprs))
	for i, expr := range exprs {
		query, err := gojq.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
		}
		codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
		}
	}
	return codes, nil
}

// matchesFilters requires the first result of every filter to be truthy.
func matchesFilters(filters []*gojq.Code, doc map[string]interface{}) (bool, error) {
	for _, code := range filters {
		iter := code.Run(doc)
		v, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if err, isErr := v.(error); isErr {
			return false, fmt.Errorf("jq filter failed: %w", err)
		}
		if !isTruthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// isTruthy follows jq: only null and false are falsy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the BUYS JetStream stream",
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			nc, err := natspkg.Connect(c.String("nats-url"), "buywatch-cli")
			if err != nil {
				return err
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(ctx, natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}
			info, err := stream.Info(ctx)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			out := c.App.Writer
			if c.Bool("json") {
				return outputJSON(out, info)
			}
			fmt.Fprintf(out, "Stream: %s\n", info.Config.Name)
			fmt.Fprintf(out, "─────────────────────────────────────────────────────\n")
			fmt.Fprintf(out, "Description:  %s\n", info.Config.Description)
			fmt.Fprintf(out, "Subjects:     %v\n", info.Config.Subjects)
			fmt.Fprintf(out, "Messages:     %d\n", info.State.Msgs)
			fmt.Fprintf(out, "Bytes:        %d\n", info.State.Bytes)
			fmt.Fprintf(out, "First Seq:    %d\n", info.State.FirstSeq)
			fmt.Fprintf(out, "Last Seq:     %d\n", info.State.LastSeq)
			fmt.Fprintf(out, "Consumers:    %d\n", info.State.Consumers)
			fmt.Fprintf(out, "Max Age:      %s\n", info.Config.MaxAge)
			fmt.Fprintf(out, "Storage:      %s\n", info.Config.Storage)
			return nil
		},
	}
}
