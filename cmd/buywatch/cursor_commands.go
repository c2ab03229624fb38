package main

import (
	"context"
	"fmt"

	"github.com/brojonat/buywatch/service/cursor"
	"github.com/brojonat/buywatch/service/solana"
	"github.com/urfave/cli/v2"
)

func cursorCommands() *cli.Command {
	return &cli.Command{
		Name:  "cursor",
		Usage: "Inspect and repair per-token watermarks",
		Subcommands: []*cli.Command{
			cursorGetCommand(),
			cursorSetCommand(),
			cursorPendingCommand(),
		},
	}
}

func cursorGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show the last reported signature of a token",
		ArgsUsage: "<mint>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: token mint address")
			}
			mint := c.Args().First()

			st, err := openStorage(c)
			if err != nil {
				return err
			}
			defer st.close()

			cursors, err := st.cursors.LoadCursors(context.Background())
			if err != nil {
				return fmt.Errorf("failed to load cursors: %w", err)
			}
			sig, ok := cursors[mint]

			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]interface{}{
					"mint":      mint,
					"watermark": sig,
					"set":       ok,
				})
			}
			if !ok {
				fmt.Fprintf(c.App.Writer, "%s has no watermark yet\n", mint)
				return nil
			}
			fmt.Fprintln(c.App.Writer, sig)
			return nil
		},
	}
}

func cursorSetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Overwrite a token's watermark (stop the bot first)",
		ArgsUsage: "<mint> <signature>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("requires two arguments: token mint address and signature")
			}
			mint, sig := c.Args().Get(0), c.Args().Get(1)

			st, err := openStorage(c)
			if err != nil {
				return err
			}
			defer st.close()

			if err := st.cursors.SaveCursor(context.Background(), mint, sig); err != nil {
				return fmt.Errorf("failed to save cursor: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "✓ Watermark for %s set to %s\n", mint, sig)
			return nil
		},
	}
}

func cursorPendingCommand() *cli.Command {
	return &cli.Command{
		Name:      "pending",
		Usage:     "List signatures the bot would process next for a token",
		ArgsUsage: "<mint>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "page-limit", Value: cursor.DefaultOptions.PageLimit, Usage: "Signatures per RPC page"},
			&cli.IntFlag{Name: "max-pages", Value: cursor.DefaultOptions.MaxPages, Usage: "Pages walked looking for the watermark"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: token mint address")
			}
			mint := c.Args().First()
			ctx := context.Background()

			st, err := openStorage(c)
			if err != nil {
				return err
			}
			defer st.close()

			rpcURL := c.String("rpc-url")
			client := solana.NewClient(solana.NewRPCClient(rpcURL), solana.EndpointLabel(rpcURL), nil, cliLogger())
			tracker := cursor.NewTracker(client, st.cursors, cursor.Options{
				PageLimit: c.Int("page-limit"),
				MaxPages:  c.Int("max-pages"),
			}, cliLogger())
			if err := tracker.Load(ctx); err != nil {
				return err
			}

			since, _ := tracker.Watermark(mint)
			pending, err := tracker.Pending(ctx, mint, since)
			if err != nil {
				return fmt.Errorf("failed to list signatures: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]interface{}{
					"mint":      mint,
					"watermark": since,
					"pending":   pending,
				})
			}
			for _, sig := range pending {
				fmt.Fprintln(c.App.Writer, sig)
			}
			fmt.Fprintf(c.App.ErrWriter, "\n%d pending since %q\n", len(pending), since)
			return nil
		},
	}
}
