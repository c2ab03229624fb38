package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/brojonat/buywatch/service/registry"
	"github.com/urfave/cli/v2"
)

func tokensCommands() *cli.Command {
	return &cli.Command{
		Name:  "tokens",
		Usage: "Edit the watch list directly in storage",
		Description: `These commands write to the same storage the bot reads at startup.
A running bot only picks up the change after a restart; use the
/add and /remove chat commands to change a live bot.`,
		Subcommands: []*cli.Command{
			tokensAddCommand(),
			tokensRemoveCommand(),
			tokensListCommand(),
		},
	}
}

func loadRegistry(c *cli.Context) (*registry.Registry, *storage, error) {
	st, err := openStorage(c)
	if err != nil {
		return nil, nil, err
	}
	reg := registry.New(st.tokens, cliLogger())
	if err := reg.Load(context.Background()); err != nil {
		st.close()
		return nil, nil, err
	}
	return reg, st, nil
}

func tokensAddCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Start watching a token",
		ArgsUsage: "<mint>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: token mint address")
			}
			mint := c.Args().First()

			reg, st, err := loadRegistry(c)
			if err != nil {
				return err
			}
			defer st.close()

			if err := reg.Add(context.Background(), mint); err != nil {
				if errors.Is(err, registry.ErrAlreadyTracked) {
					fmt.Fprintf(c.App.Writer, "Token already being tracked: %s\n", mint)
					return nil
				}
				return fmt.Errorf("failed to add token: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "✓ Token added: %s\n", mint)
			return nil
		},
	}
}

func tokensRemoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Aliases:   []string{"rm"},
		Usage:     "Stop watching a token and drop its cursor",
		ArgsUsage: "<mint>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: token mint address")
			}
			mint := c.Args().First()

			reg, st, err := loadRegistry(c)
			if err != nil {
				return err
			}
			defer st.close()

			if err := reg.Remove(context.Background(), mint); err != nil {
				return fmt.Errorf("failed to remove token: %w", err)
			}
			if err := st.cursors.DeleteCursor(context.Background(), mint); err != nil {
				return fmt.Errorf("token removed but cursor was kept: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "✓ Token removed: %s\n", mint)
			return nil
		},
	}
}

type tokenRow struct {
	Mint      string     `json:"mint"`
	Watermark string     `json:"watermark,omitempty"`
	AddedAt   *time.Time `json:"added_at,omitempty"`
}

func tokensListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List watched tokens with their cursors",
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			reg, st, err := loadRegistry(c)
			if err != nil {
				return err
			}
			defer st.close()

			cursors, err := st.cursors.LoadCursors(ctx)
			if err != nil {
				return fmt.Errorf("failed to load cursors: %w", err)
			}

			added := map[string]time.Time{}
			if st.db != nil {
				rows, err := st.db.ListTrackedTokens(ctx)
				if err != nil {
					return fmt.Errorf("failed to list tokens: %w", err)
				}
				for _, r := range rows {
					added[r.Mint] = r.AddedAt
				}
			}

			rows := make([]tokenRow, 0, reg.Len())
			for _, mint := range reg.List() {
				row := tokenRow{Mint: mint, Watermark: cursors[mint]}
				if t, ok := added[mint]; ok {
					row.AddedAt = &t
				}
				rows = append(rows, row)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, rows)
			}

			if len(rows) == 0 {
				fmt.Fprintln(c.App.Writer, "No tokens are currently being tracked.")
				return nil
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MINT\tWATERMARK\tADDED")
			for _, r := range rows {
				watermark, addedAt := "none", "-"
				if r.Watermark != "" {
					watermark = r.Watermark
				}
				if r.AddedAt != nil {
					addedAt = r.AddedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.Mint, watermark, addedAt)
			}
			return w.Flush()
		},
	}
}
