package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/brojonat/buywatch/service/alert"
	"github.com/brojonat/buywatch/service/classifier"
	"github.com/brojonat/buywatch/service/dexscreener"
	"github.com/brojonat/buywatch/service/metadata"
	"github.com/brojonat/buywatch/service/price"
	"github.com/brojonat/buywatch/service/solana"
	"github.com/urfave/cli/v2"
)

var sourceFlags = []cli.Flag{
	&cli.StringFlag{Name: "dexscreener-url", EnvVars: []string{"DEXSCREENER_URL"}, Value: "https://api.dexscreener.com"},
	&cli.StringFlag{Name: "token-list-url", EnvVars: []string{"TOKEN_LIST_URL"}, Value: "https://raw.githubusercontent.com/solana-labs/token-list/main/src/tokens/solana.tokenlist.json"},
	&cli.StringFlag{Name: "token-info-url", EnvVars: []string{"TOKEN_INFO_URL"}, Value: "https://lite-api.jup.ag/tokens/v1/token"},
	&cli.StringFlag{Name: "jupiter-price-url", EnvVars: []string{"JUPITER_PRICE_URL"}, Value: "https://lite-api.jup.ag/price/v2"},
	&cli.StringFlag{Name: "coingecko-url", EnvVars: []string{"COINGECKO_URL"}, Value: "https://api.coingecko.com/api/v3"},
	&cli.DurationFlag{Name: "timeout", Usage: "Per-request timeout", Value: 10 * time.Second},
}

func lookupClient(c *cli.Context) *http.Client {
	return &http.Client{Timeout: c.Duration("timeout")}
}

func rpcClient(c *cli.Context) *solana.Client {
	rpcURL := c.String("rpc-url")
	return solana.NewClient(solana.NewRPCClient(rpcURL), solana.EndpointLabel(rpcURL), nil, cliLogger())
}

func newOracle(c *cli.Context) *price.Oracle {
	hc := lookupClient(c)
	return price.NewOracle(
		price.NewJupiterSource(c.String("jupiter-price-url"), hc),
		price.NewCoinGeckoSource(c.String("coingecko-url"), hc),
		0, nil, cliLogger(),
	)
}

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Resolve a mint's name, symbol and market cap the way alerts do",
		ArgsUsage: "<mint>",
		Flags:     sourceFlags,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: token mint address")
			}
			mint := c.Args().First()
			ctx := context.Background()
			hc := lookupClient(c)

			dex := dexscreener.NewCachedClient(dexscreener.NewClient(c.String("dexscreener-url"), hc, cliLogger()), 0)
			resolver := metadata.NewResolver([]metadata.Source{
				metadata.NewDexScreenerSource(dex),
				metadata.NewTokenListSource(c.String("token-list-url"), hc, time.Hour, cliLogger()),
				metadata.NewOnChainSource(rpcClient(c)),
				metadata.NewTokenInfoSource(c.String("token-info-url"), hc),
			}, nil, cliLogger())

			id := resolver.Resolve(ctx, mint)
			mcap := alert.NotAvailable
			if v, err := dex.MarketCap(ctx, mint); err == nil {
				mcap = alert.FormatMarketCap(v)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]interface{}{
					"mint":       mint,
					"identity":   id,
					"market_cap": mcap,
				})
			}
			fmt.Fprintf(c.App.Writer, "Name:       %s\n", id.Name)
			fmt.Fprintf(c.App.Writer, "Symbol:     %s\n", id.Symbol)
			fmt.Fprintf(c.App.Writer, "Source:     %s\n", id.Source)
			fmt.Fprintf(c.App.Writer, "Market Cap: %s\n", mcap)
			return nil
		},
	}
}

func priceCommand() *cli.Command {
	return &cli.Command{
		Name:  "price",
		Usage: "Quote SOL in USD with the primary and fallback sources",
		Flags: sourceFlags,
		Action: func(c *cli.Context) error {
			p := newOracle(c).QuotePrice(context.Background())
			if p.IsZero() {
				return fmt.Errorf("all price sources failed")
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]string{"sol_usd": p.String()})
			}
			fmt.Fprintf(c.App.Writer, "SOL: $%s\n", p.StringFixed(2))
			return nil
		},
	}
}

func classifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "Classify one transaction against a mint and print the alert it would produce",
		ArgsUsage: "<signature> <mint>",
		Flags:     sourceFlags,
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("requires two arguments: transaction signature and token mint address")
			}
			sig, mint := c.Args().Get(0), c.Args().Get(1)
			ctx := context.Background()

			rec, err := rpcClient(c).Transaction(ctx, sig)
			if err != nil {
				return err
			}
			res := classifier.New(classifier.Thresholds{}, newOracle(c)).Classify(ctx, rec, mint)

			if c.Bool("json") {
				return outputJSON(c.App.Writer, res.Event)
			}
			fmt.Fprintf(c.App.Writer, "Reason: %s\n", res.Reason)
			if res.Err != nil {
				fmt.Fprintf(c.App.Writer, "Error:  %v\n", res.Err)
			}
			if res.IsBuy() {
				fmt.Fprintf(c.App.Writer, "\n%s\n", alert.FormatMessage(alert.Alert{BuyEvent: *res.Event}))
			}
			return nil
		},
	}
}
