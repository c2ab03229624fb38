package alert

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

// NotAvailable is shown for enrichment values that could not be looked up.
const NotAvailable = "N/A"

const (
	txURL    = "https://solscan.io/tx/%s"
	chartURL = "https://dexscreener.com/solana/%s"
)

// FormatMessage renders the alert in Telegram's legacy Markdown.
func FormatMessage(a Alert) string {
	name := orDefault(a.Name, "Unverified")
	symbol := orDefault(a.Symbol, "????")
	mcap := orDefault(a.MarketCap, NotAvailable)

	var b strings.Builder
	b.WriteString("🟢 *Buy Detected!*\n\n")
	fmt.Fprintf(&b, "Token: *%s* (%s)\n", escape(name), escape(symbol))

	spent := fmt.Sprintf("Spent: *%s SOL*", a.NativeSpent.StringFixed(4))
	if a.QuoteValue != nil {
		spent += fmt.Sprintf(" ($%s)", a.QuoteValue.StringFixed(2))
	}
	b.WriteString(spent + "\n")

	fmt.Fprintf(&b, "Received: *%s %s*\n", escape(a.Received), escape(symbol))
	fmt.Fprintf(&b, "Buyer: `%s`\n", a.Buyer)
	fmt.Fprintf(&b, "Market Cap: %s\n\n", escape(mcap))
	fmt.Fprintf(&b, "[View Transaction]("+txURL+") | [View on DexScreener]("+chartURL+")",
		a.Signature, a.Token)

	return b.String()
}

// FormatMarketCap abbreviates a USD market cap, e.g. $1.23M. A non-positive
// value is rendered as N/A.
func FormatMarketCap(v decimal.Decimal) string {
	if !v.IsPositive() {
		return NotAvailable
	}
	units := []struct {
		suffix string
		size   decimal.Decimal
	}{
		{"B", decimal.New(1, 9)},
		{"M", decimal.New(1, 6)},
		{"K", decimal.New(1, 3)},
	}
	for _, u := range units {
		if v.GreaterThanOrEqual(u.size) {
			return "$" + v.Div(u.size).StringFixed(2) + u.suffix
		}
	}
	return "$" + v.StringFixed(2)
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
