// Package alert holds the buy event produced by the classifier and renders it
// as a chat message.
package alert

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// BuyEvent is a classified purchase of a tracked token.
type BuyEvent struct {
	Token       string           `json:"token"`
	Signature   string           `json:"signature"`
	Buyer       string           `json:"buyer"`
	NativeSpent decimal.Decimal  `json:"native_spent"`
	QuoteValue  *decimal.Decimal `json:"quote_value,omitempty"` // nil when the price was unknown
	Received    string           `json:"received"`
	BlockTime   time.Time        `json:"block_time"`
}

// Enrichment is display data looked up after classification. Every field has
// a placeholder so a failed lookup never blocks an alert.
type Enrichment struct {
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	MarketCap string `json:"market_cap"`
}

// Alert is a buy event with its enrichment, the unit that is dispatched and
// published.
type Alert struct {
	BuyEvent
	Enrichment
}

// Dispatcher delivers a rendered message to the chat.
type Dispatcher interface {
	Send(ctx context.Context, text string) error
}
