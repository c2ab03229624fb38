package nats

import (
	"time"

	"github.com/brojonat/buywatch/service/alert"
)

// BuyMessage is the JSON document published to "buys.{mint}" for every
// alert the bot delivers.
type BuyMessage struct {
	alert.Alert
	PublishedAt time.Time `json:"published_at"`
}

// FromAlert wraps a dispatched alert for publishing.
func FromAlert(a alert.Alert) *BuyMessage {
	return &BuyMessage{
		Alert:       a,
		PublishedAt: time.Now().UTC(),
	}
}

// Subject is the JetStream subject for a token's buys.
func Subject(mint string) string {
	return SubjectPrefix + mint
}
