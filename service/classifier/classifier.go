// Package classifier decides whether a confirmed transaction is a purchase of
// a tracked token and, if so, how large it was.
package classifier

import (
	"context"
	"fmt"
	"math/big"

	"github.com/brojonat/buywatch/service/alert"
	"github.com/brojonat/buywatch/service/solana"
	"github.com/shopspring/decimal"
)

// Reason explains a classification outcome. It doubles as a metrics label.
type Reason string

const (
	ReasonBuy             Reason = "buy"
	ReasonNoRecord        Reason = "no_record"
	ReasonNoMeta          Reason = "no_meta"
	ReasonFailed          Reason = "failed"
	ReasonNoSpend         Reason = "no_spend"
	ReasonBelowNative     Reason = "below_native_minimum"
	ReasonNoTokenBalance  Reason = "no_token_balance"
	ReasonBelowQuoteValue Reason = "below_quote_minimum"
	ReasonLookupError     Reason = "lookup_error"
)

// UnknownAmount is reported when the received token quantity has no display string.
const UnknownAmount = "unknown"

// PriceOracle quotes the native currency in USD. Zero means unknown.
type PriceOracle interface {
	QuotePrice(ctx context.Context) decimal.Decimal
}

// Thresholds filter out small purchases. Zero disables a threshold.
type Thresholds struct {
	MinNativeSpend decimal.Decimal
	MinQuoteValue  decimal.Decimal
}

// Result is the classifier's verdict on one transaction. Event is set only
// when Reason is ReasonBuy.
type Result struct {
	Reason Reason
	Event  *alert.BuyEvent
	Err    error
}

// IsBuy reports whether the transaction is a reportable purchase.
func (r Result) IsBuy() bool {
	return r.Reason == ReasonBuy
}

// Classifier applies the buy heuristic.
type Classifier struct {
	thresholds Thresholds
	oracle     PriceOracle
}

// New creates a classifier. oracle may be nil, in which case no quote value is
// computed and MinQuoteValue is ignored.
func New(thresholds Thresholds, oracle PriceOracle) *Classifier {
	return &Classifier{thresholds: thresholds, oracle: oracle}
}

// Classify inspects rec for a purchase of mint.
//
// A buy is a successful transaction whose fee payer's native balance went down
// and that left a post-transaction balance of mint. The decrease includes the
// fee, so tiny non-buy transactions can pass when MinNativeSpend is zero.
func (c *Classifier) Classify(ctx context.Context, rec *solana.TransactionRecord, mint string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Reason: ReasonLookupError, Err: fmt.Errorf("classify panicked: %v", r)}
		}
	}()

	switch {
	case rec == nil:
		return Result{Reason: ReasonNoRecord}
	case !rec.HasMeta:
		return Result{Reason: ReasonNoMeta}
	case rec.Failed():
		return Result{Reason: ReasonFailed}
	}

	if len(rec.PreBalances) == 0 || len(rec.PostBalances) == 0 {
		return Result{Reason: ReasonNoSpend}
	}
	delta := lamports(rec.PreBalances[0]).Sub(lamports(rec.PostBalances[0]))
	if !delta.IsPositive() {
		return Result{Reason: ReasonNoSpend}
	}
	native := delta.Shift(-9)
	if native.LessThan(c.thresholds.MinNativeSpend) {
		return Result{Reason: ReasonBelowNative}
	}

	balance, ok := findTokenBalance(rec, mint)
	if !ok {
		return Result{Reason: ReasonNoTokenBalance}
	}
	received := balance.UIAmount
	if received == "" {
		received = UnknownAmount
	}

	event := &alert.BuyEvent{
		Token:       mint,
		Signature:   rec.Signature,
		Buyer:       rec.FeePayer(),
		NativeSpent: native,
		Received:    received,
		BlockTime:   rec.BlockTime,
	}

	if c.oracle != nil {
		price := c.oracle.QuotePrice(ctx)
		if price.IsPositive() {
			value := native.Mul(price)
			event.QuoteValue = &value
			if c.thresholds.MinQuoteValue.IsPositive() && value.LessThan(c.thresholds.MinQuoteValue) {
				return Result{Reason: ReasonBelowQuoteValue}
			}
		}
	}

	return Result{Reason: ReasonBuy, Event: event}
}

// findTokenBalance picks the post balance for mint, preferring the fee payer's
// account over the first match.
func findTokenBalance(rec *solana.TransactionRecord, mint string) (solana.TokenBalance, bool) {
	payer := rec.FeePayer()
	var first *solana.TokenBalance
	for i := range rec.PostTokenBalances {
		b := &rec.PostTokenBalances[i]
		if b.Mint != mint {
			continue
		}
		if payer != "" && b.Owner == payer {
			return *b, true
		}
		if first == nil {
			first = b
		}
	}
	if first == nil {
		return solana.TokenBalance{}, false
	}
	return *first, true
}

func lamports(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
