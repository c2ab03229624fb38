package solana

import (
	"time"
)

// TransactionRecord is the confirmed-transaction view the classifier works on.
// It is our domain model, independent of the RPC response format. Balance
// slices are indexed like AccountKeys; index 0 is the fee payer.
type TransactionRecord struct {
	Signature string
	Slot      uint64
	BlockTime time.Time

	// HasMeta is false when the node returned the transaction without status
	// metadata; nothing else in the record is meaningful then.
	HasMeta bool
	// Err is nil if the transaction succeeded.
	Err *string

	AccountKeys       []string
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// TokenBalance is one SPL token account balance in a transaction's metadata.
type TokenBalance struct {
	AccountIndex uint16
	Mint         string
	Owner        string // empty when the node omits it (old transactions)
	Amount       string // raw integer amount
	Decimals     uint8
	UIAmount     string // display string, empty when absent
}

// Failed reports whether the transaction errored on chain.
func (r *TransactionRecord) Failed() bool {
	return r.Err != nil
}

// FeePayer returns account key 0, or "" if the record has no keys.
func (r *TransactionRecord) FeePayer() string {
	if len(r.AccountKeys) == 0 {
		return ""
	}
	return r.AccountKeys[0]
}
