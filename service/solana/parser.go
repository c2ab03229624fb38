package solana

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Well-known Solana addresses
var (
	// MetadataProgramID is the Metaplex token metadata program
	MetadataProgramID = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")

	// WrappedSOLMint is the mint price APIs use to quote native SOL
	WrappedSOLMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

// LamportsPerSOL is the number of base units in one SOL.
const LamportsPerSOL = 1_000_000_000

// recordFromResult converts a GetTransaction result into a TransactionRecord.
func recordFromResult(signature string, result *rpc.GetTransactionResult) (*TransactionRecord, error) {
	rec := &TransactionRecord{
		Signature: signature,
		Slot:      result.Slot,
	}
	if result.BlockTime != nil {
		rec.BlockTime = result.BlockTime.Time()
	} else {
		rec.BlockTime = time.Time{}
	}

	if result.Transaction != nil {
		tx, err := result.Transaction.GetTransaction()
		if err != nil {
			return nil, fmt.Errorf("failed to decode transaction: %w", err)
		}
		for _, key := range tx.Message.AccountKeys {
			rec.AccountKeys = append(rec.AccountKeys, key.String())
		}
	}

	meta := result.Meta
	if meta == nil {
		return rec, nil
	}
	rec.HasMeta = true

	if meta.Err != nil {
		errMsg := fmt.Sprintf("transaction failed: %v", meta.Err)
		rec.Err = &errMsg
	}

	// Versioned transactions append lookup-table addresses after the static
	// keys: writable first, then read-only.
	for _, key := range meta.LoadedAddresses.Writable {
		rec.AccountKeys = append(rec.AccountKeys, key.String())
	}
	for _, key := range meta.LoadedAddresses.ReadOnly {
		rec.AccountKeys = append(rec.AccountKeys, key.String())
	}

	rec.PreBalances = meta.PreBalances
	rec.PostBalances = meta.PostBalances
	rec.PreTokenBalances = convertTokenBalances(meta.PreTokenBalances)
	rec.PostTokenBalances = convertTokenBalances(meta.PostTokenBalances)

	return rec, nil
}

func convertTokenBalances(in []rpc.TokenBalance) []TokenBalance {
	if len(in) == 0 {
		return nil
	}
	out := make([]TokenBalance, 0, len(in))
	for _, b := range in {
		tb := TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint.String(),
		}
		if b.Owner != nil {
			tb.Owner = b.Owner.String()
		}
		if b.UiTokenAmount != nil {
			tb.Amount = b.UiTokenAmount.Amount
			tb.Decimals = b.UiTokenAmount.Decimals
			tb.UIAmount = b.UiTokenAmount.UiAmountString
		}
		out = append(out, tb)
	}
	return out
}

// MetadataAddress derives the Metaplex metadata account for a mint from the
// seeds ["metadata", program id, mint].
func MetadataAddress(mint string) (string, error) {
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return "", fmt.Errorf("invalid mint %q: %w", mint, err)
	}
	addr, _, err := solana.FindProgramAddress(
		[][]byte{
			[]byte("metadata"),
			MetadataProgramID.Bytes(),
			mintKey.Bytes(),
		},
		MetadataProgramID,
	)
	if err != nil {
		return "", fmt.Errorf("failed to derive metadata address: %w", err)
	}
	return addr.String(), nil
}
