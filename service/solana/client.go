package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/buywatch/service/metrics"
	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)

	GetAccountInfo(
		ctx context.Context,
		account solana.PublicKey,
	) (*rpc.GetAccountInfoResult, error)
}

// RetryPolicy bounds GetTransaction retries.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxTries        uint
}

// DefaultRetryPolicy suits the public mainnet endpoint.
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 500 * time.Millisecond,
	MaxTries:        3,
}

// Client provides the ledger queries the buy pipeline needs.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics (e.g. rpc host)
	retry    RetryPolicy
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling. If metrics is nil, no
// metrics are recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:      rpcClient,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
		retry:    DefaultRetryPolicy,
	}
}

// WithRetryPolicy replaces the GetTransaction retry policy.
func (c *Client) WithRetryPolicy(p RetryPolicy) *Client {
	c.retry = p
	return c
}

// Signatures returns up to limit signatures for address, newest first. When
// before is non-empty only signatures older than it are returned.
func (c *Client) Signatures(ctx context.Context, address, before string, limit int) ([]string, error) {
	addr, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}

	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	}
	if before != "" {
		sig, err := solana.SignatureFromBase58(before)
		if err != nil {
			return nil, fmt.Errorf("invalid signature %q: %w", before, err)
		}
		opts.Before = sig
	}

	c.logger.DebugContext(ctx, "calling GetSignaturesForAddress",
		"address", address,
		"limit", limit,
		"before", before,
	)

	start := time.Now()
	sigs, err := c.rpc.GetSignaturesForAddress(ctx, addr, opts)
	c.metrics.RecordRPCCall("GetSignaturesForAddress", statusOf(err), c.endpoint, time.Since(start).Seconds())
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get signatures",
			"address", address,
			"error", err,
		)
		return nil, fmt.Errorf("get signatures for %s: %w", address, err)
	}
	c.metrics.RecordRPCSignaturesPerCall(c.endpoint, len(sigs))

	out := make([]string, 0, len(sigs))
	for _, s := range sigs {
		out = append(out, s.Signature.String())
	}
	return out, nil
}

// Transaction fetches a confirmed transaction. It returns (nil, nil) when the
// node does not know the signature. Transient failures are retried with
// exponential backoff.
func (c *Client) Transaction(ctx context.Context, signature string) (*TransactionRecord, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	}

	operation := func() (*rpc.GetTransactionResult, error) {
		start := time.Now()
		result, err := c.rpc.GetTransaction(ctx, sig, opts)
		c.metrics.RecordRPCCall("GetTransaction", statusOf(err), c.endpoint, time.Since(start).Seconds())
		switch {
		case err == nil:
			return result, nil
		case errors.Is(err, rpc.ErrNotFound):
			return nil, backoff.Permanent(err)
		case isLegacyDecodeError(err):
			// Some nodes reject the version hint on legacy transactions.
			c.logger.WarnContext(ctx, "could not parse as versioned tx, retrying as legacy",
				"signature", signature,
			)
			c.metrics.RecordRPCRetry("GetTransaction", "parse_error")
			opts = &rpc.GetTransactionOpts{
				Encoding:   solana.EncodingBase64,
				Commitment: rpc.CommitmentConfirmed,
			}
			return nil, err
		case strings.Contains(err.Error(), "429"):
			c.metrics.RecordRPCRetry("GetTransaction", "rate_limit")
			return nil, err
		default:
			c.metrics.RecordRPCRetry("GetTransaction", "timeout_or_error")
			return nil, err
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retry.InitialInterval
	policy.MaxInterval = c.retry.InitialInterval * 8

	notify := func(err error, next time.Duration) {
		c.logger.WarnContext(ctx, "failed to get transaction, retrying",
			"signature", signature,
			"error", err,
			"backoff", next,
		)
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.retry.MaxTries),
		backoff.WithNotify(notify),
	)
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && result == nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", signature, err)
	}

	return recordFromResult(signature, result)
}

// AccountData returns the raw data of an account, or nil if it does not exist.
func (c *Client) AccountData(ctx context.Context, address string) ([]byte, error) {
	key, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}

	start := time.Now()
	acc, err := c.rpc.GetAccountInfo(ctx, key)
	c.metrics.RecordRPCCall("GetAccountInfo", statusOf(err), c.endpoint, time.Since(start).Seconds())
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", address, err)
	}
	if acc == nil || acc.Value == nil || acc.Value.Data == nil {
		return nil, nil
	}
	return acc.Value.Data.GetBinary(), nil
}

func isLegacyDecodeError(err error) bool {
	return strings.Contains(err.Error(), "expects '\"' or 'n', but found '{'")
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
