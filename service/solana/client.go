package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/solspray/solspray/service/distribute"
	"github.com/solspray/solspray/service/metrics"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real
// Solana nodes.
type RPCClient interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)

	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)

	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)

	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)

	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)

	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// Client wraps the RPC client with the account, anchor, and submission
// operations the distribution core consumes. It satisfies
// distribute.ChainQuerier, distribute.AnchorProvider, and
// distribute.Submitter.
type Client struct {
	rpc             RPCClient
	logger          *slog.Logger
	metrics         *metrics.Metrics
	confirmTimeout  time.Duration
	confirmInterval time.Duration
}

// NewClient creates a new Solana client. If m is nil, no metrics are
// recorded.
func NewClient(rpcClient RPCClient, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:             rpcClient,
		logger:          logger,
		metrics:         m,
		confirmTimeout:  60 * time.Second,
		confirmInterval: 2 * time.Second,
	}
}

// SetConfirmTimeout overrides how long SubmitAndConfirm waits for a
// confirmation before giving up on a batch.
func (c *Client) SetConfirmTimeout(d time.Duration) {
	c.confirmTimeout = d
}

// GetAccount looks up an account's existence and lamport balance.
// A not-found response is not an error; it reports Exists=false.
func (c *Client) GetAccount(ctx context.Context, address solana.PublicKey) (distribute.AccountInfo, error) {
	start := time.Now()
	info, err := c.rpc.GetAccountInfo(ctx, address)
	c.recordRPC("GetAccountInfo", err, start)

	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return distribute.AccountInfo{Exists: false}, nil
		}
		return distribute.AccountInfo{}, fmt.Errorf("failed to get account info for %s: %w", address, err)
	}
	if info == nil || info.Value == nil {
		return distribute.AccountInfo{Exists: false}, nil
	}
	return distribute.AccountInfo{Exists: true, Lamports: info.Value.Lamports}, nil
}

// GetBalanceSOL returns the native balance of an account in SOL.
func (c *Client) GetBalanceSOL(ctx context.Context, address solana.PublicKey) (float64, error) {
	start := time.Now()
	res, err := c.rpc.GetBalance(ctx, address, rpc.CommitmentFinalized)
	c.recordRPC("GetBalance", err, start)

	if err != nil {
		return 0, fmt.Errorf("failed to get balance for %s: %w", address, err)
	}
	return float64(res.Value) / distribute.LamportsPerSOL, nil
}

// GetTokenBalance returns the base-unit balance of a token account.
// A missing account reports a zero balance rather than an error.
func (c *Client) GetTokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error) {
	start := time.Now()
	res, err := c.rpc.GetTokenAccountBalance(ctx, tokenAccount, rpc.CommitmentFinalized)
	c.recordRPC("GetTokenAccountBalance", err, start)

	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get token balance for %s: %w", tokenAccount, err)
	}
	if res.Value == nil || res.Value.Amount == "" {
		return 0, nil
	}

	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token amount %q: %w", res.Value.Amount, err)
	}
	return amount, nil
}

// LatestBlockhash returns a fresh blockhash to anchor one batch.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	start := time.Now()
	res, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	c.recordRPC("GetLatestBlockhash", err, start)

	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	return res.Value.Blockhash, nil
}

// SubmitAndConfirm sends a signed transaction and blocks until the
// network confirms it, reports an on-chain error, or the confirmation
// timeout elapses.
func (c *Client) SubmitAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	start := time.Now()
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: rpc.CommitmentFinalized,
	})
	c.recordRPC("SendTransaction", err, start)

	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	c.logger.DebugContext(ctx, "transaction submitted, awaiting confirmation",
		"signature", sig.String(),
	)

	deadline := time.NewTimer(c.confirmTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(c.confirmInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return sig, fmt.Errorf("confirmation wait cancelled for %s: %w", sig, ctx.Err())
		case <-deadline.C:
			return sig, fmt.Errorf("transaction %s not confirmed within %s", sig, c.confirmTimeout)
		case <-tick.C:
		}

		statusStart := time.Now()
		res, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		c.recordRPC("GetSignatureStatuses", err, statusStart)
		if err != nil {
			// Transient status-poll failures are not submission failures;
			// keep polling until the deadline.
			c.logger.WarnContext(ctx, "failed to poll signature status",
				"signature", sig.String(),
				"error", err,
			)
			continue
		}
		if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
			continue
		}

		status := res.Value[0]
		if status.Err != nil {
			return sig, fmt.Errorf("transaction %s failed on-chain: %v", sig, status.Err)
		}
		switch status.ConfirmationStatus {
		case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
			c.logger.DebugContext(ctx, "transaction confirmed",
				"signature", sig.String(),
				"status", status.ConfirmationStatus,
			)
			return sig, nil
		}
	}
}

func (c *Client) recordRPC(method string, err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, time.Since(start).Seconds())
}
