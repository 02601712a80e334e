package solana

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPC is a scriptable RPCClient. Each field holds the canned response
// for one method; statusSeq lets SubmitAndConfirm tests step through a
// confirmation sequence.
type mockRPC struct {
	mu sync.Mutex

	accountInfo    *rpc.GetAccountInfoResult
	accountInfoErr error

	balance    *rpc.GetBalanceResult
	balanceErr error

	tokenBalance    *rpc.GetTokenAccountBalanceResult
	tokenBalanceErr error

	blockhash    *rpc.GetLatestBlockhashResult
	blockhashErr error

	sendSig solana.Signature
	sendErr error

	statusSeq []statusStep
	statusIdx int
}

type statusStep struct {
	res *rpc.GetSignatureStatusesResult
	err error
}

func (m *mockRPC) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	return m.accountInfo, m.accountInfoErr
}

func (m *mockRPC) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	return m.balance, m.balanceErr
}

func (m *mockRPC) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	return m.tokenBalance, m.tokenBalanceErr
}

func (m *mockRPC) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return m.blockhash, m.blockhashErr
}

func (m *mockRPC) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	return m.sendSig, m.sendErr
}

func (m *mockRPC) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.statusSeq) == 0 {
		return &rpc.GetSignatureStatusesResult{}, nil
	}
	step := m.statusSeq[m.statusIdx]
	if m.statusIdx < len(m.statusSeq)-1 {
		m.statusIdx++
	}
	return step.res, step.err
}

func newTestClient(m *mockRPC) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewClient(m, nil, logger)
	c.confirmTimeout = 500 * time.Millisecond
	c.confirmInterval = 10 * time.Millisecond
	return c
}

func statusResult(status rpc.ConfirmationStatusType, txErr any) *rpc.GetSignatureStatusesResult {
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{
			{ConfirmationStatus: status, Err: txErr},
		},
	}
}

func TestGetAccountNotFound(t *testing.T) {
	client := newTestClient(&mockRPC{accountInfoErr: rpc.ErrNotFound})

	info, err := client.GetAccount(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.False(t, info.Exists)
}

func TestGetAccountExists(t *testing.T) {
	client := newTestClient(&mockRPC{
		accountInfo: &rpc.GetAccountInfoResult{
			Value: &rpc.Account{Lamports: 12345},
		},
	})

	info, err := client.GetAccount(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Equal(t, uint64(12345), info.Lamports)
}

func TestGetAccountRPCError(t *testing.T) {
	client := newTestClient(&mockRPC{accountInfoErr: fmt.Errorf("rpc timeout")})

	_, err := client.GetAccount(context.Background(), solana.NewWallet().PublicKey())
	assert.Error(t, err)
}

func TestGetBalanceSOL(t *testing.T) {
	client := newTestClient(&mockRPC{
		balance: &rpc.GetBalanceResult{Value: 2_500_000_000},
	})

	balance, err := client.GetBalanceSOL(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, 2.5, balance)
}

func TestGetTokenBalance(t *testing.T) {
	client := newTestClient(&mockRPC{
		tokenBalance: &rpc.GetTokenAccountBalanceResult{
			Value: &rpc.UiTokenAmount{Amount: "123456789"},
		},
	})

	amount, err := client.GetTokenBalance(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(123456789), amount)
}

func TestGetTokenBalanceMissingAccount(t *testing.T) {
	client := newTestClient(&mockRPC{tokenBalanceErr: rpc.ErrNotFound})

	amount, err := client.GetTokenBalance(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), amount)
}

func TestSubmitAndConfirm(t *testing.T) {
	var sig solana.Signature
	sig[0] = 7

	client := newTestClient(&mockRPC{
		sendSig: sig,
		statusSeq: []statusStep{
			{res: &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}},
			{res: statusResult(rpc.ConfirmationStatusProcessed, nil)},
			{res: statusResult(rpc.ConfirmationStatusConfirmed, nil)},
		},
	})

	got, err := client.SubmitAndConfirm(context.Background(), &solana.Transaction{})
	require.NoError(t, err)
	assert.Equal(t, sig, got)
}

func TestSubmitAndConfirmOnChainFailure(t *testing.T) {
	client := newTestClient(&mockRPC{
		statusSeq: []statusStep{
			{res: statusResult(rpc.ConfirmationStatusProcessed, map[string]any{"InstructionError": []any{0, "Custom"}})},
		},
	})

	_, err := client.SubmitAndConfirm(context.Background(), &solana.Transaction{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed on-chain")
}

func TestSubmitAndConfirmSendFailure(t *testing.T) {
	client := newTestClient(&mockRPC{sendErr: fmt.Errorf("blockhash not found")})

	_, err := client.SubmitAndConfirm(context.Background(), &solana.Transaction{})
	assert.Error(t, err)
}

func TestSubmitAndConfirmTimeout(t *testing.T) {
	// Status never resolves; the confirm deadline fires.
	client := newTestClient(&mockRPC{
		statusSeq: []statusStep{
			{res: &rpc.GetSignatureStatusesResult{}},
		},
	})

	_, err := client.SubmitAndConfirm(context.Background(), &solana.Transaction{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not confirmed within")
}

func TestSubmitAndConfirmSurvivesPollErrors(t *testing.T) {
	// A transient poll failure is retried, not treated as a submission
	// failure.
	client := newTestClient(&mockRPC{
		statusSeq: []statusStep{
			{err: fmt.Errorf("rpc hiccup")},
			{res: statusResult(rpc.ConfirmationStatusFinalized, nil)},
		},
	})

	_, err := client.SubmitAndConfirm(context.Background(), &solana.Transaction{})
	assert.NoError(t, err)
}

func TestSubmitAndConfirmCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(&mockRPC{
		statusSeq: []statusStep{
			{res: &rpc.GetSignatureStatusesResult{}},
		},
	})

	_, err := client.SubmitAndConfirm(ctx, &solana.Transaction{})
	assert.Error(t, err)
}
