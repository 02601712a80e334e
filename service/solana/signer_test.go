package solana

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTransaction(t *testing.T, payer solana.PublicKey) *solana.Transaction {
	t.Helper()
	ix := system.NewTransferInstruction(1_000, payer, solana.NewWallet().PublicKey()).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{1}, solana.TransactionPayer(payer))
	require.NoError(t, err)
	return tx
}

func TestSignAll(t *testing.T) {
	wallet := solana.NewWallet()
	signer := NewLocalSigner(wallet.PrivateKey, slog.New(slog.NewTextHandler(io.Discard, nil)))

	txs := []*solana.Transaction{
		testTransaction(t, wallet.PublicKey()),
		testTransaction(t, wallet.PublicKey()),
	}

	signed, err := signer.SignAll(context.Background(), txs)
	require.NoError(t, err)
	require.Len(t, signed, 2)
	for _, tx := range signed {
		require.NotEmpty(t, tx.Signatures)
		assert.NoError(t, tx.VerifySignatures())
	}
}

func TestSignAllLeavesInputsUnsigned(t *testing.T) {
	wallet := solana.NewWallet()
	signer := NewLocalSigner(wallet.PrivateKey, slog.New(slog.NewTextHandler(io.Discard, nil)))

	good := testTransaction(t, wallet.PublicKey())
	bad := testTransaction(t, solana.NewWallet().PublicKey())

	// The second transaction has no matching key, so the call fails after
	// the first one was already processed. The inputs stay untouched.
	_, err := signer.SignAll(context.Background(), []*solana.Transaction{good, bad})
	require.Error(t, err)
	assert.Empty(t, good.Signatures)
	assert.Empty(t, bad.Signatures)

	// On success the signatures land on the returned copies only.
	signed, err := signer.SignAll(context.Background(), []*solana.Transaction{good})
	require.NoError(t, err)
	assert.Empty(t, good.Signatures)
	require.NotEmpty(t, signed[0].Signatures)
}

func TestSignAllWrongPayerFails(t *testing.T) {
	wallet := solana.NewWallet()
	signer := NewLocalSigner(wallet.PrivateKey, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Payer is a different wallet, so the signer has no matching key.
	txs := []*solana.Transaction{testTransaction(t, solana.NewWallet().PublicKey())}

	_, err := signer.SignAll(context.Background(), txs)
	assert.Error(t, err)
}

func TestSignAllCancelled(t *testing.T) {
	wallet := solana.NewWallet()
	signer := NewLocalSigner(wallet.PrivateKey, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := signer.SignAll(ctx, []*solana.Transaction{testTransaction(t, wallet.PublicKey())})
	assert.Error(t, err)
}

func TestPublicKey(t *testing.T) {
	wallet := solana.NewWallet()
	signer := NewLocalSigner(wallet.PrivateKey, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, wallet.PublicKey(), signer.PublicKey())
}
