package pass

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPass(wallet string) *Pass {
	return &Pass{
		WalletAddress: wallet,
		MintAddress:   "8FE27ioQh3T7o22QsYVT5Re8NnHFqmFNbdqwiF3ywuZQ",
		Tier:          "founder",
		AcquiredAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := NewStore(t.TempDir(), logger)
	defer store.Close()

	ctx := context.Background()
	p := testPass("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")

	require.NoError(t, store.Save(ctx, p))

	got, err := store.Get(ctx, p.WalletAddress)
	require.NoError(t, err)
	assert.Equal(t, p.MintAddress, got.MintAddress)
	assert.Equal(t, p.Tier, got.Tier)

	require.NoError(t, store.Delete(ctx, p.WalletAddress))
	_, err = store.Get(ctx, p.WalletAddress)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStoreUpsertOverwrites(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := NewStore(t.TempDir(), logger)
	defer store.Close()

	ctx := context.Background()
	p := testPass("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	require.NoError(t, store.Save(ctx, p))

	p.Tier = "member"
	require.NoError(t, store.Save(ctx, p))

	got, err := store.Get(ctx, p.WalletAddress)
	require.NoError(t, err)
	assert.Equal(t, "member", got.Tier)
}

func TestMemoryStoreFallbackBehavior(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()

	_, err := store.Get(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	p := testPass("wallet-1")
	require.NoError(t, store.Save(ctx, p))

	got, err := store.Get(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, p.Tier, got.Tier)

	// Deleting a missing pass is not an error, matching the badger store.
	assert.NoError(t, store.Delete(ctx, "unknown"))
}
