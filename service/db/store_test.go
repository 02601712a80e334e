package db

import (
	"context"
	"testing"

	"github.com/solspray/solspray/service/distribute"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLifecycle(t *testing.T) {
	ts := NewTestStore(t)
	defer ts.Close()
	ts.Cleanup(t)

	ctx := context.Background()

	asset := distribute.AssetSelection{Type: distribute.AssetSOL}
	err := ts.StartRun(ctx, "run-1", "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin", asset, 10, 3)
	require.NoError(t, err)

	require.NoError(t, ts.RecordBatch(ctx, "run-1", 0, "sig-0", []string{"addr-a", "addr-b"}, nil))
	require.NoError(t, ts.RecordBatch(ctx, "run-1", 1, "", []string{"addr-c"}, assert.AnError))

	err = ts.FinishRun(ctx, "run-1", distribute.StatusFailed, []string{"addr-a", "addr-b"}, []string{"addr-c"})
	require.NoError(t, err)

	run, err := ts.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, string(distribute.StatusFailed), run.Status)
	assert.Equal(t, 10, run.TotalRecipients)
	assert.Equal(t, 3, run.TotalBatches)
	assert.Equal(t, []string{"addr-a", "addr-b"}, run.Completed)
	assert.Equal(t, []string{"addr-c"}, run.Failed)
	assert.NotNil(t, run.FinishedAt)

	batches, err := ts.ListBatches(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "confirmed", batches[0].Status)
	require.NotNil(t, batches[0].Signature)
	assert.Equal(t, "sig-0", *batches[0].Signature)
	assert.Equal(t, "failed", batches[1].Status)
	assert.Nil(t, batches[1].Signature)
	require.NotNil(t, batches[1].Error)
}

func TestGetRunNotFound(t *testing.T) {
	ts := NewTestStore(t)
	defer ts.Close()
	ts.Cleanup(t)

	_, err := ts.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRunsFiltersByWallet(t *testing.T) {
	ts := NewTestStore(t)
	defer ts.Close()
	ts.Cleanup(t)

	ctx := context.Background()
	asset := distribute.AssetSelection{Type: distribute.AssetSOL}

	require.NoError(t, ts.StartRun(ctx, "run-a", "wallet-1", asset, 1, 1))
	require.NoError(t, ts.StartRun(ctx, "run-b", "wallet-2", asset, 1, 1))

	runs, err := ts.ListRuns(ctx, "wallet-1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-a", runs[0].ID)

	all, err := ts.ListRuns(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
