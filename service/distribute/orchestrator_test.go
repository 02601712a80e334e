package distribute

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAnchor struct {
	calls int
	err   error
}

func (m *mockAnchor) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	m.calls++
	if m.err != nil {
		return solana.Hash{}, m.err
	}
	var h solana.Hash
	h[0] = byte(m.calls) // distinct hash per batch
	return h, nil
}

type mockSigner struct {
	err error
}

func (m *mockSigner) SignAll(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error) {
	if m.err != nil {
		return nil, m.err
	}
	return txs, nil
}

// mockSubmitter confirms every batch except the indexes listed in failAt.
// onSubmit, when set, runs before each submission; tests use it to cancel
// the run context mid-flight.
type mockSubmitter struct {
	calls    int
	failAt   map[int]error
	onSubmit func(call int)
}

func (m *mockSubmitter) SubmitAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	call := m.calls
	m.calls++
	if m.onSubmit != nil {
		m.onSubmit(call)
	}
	if err, ok := m.failAt[call]; ok {
		return solana.Signature{}, err
	}
	var sig solana.Signature
	sig[0] = byte(call + 1)
	return sig, nil
}

type mockSink struct {
	mu     sync.Mutex
	events []*ProgressEvent
	err    error
}

func (m *mockSink) PublishProgress(ctx context.Context, event *ProgressEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	copied := *event
	m.events = append(m.events, &copied)
	return nil
}

func (m *mockSink) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Kind
	}
	return out
}

type recordedBatch struct {
	index      int
	signature  string
	recipients []string
	err        error
}

type mockRecorder struct {
	mu       sync.Mutex
	started  bool
	batches  []recordedBatch
	finished bool
	status   Status
}

func (m *mockRecorder) StartRun(ctx context.Context, runID, walletAddress string, asset AssetSelection, totalRecipients, totalBatches int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

func (m *mockRecorder) RecordBatch(ctx context.Context, runID string, batchIndex int, signature string, recipients []string, batchErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, recordedBatch{index: batchIndex, signature: signature, recipients: recipients, err: batchErr})
	return nil
}

func (m *mockRecorder) FinishRun(ctx context.Context, runID string, status Status, completed, failed []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = true
	m.status = status
	return nil
}

type orchestratorFixture struct {
	orch      *Orchestrator
	anchor    *mockAnchor
	signer    *mockSigner
	submitter *mockSubmitter
	sink      *mockSink
	recorder  *mockRecorder
	sender    solana.PublicKey
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	chain := newMockChain()
	builder := newTestBuilder(chain, fundedFeeCollector(chain))

	f := &orchestratorFixture{
		anchor:    &mockAnchor{},
		signer:    &mockSigner{},
		submitter: &mockSubmitter{failAt: make(map[int]error)},
		sink:      &mockSink{},
		recorder:  &mockRecorder{},
		sender:    solana.NewWallet().PublicKey(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.orch = NewOrchestrator(builder, f.anchor, f.signer, f.submitter, f.sink, f.recorder, nil, logger)
	return f
}

func TestRunCompletes(t *testing.T) {
	f := newOrchestratorFixture(t)
	recipients := solRecipients(10) // 20 instructions, 3 batches

	res, err := f.orch.Run(context.Background(), Request{
		RunID:      "run-1",
		Sender:     f.sender,
		Recipients: recipients,
		Asset:      AssetSelection{Type: AssetSOL},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 3, res.Progress.TotalBatches)
	assert.Equal(t, 10, res.Progress.Total)
	assert.Equal(t, 10, res.Progress.Current)
	assert.Len(t, res.Progress.Completed, 10)
	assert.Empty(t, res.Progress.Failed)
	assert.Empty(t, res.BatchErrors)

	require.Len(t, res.Signatures, 3)
	for i, sig := range res.Signatures {
		assert.NotEmpty(t, sig, "batch %d", i)
	}

	// One fresh blockhash per batch.
	assert.Equal(t, 3, f.anchor.calls)

	assert.Equal(t,
		[]string{"run.started", "batch.confirmed", "batch.confirmed", "batch.confirmed", "run.finished"},
		f.sink.kinds(),
	)
	assert.True(t, f.recorder.started)
	assert.True(t, f.recorder.finished)
	assert.Equal(t, StatusCompleted, f.recorder.status)
}

func TestRunContinuesPastFailedBatch(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.submitter.failAt[1] = fmt.Errorf("blockhash expired")
	recipients := solRecipients(10)

	res, err := f.orch.Run(context.Background(), Request{
		RunID:      "run-2",
		Sender:     f.sender,
		Recipients: recipients,
		Asset:      AssetSelection{Type: AssetSOL},
	})
	require.NoError(t, err) // per-batch failures are not run-level errors

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 3, f.submitter.calls, "later batches still submitted")

	// Batch 1 carries recipients 4..7: its transfer instructions land
	// there after batch 0 takes transfers 0..3 (two ops per recipient).
	require.Len(t, res.BatchErrors, 1)
	assert.Equal(t, 1, res.BatchErrors[0].BatchIndex)
	assert.Len(t, res.BatchErrors[0].Recipients, 4)

	assert.Len(t, res.Progress.Failed, 4)
	assert.Len(t, res.Progress.Completed, 6)
	assert.Equal(t, 6, res.Progress.Current, "current counts settled recipients only")
	assert.Equal(t, res.Progress.Total, res.Progress.Current+len(res.Progress.Failed))

	// No address lands in both lists.
	seen := make(map[string]bool)
	for _, a := range res.Progress.Completed {
		seen[a] = true
	}
	for _, a := range res.Progress.Failed {
		assert.False(t, seen[a], "address %s in both lists", a)
	}

	assert.Empty(t, res.Signatures[1])
	assert.NotEmpty(t, res.Signatures[0])
	assert.NotEmpty(t, res.Signatures[2])

	assert.Equal(t,
		[]string{"run.started", "batch.confirmed", "batch.failed", "batch.confirmed", "run.finished"},
		f.sink.kinds(),
	)
}

func TestRunSigningFailureFailsAllRecipients(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.signer.err = fmt.Errorf("keypair mismatch")
	recipients := solRecipients(5)

	res, err := f.orch.Run(context.Background(), Request{
		RunID:      "run-3",
		Sender:     f.sender,
		Recipients: recipients,
		Asset:      AssetSelection{Type: AssetSOL},
	})
	require.Error(t, err)

	var sErr *SigningError
	require.ErrorAs(t, err, &sErr)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Len(t, res.Progress.Failed, 5)
	assert.Empty(t, res.Progress.Completed)
	assert.Equal(t, 0, res.Progress.Current)
	assert.Equal(t, res.Progress.Total, res.Progress.Current+len(res.Progress.Failed))
	assert.Equal(t, 0, f.submitter.calls, "nothing submitted after a signing failure")
}

func TestRunNoSigner(t *testing.T) {
	chain := newMockChain()
	builder := newTestBuilder(chain, fundedFeeCollector(chain))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := NewOrchestrator(builder, &mockAnchor{}, nil, &mockSubmitter{}, nil, nil, nil, logger)

	_, err := orch.Run(context.Background(), Request{Recipients: solRecipients(1), Asset: AssetSelection{Type: AssetSOL}})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestRunNoEligibleRecipients(t *testing.T) {
	f := newOrchestratorFixture(t)

	recipients := []Recipient{
		{Address: solana.NewWallet().PublicKey().String(), Amount: 0, IsValid: true},
		{Address: "junk", Amount: 5, IsValid: false},
	}
	_, err := f.orch.Run(context.Background(), Request{
		RunID:      "run-4",
		Sender:     f.sender,
		Recipients: recipients,
		Asset:      AssetSelection{Type: AssetSOL},
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 0, f.submitter.calls)
	assert.Empty(t, f.sink.kinds(), "no events before validation passes")
}

func TestRunPreflightFailure(t *testing.T) {
	f := newOrchestratorFixture(t)

	// A token selection without token details fails instruction building.
	res, err := f.orch.Run(context.Background(), Request{
		RunID:      "run-5",
		Sender:     f.sender,
		Recipients: solRecipients(2),
		Asset:      AssetSelection{Type: AssetToken},
	})
	require.Error(t, err)

	var pErr *PreflightError
	require.ErrorAs(t, err, &pErr)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Empty(t, res.Progress.Completed)
	assert.Empty(t, res.Progress.Failed)
	assert.Equal(t, 0, f.submitter.calls)

	// The finish event still fires so watchers see the terminal state.
	assert.Equal(t, []string{"run.finished"}, f.sink.kinds())
}

func TestRunBlockhashFailureIsPreflight(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.anchor.err = fmt.Errorf("rpc down")

	_, err := f.orch.Run(context.Background(), Request{
		RunID:      "run-6",
		Sender:     f.sender,
		Recipients: solRecipients(2),
		Asset:      AssetSelection{Type: AssetSOL},
	})

	var pErr *PreflightError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, 0, f.submitter.calls)
}

func TestRunCancellationBetweenBatches(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	// Cancel while the first batch is in flight; it completes, the rest
	// are recorded failed without submission.
	f.submitter.onSubmit = func(call int) {
		if call == 0 {
			cancel()
		}
	}

	recipients := solRecipients(10)
	res, err := f.orch.Run(ctx, Request{
		RunID:      "run-7",
		Sender:     f.sender,
		Recipients: recipients,
		Asset:      AssetSelection{Type: AssetSOL},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 1, f.submitter.calls)
	assert.Len(t, res.Progress.Completed, 4)
	assert.Len(t, res.Progress.Failed, 6)
	assert.Equal(t, 4, res.Progress.Current)
	assert.Equal(t, res.Progress.Total, res.Progress.Current+len(res.Progress.Failed))
	require.Len(t, res.BatchErrors, 2)
	assert.Equal(t, 1, res.BatchErrors[0].BatchIndex)
	assert.Equal(t, 2, res.BatchErrors[1].BatchIndex)
}

func TestRunEventPublishFailureDoesNotFailRun(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.sink.err = fmt.Errorf("nats unavailable")

	res, err := f.orch.Run(context.Background(), Request{
		RunID:      "run-8",
		Sender:     f.sender,
		Recipients: solRecipients(3),
		Asset:      AssetSelection{Type: AssetSOL},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
}

func TestRunRecordsBatchesWithRecorder(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.submitter.failAt[0] = fmt.Errorf("boom")

	res, err := f.orch.Run(context.Background(), Request{
		RunID:      "run-9",
		Sender:     f.sender,
		Recipients: solRecipients(5), // 10 instructions, 2 batches
		Asset:      AssetSelection{Type: AssetSOL},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)

	require.Len(t, f.recorder.batches, 2)
	assert.Error(t, f.recorder.batches[0].err)
	assert.Empty(t, f.recorder.batches[0].signature)
	assert.NoError(t, f.recorder.batches[1].err)
	assert.NotEmpty(t, f.recorder.batches[1].signature)
	assert.Equal(t, StatusFailed, f.recorder.status)
}
