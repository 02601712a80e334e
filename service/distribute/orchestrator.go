package distribute

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/solspray/solspray/service/metrics"
)

// RunRecorder persists run and batch outcomes. All methods are best
// effort from the orchestrator's perspective: persistence failures are
// logged and never change the run outcome.
type RunRecorder interface {
	StartRun(ctx context.Context, runID, walletAddress string, asset AssetSelection, totalRecipients, totalBatches int) error
	RecordBatch(ctx context.Context, runID string, batchIndex int, signature string, recipients []string, batchErr error) error
	FinishRun(ctx context.Context, runID string, status Status, completed, failed []string) error
}

// Request describes one distribution run.
type Request struct {
	RunID      string
	Sender     solana.PublicKey
	Recipients []Recipient
	Asset      AssetSelection
}

// Result is the final outcome of a run. Signatures holds one entry per
// batch, empty where the batch failed. BatchErrors holds the per-batch
// submission errors in batch order.
type Result struct {
	RunID       string
	Status      Status
	Progress    Progress
	Signatures  []string
	BatchErrors []*SubmissionError
}

// Orchestrator drives a distribution run through the
// IDLE -> PREPARING -> SENDING -> {COMPLETED | FAILED} state machine.
// Batches are submitted strictly sequentially: each submission consumes a
// blockhash-anchored slot from the sender and concurrent submission could
// race those anchors. Failed batches are recorded and skipped past, never
// retried.
type Orchestrator struct {
	builder     *Builder
	anchor      AnchorProvider
	signer      Signer
	submitter   Submitter
	events      EventSink
	recorder    RunRecorder
	metrics     *metrics.Metrics
	logger      *slog.Logger
	maxPerBatch int
}

// NewOrchestrator creates an orchestrator. events, recorder, and m may be
// nil; the corresponding side channels are then skipped.
func NewOrchestrator(builder *Builder, anchor AnchorProvider, signer Signer, submitter Submitter, events EventSink, recorder RunRecorder, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		builder:     builder,
		anchor:      anchor,
		signer:      signer,
		submitter:   submitter,
		events:      events,
		recorder:    recorder,
		metrics:     m,
		logger:      logger,
		maxPerBatch: MaxInstructionsPerTx,
	}
}

// Run executes one distribution. It returns a non-nil error only for
// run-level failures (validation, preflight, signing); per-batch failures
// are reported through Result.Status and Result.BatchErrors. Cancellation
// is honored between batch boundaries: the batch in flight completes, the
// remaining batches are recorded failed.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if o.signer == nil {
		return nil, &ValidationError{Reason: "no signer available"}
	}

	eligible := eligibleRecipients(req.Recipients)
	if len(eligible) == 0 {
		return nil, &ValidationError{Reason: "no recipient with a valid address and positive amount"}
	}

	res := &Result{
		RunID:  req.RunID,
		Status: StatusPreparing,
		Progress: Progress{
			Total: len(eligible),
		},
	}

	o.logger.InfoContext(ctx, "preparing distribution",
		"run_id", req.RunID,
		"sender", req.Sender.String(),
		"asset", req.Asset.Type,
		"recipients", len(eligible),
	)

	instructions, err := o.builder.Build(ctx, req.Sender, eligible, req.Asset)
	if err != nil {
		res.Status = StatusFailed
		pErr := &PreflightError{Err: err}
		o.finishRun(ctx, req, res, pErr)
		return res, pErr
	}

	batches := BatchInstructions(instructions, o.maxPerBatch)
	res.Progress.TotalBatches = len(batches)

	// Each batch gets its own fresh blockhash so later batches do not
	// expire while earlier ones await confirmation.
	txs := make([]*solana.Transaction, len(batches))
	for i, batch := range batches {
		blockhash, err := o.anchor.LatestBlockhash(ctx)
		if err != nil {
			res.Status = StatusFailed
			pErr := &PreflightError{Err: fmt.Errorf("batch %d: failed to get blockhash: %w", i, err)}
			o.finishRun(ctx, req, res, pErr)
			return res, pErr
		}

		ixs := make([]solana.Instruction, len(batch))
		for j, in := range batch {
			ixs[j] = in.Ix
		}
		tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(req.Sender))
		if err != nil {
			res.Status = StatusFailed
			pErr := &PreflightError{Err: fmt.Errorf("batch %d: failed to assemble transaction: %w", i, err)}
			o.finishRun(ctx, req, res, pErr)
			return res, pErr
		}
		txs[i] = tx
	}

	res.Status = StatusSending
	if o.recorder != nil {
		if err := o.recorder.StartRun(ctx, req.RunID, req.Sender.String(), req.Asset, len(eligible), len(batches)); err != nil {
			o.logger.WarnContext(ctx, "failed to record run start", "run_id", req.RunID, "error", err)
		}
	}
	o.publish(ctx, req, res, &ProgressEvent{Kind: "run.started"})

	// One combined signing call over the whole ordered batch list. The
	// signer signs all or none.
	signed, err := o.signer.SignAll(ctx, txs)
	if err != nil {
		res.Status = StatusFailed
		for _, r := range eligible {
			res.Progress.Failed = append(res.Progress.Failed, r.Address)
		}
		sErr := &SigningError{Err: err}
		o.finishRun(ctx, req, res, sErr)
		return res, sErr
	}

	res.Signatures = make([]string, len(batches))
	for i, batch := range batches {
		addrs := batchRecipients(batch, eligible)
		res.Progress.CurrentBatch = i + 1

		if err := ctx.Err(); err != nil {
			o.logger.WarnContext(ctx, "run cancelled, abandoning remaining batches",
				"run_id", req.RunID,
				"batch", i,
			)
			o.failBatch(ctx, req, res, i, addrs, fmt.Errorf("run cancelled: %w", err))
			for j := i + 1; j < len(batches); j++ {
				o.failBatch(ctx, req, res, j, batchRecipients(batches[j], eligible), fmt.Errorf("run cancelled: %w", err))
			}
			break
		}

		start := time.Now()
		sig, err := o.submitter.SubmitAndConfirm(ctx, signed[i])
		if o.metrics != nil {
			status := "confirmed"
			if err != nil {
				status = "failed"
			}
			o.metrics.RecordBatchSubmission(string(req.Asset.Type), status, time.Since(start).Seconds())
		}

		if err != nil {
			o.logger.ErrorContext(ctx, "batch submission failed",
				"run_id", req.RunID,
				"batch", i,
				"recipients", len(addrs),
				"error", err,
			)
			o.failBatch(ctx, req, res, i, addrs, err)
			continue
		}

		res.Signatures[i] = sig.String()
		res.Progress.Completed = append(res.Progress.Completed, addrs...)
		res.Progress.Current = len(res.Progress.Completed)

		o.logger.InfoContext(ctx, "batch confirmed",
			"run_id", req.RunID,
			"batch", i,
			"signature", sig.String(),
			"recipients", len(addrs),
		)
		if o.recorder != nil {
			if err := o.recorder.RecordBatch(ctx, req.RunID, i, sig.String(), addrs, nil); err != nil {
				o.logger.WarnContext(ctx, "failed to record batch", "run_id", req.RunID, "batch", i, "error", err)
			}
		}
		o.publish(ctx, req, res, &ProgressEvent{Kind: "batch.confirmed", BatchIndex: i, Signature: sig.String()})
	}

	if len(res.Progress.Failed) == 0 {
		res.Status = StatusCompleted
	} else {
		res.Status = StatusFailed
	}
	o.finishRun(ctx, req, res, nil)

	o.logger.InfoContext(ctx, "distribution finished",
		"run_id", req.RunID,
		"status", res.Status,
		"completed", len(res.Progress.Completed),
		"failed", len(res.Progress.Failed),
	)
	if o.metrics != nil {
		o.metrics.RecordDistributionRun(string(req.Asset.Type), string(res.Status))
	}

	return res, nil
}

// failBatch records one batch failure against its recipients and moves on.
func (o *Orchestrator) failBatch(ctx context.Context, req Request, res *Result, batchIndex int, addrs []string, err error) {
	subErr := &SubmissionError{BatchIndex: batchIndex, Recipients: addrs, Err: err}
	res.BatchErrors = append(res.BatchErrors, subErr)
	res.Progress.Failed = append(res.Progress.Failed, addrs...)
	res.Progress.Current = len(res.Progress.Completed)

	if o.recorder != nil {
		if rErr := o.recorder.RecordBatch(ctx, req.RunID, batchIndex, "", addrs, err); rErr != nil {
			o.logger.WarnContext(ctx, "failed to record batch", "run_id", req.RunID, "batch", batchIndex, "error", rErr)
		}
	}
	o.publish(ctx, req, res, &ProgressEvent{Kind: "batch.failed", BatchIndex: batchIndex, Error: err.Error()})
}

func (o *Orchestrator) finishRun(ctx context.Context, req Request, res *Result, runErr error) {
	ev := &ProgressEvent{Kind: "run.finished"}
	if runErr != nil {
		ev.Error = runErr.Error()
	}
	if o.recorder != nil {
		if err := o.recorder.FinishRun(ctx, req.RunID, res.Status, res.Progress.Completed, res.Progress.Failed); err != nil {
			o.logger.WarnContext(ctx, "failed to record run finish", "run_id", req.RunID, "error", err)
		}
	}
	o.publish(ctx, req, res, ev)
}

// publish fills the event envelope with a snapshot of the current
// progress and hands it to the sink. Readers get copies: the
// orchestrator keeps mutating its own lists between batches.
func (o *Orchestrator) publish(ctx context.Context, req Request, res *Result, ev *ProgressEvent) {
	if o.events == nil {
		return
	}
	ev.RunID = req.RunID
	ev.Status = res.Status
	ev.WalletAddr = req.Sender.String()
	ev.AssetType = req.Asset.Type
	ev.Progress = Progress{
		Current:      res.Progress.Current,
		Total:        res.Progress.Total,
		Completed:    append([]string(nil), res.Progress.Completed...),
		Failed:       append([]string(nil), res.Progress.Failed...),
		CurrentBatch: res.Progress.CurrentBatch,
		TotalBatches: res.Progress.TotalBatches,
	}
	if err := o.events.PublishProgress(ctx, ev); err != nil {
		o.logger.WarnContext(ctx, "failed to publish progress event",
			"run_id", req.RunID,
			"kind", ev.Kind,
			"error", err,
		)
	}
}

// eligibleRecipients filters to recipients with a valid address and a
// positive amount, preserving order.
func eligibleRecipients(recipients []Recipient) []Recipient {
	var out []Recipient
	for _, r := range recipients {
		if r.IsValid && r.Amount > 0 {
			out = append(out, r)
		}
	}
	return out
}
