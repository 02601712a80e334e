package distribute

import "fmt"

// ValidationError reports a submit request rejected before any state
// change: no signer available, or zero eligible recipients.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// PreflightError reports instruction construction failing before any
// submission. The run is marked failed with empty completed/failed lists,
// distinguishing it from per-recipient failures.
type PreflightError struct {
	Err error
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight failed: %v", e.Err)
}

func (e *PreflightError) Unwrap() error { return e.Err }

// SigningError reports the signer rejecting the whole batch set. No batch
// was submitted; all recipients are recorded failed.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signing failed: %v", e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// SubmissionError reports a single batch rejected by the network or by
// on-chain execution. It is recorded against that batch's recipients
// only; the run continues with the next batch.
type SubmissionError struct {
	BatchIndex int
	Recipients []string
	Err        error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("batch %d failed (%d recipients): %v", e.BatchIndex, len(e.Recipients), e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
