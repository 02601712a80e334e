package distribute

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// AssetType identifies which asset a distribution moves.
type AssetType string

const (
	AssetSOL   AssetType = "sol"
	AssetToken AssetType = "spl-token"
)

// Token describes an SPL token selected for distribution.
// Balance is refreshed by an external query and is expressed in whole
// tokens (not base units). Symbol, Name and LogoURI are display-only.
type Token struct {
	MintAddress string   `json:"mint_address"`
	Decimals    uint8    `json:"decimals"`
	Balance     *float64 `json:"balance,omitempty"`
	Symbol      string   `json:"symbol,omitempty"`
	Name        string   `json:"name,omitempty"`
	LogoURI     string   `json:"logo_uri,omitempty"`
}

// AssetSelection is a tagged union: either native SOL or a specific token.
// When Type is AssetToken, Token must be set before any cost or
// instruction computation is attempted.
type AssetSelection struct {
	Type  AssetType `json:"type"`
	Token *Token    `json:"token,omitempty"`
}

// Recipient is an address/amount pair targeted for a transfer.
// IsValid is recomputed on every address mutation and is always in sync
// with the current Address value at read time.
type Recipient struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
	IsValid bool    `json:"is_valid"`
}

// Progress tracks a submission run. Completed and Failed are append-only
// within one run; an address appears in at most one of the two lists.
// Current counts settled recipients only, so at the end of a run
// Current + len(Failed) == Total.
type Progress struct {
	Current      int      `json:"current"`
	Total        int      `json:"total"`
	Completed    []string `json:"completed"`
	Failed       []string `json:"failed"`
	CurrentBatch int      `json:"current_batch"`
	TotalBatches int      `json:"total_batches"`
}

// SummaryData is a derived, read-only snapshot of a pending distribution.
// It is recomputed from recipient/asset state and never independently
// mutated.
type SummaryData struct {
	Recipients      int            `json:"recipients"`
	ValidRecipients int            `json:"valid_recipients"`
	TotalCost       float64        `json:"total_cost"`
	NetworkFees     float64        `json:"network_fees"`
	WalletBalance   float64        `json:"wallet_balance"`
	IsReady         bool           `json:"is_ready"`
	AssetSelection  AssetSelection `json:"asset_selection"`
}

// Status is the orchestrator state machine state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPreparing Status = "preparing"
	StatusSending   Status = "sending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// AddressValidator reports whether a string is a well-formed address.
// It must be pure and total: no side effects, no panics.
type AddressValidator func(address string) bool

// AccountInfo is the result of an account lookup.
type AccountInfo struct {
	Exists   bool
	Lamports uint64
}

// ChainQuerier is the read-only account/balance lookup collaborator.
// Lookups may fail with network errors; callers fall back to the
// conservative assumption (account missing, funding required).
type ChainQuerier interface {
	GetAccount(ctx context.Context, address solana.PublicKey) (AccountInfo, error)
}

// AnchorProvider supplies a fresh blockhash, the per-batch ordering token
// required for transaction validity.
type AnchorProvider interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
}

// Signer signs an ordered list of unsigned transactions. It either signs
// all of them, preserving order, or fails the whole request; partial
// signing is not permitted.
type Signer interface {
	SignAll(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error)
}

// Submitter submits one signed transaction and blocks until the network
// confirms or rejects it.
type Submitter interface {
	SubmitAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// EventSink receives structured progress events from the orchestrator.
// Publishing failures are logged and never fail a run.
type EventSink interface {
	PublishProgress(ctx context.Context, event *ProgressEvent) error
}

// ProgressEvent is emitted after run start, after every batch, and at run
// end. The presentation layer renders these; the core never renders.
type ProgressEvent struct {
	RunID      string    `json:"run_id"`
	Kind       string    `json:"kind"` // run.started, batch.confirmed, batch.failed, run.finished
	Status     Status    `json:"status"`
	BatchIndex int       `json:"batch_index,omitempty"`
	Signature  string    `json:"signature,omitempty"`
	Error      string    `json:"error,omitempty"`
	Progress   Progress  `json:"progress"`
	WalletAddr string    `json:"wallet_address"`
	AssetType  AssetType `json:"asset_type"`
}
