package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/solspray/solspray/service/distribute"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("not found")

// Store persists distribution runs and their batch outcomes. It
// implements distribute.RunRecorder.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Run is one distribution run as stored.
type Run struct {
	ID              string
	WalletAddress   string
	AssetType       string
	TokenMint       *string
	Status          string
	TotalRecipients int
	TotalBatches    int
	Completed       []string
	Failed          []string
	CreatedAt       time.Time
	FinishedAt      *time.Time
}

// Batch is one submitted batch as stored.
type Batch struct {
	RunID      string
	BatchIndex int
	Signature  *string
	Status     string
	Error      *string
	Recipients []string
	CreatedAt  time.Time
}

// Migrate creates the schema. The tables are small enough that idempotent
// DDL at startup replaces a migration tool.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS distribution_runs (
			id TEXT PRIMARY KEY,
			wallet_address TEXT NOT NULL,
			asset_type TEXT NOT NULL,
			token_mint TEXT,
			status TEXT NOT NULL,
			total_recipients INT NOT NULL,
			total_batches INT NOT NULL,
			completed TEXT[] NOT NULL DEFAULT '{}',
			failed TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			finished_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS distribution_batches (
			run_id TEXT NOT NULL REFERENCES distribution_runs(id) ON DELETE CASCADE,
			batch_index INT NOT NULL,
			signature TEXT,
			status TEXT NOT NULL,
			error TEXT,
			recipients TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (run_id, batch_index)
		);
		CREATE INDEX IF NOT EXISTS idx_runs_wallet ON distribution_runs(wallet_address);
	`)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// StartRun inserts a new run in sending state.
func (s *Store) StartRun(ctx context.Context, runID, walletAddress string, asset distribute.AssetSelection, totalRecipients, totalBatches int) error {
	var mint *string
	if asset.Type == distribute.AssetToken && asset.Token != nil {
		mint = &asset.Token.MintAddress
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO distribution_runs (id, wallet_address, asset_type, token_mint, status, total_recipients, total_batches)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		runID, walletAddress, string(asset.Type), mint, string(distribute.StatusSending), totalRecipients, totalBatches,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", runID, err)
	}
	return nil
}

// RecordBatch inserts one batch outcome.
func (s *Store) RecordBatch(ctx context.Context, runID string, batchIndex int, signature string, recipients []string, batchErr error) error {
	status := "confirmed"
	var sig, errText *string
	if signature != "" {
		sig = &signature
	}
	if batchErr != nil {
		status = "failed"
		msg := batchErr.Error()
		errText = &msg
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO distribution_batches (run_id, batch_index, signature, status, error, recipients)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, batch_index) DO UPDATE
		SET signature = EXCLUDED.signature, status = EXCLUDED.status, error = EXCLUDED.error, recipients = EXCLUDED.recipients`,
		runID, batchIndex, sig, status, errText, recipients,
	)
	if err != nil {
		return fmt.Errorf("failed to record batch %d of run %s: %w", batchIndex, runID, err)
	}
	return nil
}

// FinishRun stamps the final status and attribution lists.
func (s *Store) FinishRun(ctx context.Context, runID string, status distribute.Status, completed, failed []string) error {
	if completed == nil {
		completed = []string{}
	}
	if failed == nil {
		failed = []string{}
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE distribution_runs
		SET status = $2, completed = $3, failed = $4, finished_at = now()
		WHERE id = $1`,
		runID, string(status), completed, failed,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		// Preflight failures finish runs that never started recording.
		var mint *string
		_, err := s.pool.Exec(ctx, `
			INSERT INTO distribution_runs (id, wallet_address, asset_type, token_mint, status, total_recipients, total_batches, completed, failed, finished_at)
			VALUES ($1, '', '', $2, $3, 0, 0, $4, $5, now())
			ON CONFLICT (id) DO NOTHING`,
			runID, mint, string(status), completed, failed,
		)
		if err != nil {
			return fmt.Errorf("failed to record finished run %s: %w", runID, err)
		}
	}
	return nil
}

// GetRun fetches one run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, wallet_address, asset_type, token_mint, status, total_recipients, total_batches, completed, failed, created_at, finished_at
		FROM distribution_runs WHERE id = $1`,
		runID,
	)

	var r Run
	err := row.Scan(&r.ID, &r.WalletAddress, &r.AssetType, &r.TokenMint, &r.Status,
		&r.TotalRecipients, &r.TotalBatches, &r.Completed, &r.Failed, &r.CreatedAt, &r.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return &r, nil
}

// ListRuns lists runs for a wallet, newest first. An empty wallet lists
// all runs.
func (s *Store) ListRuns(ctx context.Context, walletAddress string, limit int32) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, wallet_address, asset_type, token_mint, status, total_recipients, total_batches, completed, failed, created_at, finished_at
		FROM distribution_runs
		WHERE ($1 = '' OR wallet_address = $1)
		ORDER BY created_at DESC
		LIMIT $2`,
		walletAddress, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.WalletAddress, &r.AssetType, &r.TokenMint, &r.Status,
			&r.TotalRecipients, &r.TotalBatches, &r.Completed, &r.Failed, &r.CreatedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// ListBatches lists the batches of one run in submission order.
func (s *Store) ListBatches(ctx context.Context, runID string) ([]*Batch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, batch_index, signature, status, error, recipients, created_at
		FROM distribution_batches
		WHERE run_id = $1
		ORDER BY batch_index`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches for run %s: %w", runID, err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.RunID, &b.BatchIndex, &b.Signature, &b.Status, &b.Error, &b.Recipients, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, &b)
	}
	return batches, rows.Err()
}
