package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/solspray/solspray/service/db"
	"github.com/solspray/solspray/service/distribute"
	"github.com/solspray/solspray/service/pass"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for recipient lists
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
	maxRecipients      = 10_000
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// distributionRequest is the shared request body for starting a run and
// for dry-run summaries.
type distributionRequest struct {
	Asset       distribute.AssetSelection   `json:"asset"`
	Mode        distribute.DistributionMode `json:"mode"` // "manual" or "equal"
	TotalAmount float64                     `json:"total_amount"` // required when mode == "equal"
	Recipients  []struct {
		Address string  `json:"address"`
		Amount  float64 `json:"amount"`
	} `json:"recipients"`
}

// toRecipients runs the request through a RecipientList so amounts and
// validity are computed exactly as the core does.
func (req *distributionRequest) toRecipients() ([]distribute.Recipient, error) {
	list := distribute.NewRecipientList(isValidRecipientAddress)
	switch req.Mode {
	case "", distribute.ModeManual:
		list.SetMode(distribute.ModeManual)
	case distribute.ModeEqual:
		list.SetMode(distribute.ModeEqual)
		list.SetTotalAmount(req.TotalAmount)
	default:
		return nil, fmt.Errorf("invalid mode %q: must be %q or %q", req.Mode, distribute.ModeManual, distribute.ModeEqual)
	}

	for _, r := range req.Recipients {
		list.Add(r.Address, r.Amount)
	}
	return list.Calculated(), nil
}

func (req *distributionRequest) validate() error {
	if len(req.Recipients) == 0 {
		return errors.New("recipients are required")
	}
	if len(req.Recipients) > maxRecipients {
		return fmt.Errorf("too many recipients: maximum is %d", maxRecipients)
	}
	switch req.Asset.Type {
	case distribute.AssetSOL:
	case distribute.AssetToken:
		if req.Asset.Token == nil || req.Asset.Token.MintAddress == "" {
			return errors.New("asset.token with mint_address is required for spl-token distributions")
		}
		if err := validateAddress(req.Asset.Token.MintAddress); err != nil {
			return fmt.Errorf("invalid mint address: %w", err)
		}
	default:
		return fmt.Errorf("invalid asset type %q: must be %q or %q", req.Asset.Type, distribute.AssetSOL, distribute.AssetToken)
	}
	return nil
}

func decodeDistributionRequest(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*distributionRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req distributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Debug("failed to decode distribution request", "error", err)
		if strings.Contains(err.Error(), "http: request body too large") {
			writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
			return nil, false
		}
		writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
		return nil, false
	}
	if err := req.validate(); err != nil {
		logger.Debug("invalid distribution request", "error", err)
		writeError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

// handleStartDistribution returns a handler that kicks off a run.
// POST /api/v1/distributions
//
// The run executes in the background; callers follow progress over the
// SSE stream or poll the run resource.
func handleStartDistribution(distributor Distributor, sender solana.PublicKey, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeDistributionRequest(w, r, logger)
		if !ok {
			return
		}

		recipients, err := req.toRecipients()
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		eligible := 0
		for _, rec := range recipients {
			if rec.IsValid && rec.Amount > 0 {
				eligible++
			}
		}
		if eligible == 0 {
			writeError(w, "no recipient with a valid address and positive amount", http.StatusBadRequest)
			return
		}

		runID := uuid.New().String()
		runReq := distribute.Request{
			RunID:      runID,
			Sender:     sender,
			Recipients: recipients,
			Asset:      req.Asset,
		}

		logger.Info("distribution accepted",
			"run_id", runID,
			"asset", req.Asset.Type,
			"recipients", eligible,
		)

		// Detached from the request context: the run outlives the HTTP
		// exchange.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			if _, err := distributor.Run(ctx, runReq); err != nil {
				logger.Error("distribution run failed", "run_id", runID, "error", err)
			}
		}()

		writeJSON(w, map[string]any{
			"run_id":     runID,
			"status":     string(distribute.StatusPreparing),
			"recipients": eligible,
		}, http.StatusAccepted)
	})
}

// handleSummary returns a handler that computes a dry-run summary of a
// pending distribution without touching the chain state.
// POST /api/v1/distributions/summary
func handleSummary(chain BalanceReader, deriveATA distribute.ATADeriver, sender solana.PublicKey, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeDistributionRequest(w, r, logger)
		if !ok {
			return
		}

		recipients, err := req.toRecipients()
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		walletBalance, err := chain.GetBalanceSOL(r.Context(), sender)
		if err != nil {
			logger.Error("failed to read wallet balance", "error", err)
			writeError(w, "failed to read wallet balance", http.StatusBadGateway)
			return
		}

		asset := req.Asset
		if asset.Type == distribute.AssetToken {
			mint, err := solana.PublicKeyFromBase58(asset.Token.MintAddress)
			if err != nil {
				writeError(w, "invalid mint address", http.StatusBadRequest)
				return
			}
			ata, err := deriveATA(sender, mint)
			if err != nil {
				logger.Error("failed to derive sender token account", "mint", mint.String(), "error", err)
				writeError(w, "failed to derive sender token account", http.StatusBadGateway)
				return
			}
			baseUnits, err := chain.GetTokenBalance(r.Context(), ata)
			if err != nil {
				logger.Error("failed to read token balance", "error", err)
				writeError(w, "failed to read token balance", http.StatusBadGateway)
				return
			}
			balance := float64(baseUnits) / math.Pow10(int(asset.Token.Decimals))
			tok := *asset.Token
			tok.Balance = &balance
			asset.Token = &tok
		}

		var valid []distribute.Recipient
		for _, rec := range recipients {
			if rec.IsValid {
				valid = append(valid, rec)
			}
		}

		summary := distribute.CalculateSummary(recipients, valid, asset, walletBalance)
		writeJSON(w, summary, http.StatusOK)
	})
}

// handleGetRun returns a handler that fetches one run with its batches.
// GET /api/v1/distributions/{run_id}
func handleGetRun(store RunReader, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runID := r.PathValue("run_id")
		if runID == "" {
			writeError(w, "run_id is required", http.StatusBadRequest)
			return
		}

		run, err := store.GetRun(r.Context(), runID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "run not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get run", "run_id", runID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		batches, err := store.ListBatches(r.Context(), runID)
		if err != nil {
			logger.Error("failed to list batches", "run_id", runID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]any{
			"run":     runToResponse(run),
			"batches": batchesToResponse(batches),
		}, http.StatusOK)
	})
}

// handleListRuns returns a handler that lists runs, newest first.
// GET /api/v1/distributions?wallet={address}&limit={n}
func handleListRuns(store RunReader, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet := r.URL.Query().Get("wallet")
		if wallet != "" {
			if err := validateAddress(wallet); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		limit := int32(0)
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 32)
			if err != nil || n <= 0 {
				writeError(w, "invalid limit: must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = int32(n)
		}

		runs, err := store.ListRuns(r.Context(), wallet, limit)
		if err != nil {
			logger.Error("failed to list runs", "wallet", wallet, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]runResponse, len(runs))
		for i, run := range runs {
			resp[i] = runToResponse(run)
		}
		writeJSON(w, map[string]any{"runs": resp}, http.StatusOK)
	})
}

// handleGetPass returns a handler that fetches a wallet's pass.
// GET /api/v1/passes/{address}
func handleGetPass(passes pass.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		p, err := passes.Get(r.Context(), address)
		if err != nil {
			if errors.Is(err, pass.ErrNotFound) {
				writeError(w, "pass not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get pass", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, p, http.StatusOK)
	})
}

// handleSavePass returns a handler that records a wallet's pass.
// POST /api/v1/passes
func handleSavePass(passes pass.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var p pass.Pass
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}
		if err := validateAddress(p.WalletAddress); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if p.AcquiredAt.IsZero() {
			p.AcquiredAt = time.Now().UTC()
		}

		if err := passes.Save(r.Context(), &p); err != nil {
			logger.Error("failed to save pass", "address", p.WalletAddress, "error", err)
			writeError(w, "failed to save pass", http.StatusInternalServerError)
			return
		}
		logger.Info("pass saved", "address", p.WalletAddress, "tier", p.Tier)
		writeJSON(w, &p, http.StatusCreated)
	})
}

// runResponse is the wire shape for a stored run.
type runResponse struct {
	ID              string     `json:"id"`
	WalletAddress   string     `json:"wallet_address"`
	AssetType       string     `json:"asset_type"`
	TokenMint       *string    `json:"token_mint,omitempty"`
	Status          string     `json:"status"`
	TotalRecipients int        `json:"total_recipients"`
	TotalBatches    int        `json:"total_batches"`
	Completed       []string   `json:"completed"`
	Failed          []string   `json:"failed"`
	CreatedAt       time.Time  `json:"created_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

func runToResponse(r *db.Run) runResponse {
	return runResponse{
		ID:              r.ID,
		WalletAddress:   r.WalletAddress,
		AssetType:       r.AssetType,
		TokenMint:       r.TokenMint,
		Status:          r.Status,
		TotalRecipients: r.TotalRecipients,
		TotalBatches:    r.TotalBatches,
		Completed:       r.Completed,
		Failed:          r.Failed,
		CreatedAt:       r.CreatedAt,
		FinishedAt:      r.FinishedAt,
	}
}

// batchResponse is the wire shape for a stored batch.
type batchResponse struct {
	BatchIndex int       `json:"batch_index"`
	Signature  *string   `json:"signature,omitempty"`
	Status     string    `json:"status"`
	Error      *string   `json:"error,omitempty"`
	Recipients []string  `json:"recipients"`
	CreatedAt  time.Time `json:"created_at"`
}

func batchesToResponse(batches []*db.Batch) []batchResponse {
	resp := make([]batchResponse, len(batches))
	for i, b := range batches {
		resp[i] = batchResponse{
			BatchIndex: b.BatchIndex,
			Signature:  b.Signature,
			Status:     b.Status,
			Error:      b.Error,
			Recipients: b.Recipients,
			CreatedAt:  b.CreatedAt,
		}
	}
	return resp
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a wallet address for security and format.
func validateAddress(address string) error {
	if address == "" {
		return errors.New("address is required")
	}
	if len(address) > maxAddressLength {
		return fmt.Errorf("address too long: maximum length is %d characters", maxAddressLength)
	}
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errors.New("invalid characters in address: control characters not allowed")
		}
	}
	if !validAddressRegex.MatchString(address) {
		return errors.New("invalid address format: must be base58")
	}
	return nil
}

// isValidRecipientAddress is the AddressValidator used for request
// recipient lists: a full base58 decode, not just the character check.
func isValidRecipientAddress(address string) bool {
	if err := validateAddress(address); err != nil {
		return false
	}
	_, err := solana.PublicKeyFromBase58(address)
	return err == nil
}
