package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/solspray/solspray/service/distribute"
)

// Run is a distribution run as reported by the server.
type Run struct {
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

// Batch is one submitted batch of a run.
type Batch struct {
	BatchIndex int       `json:"batch_index"`
	Signature  *string   `json:"signature,omitempty"`
	Status     string    `json:"status"`
	Error      *string   `json:"error,omitempty"`
	Recipients []string  `json:"recipients"`
	CreatedAt  time.Time `json:"created_at"`
}

// RunDetail pairs a run with its batches.
type RunDetail struct {
	Run     Run     `json:"run"`
	Batches []Batch `json:"batches"`
}

// StartResponse is the server's acknowledgement of an accepted run.
type StartResponse struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	Recipients int    `json:"recipients"`
}

// DistributionRequest is the request body for starting a run or
// requesting a dry-run summary.
type DistributionRequest struct {
	Asset       distribute.AssetSelection `json:"asset"`
	Mode        string                    `json:"mode,omitempty"`
	TotalAmount float64                   `json:"total_amount,omitempty"`
	Recipients  []RecipientInput          `json:"recipients"`
}

// RecipientInput is one address/amount pair in a request.
type RecipientInput struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

// Client is the HTTP client for the solspray distribution service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new distribution service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Start submits a distribution run. The server accepts it and executes in
// the background; follow progress with GetRun or the SSE stream.
func (c *Client) Start(ctx context.Context, req *DistributionRequest) (*StartResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/distributions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, c.parseErrorResponse(resp)
	}

	var start StartResponse
	if err := json.NewDecoder(resp.Body).Decode(&start); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("distribution started", "run_id", start.RunID, "recipients", start.Recipients)
	return &start, nil
}

// Summary requests a dry-run summary for a pending distribution.
func (c *Client) Summary(ctx context.Context, req *DistributionRequest) (*distribute.SummaryData, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/distributions/summary", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var summary distribute.SummaryData
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &summary, nil
}

// GetRun retrieves one run with its batches.
func (c *Client) GetRun(ctx context.Context, runID string) (*RunDetail, error) {
	u := fmt.Sprintf("%s/api/v1/distributions/%s", c.baseURL, url.PathEscape(runID))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var detail RunDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &detail, nil
}

// ListRuns retrieves runs, newest first. wallet filters by sender wallet;
// empty lists all. limit <= 0 uses the server default.
func (c *Client) ListRuns(ctx context.Context, wallet string, limit int) ([]Run, error) {
	u, err := url.Parse(c.baseURL + "/api/v1/distributions")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	if wallet != "" {
		q.Set("wallet", wallet)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Runs []Run `json:"runs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return response.Runs, nil
}

// Health checks whether the server is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// parseErrorResponse extracts the server's JSON error message, falling
// back to the raw body.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
