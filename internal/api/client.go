package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gigsmartpay/client/internal/model"
)

const httpTimeout = 30 * time.Second

// Snapshot is the last-known-good view of remote data. Refresh failures
// never clear it; the UI keeps showing stale data over no data.
type Snapshot struct {
	Balance       *model.WalletBalance `json:"balance,omitempty"`
	AvailableJobs []model.Job          `json:"availableJobs,omitempty"`
	OwnJobs       []model.Job          `json:"ownJobs,omitempty"`
	JobHistory    []model.Job          `json:"jobHistory,omitempty"`
	WorkerStats   *model.WorkerStats   `json:"workerStats,omitempty"`
	Disputes      []model.Dispute      `json:"disputes,omitempty"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

// Client is the REST fetch layer. It caches a snapshot of the data relevant
// to the active identity and implements the dispatcher's Refresher.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	// Serializes RefreshAll runs so a slow refresh cannot write a stale
	// snapshot copy over a newer one.
	refreshMu sync.Mutex

	mu       sync.RWMutex
	identity model.Identity
	snapshot Snapshot
}

// NewClient creates a REST client for the given base URL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: httpTimeout},
		logger:     logger.Named("api"),
	}
}

// SetIdentity selects which resources RefreshAll fetches.
func (c *Client) SetIdentity(id model.Identity) {
	c.mu.Lock()
	c.identity = id
	c.mu.Unlock()
}

// Snapshot returns a copy of the last-known-good data.
func (c *Client) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("POST %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Balance fetches the wallet balance for an address.
func (c *Client) Balance(ctx context.Context, address string) (*model.WalletBalance, error) {
	var out model.WalletBalance
	if err := c.getJSON(ctx, "/api/wallet/balance/"+address, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AvailableJobs fetches the open job pool.
func (c *Client) AvailableJobs(ctx context.Context) ([]model.Job, error) {
	var out []model.Job
	if err := c.getJSON(ctx, "/api/jobs/available", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ClientJobs fetches the jobs a client posted.
func (c *Client) ClientJobs(ctx context.Context, address string) ([]model.Job, error) {
	var out []model.Job
	if err := c.getJSON(ctx, "/api/jobs/client/"+address, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// WorkerCurrent fetches the worker's in-progress jobs.
func (c *Client) WorkerCurrent(ctx context.Context, address string) ([]model.Job, error) {
	var out []model.Job
	if err := c.getJSON(ctx, "/api/jobs/worker/"+address+"/current", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// WorkerHistory fetches the worker's completed jobs.
func (c *Client) WorkerHistory(ctx context.Context, address string) ([]model.Job, error) {
	var out []model.Job
	if err := c.getJSON(ctx, "/api/jobs/worker/"+address+"/history", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// WorkerStats fetches the worker's aggregate stats.
func (c *Client) WorkerStats(ctx context.Context, address string) (*model.WorkerStats, error) {
	var out model.WorkerStats
	if err := c.getJSON(ctx, "/api/jobs/worker/"+address+"/stats", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Disputes fetches the dispute list.
func (c *Client) Disputes(ctx context.Context) ([]model.Dispute, error) {
	var out []model.Dispute
	if err := c.getJSON(ctx, "/api/disputes", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateJobRequest is the payload for posting a job, typically filled from
// the chat session's extracted fields.
type CreateJobRequest struct {
	ClientAddress string  `json:"client_address"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	Location      string  `json:"location"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	HasImage      bool    `json:"has_image"`
}

// AssignJobRequest claims an available job for a worker.
type AssignJobRequest struct {
	JobID         int64  `json:"job_id"`
	WorkerAddress string `json:"worker_address"`
}

// SubmitJobRequest submits completed work with proof.
type SubmitJobRequest struct {
	JobID         int64   `json:"job_id"`
	WorkerAddress string  `json:"worker_address"`
	ProofImageURL string  `json:"proof_image_url"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
}

// RaiseDisputeRequest opens a dispute on a job.
type RaiseDisputeRequest struct {
	JobID    int64  `json:"job_id"`
	RaisedBy string `json:"raised_by"`
	Reason   string `json:"reason"`
}

// CreateJob posts a new job and returns the created record.
func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (*model.Job, error) {
	var out model.Job
	if err := c.postJSON(ctx, "/api/jobs/create", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignJob claims a job for a worker.
func (c *Client) AssignJob(ctx context.Context, req AssignJobRequest) error {
	return c.postJSON(ctx, "/api/jobs/assign", req, nil)
}

// SubmitJob submits completed work.
func (c *Client) SubmitJob(ctx context.Context, req SubmitJobRequest) (*model.Job, error) {
	var out model.Job
	if err := c.postJSON(ctx, "/api/jobs/submit", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RaiseDispute opens a dispute.
func (c *Client) RaiseDispute(ctx context.Context, req RaiseDisputeRequest) error {
	return c.postJSON(ctx, "/api/disputes", req, nil)
}

// RefreshAll refetches everything relevant to the active identity. Each
// failing call is logged and leaves the prior value of that field in place;
// the snapshot is never cleared on error. Runs are serialized: a refresh
// that starts later sees the snapshot the previous one wrote.
func (c *Client) RefreshAll(ctx context.Context) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.mu.RLock()
	identity := c.identity
	snap := c.snapshot
	c.mu.RUnlock()

	if !identity.Valid() {
		return
	}

	if balance, err := c.Balance(ctx, identity.Address); err != nil {
		c.logger.Warn("balance refresh failed", zap.Error(err))
	} else {
		snap.Balance = balance
	}

	if jobs, err := c.AvailableJobs(ctx); err != nil {
		c.logger.Warn("available jobs refresh failed", zap.Error(err))
	} else {
		snap.AvailableJobs = jobs
	}

	switch identity.Role {
	case model.RoleClient:
		if jobs, err := c.ClientJobs(ctx, identity.Address); err != nil {
			c.logger.Warn("client jobs refresh failed", zap.Error(err))
		} else {
			snap.OwnJobs = jobs
		}
	case model.RoleWorker:
		if jobs, err := c.WorkerCurrent(ctx, identity.Address); err != nil {
			c.logger.Warn("worker jobs refresh failed", zap.Error(err))
		} else {
			snap.OwnJobs = jobs
		}
		if jobs, err := c.WorkerHistory(ctx, identity.Address); err != nil {
			c.logger.Warn("worker history refresh failed", zap.Error(err))
		} else {
			snap.JobHistory = jobs
		}
		if stats, err := c.WorkerStats(ctx, identity.Address); err != nil {
			c.logger.Warn("worker stats refresh failed", zap.Error(err))
		} else {
			snap.WorkerStats = stats
		}
	}

	if disputes, err := c.Disputes(ctx); err != nil {
		c.logger.Warn("disputes refresh failed", zap.Error(err))
	} else {
		snap.Disputes = disputes
	}

	snap.UpdatedAt = time.Now()

	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()
}
