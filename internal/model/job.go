package model

import "encoding/json"

// Job is a job record as returned by the REST API. Verification data comes
// in one of two historical shapes; both are kept raw here and reconciled by
// the verification package.
type Job struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Location    string  `json:"location"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Status      string  `json:"status"`
	ClientAddr  string  `json:"client_address"`
	WorkerAddr  string  `json:"worker_address,omitempty"`

	// Newer compact shape, preferred when present.
	VerificationSummary json.RawMessage `json:"verification_summary,omitempty"`
	// Older richer shape, used as fallback.
	VerificationResult json.RawMessage `json:"verification_result,omitempty"`
}

// WalletBalance is the response of the balance endpoint.
type WalletBalance struct {
	Address  string  `json:"address"`
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

// WorkerStats summarizes a worker's completed work.
type WorkerStats struct {
	JobsCompleted int     `json:"jobs_completed"`
	TotalEarned   float64 `json:"total_earned"`
	Rating        float64 `json:"rating"`
}

// Dispute is a dispute record attached to a job.
type Dispute struct {
	ID       int64  `json:"id"`
	JobID    int64  `json:"job_id"`
	RaisedBy string `json:"raised_by"`
	Reason   string `json:"reason"`
	Status   string `json:"status"`
}
