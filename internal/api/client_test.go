package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gigsmartpay/client/internal/model"
)

type fakeBackend struct {
	mu       sync.Mutex
	failures map[string]bool // path prefix → return 500
	requests []string
}

func (f *fakeBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		fail := f.failures[r.URL.Path]
		f.mu.Unlock()

		if fail {
			http.Error(w, "backend error", http.StatusInternalServerError)
			return
		}

		switch {
		case r.URL.Path == "/api/jobs/available":
			json.NewEncoder(w).Encode([]model.Job{{ID: 1, Title: "Paint fence"}})
		case r.URL.Path == "/api/jobs/worker/0xBOB/current":
			json.NewEncoder(w).Encode([]model.Job{{ID: 2, Title: "Walk dog"}})
		case r.URL.Path == "/api/jobs/worker/0xBOB/history":
			json.NewEncoder(w).Encode([]model.Job{{ID: 3, Status: "completed"}})
		case r.URL.Path == "/api/jobs/worker/0xBOB/stats":
			json.NewEncoder(w).Encode(model.WorkerStats{JobsCompleted: 9, Rating: 4.8})
		case r.URL.Path == "/api/jobs/client/0xALICE":
			json.NewEncoder(w).Encode([]model.Job{{ID: 4, ClientAddr: "0xALICE"}})
		case r.URL.Path == "/api/wallet/balance/0xBOB" || r.URL.Path == "/api/wallet/balance/0xALICE":
			json.NewEncoder(w).Encode(model.WalletBalance{Address: "0xBOB", Balance: 12.5, Currency: "USDC"})
		case r.URL.Path == "/api/disputes":
			json.NewEncoder(w).Encode([]model.Dispute{{ID: 1, JobID: 2, Status: "open"}})
		case r.URL.Path == "/api/jobs/create":
			json.NewEncoder(w).Encode(model.Job{ID: 99, Title: "created"})
		default:
			http.NotFound(w, r)
		}
	}
}

func setupClient(t *testing.T) (*Client, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{failures: map[string]bool{}}
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, zap.NewNop()), backend
}

var worker = model.Identity{Role: model.RoleWorker, DisplayName: "Bob", Address: "0xBOB"}

func TestRefreshAllForWorker(t *testing.T) {
	c, _ := setupClient(t)
	c.SetIdentity(worker)

	c.RefreshAll(context.Background())

	snap := c.Snapshot()
	require.NotNil(t, snap.Balance)
	assert.Equal(t, 12.5, snap.Balance.Balance)
	require.Len(t, snap.AvailableJobs, 1)
	require.Len(t, snap.OwnJobs, 1)
	assert.Equal(t, "Walk dog", snap.OwnJobs[0].Title)
	require.Len(t, snap.JobHistory, 1)
	require.NotNil(t, snap.WorkerStats)
	assert.Equal(t, 9, snap.WorkerStats.JobsCompleted)
	require.Len(t, snap.Disputes, 1)
	assert.False(t, snap.UpdatedAt.IsZero())
}

func TestRefreshAllForClient(t *testing.T) {
	c, _ := setupClient(t)
	c.SetIdentity(model.Identity{Role: model.RoleClient, DisplayName: "Alice", Address: "0xALICE"})

	c.RefreshAll(context.Background())

	snap := c.Snapshot()
	require.Len(t, snap.OwnJobs, 1)
	assert.Equal(t, "0xALICE", snap.OwnJobs[0].ClientAddr)
	assert.Nil(t, snap.WorkerStats)
}

func TestRefreshKeepsLastKnownGoodOnFailure(t *testing.T) {
	c, backend := setupClient(t)
	c.SetIdentity(worker)

	c.RefreshAll(context.Background())
	require.Len(t, c.Snapshot().OwnJobs, 1)

	backend.mu.Lock()
	backend.failures["/api/jobs/worker/0xBOB/current"] = true
	backend.failures["/api/wallet/balance/0xBOB"] = true
	backend.mu.Unlock()

	c.RefreshAll(context.Background())

	snap := c.Snapshot()
	// Failing fetches keep the stale values; succeeding ones still update.
	require.Len(t, snap.OwnJobs, 1)
	require.NotNil(t, snap.Balance)
	require.Len(t, snap.AvailableJobs, 1)
}

func TestConcurrentRefreshesSerialize(t *testing.T) {
	backend := &fakeBackend{failures: map[string]bool{}}
	inner := backend.handler()

	var mu sync.Mutex
	var inFlight, maxInFlight int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		inner(w, r)
		mu.Lock()
		inFlight--
		mu.Unlock()
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, zap.NewNop())
	c.SetIdentity(worker)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RefreshAll(context.Background())
		}()
	}
	wg.Wait()

	// Refreshes run one at a time: a slow run cannot write its copied
	// snapshot over a newer one, and each later run starts from what the
	// previous one wrote.
	mu.Lock()
	assert.Equal(t, 1, maxInFlight)
	mu.Unlock()

	snap := c.Snapshot()
	require.NotNil(t, snap.Balance)
	require.Len(t, snap.OwnJobs, 1)
	require.NotNil(t, snap.WorkerStats)
}

func TestRefreshWithoutIdentityIsNoop(t *testing.T) {
	c, backend := setupClient(t)

	c.RefreshAll(context.Background())

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Empty(t, backend.requests)
}

func TestCreateJob(t *testing.T) {
	c, _ := setupClient(t)

	job, err := c.CreateJob(context.Background(), CreateJobRequest{
		ClientAddress: "0xALICE", Title: "Paint fence", Amount: 50, Currency: "USDC",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(99), job.ID)
}

func TestErrorStatusSurfacesAsError(t *testing.T) {
	c, backend := setupClient(t)
	backend.mu.Lock()
	backend.failures["/api/jobs/available"] = true
	backend.mu.Unlock()

	_, err := c.AvailableJobs(context.Background())
	assert.Error(t, err)
}
