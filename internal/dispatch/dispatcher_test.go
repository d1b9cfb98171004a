package dispatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gigsmartpay/client/internal/model"
	"github.com/gigsmartpay/client/internal/notify"
)

type fakeRefresher struct {
	calls atomic.Int64
	done  chan struct{}
}

func newFakeRefresher() *fakeRefresher {
	return &fakeRefresher{done: make(chan struct{}, 16)}
}

func (f *fakeRefresher) RefreshAll(ctx context.Context) {
	f.calls.Add(1)
	f.done <- struct{}{}
}

func (f *fakeRefresher) waitForCall(t *testing.T) {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(time.Second):
		t.Fatal("refresh was not triggered")
	}
}

func setup(t *testing.T) (*Dispatcher, *notify.Center, *fakeRefresher) {
	t.Helper()
	notices := notify.NewCenter(zap.NewNop())
	refresher := newFakeRefresher()
	return NewDispatcher(notices, refresher, zap.NewNop()), notices, refresher
}

func TestJobCompletedClearsPendingAndRefreshes(t *testing.T) {
	d, notices, refresher := setup(t)
	ctx := context.Background()

	d.Dispatch(ctx, &model.PushEvent{Type: model.EventPaymentPending, JobID: 42})
	n, ok := notices.Get("job-42")
	require.True(t, ok)
	assert.Equal(t, notify.LevelPending, n.Level)
	assert.True(t, n.Persistent)

	d.Dispatch(ctx, &model.PushEvent{Type: model.EventJobCompleted, JobID: 42})
	refresher.waitForCall(t)

	n, ok = notices.Get("job-42")
	require.True(t, ok)
	assert.Equal(t, notify.LevelSuccess, n.Level)
	assert.Equal(t, int64(1), refresher.calls.Load())
}

func TestDuplicateDeliveryDoesNotDuplicateNotices(t *testing.T) {
	d, notices, refresher := setup(t)
	ctx := context.Background()

	event := &model.PushEvent{Type: model.EventJobCompleted, JobID: 42}
	d.Dispatch(ctx, event)
	refresher.waitForCall(t)
	d.Dispatch(ctx, event)
	refresher.waitForCall(t)

	assert.Len(t, notices.Snapshot(), 1)
}

func TestPaymentTimeoutReplacesPending(t *testing.T) {
	d, notices, _ := setup(t)
	ctx := context.Background()

	d.Dispatch(ctx, &model.PushEvent{Type: model.EventPaymentPending, JobID: 7})
	d.Dispatch(ctx, &model.PushEvent{Type: model.EventPaymentTimeout, JobID: 7})

	n, ok := notices.Get("job-7")
	require.True(t, ok)
	assert.Equal(t, notify.LevelWarning, n.Level)
	assert.False(t, n.Persistent)
}

func TestRefreshTriggeringKinds(t *testing.T) {
	cases := []struct {
		kind    model.EventKind
		level   notify.Level
		refresh bool
	}{
		{model.EventJobCompleted, notify.LevelSuccess, true},
		{model.EventPaymentPending, notify.LevelPending, false},
		{model.EventPaymentTimeout, notify.LevelWarning, false},
		{model.EventJobStatusUpdate, notify.LevelInfo, true},
		{model.EventDisputeRaised, notify.LevelWarning, true},
		{model.EventDisputeResolved, notify.LevelSuccess, true},
	}

	for _, c := range cases {
		t.Run(string(c.kind), func(t *testing.T) {
			d, notices, refresher := setup(t)
			d.Dispatch(context.Background(), &model.PushEvent{Type: c.kind, JobID: 1})

			n, ok := notices.Get("job-1")
			require.True(t, ok)
			assert.Equal(t, c.level, n.Level)

			if c.refresh {
				refresher.waitForCall(t)
				assert.Equal(t, int64(1), refresher.calls.Load())
			} else {
				assert.Equal(t, int64(0), refresher.calls.Load())
			}
		})
	}
}

func TestCustomMessagePreferred(t *testing.T) {
	d, notices, _ := setup(t)

	d.Dispatch(context.Background(), &model.PushEvent{
		Type: model.EventDisputeRaised, JobID: 3, Message: "client disputes delivery",
	})

	n, ok := notices.Get("job-3")
	require.True(t, ok)
	assert.Equal(t, "client disputes delivery", n.Message)
}

func TestUnknownKindIgnored(t *testing.T) {
	d, notices, refresher := setup(t)

	d.Dispatch(context.Background(), &model.PushEvent{Type: "SOMETHING_ELSE", JobID: 9})

	assert.Empty(t, notices.Snapshot())
	assert.Equal(t, int64(0), refresher.calls.Load())
}
