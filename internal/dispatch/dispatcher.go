package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/gigsmartpay/client/internal/model"
	"github.com/gigsmartpay/client/internal/notify"
)

// Refresher refetches remote data after a push event. Implemented by the
// REST layer; dispatch never waits for it.
type Refresher interface {
	RefreshAll(ctx context.Context)
}

// Dispatcher turns push events into notices and data refreshes. Dispatch is
// idempotent with respect to duplicate delivery: all notices are keyed by
// job id, so a redelivered event replaces rather than duplicates.
type Dispatcher struct {
	notices   *notify.Center
	refresher Refresher
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher publishing to the given notice center.
func NewDispatcher(notices *notify.Center, refresher Refresher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		notices:   notices,
		refresher: refresher,
		logger:    logger.Named("dispatch"),
	}
}

// Dispatch handles one push event. Unknown kinds are logged and ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, event *model.PushEvent) {
	key := event.NoticeKey()
	d.logger.Info("push event",
		zap.String("type", string(event.Type)), zap.Int64("job_id", event.JobID))

	switch event.Type {
	case model.EventJobCompleted:
		d.notices.Clear(key)
		d.notices.Publish(key, notify.LevelSuccess,
			messageOr(event, "Job completed and payment released"), false)
		d.refresh(ctx)

	case model.EventPaymentPending:
		d.notices.Publish(key, notify.LevelPending,
			messageOr(event, "Payment pending confirmation"), true)

	case model.EventPaymentTimeout:
		d.notices.Clear(key)
		d.notices.Publish(key, notify.LevelWarning,
			messageOr(event, "Payment timed out"), false)

	case model.EventJobStatusUpdate:
		d.notices.Clear(key)
		d.notices.Publish(key, notify.LevelInfo,
			messageOr(event, "Job status updated"), false)
		d.refresh(ctx)

	case model.EventDisputeRaised:
		d.notices.Publish(key, notify.LevelWarning,
			messageOr(event, "A dispute was raised"), false)
		d.refresh(ctx)

	case model.EventDisputeResolved:
		d.notices.Publish(key, notify.LevelSuccess,
			messageOr(event, "Dispute resolved"), false)
		d.refresh(ctx)

	default:
		d.logger.Warn("unknown push event type", zap.String("type", string(event.Type)))
	}
}

// refresh triggers a refetch without blocking dispatch on its completion.
// The refetch is detached from the triggering connection's context so a
// coincidental disconnect cannot abort it halfway.
func (d *Dispatcher) refresh(ctx context.Context) {
	if d.refresher == nil {
		return
	}
	go d.refresher.RefreshAll(context.WithoutCancel(ctx))
}

func messageOr(event *model.PushEvent, fallback string) string {
	if event.Message != "" {
		return event.Message
	}
	return fallback
}
