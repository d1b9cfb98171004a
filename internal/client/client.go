package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/gigsmartpay/client/internal/api"
	"github.com/gigsmartpay/client/internal/chat"
	"github.com/gigsmartpay/client/internal/config"
	"github.com/gigsmartpay/client/internal/dispatch"
	"github.com/gigsmartpay/client/internal/model"
	"github.com/gigsmartpay/client/internal/notify"
	"github.com/gigsmartpay/client/internal/store"
	"github.com/gigsmartpay/client/internal/ws"
)

// connNoticeKey is the notice key for channel-level notices; job notices
// use their own per-job keys.
const connNoticeKey = "connection"

// Client wires the realtime layer together: it owns the active identity,
// keys the push channel by it, feeds inbound events to the dispatcher, and
// mirrors the job-creation chat session.
type Client struct {
	cfg      *config.Config
	store    *store.Store
	rest     *api.Client
	notices  *notify.Center
	dispatch *dispatch.Dispatcher
	chat     *chat.Session
	channel  *ws.Client
	logger   *zap.Logger

	mu       sync.Mutex
	identity model.Identity
	// Suppresses repeat warnings while retries run; reset on every Open.
	warnedDisconnect bool
}

// New builds the client. ctx bounds the push channel's lifetime.
func New(ctx context.Context, cfg *config.Config, st *store.Store, logger *zap.Logger) (*Client, error) {
	notices := notify.NewCenter(logger)
	rest := api.NewClient(cfg.API.URL, logger)

	chatSession, err := chat.NewSession(cfg.API.URL, st, logger)
	if err != nil {
		return nil, fmt.Errorf("init chat session: %w", err)
	}

	c := &Client{
		cfg:      cfg,
		store:    st,
		rest:     rest,
		notices:  notices,
		dispatch: dispatch.NewDispatcher(notices, rest, logger),
		chat:     chatSession,
		logger:   logger.Named("client"),
	}
	c.channel = ws.NewClient(ctx, cfg.API.URL, c, logger)
	return c, nil
}

// Start restores persisted state: the prior identity (reopening the push
// channel) and the server-held chat transcript. Both restores are
// best-effort; a fresh start is the fallback for each.
func (c *Client) Start(ctx context.Context) error {
	if identity, err := c.store.Identity(); err == nil && identity.Valid() {
		if err := c.SetIdentity(ctx, identity); err != nil {
			c.logger.Warn("initial connect failed, retrying in background", zap.Error(err))
		}
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		c.logger.Warn("stored identity unreadable", zap.Error(err))
	}

	if err := c.chat.Restore(ctx); err != nil {
		c.logger.Warn("chat restore failed, starting fresh", zap.Error(err))
	}
	return nil
}

// SetIdentity switches the active role, persists it, and rekeys the push
// channel. The previous transport is torn down before the new one opens.
func (c *Client) SetIdentity(ctx context.Context, identity model.Identity) error {
	if !identity.Valid() {
		return fmt.Errorf("invalid identity: role=%q address=%q", identity.Role, identity.Address)
	}

	if err := c.store.SaveIdentity(identity); err != nil {
		return err
	}

	c.mu.Lock()
	c.identity = identity
	c.warnedDisconnect = false
	c.mu.Unlock()

	c.rest.SetIdentity(identity)
	c.notices.Clear(connNoticeKey)

	// The refresh outlives the caller's request context.
	go c.rest.RefreshAll(context.WithoutCancel(ctx))
	return c.channel.Open(identity)
}

// IdentityForRole builds the identity for a role from the configured wallet
// addresses.
func (c *Client) IdentityForRole(role model.Role, displayName string) (model.Identity, error) {
	var address string
	switch role {
	case model.RoleClient:
		address = c.cfg.Identity.ClientAddress
	case model.RoleWorker:
		address = c.cfg.Identity.WorkerAddress
	default:
		return model.Identity{}, fmt.Errorf("unknown role %q", role)
	}
	if address == "" {
		return model.Identity{}, fmt.Errorf("no wallet address configured for role %q", role)
	}
	return model.Identity{Role: role, DisplayName: displayName, Address: address}, nil
}

// Reconnect reopens the channel for the current identity. Used by the
// dashboard, and the only way out of the Failed state.
func (c *Client) Reconnect() error {
	c.mu.Lock()
	identity := c.identity
	c.warnedDisconnect = false
	c.mu.Unlock()

	if !identity.Valid() {
		return fmt.Errorf("no identity set")
	}
	return c.channel.Open(identity)
}

// Stop tears the push channel down intentionally.
func (c *Client) Stop() error {
	return c.channel.Close()
}

// Chat returns the job-creation session.
func (c *Client) Chat() *chat.Session { return c.chat }

// REST returns the fetch layer.
func (c *Client) REST() *api.Client { return c.rest }

// Notices returns the notice center.
func (c *Client) Notices() *notify.Center { return c.notices }

// ConnectionState returns the push channel's automaton state.
func (c *Client) ConnectionState() ws.State { return c.channel.State() }

// Identity returns the active identity.
func (c *Client) Identity() model.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// CreateJobFromChat posts a job from the completed chat session's extracted
// fields, then finishes the session so the next conversation starts fresh.
func (c *Client) CreateJobFromChat(ctx context.Context) (*model.Job, error) {
	c.mu.Lock()
	identity := c.identity
	c.mu.Unlock()

	if identity.Role != model.RoleClient {
		return nil, fmt.Errorf("only the client role can post jobs")
	}
	if !c.chat.IsComplete() {
		return nil, fmt.Errorf("job details are incomplete")
	}

	fields := c.chat.Extracted()
	job, err := c.rest.CreateJob(ctx, api.CreateJobRequest{
		ClientAddress: identity.Address,
		Title:         fields.Task,
		Description:   fields.TaskDescription,
		Location:      fields.Location,
		Amount:        fields.PriceAmount,
		Currency:      fields.PriceCurrency,
		HasImage:      fields.HasImage,
	})
	if err != nil {
		return nil, err
	}

	if err := c.chat.Finish(ctx); err != nil {
		c.logger.Warn("session cleanup after job creation failed", zap.Error(err))
	}
	go c.rest.RefreshAll(context.WithoutCancel(ctx))
	return job, nil
}

// OnPushEvent implements ws.Handler.
func (c *Client) OnPushEvent(ctx context.Context, event *model.PushEvent) {
	c.dispatch.Dispatch(ctx, event)
}

// OnConnected implements ws.Handler.
func (c *Client) OnConnected() {
	c.mu.Lock()
	c.warnedDisconnect = false
	c.mu.Unlock()
	c.notices.Clear(connNoticeKey)
}

// OnDisconnected implements ws.Handler. The user sees one warning on the
// first failure, not on every retry.
func (c *Client) OnDisconnected() {
	c.mu.Lock()
	warned := c.warnedDisconnect
	c.warnedDisconnect = true
	c.mu.Unlock()

	if !warned {
		c.notices.Publish(connNoticeKey, notify.LevelWarning,
			"Connection lost, reconnecting...", false)
	}
}

// OnGiveUp implements ws.Handler. Retries are exhausted; only an explicit
// reconnect or identity change restarts the channel.
func (c *Client) OnGiveUp() {
	c.notices.Publish(connNoticeKey, notify.LevelError,
		"Connection failed. Please refresh the page.", true)
}
