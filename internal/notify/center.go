package notify

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Level classifies a notice for display.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelPending Level = "pending"
	LevelError   Level = "error"
)

// Notice is a user-facing message. Notices are keyed: publishing under an
// existing key replaces the prior notice, so duplicate delivery of the same
// push event at most replaces, never duplicates, a visible notice.
type Notice struct {
	ID         string    `json:"id"`
	Key        string    `json:"key"`
	Level      Level     `json:"level"`
	Message    string    `json:"message"`
	Persistent bool      `json:"persistent"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Center holds the currently visible notices.
type Center struct {
	mu      sync.RWMutex
	notices map[string]Notice
	logger  *zap.Logger
}

// NewCenter creates an empty notice center.
func NewCenter(logger *zap.Logger) *Center {
	return &Center{
		notices: make(map[string]Notice),
		logger:  logger.Named("notify"),
	}
}

// Publish shows a notice under the given key, replacing any prior notice
// with the same key.
func (c *Center) Publish(key string, level Level, message string, persistent bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.notices[key] = Notice{
		ID:         uuid.NewString(),
		Key:        key,
		Level:      level,
		Message:    message,
		Persistent: persistent,
		CreatedAt:  time.Now(),
	}
	c.logger.Debug("notice published",
		zap.String("key", key), zap.String("level", string(level)))
}

// Clear removes the notice under the given key, if any.
func (c *Center) Clear(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.notices, key)
}

// Get returns the notice under the given key.
func (c *Center) Get(key string) (Notice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.notices[key]
	return n, ok
}

// Snapshot returns the visible notices, oldest first.
func (c *Center) Snapshot() []Notice {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Notice, 0, len(c.notices))
	for _, n := range c.notices {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
