package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gigsmartpay/client/internal/model"
	"github.com/gigsmartpay/client/internal/store"
)

const (
	httpTimeout = 30 * time.Second

	// Greeting shown before the server has said anything.
	defaultGreeting = "Hi! Tell me about the job you want to post - what needs doing, where, and for how much?"
)

// Session is the client-side counterpart of the server-held job-creation
// dialogue. The client owns only an opaque session handle plus a mirror of
// the last known server state; a restore replaces the mirror wholesale,
// never merges.
type Session struct {
	baseURL    string
	httpClient *http.Client
	store      *store.Store
	logger     *zap.Logger

	// In-memory mirror of server truth.
	mu        sync.Mutex
	sessionID string
	history   []model.ChatTurn
	extracted model.ExtractedJobFields
	complete  bool
	hasImage  bool
}

// NewSession loads the persisted session handle, generating and persisting
// a fresh one if none exists.
func NewSession(baseURL string, st *store.Store, logger *zap.Logger) (*Session, error) {
	s := &Session{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: httpTimeout},
		store:      st,
		logger:     logger.Named("chat"),
		history:    []model.ChatTurn{greetingTurn()},
	}

	id, err := st.SessionID()
	switch {
	case err == nil:
		s.sessionID = id
	case errors.Is(err, store.ErrNotFound):
		if s.sessionID, err = s.newSessionID(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("load session id: %w", err)
	}
	return s, nil
}

func greetingTurn() model.ChatTurn {
	return model.ChatTurn{
		Role:      model.TurnAssistant,
		Content:   defaultGreeting,
		Timestamp: time.Now(),
	}
}

// newSessionID generates and persists a fresh handle: millisecond timestamp
// plus a random suffix.
func (s *Session) newSessionID() (string, error) {
	id := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
	if err := s.store.SaveSessionID(id); err != nil {
		return "", fmt.Errorf("persist session id: %w", err)
	}
	return id, nil
}

// SessionID returns the current session handle, or empty after Finish.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// History returns a copy of the mirrored transcript.
func (s *Session) History() []model.ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ChatTurn, len(s.history))
	copy(out, s.history)
	return out
}

// Extracted returns the last known extracted job fields.
func (s *Session) Extracted() model.ExtractedJobFields {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extracted
}

// IsComplete reports whether the server considers the dialogue finished.
func (s *Session) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete
}

// SetImageUploaded records that a reference image was supplied. The flag is
// sent with every subsequent turn so the server can track it without the
// client re-uploading.
func (s *Session) SetImageUploaded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasImage = true
}

// Restore fetches the server-held session state. A 404 means no prior
// session exists and is not an error; the default greeting stays. Any other
// failure is recoverable: the greeting stays and the next user turn reuses
// the same persisted handle. A successful restore with non-empty history
// replaces the transcript and extracted fields wholesale.
func (s *Session) Restore(ctx context.Context) error {
	// The round-trip runs unlocked; accessors must stay responsive while
	// the server is slow.
	s.mu.Lock()
	id := s.sessionID
	s.mu.Unlock()

	if id == "" {
		return nil
	}

	url := fmt.Sprintf("%s/api/chat/session/%s", s.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build restore request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("session restore failed", zap.Error(err))
		return fmt.Errorf("restore session: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		s.logger.Debug("no prior session on server", zap.String("session_id", id))
		return nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		s.logger.Warn("unexpected restore status", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("restore session: status %d", resp.StatusCode)
	}

	var state model.ChatSessionState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		s.logger.Warn("bad restore payload", zap.Error(err))
		return fmt.Errorf("decode session state: %w", err)
	}

	if len(state.History) == 0 {
		// Nothing to restore; the greeting stays.
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID != id {
		// Finished or replaced while the fetch was in flight; the fetched
		// state belongs to a dead session.
		return nil
	}
	s.history = state.History
	s.extracted = state.Extracted
	s.complete = state.IsComplete
	s.hasImage = s.hasImage || state.Extracted.HasImage
	s.logger.Info("session restored",
		zap.String("session_id", id), zap.Int("turns", len(state.History)))
	return nil
}

// Send posts one user turn and mirrors the server's reply. On failure the
// turn is not recorded and the same handle is reused on the next attempt.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	if s.sessionID == "" {
		id, err := s.newSessionID()
		if err != nil {
			s.mu.Unlock()
			return "", err
		}
		s.sessionID = id
	}
	id := s.sessionID
	hasImage := s.hasImage
	s.mu.Unlock()

	body, err := json.Marshal(model.ChatTurnRequest{
		SessionID: id,
		Message:   text,
		HasImage:  hasImage,
	})
	if err != nil {
		return "", fmt.Errorf("marshal turn: %w", err)
	}

	url := s.baseURL + "/api/chat/job-creation"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build turn request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send turn: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("send turn: status %d", resp.StatusCode)
	}

	var reply model.ChatTurnResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("decode turn reply: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID != id {
		// Finished while the turn was in flight; the reply belongs to a
		// deleted session, so the mirror stays untouched.
		return reply.Reply, nil
	}

	now := time.Now()
	s.history = append(s.history,
		model.ChatTurn{Role: model.TurnUser, Content: text, Timestamp: now},
		model.ChatTurn{Role: model.TurnAssistant, Content: reply.Reply, Timestamp: now},
	)
	s.extracted = reply.Extracted
	s.complete = reply.IsComplete
	s.hasImage = s.hasImage || reply.Extracted.HasImage
	return reply.Reply, nil
}

// Finish deletes the server-side session and the local handle after the job
// was created, so the next interaction starts a new session rather than
// reusing a stale one.
func (s *Session) Finish(ctx context.Context) error {
	s.mu.Lock()
	id := s.sessionID
	s.mu.Unlock()

	if id != "" {
		url := fmt.Sprintf("%s/api/chat/session/%s", s.baseURL, id)
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
		if err != nil {
			return fmt.Errorf("build delete request: %w", err)
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			s.logger.Warn("server session delete failed", zap.Error(err))
		} else {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}

	if err := s.store.ClearSessionID(); err != nil {
		return fmt.Errorf("clear session id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = ""
	s.history = []model.ChatTurn{greetingTurn()}
	s.extracted = model.ExtractedJobFields{}
	s.complete = false
	s.hasImage = false
	return nil
}
