package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gigsmartpay/client/internal/api"
	"github.com/gigsmartpay/client/internal/client"
	"github.com/gigsmartpay/client/internal/model"
	"github.com/gigsmartpay/client/internal/notify"
)

//go:embed templates/*
var templates embed.FS

// Stats is the dashboard's view of the running client.
type Stats struct {
	ConnectionState string          `json:"connectionState"`
	Identity        model.Identity  `json:"identity"`
	Notices         []notify.Notice `json:"notices"`
	Data            api.Snapshot    `json:"data"`
	Chat            ChatStats       `json:"chat"`
	StartTime       time.Time       `json:"startTime"`
}

// ChatStats summarizes the job-creation session.
type ChatStats struct {
	SessionID  string                   `json:"sessionId"`
	History    []model.ChatTurn         `json:"history"`
	Extracted  model.ExtractedJobFields `json:"extracted"`
	IsComplete bool                     `json:"isComplete"`
}

// Dashboard serves a local status page for the realtime client.
type Dashboard struct {
	client    *client.Client
	logger    *zap.Logger
	startTime time.Time
}

// New creates a dashboard for the given client.
func New(c *client.Client, logger *zap.Logger) *Dashboard {
	return &Dashboard{
		client:    c,
		logger:    logger.Named("dashboard"),
		startTime: time.Now(),
	}
}

func (d *Dashboard) stats() Stats {
	chatSession := d.client.Chat()
	return Stats{
		ConnectionState: d.client.ConnectionState().String(),
		Identity:        d.client.Identity(),
		Notices:         d.client.Notices().Snapshot(),
		Data:            d.client.REST().Snapshot(),
		Chat: ChatStats{
			SessionID:  chatSession.SessionID(),
			History:    chatSession.History(),
			Extracted:  chatSession.Extracted(),
			IsComplete: chatSession.IsComplete(),
		},
		StartTime: d.startTime,
	}
}

// ServeHTTP starts the dashboard server. It shuts down gracefully when ctx
// is cancelled.
func (d *Dashboard) ServeHTTP(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", d.handleStats)
	mux.HandleFunc("/api/reconnect", d.handleReconnect)
	mux.HandleFunc("/api/identity", d.handleIdentity)
	mux.HandleFunc("/api/chat/message", d.handleChatMessage)
	mux.HandleFunc("/api/chat/complete", d.handleChatComplete)
	mux.HandleFunc("/", d.handleIndex)

	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	d.logger.Info("starting dashboard", zap.String("addr", addr))
	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (d *Dashboard) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		d.logger.Warn("encode response failed", zap.Error(err))
	}
}

func (d *Dashboard) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	d.writeJSON(w, http.StatusOK, d.stats())
}

func (d *Dashboard) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	d.logger.Info("manual reconnect requested")
	if err := d.client.Reconnect(); err != nil {
		d.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	d.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *Dashboard) handleIdentity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Role        model.Role `json:"role"`
		DisplayName string     `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request body"})
		return
	}

	identity, err := d.client.IdentityForRole(req.Role, req.DisplayName)
	if err != nil {
		d.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := d.client.SetIdentity(r.Context(), identity); err != nil {
		d.logger.Warn("identity switch connect failed", zap.Error(err))
	}
	d.writeJSON(w, http.StatusOK, identity)
}

func (d *Dashboard) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		d.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message required"})
		return
	}

	reply, err := d.client.Chat().Send(r.Context(), req.Message)
	if err != nil {
		d.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	d.writeJSON(w, http.StatusOK, map[string]any{
		"reply":      reply,
		"isComplete": d.client.Chat().IsComplete(),
	})
}

func (d *Dashboard) handleChatComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	job, err := d.client.CreateJobFromChat(r.Context())
	if err != nil {
		d.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	d.writeJSON(w, http.StatusOK, job)
}

func (d *Dashboard) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data, err := templates.ReadFile("templates/index.html")
	if err != nil {
		d.logger.Error("read index.html failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}
