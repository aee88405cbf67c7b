// Package httpapi is the HTTP surface chief exposes to the outside world:
// a notify-event webhook for background workers to poke a conversation,
// and an SSE endpoint streaming a conversation's activity.
//
// Grounded on internal/gateway/http_server.go's plain net/http.ServeMux
// server setup (no router framework) and internal/mcp/transport_http.go's
// SSE write loop.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nexus-chief/chief/internal/convstream"
	"github.com/nexus-chief/chief/internal/notify"
	"github.com/nexus-chief/chief/internal/sessionmgr"
	"github.com/nexus-chief/chief/internal/storage"
	"github.com/nexus-chief/chief/pkg/models"
)

// Server exposes chief's external HTTP API.
type Server struct {
	notify   *notify.Core
	sessions *sessionmgr.Manager
	prober   convstream.StatusProber
	log      *slog.Logger
	httpSrv  *http.Server
}

// Config wires a Server's dependencies.
type Config struct {
	Addr     string
	Notify   *notify.Core
	Sessions *sessionmgr.Manager
	Prober   convstream.StatusProber
}

// New builds a Server and its underlying http.Server, not yet listening.
func New(cfg Config, log *slog.Logger) *Server {
	s := &Server{
		notify:   cfg.Notify,
		sessions: cfg.Sessions,
		prober:   cfg.Prober,
		log:      log.With("component", "httpapi"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /api/sessions/notify-event", s.handleNotifyEvent)
	mux.HandleFunc("GET /api/conversations/{id}/stream", s.handleConversationStream)

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe runs the HTTP server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpSrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type notifyEventRequest struct {
	ConversationID string `json:"conversation_id"`
}

// handleNotifyEvent lets a background process (the worker executor,
// typically) ask chief to wake a conversation outside of its own event
// bus subscription — the externally reachable twin of notify.Core's
// in-process WakeConversation call.
func (s *Server) handleNotifyEvent(w http.ResponseWriter, r *http.Request) {
	var req notifyEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
		return
	}
	if req.ConversationID == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}
	if err := s.notify.WakeConversation(r.Context(), req.ConversationID); err != nil {
		s.log.Error("notify-event failed", "conversation_id", req.ConversationID, "error", err)
		http.Error(w, "wake failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleConversationStream serves convstream.Stream as SSE, parsing
// include_thinking and after_uuid from the query string.
func (s *Server) handleConversationStream(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	if conversationID == "" {
		http.Error(w, "missing conversation id", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	includeThinking := r.URL.Query().Get("include_thinking") != "false"
	afterUUID := r.URL.Query().Get("after_uuid")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	getActive := func(ctx context.Context) (*models.Session, error) {
		sess, err := s.sessions.ActiveSessionForConversation(ctx, conversationID)
		if err == storage.ErrNotFound {
			return nil, nil
		}
		return sess, err
	}

	events := convstream.Stream(r.Context(), conversationID, getActive, s.prober, includeThinking, afterUUID)
	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
		flusher.Flush()
	}
}
