// Package http exposes a read-only monitoring API over a running host:
// connection state, tracked prompts, server logs, the latest preview and a
// server-sent event stream fed by the lifecycle hooks.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/aretw0/comfyflow/pkg/graph"
	"github.com/aretw0/comfyflow/pkg/host"
	"github.com/aretw0/comfyflow/pkg/ports"
	"github.com/aretw0/comfyflow/pkg/prompt"
	"github.com/aretw0/comfyflow/pkg/protocol"
)

// Source is the host state the monitor reads. *host.Host implements it.
type Source interface {
	IsConnected() bool
	SessionID() string
	Status() host.QueueStatus
	ActivePromptID() string
	SchemaUpdateResult() host.SchemaUpdateResult
	Prompt(id string) (*prompt.Prompt, error)
	Prompts() []*prompt.Prompt
	ServerLogs() []host.ServerLog
	LatestPreview() *protocol.Preview
}

var _ Source = (*host.Host)(nil)

// Server serves the monitoring API.
type Server struct {
	Source  Source
	Streams *StreamManager

	store    ports.PromptStore
	gatherer prometheus.Gatherer
	version  string
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithStore lets prompt lookups fall back to persisted records.
func WithStore(s ports.PromptStore) Option {
	return func(srv *Server) { srv.store = s }
}

// WithGatherer exposes the gatherer on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(srv *Server) { srv.gatherer = g }
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(srv *Server) { srv.version = v }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.logger = l }
}

// New creates a monitor over src.
func New(src Source, opts ...Option) *Server {
	s := &Server{
		Source:  src,
		version: "dev",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/status", s.GetStatus)
	r.Get("/prompts", s.ListPrompts)
	r.Get("/prompts/{id}", s.GetPrompt)
	r.Get("/logs", s.GetLogs)
	r.Get("/preview", s.GetPreview)
	r.Get("/events", s.SubscribeEvents)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /health. It answers 503 while the socket is down.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	if !s.Source.IsConnected() {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "disconnected"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type schemaInfo struct {
	Source string    `json:"source,omitempty"`
	Nodes  int       `json:"nodes"`
	At     time.Time `json:"at,omitzero"`
	Issues []string  `json:"issues,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	res := s.Source.SchemaUpdateResult()
	info := schemaInfo{Source: res.Source, Nodes: res.Nodes, At: res.At, Issues: res.Issues}
	if res.Err != nil {
		info.Error = res.Err.Error()
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"app":        "comfyflow-monitor",
		"version":    s.version,
		"session_id": s.Source.SessionID(),
		"schema":     info,
	})
}

// GetStatus handles GET /status.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"connected":     s.Source.IsConnected(),
		"queue":         s.Source.Status(),
		"active_prompt": s.Source.ActivePromptID(),
	})
}

type promptView struct {
	*domain.PromptRecord
	Progress *graph.ProgressReport `json:"progress,omitempty"`
	Pending  int                   `json:"pending_retrievals,omitempty"`
	Result   *prompt.Result        `json:"result,omitempty"`
	Live     bool                  `json:"live"`
}

func liveView(p *prompt.Prompt) promptView {
	progress := p.Progress()
	return promptView{
		PromptRecord: p.Record(),
		Progress:     &progress,
		Pending:      p.Pending(),
		Result:       p.Result(),
		Live:         true,
	}
}

// ListPrompts handles GET /prompts. Live prompts come first in submission
// order, followed by stored records not tracked anymore.
func (s *Server) ListPrompts(w http.ResponseWriter, r *http.Request) {
	live := s.Source.Prompts()
	out := make([]promptView, 0, len(live))
	seen := make(map[string]bool, len(live))
	for _, p := range live {
		v := liveView(p)
		v.Result = nil
		out = append(out, v)
		seen[p.ID()] = true
	}

	if s.store != nil {
		ids, err := s.store.List(r.Context())
		if err != nil {
			s.logger.Warn("monitor: failed to list stored prompts", "err", err)
		}
		for _, id := range ids {
			if seen[id] {
				continue
			}
			rec, err := s.store.Load(r.Context(), id)
			if err != nil {
				continue
			}
			out = append(out, promptView{PromptRecord: rec})
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

// GetPrompt handles GET /prompts/{id}.
func (s *Server) GetPrompt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if p, err := s.Source.Prompt(id); err == nil {
		s.writeJSON(w, http.StatusOK, liveView(p))
		return
	}

	if s.store != nil {
		rec, err := s.store.Load(r.Context(), id)
		switch {
		case err == nil:
			s.writeJSON(w, http.StatusOK, promptView{PromptRecord: rec})
			return
		case !errors.Is(err, domain.ErrPromptNotFound):
			s.logger.Error("monitor: failed to load prompt", "prompt", id, "err", err)
			http.Error(w, "store error", http.StatusInternalServerError)
			return
		}
	}
	http.Error(w, "prompt not found", http.StatusNotFound)
}

// GetLogs handles GET /logs. The optional since parameter skips lines with
// an id less than or equal to it.
func (s *Server) GetLogs(w http.ResponseWriter, r *http.Request) {
	since := -1
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		since = n
	}

	logs := s.Source.ServerLogs()
	out := make([]host.ServerLog, 0, len(logs))
	for _, l := range logs {
		if l.ID > since {
			out = append(out, l)
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

// GetPreview handles GET /preview, returning the raw image of the latest
// preview frame or 204 when none was received.
func (s *Server) GetPreview(w http.ResponseWriter, r *http.Request) {
	p := s.Source.LatestPreview()
	if p == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", p.Mime)
	w.Header().Set("Cache-Control", "no-store")
	if p.PromptID != "" {
		w.Header().Set("X-Prompt-Id", p.PromptID)
	}
	w.Header().Set("Last-Modified", p.ReceivedAt.UTC().Format(http.TimeFormat))
	_, _ = w.Write(p.Data)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("monitor: response encode failed", "err", err)
	}
}
