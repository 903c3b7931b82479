package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/comfyflow/pkg/domain"
)

// Event is one message pushed to SSE subscribers.
type Event struct {
	Type     domain.EventType
	PromptID string
	Data     string
}

// StreamManager handles active SSE connections.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- Event]struct{} // PromptID, "" for all -> channels
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- Event]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a channel for events of promptID, or of every prompt
// when promptID is empty. The returned func unsubscribes and closes it.
func (sm *StreamManager) Subscribe(promptID string) (<-chan Event, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan Event, 32)
	if _, ok := sm.subscribers[promptID]; !ok {
		sm.subscribers[promptID] = make(map[chan<- Event]struct{})
	}
	sm.subscribers[promptID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[promptID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, promptID)
				}
			}
		})
	}
}

// Subscribers returns the number of open subscriptions.
func (sm *StreamManager) Subscribers() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	n := 0
	for _, subs := range sm.subscribers {
		n += len(subs)
	}
	return n
}

// Broadcast delivers e to the subscribers of its prompt and to the global ones.
// Slow subscribers lose the event.
func (sm *StreamManager) Broadcast(e Event) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	send := func(subs map[chan<- Event]struct{}) {
		for ch := range subs {
			select {
			case ch <- e:
			default:
				sm.logger.Warn("SSE: client buffer full, dropping event", "type", e.Type, "prompt", e.PromptID)
			}
		}
	}
	if e.PromptID != "" {
		send(sm.subscribers[e.PromptID])
	}
	send(sm.subscribers[""])
}

func (sm *StreamManager) publish(typ domain.EventType, promptID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		sm.logger.Error("SSE: failed to encode event", "type", typ, "err", err)
		return
	}
	sm.Broadcast(Event{Type: typ, PromptID: promptID, Data: string(data)})
}

// Hooks returns lifecycle hooks that publish every event to the stream.
func (s *Server) Hooks() domain.LifecycleHooks {
	sm := s.Streams
	return domain.LifecycleHooks{
		OnNodeStatus: func(_ context.Context, e *domain.NodeEvent) {
			sm.publish(e.Type, e.PromptID, e)
		},
		OnPromptFinished: func(_ context.Context, e *domain.PromptEvent) {
			sm.publish(e.Type, e.PromptID, e)
		},
		OnPreview: func(_ context.Context, e *domain.PreviewEvent) {
			sm.publish(e.Type, e.PromptID, e)
		},
		OnServerLog: func(_ context.Context, e *domain.LogEvent) {
			sm.publish(e.Type, "", e)
		},
		OnArtifact: func(_ context.Context, e *domain.ArtifactEvent) {
			sm.publish(e.Type, e.PromptID, e)
		},
	}
}

// SubscribeEvents handles GET /events (SSE).
// Query parameters: prompt_id narrows the stream to one prompt, types is a
// comma separated list of event types to keep.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: streaming not supported")
		return
	}

	promptID := r.URL.Query().Get("prompt_id")
	var keep map[domain.EventType]bool
	if v := r.URL.Query().Get("types"); v != "" {
		keep = make(map[domain.EventType]bool)
		for _, t := range strings.Split(v, ",") {
			keep[domain.EventType(strings.TrimSpace(t))] = true
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(promptID)
	defer cancel()
	s.logger.Debug("SSE: client subscribed", "prompt", promptID)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE: client disconnected", "prompt", promptID)
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if keep != nil && !keep[e.Type] {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, e.Data)
			flusher.Flush()
		}
	}
}
