package host

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/comfyflow/internal/logging"
	"github.com/aretw0/comfyflow/pkg/artifact"
	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/aretw0/comfyflow/pkg/ports"
	"github.com/aretw0/comfyflow/pkg/prompt"
	"github.com/aretw0/comfyflow/pkg/protocol"
	"github.com/aretw0/comfyflow/pkg/schema"
	"github.com/aretw0/comfyflow/pkg/transport"
)

const tracerName = "github.com/aretw0/comfyflow/pkg/host"

// maxBufferedPrompts bounds how many unknown prompt ids are buffered at once.
// The oldest id is evicted first.
const maxBufferedPrompts = 64

// ServerLog is one line of server terminal output.
type ServerLog struct {
	ID      int       `json:"id"`
	At      time.Time `json:"at"`
	Content string    `json:"content"`
}

// QueueStatus is the last status broadcast by the server.
type QueueStatus struct {
	SessionID      string    `json:"session_id"`
	QueueRemaining int       `json:"queue_remaining"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Host is the client of one execution engine.
type Host struct {
	cfg     Config
	logger  *slog.Logger
	client  *http.Client
	dialer  transport.Dialer
	hooks   domain.LifecycleHooks
	store   ports.PromptStore
	metrics Metrics
	tracer  trace.Tracer
	saver   *artifact.Saver
	decoder *protocol.Decoder
	ws      *transport.Transport

	ctx    context.Context
	cancel context.CancelFunc

	// routeMu serializes every delivery to prompts, so replaying a buffer
	// and live routing never interleave.
	routeMu     sync.Mutex
	prompts     map[string]*prompt.Prompt
	order       []string
	buffered    map[string][]protocol.PromptMessage
	bufferOrder []string
	active      string

	mu      sync.Mutex
	status  QueueStatus
	logs    []ServerLog
	logID   int
	preview *protocol.Preview

	schemaMu     sync.RWMutex
	catalog      *schema.Catalog
	schemaResult SchemaUpdateResult
	schemaReady  chan struct{}
	schemaOnce   sync.Once
	refreshMu    sync.Mutex
}

// New creates a Host. Nothing is dialed until Start.
func New(cfg Config, opts ...Option) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid host config: %w", err)
	}
	cfg.setDefaults()
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		cfg:         cfg,
		logger:      logging.NewNop(),
		client:      &http.Client{Timeout: cfg.RequestTimeout},
		tracer:      otel.Tracer(tracerName),
		decoder:     protocol.NewDecoder(),
		ctx:         ctx,
		cancel:      cancel,
		prompts:     make(map[string]*prompt.Prompt),
		buffered:    make(map[string][]protocol.PromptMessage),
		status:      QueueStatus{SessionID: cfg.ClientID},
		schemaReady: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("host", cfg.ID)
	if h.saver == nil {
		h.saver = artifact.NewSaver(h, cfg.OutputDir,
			artifact.WithFormat(cfg.SaveFormat),
			artifact.WithLogger(h.logger))
	}

	topts := []transport.Option{
		transport.WithLogger(h.logger),
		transport.WithReconnectDelay(cfg.ReconnectDelay),
	}
	if h.dialer != nil {
		topts = append(topts, transport.WithDialer(h.dialer))
	}
	h.ws = transport.New(cfg.WSURL(), transport.Handlers{
		OnMessage: h.onFrame,
		OnConnect: h.onConnect,
		OnClose:   h.onClose,
	}, topts...)
	return h, nil
}

// Config returns the effective configuration, defaults applied.
func (h *Host) Config() Config { return h.cfg }

// Start loads the cached schema when enabled, then connects. ctx bounds the
// life of the host; Close ends it too.
func (h *Host) Start(ctx context.Context) {
	context.AfterFunc(ctx, h.cancel)
	if h.cfg.CacheSchema {
		if err := h.LoadSchemaFromCache(); err != nil {
			h.logger.Debug("no usable schema cache", "err", err)
		}
	}
	h.logger.Info("connecting", "url", h.ws.URL())
	h.ws.Connect(h.ctx)
}

// Close stops the connection and cancels in-flight retrievals.
func (h *Host) Close() error {
	h.cancel()
	return h.ws.Close()
}

// IsConnected reports whether the WebSocket is open.
func (h *Host) IsConnected() bool { return h.ws.IsOpen() }

// ConnectionLog returns the recent connection history.
func (h *Host) ConnectionLog() []transport.DebugEntry { return h.ws.DebugMessages() }

// SessionID is the id the server knows this client by.
func (h *Host) SessionID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.SessionID == "" {
		return DefaultSessionID
	}
	return h.status.SessionID
}

// Status returns the last queue status.
func (h *Host) Status() QueueStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// ServerLogs returns buffered server output, oldest first.
func (h *Host) ServerLogs() []ServerLog {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.logs)
}

// LatestPreview returns the last preview frame, or nil.
func (h *Host) LatestPreview() *protocol.Preview {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.preview
}

// ActivePromptID is the prompt the server last reported activity for.
func (h *Host) ActivePromptID() string {
	h.routeMu.Lock()
	defer h.routeMu.Unlock()
	return h.active
}

// Prompt returns a tracked prompt.
func (h *Host) Prompt(id string) (*prompt.Prompt, error) {
	h.routeMu.Lock()
	defer h.routeMu.Unlock()
	p, ok := h.prompts[id]
	if !ok {
		return nil, fmt.Errorf("prompt %s: %w", id, domain.ErrPromptNotFound)
	}
	return p, nil
}

// Prompts returns every tracked prompt in submission order.
func (h *Host) Prompts() []*prompt.Prompt {
	h.routeMu.Lock()
	defer h.routeMu.Unlock()
	out := make([]*prompt.Prompt, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.prompts[id])
	}
	return out
}

func (h *Host) onConnect() {
	h.logger.Info("connected")
	if h.metrics != nil {
		h.metrics.Connected()
	}
	go func() {
		if err := h.RefreshSchema(h.ctx); err != nil {
			h.logger.Warn("schema refresh failed", "err", err)
		}
	}()
}

func (h *Host) onClose(err error) {
	h.logger.Info("connection closed", "err", err)
}

func (h *Host) addLog(content string) {
	h.mu.Lock()
	h.logID++
	entry := ServerLog{ID: h.logID, At: time.Now(), Content: content}
	h.logs = append(h.logs, entry)
	if over := len(h.logs) - h.cfg.MaxServerLogs; over > 0 {
		h.logs = slices.Delete(h.logs, 0, over)
	}
	h.mu.Unlock()

	if hook := h.hooks.OnServerLog; hook != nil {
		hook(h.ctx, &domain.LogEvent{
			EventBase: domain.EventBase{Timestamp: entry.At, Type: domain.EventServerLog},
			Content:   content,
		})
	}
}
