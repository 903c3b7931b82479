package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aretw0/comfyflow/internal/logging"
)

// DefaultReconnectDelay is the fixed wait before reconnecting.
const DefaultReconnectDelay = 2 * time.Second

const maxDebugMessages = 100

// Handlers are invoked from the transport's goroutines.
// OnMessage is called sequentially, in arrival order.
type Handlers struct {
	OnMessage func(Frame)
	OnConnect func()
	OnClose   func(err error)
}

// DebugEntry is one line of the transport's connection history.
type DebugEntry struct {
	At      time.Time
	Level   slog.Level
	Message string
}

// Transport is a reconnecting WebSocket client with outbound buffering.
type Transport struct {
	url      string
	header   http.Header
	dialer   Dialer
	handlers Handlers
	delay    time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	conn   Conn
	gen    uint64
	open   bool
	closed bool
	buffer []Frame
	timer  *time.Timer
	debug  []DebugEntry
}

// Option configures a Transport.
type Option func(*Transport)

func WithDialer(d Dialer) Option {
	return func(t *Transport) { t.dialer = d }
}

func WithReconnectDelay(d time.Duration) Option {
	return func(t *Transport) { t.delay = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

func WithHeader(h http.Header) Option {
	return func(t *Transport) { t.header = h }
}

// New creates a transport. Nothing is dialed until Connect.
func New(url string, handlers Handlers, opts ...Option) *Transport {
	t := &Transport{
		url:      url,
		dialer:   GorillaDialer{},
		handlers: handlers,
		delay:    DefaultReconnectDelay,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("url", url)
	return t
}

// URL returns the endpoint dialed by the transport.
func (t *Transport) URL() string { return t.url }

// Connect discards any current connection and dials a new one in the background.
// The context bounds the whole life of the transport: once it is done, no
// reconnect is attempted.
func (t *Transport) Connect(ctx context.Context) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.ctx = ctx
	t.gen++
	gen := t.gen
	prev := t.conn
	t.conn = nil
	t.open = false
	t.mu.Unlock()

	if prev != nil {
		t.info("previous connection discarded")
		prev.Close()
	}
	go t.run(ctx, gen)
}

// Send writes the frame now if connected, otherwise queues it.
// Queued frames are never dropped and keep their order.
func (t *Transport) Send(f Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.open && t.conn != nil && len(t.buffer) == 0 {
		err := t.conn.WriteMessage(f.messageType(), f.Data)
		if err == nil {
			return
		}
		msg := fmt.Sprintf("send failed, frame queued: %v", err)
		t.record(slog.LevelError, msg)
		t.logger.Warn(msg)
	}
	t.buffer = append(t.buffer, f)
}

// IsOpen reports whether a connection is established.
func (t *Transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// Pending returns the number of queued outbound frames.
func (t *Transport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffer)
}

// Close stops the transport for good.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	conn := t.conn
	t.conn = nil
	t.open = false
	t.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// DebugMessages returns the recent connection history, oldest first.
func (t *Transport) DebugMessages() []DebugEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.debug)
}

func (t *Transport) run(ctx context.Context, gen uint64) {
	conn, err := t.dialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		t.errorf("dial failed: %v", err)
		t.scheduleReconnect(gen)
		return
	}

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conn = conn
	for len(t.buffer) > 0 {
		f := t.buffer[0]
		if err := conn.WriteMessage(f.messageType(), f.Data); err != nil {
			t.mu.Unlock()
			t.closeConn(gen, conn, fmt.Errorf("flush: %w", err))
			return
		}
		t.buffer = t.buffer[1:]
	}
	t.open = true
	t.mu.Unlock()

	t.info("connected")
	if t.handlers.OnConnect != nil {
		t.handlers.OnConnect()
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			t.closeConn(gen, conn, err)
			return
		}
		if !t.current(gen) {
			return
		}
		if t.handlers.OnMessage != nil {
			t.handlers.OnMessage(Frame{Binary: mt == websocket.BinaryMessage, Data: data})
		}
	}
}

func (t *Transport) current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return gen == t.gen
}

func (t *Transport) closeConn(gen uint64, conn Conn, cause error) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.open = false
	t.conn = nil
	t.mu.Unlock()

	conn.Close()
	t.errorf("connection closed: %v", cause)
	if t.handlers.OnClose != nil {
		t.handlers.OnClose(cause)
	}
	t.scheduleReconnect(gen)
}

func (t *Transport) scheduleReconnect(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || gen != t.gen || t.ctx.Err() != nil {
		return
	}
	ctx := t.ctx
	t.record(slog.LevelInfo, fmt.Sprintf("reconnecting in %s", t.delay))
	t.timer = time.AfterFunc(t.delay, func() { t.Connect(ctx) })
}

func (t *Transport) info(msg string) {
	t.mu.Lock()
	t.record(slog.LevelInfo, msg)
	t.mu.Unlock()
	t.logger.Info(msg)
}

func (t *Transport) errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	t.mu.Lock()
	t.record(slog.LevelError, msg)
	t.mu.Unlock()
	t.logger.Warn(msg)
}

// record appends to the debug history; callers hold t.mu.
func (t *Transport) record(level slog.Level, msg string) {
	t.debug = append(t.debug, DebugEntry{At: time.Now(), Level: level, Message: msg})
	if len(t.debug) > maxDebugMessages {
		t.debug = t.debug[len(t.debug)-maxDebugMessages:]
	}
}
