package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	written  []Frame
	incoming chan Frame
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan Frame, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.incoming:
		return f.messageType(), f.Data, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return errors.New("write on closed connection")
	default:
	}
	c.written = append(c.written, Frame{Binary: mt == websocket.BinaryMessage, Data: data})
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, f := range c.written {
		out = append(out, string(f.Data))
	}
	return out
}

type fakeDialer struct {
	gate   chan struct{}
	fail   atomic.Int32
	dialed chan *fakeConn
	count  atomic.Int32
}

func newFakeDialer(gated bool) *fakeDialer {
	d := &fakeDialer{dialed: make(chan *fakeConn, 16)}
	if gated {
		d.gate = make(chan struct{})
	}
	return d
}

func (d *fakeDialer) DialContext(ctx context.Context, _ string, _ http.Header) (Conn, error) {
	d.count.Add(1)
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.fail.Load() > 0 {
		d.fail.Add(-1)
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.dialed <- c
	return c, nil
}

func waitConn(t *testing.T, d *fakeDialer) *fakeConn {
	t.Helper()
	select {
	case c := <-d.dialed:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection dialed")
		return nil
	}
}

func TestTransport_FlushesBufferOnReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := newFakeDialer(true)
	var flushedAtConnect []int
	var mu sync.Mutex
	var current *fakeConn
	tr := New("ws://engine/ws", Handlers{
		OnConnect: func() {
			mu.Lock()
			defer mu.Unlock()
			if current != nil {
				flushedAtConnect = append(flushedAtConnect, len(current.Written()))
			}
		},
	}, WithDialer(d), WithReconnectDelay(10*time.Millisecond))
	defer tr.Close()

	// 1. First connection
	tr.Connect(ctx)
	d.gate <- struct{}{}
	first := waitConn(t, d)
	require.Eventually(t, tr.IsOpen, time.Second, 5*time.Millisecond)

	// 2. Drop it; the reconnect dial blocks on the gate
	first.Close()
	require.Eventually(t, func() bool { return !tr.IsOpen() }, time.Second, 5*time.Millisecond)

	// 3. Sends while down are buffered
	tr.Send(Text([]byte("one")))
	tr.Send(Text([]byte("two")))
	tr.Send(Text([]byte("three")))
	assert.Equal(t, 3, tr.Pending())

	// 4. Reconnect flushes exactly once, in order, before OnConnect
	require.Eventually(t, func() bool { return d.count.Load() >= 2 }, time.Second, 5*time.Millisecond)
	mu.Lock()
	d.gate <- struct{}{}
	second := waitConn(t, d)
	current = second
	mu.Unlock()

	// OnConnect runs after the transport reports open, so wait for the hook.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(flushedAtConnect) == 1
	}, time.Second, 5*time.Millisecond)
	assert.True(t, tr.IsOpen())
	assert.Equal(t, []string{"one", "two", "three"}, second.Written())
	assert.Empty(t, first.Written())
	assert.Zero(t, tr.Pending())
	mu.Lock()
	assert.Equal(t, []int{3}, flushedAtConnect)
	mu.Unlock()

	// 5. Live sends go straight through
	tr.Send(Text([]byte("four")))
	assert.Equal(t, []string{"one", "two", "three", "four"}, second.Written())
}

func TestTransport_IgnoresSupersededConnection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := newFakeDialer(false)
	var connects, closes atomic.Int32
	var got []string
	var mu sync.Mutex
	tr := New("ws://engine/ws", Handlers{
		OnConnect: func() { connects.Add(1) },
		OnClose:   func(error) { closes.Add(1) },
		OnMessage: func(f Frame) {
			mu.Lock()
			got = append(got, string(f.Data))
			mu.Unlock()
		},
	}, WithDialer(d), WithReconnectDelay(time.Hour))
	defer tr.Close()

	tr.Connect(ctx)
	first := waitConn(t, d)
	require.Eventually(t, func() bool { return connects.Load() == 1 }, time.Second, 5*time.Millisecond)

	tr.Connect(ctx)
	second := waitConn(t, d)
	require.Eventually(t, func() bool { return connects.Load() == 2 }, time.Second, 5*time.Millisecond)

	second.incoming <- Text([]byte("live"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	// the discarded connection was closed without triggering OnClose
	select {
	case <-first.closed:
	default:
		t.Fatal("previous connection not closed")
	}
	assert.Zero(t, closes.Load())
	assert.Equal(t, []string{"live"}, got)
}

func TestTransport_RetriesFailedDial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := newFakeDialer(false)
	d.fail.Store(2)
	tr := New("ws://engine/ws", Handlers{}, WithDialer(d), WithReconnectDelay(5*time.Millisecond))
	defer tr.Close()

	tr.Connect(ctx)
	waitConn(t, d)

	require.Eventually(t, tr.IsOpen, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), d.count.Load())

	var errorsLogged int
	for _, e := range tr.DebugMessages() {
		if strings.Contains(e.Message, "dial failed") {
			errorsLogged++
		}
	}
	assert.Equal(t, 2, errorsLogged)
}

func TestTransport_CloseStopsReconnecting(t *testing.T) {
	d := newFakeDialer(false)
	tr := New("ws://engine/ws", Handlers{}, WithDialer(d), WithReconnectDelay(5*time.Millisecond))

	tr.Connect(context.Background())
	conn := waitConn(t, d)
	require.Eventually(t, tr.IsOpen, time.Second, 5*time.Millisecond)

	require.NoError(t, tr.Close())
	conn.Close()
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, int32(1), d.count.Load())
	assert.False(t, tr.IsOpen())

	tr.Connect(context.Background())
	assert.Equal(t, int32(1), d.count.Load())
}

func TestTransport_CancelledContextStopsReconnecting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := newFakeDialer(false)
	tr := New("ws://engine/ws", Handlers{}, WithDialer(d), WithReconnectDelay(5*time.Millisecond))
	defer tr.Close()

	tr.Connect(ctx)
	conn := waitConn(t, d)
	require.Eventually(t, tr.IsOpen, time.Second, 5*time.Millisecond)

	cancel()
	conn.Close()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), d.count.Load())
}

func TestTransport_Gorilla(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, append([]byte("echo:"), data...)); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Frame, 4)
	tr := New("ws"+strings.TrimPrefix(srv.URL, "http"), Handlers{
		OnMessage: func(f Frame) { received <- f },
	})
	defer tr.Close()

	tr.Send(Text([]byte("hello")))
	tr.Connect(ctx)

	select {
	case f := <-received:
		assert.False(t, f.Binary)
		assert.Equal(t, "echo:hello", string(f.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("no echo received")
	}
}
