package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/comfyflow/internal/logging"
	"github.com/aretw0/comfyflow/pkg/host"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// submissionCounter is an engine that accepts prompts and never runs them.
type submissionCounter struct {
	mu    sync.Mutex
	count int
}

func (s *submissionCounter) get() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func startCountingEngine(t *testing.T) (string, *submissionCounter) {
	t.Helper()
	objectInfo, err := os.ReadFile(filepath.Join("..", "..", "pkg", "schema", "testdata", "object_info.json"))
	require.NoError(t, err)

	counter := &submissionCounter{}
	var upgrader websocket.Upgrader
	r := chi.NewRouter()
	r.Get("/object_info", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write(objectInfo) })
	r.Get("/embeddings", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`[]`)) })
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	r.Post("/prompt", func(w http.ResponseWriter, _ *http.Request) {
		counter.mu.Lock()
		counter.count++
		n := counter.count
		counter.mu.Unlock()
		fmt.Fprintf(w, `{"prompt_id": "p-%d", "number": %d}`, n, n)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://"), counter
}

func TestWatchWorkflow(t *testing.T) {
	addr, counter := startCountingEngine(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "wf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(loaderWorkflow), 0o644))

	h, err := host.New(host.Config{Address: addr, OutputDir: t.TempDir()}, host.WithLogger(logging.NewNop()))
	require.NoError(t, err)
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx)

	out := &syncBuffer{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		watchWorkflow(ctx, h, path, 20*time.Millisecond, logging.NewNop(), out)
	}()

	// 1. The workflow is submitted once the schema is loaded
	require.Eventually(t, func() bool { return counter.get() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "Submitted 'loader-only' as prompt p-1")

	// 2. An invalid edit is reported and not submitted
	require.NoError(t, os.WriteFile(path, []byte("nodes: [\n"), 0o644))
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Workflow invalid") }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, counter.get())

	// 3. A valid edit is submitted again
	changed := strings.Replace(loaderWorkflow, "sd15.safetensors", "sdxl.safetensors", 1)
	require.NoError(t, os.WriteFile(path, []byte(changed), 0o644))
	require.Eventually(t, func() bool { return counter.get() == 2 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
