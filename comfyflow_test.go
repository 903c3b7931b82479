package comfyflow_test

import (
	"context"
	"encoding/json"
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

	"github.com/aretw0/comfyflow"
	"github.com/aretw0/comfyflow/pkg/adapters/memory"
	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/aretw0/comfyflow/pkg/host"
)

// engine replays a fixed execution for every submission.
type engine struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu        sync.Mutex
	conn      *websocket.Conn
	submitted []map[string]any
}

func startEngine(t *testing.T) string {
	t.Helper()
	objectInfo, err := os.ReadFile(filepath.Join("pkg", "schema", "testdata", "object_info.json"))
	require.NoError(t, err)

	e := &engine{t: t}
	r := chi.NewRouter()
	r.Get("/object_info", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write(objectInfo) })
	r.Get("/embeddings", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`[]`)) })
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := e.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		e.mu.Lock()
		e.conn = conn
		e.mu.Unlock()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	r.Post("/prompt", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		e.mu.Lock()
		e.submitted = append(e.submitted, body)
		e.mu.Unlock()

		// The whole execution is pushed before the submission returns.
		e.push("execution_start", map[string]any{"prompt_id": "p1"})
		e.push("executing", map[string]any{"node": "0", "prompt_id": "p1"})
		e.push("executing", map[string]any{"node": nil, "prompt_id": "p1"})
		e.push("execution_success", map[string]any{"prompt_id": "p1"})

		_ = json.NewEncoder(w).Encode(map[string]any{"prompt_id": "p1", "number": 1})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func (e *engine) push(typ string, data any) {
	b, err := json.Marshal(map[string]any{"type": typ, "data": data})
	require.NoError(e.t, err)
	e.mu.Lock()
	defer e.mu.Unlock()
	require.NoError(e.t, e.conn.WriteMessage(websocket.TextMessage, b))
}

func TestClient_RunFile(t *testing.T) {
	addr := startEngine(t)
	dir := t.TempDir()
	wfPath := filepath.Join(dir, "loader.yaml")
	require.NoError(t, os.WriteFile(wfPath, []byte(`id: loader
nodes:
  - type: CheckpointLoaderSimple
    inputs: {ckpt_name: sdxl.safetensors}
`), 0o644))

	var (
		mu       sync.Mutex
		finished []*domain.PromptEvent
	)
	store := memory.NewStore()
	client, err := comfyflow.New(host.Config{Address: addr, OutputDir: dir},
		comfyflow.WithStore(store),
		comfyflow.WithLifecycleHooks(domain.LifecycleHooks{
			OnPromptFinished: func(_ context.Context, e *domain.PromptEvent) {
				mu.Lock()
				finished = append(finished, e)
				mu.Unlock()
			},
		}))
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 1. Start connects and loads the schema
	require.NoError(t, client.Start(ctx))
	require.NotNil(t, client.Host().Schema())

	// 2. The file is compiled, submitted and followed to the end
	res, err := client.RunFile(ctx, wfPath)
	require.NoError(t, err)
	assert.Equal(t, domain.PromptSuccess, res.Status)
	assert.Empty(t, res.Artifacts)

	// 3. The record is persisted and the hook has run
	rec, err := store.Load(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PromptSuccess, rec.Status)
	assert.Equal(t, "loader", rec.WorkflowID)

	mu.Lock()
	require.Len(t, finished, 1)
	assert.Equal(t, "p1", finished[0].PromptID)
	mu.Unlock()
}

func TestClient_CompileWithoutSchema(t *testing.T) {
	client, err := comfyflow.New(host.Config{Address: "127.0.0.1:1", OutputDir: t.TempDir()})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Compile("missing.yaml")
	assert.ErrorIs(t, err, domain.ErrSchemaNotLoaded)

	_, err = client.NewWorkflow()
	assert.ErrorIs(t, err, domain.ErrSchemaNotLoaded)
}

func TestClient_StartTimesOut(t *testing.T) {
	client, err := comfyflow.New(host.Config{Address: "127.0.0.1:1", OutputDir: t.TempDir()})
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, client.Start(ctx), context.DeadlineExceeded)
}
