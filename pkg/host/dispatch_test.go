package host

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/aretw0/comfyflow/pkg/graph"
	"github.com/aretw0/comfyflow/pkg/prompt"
	"github.com/aretw0/comfyflow/pkg/protocol"
	"github.com/aretw0/comfyflow/pkg/schema"
	"github.com/aretw0/comfyflow/pkg/transport"
)

type countingMetrics struct {
	mu      sync.Mutex
	frames  map[string]int
	failed  map[string]int
	connect int
	schema  []bool
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{frames: map[string]int{}, failed: map[string]int{}}
}

func (m *countingMetrics) FrameReceived(kind string) { m.mu.Lock(); m.frames[kind]++; m.mu.Unlock() }
func (m *countingMetrics) DecodeFailed(kind string)  { m.mu.Lock(); m.failed[kind]++; m.mu.Unlock() }
func (m *countingMetrics) Connected()                { m.mu.Lock(); m.connect++; m.mu.Unlock() }
func (m *countingMetrics) SchemaRefreshed(ok bool)   { m.mu.Lock(); m.schema = append(m.schema, ok); m.mu.Unlock() }

func newTestHost(t *testing.T, cfg Config, opts ...Option) *Host {
	t.Helper()
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:1"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = t.TempDir()
	}
	h, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func textFrame(t *testing.T, typ string, data any) transport.Frame {
	t.Helper()
	b, err := json.Marshal(map[string]any{"type": typ, "data": data})
	require.NoError(t, err)
	return transport.Text(b)
}

// twoNodeWorkflow returns a workflow with a generator (id 1) feeding a saver (id 2).
func twoNodeWorkflow(t *testing.T) *graph.Workflow {
	t.Helper()
	catalog := schema.NewCatalog(
		&schema.NodeSchema{Name: "Gen", Outputs: []schema.OutputSpec{{Name: "IMAGE", Type: "IMAGE"}}},
		&schema.NodeSchema{
			Name:       "Save",
			OutputNode: true,
			Inputs:     []schema.InputSpec{{Name: "images", Type: "IMAGE", Required: true}},
		},
	)
	wf := graph.NewWorkflow(catalog)
	_, err := wf.CreateNode("Gen", nil, graph.Meta{ID: "1"})
	require.NoError(t, err)
	_, err = wf.CreateNode("Save", map[string]any{"images": graph.AutoWire}, graph.Meta{ID: "2"})
	require.NoError(t, err)
	return wf
}

func track(h *Host, id string, wf *graph.Workflow) *prompt.Prompt {
	p := prompt.New(h.ctx, id, wf, prompt.Deps{Logger: h.logger})
	h.register(p)
	return p
}

func TestOnFrame_UnknownTypeDoesNotAffectNextFrame(t *testing.T) {
	metrics := newCountingMetrics()
	h := newTestHost(t, Config{}, WithMetrics(metrics))

	// 1. An unknown message type arrives first
	h.onFrame(textFrame(t, "mystery", map[string]any{"x": 1}))
	// 2. A malformed frame follows
	h.onFrame(transport.Text([]byte("{not json")))
	// 3. The next valid message is still routed
	h.onFrame(textFrame(t, "executing", map[string]any{"node": "1", "prompt_id": "p1"}))

	assert.Equal(t, 1, h.bufferedCount("p1"))
	assert.Equal(t, "p1", h.ActivePromptID())

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, 3, metrics.frames[protocol.KindText])
	assert.Equal(t, 2, metrics.failed[protocol.KindText])
}

func TestRegister_ReplaysBufferedMessagesInOrder(t *testing.T) {
	h := newTestHost(t, Config{})
	wf := twoNodeWorkflow(t)

	// 1. Messages arrive before the submission returned
	h.onFrame(textFrame(t, "execution_start", map[string]any{"prompt_id": "p1"}))
	h.onFrame(textFrame(t, "executing", map[string]any{"node": "1", "prompt_id": "p1"}))
	h.onFrame(textFrame(t, "progress", map[string]any{"value": 5, "max": 10, "prompt_id": "p1"}))
	require.Equal(t, 3, h.bufferedCount("p1"))

	// 2. Registration replays them
	p := track(h, "p1", wf)
	assert.Equal(t, 0, h.bufferedCount("p1"))
	assert.Equal(t, domain.PromptRunning, p.Status())

	gen, _ := wf.Node("1")
	assert.Equal(t, domain.NodeExecuting, gen.Status())
	assert.InDelta(t, 0.5, gen.Progress(), 1e-9)

	// 3. Live messages continue after the replay
	h.onFrame(textFrame(t, "executing", map[string]any{"node": "2", "prompt_id": "p1"}))
	assert.Equal(t, domain.NodeDone, gen.Status())
}

func TestRoute_ProgressWithoutPromptIDGoesToActivePrompt(t *testing.T) {
	h := newTestHost(t, Config{})
	wf := twoNodeWorkflow(t)
	track(h, "p1", wf)

	h.onFrame(textFrame(t, "executing", map[string]any{"node": "1", "prompt_id": "p1"}))
	h.onFrame(textFrame(t, "progress", map[string]any{"value": 3, "max": 4}))

	gen, _ := wf.Node("1")
	assert.InDelta(t, 0.75, gen.Progress(), 1e-9)
}

func TestRoute_ProgressWithoutAnyActivePromptIsDropped(t *testing.T) {
	h := newTestHost(t, Config{})
	h.onFrame(textFrame(t, "progress", map[string]any{"value": 1, "max": 2}))
	assert.Equal(t, 0, h.bufferedCount(""))
	assert.Empty(t, h.ActivePromptID())
}

func TestRoute_BufferEvictsOldestPrompt(t *testing.T) {
	h := newTestHost(t, Config{})
	for i := range maxBufferedPrompts + 1 {
		h.onFrame(textFrame(t, "execution_start", map[string]any{"prompt_id": fmt.Sprintf("p-%d", i)}))
	}
	assert.Equal(t, 0, h.bufferedCount("p-0"))
	assert.Equal(t, 1, h.bufferedCount("p-1"))
	assert.Equal(t, 1, h.bufferedCount(fmt.Sprintf("p-%d", maxBufferedPrompts)))
}

func TestRoute_LateTerminalMessageIsRejected(t *testing.T) {
	h := newTestHost(t, Config{})
	p := track(h, "p1", twoNodeWorkflow(t))

	h.onFrame(textFrame(t, "execution_error", map[string]any{"prompt_id": "p1", "node_id": "1", "exception_message": "boom"}))
	h.onFrame(textFrame(t, "execution_success", map[string]any{"prompt_id": "p1"}))

	res, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.PromptFailure, res.Status)
	assert.Equal(t, domain.PromptFailure, p.Status())
}

func TestDispatch_StatusUpdatesSession(t *testing.T) {
	h := newTestHost(t, Config{ClientID: "client-1"})
	assert.Equal(t, "client-1", h.SessionID())

	h.onFrame(textFrame(t, "status", map[string]any{
		"status": map[string]any{"exec_info": map[string]any{"queue_remaining": 2}},
		"sid":    "sess-9",
	}))
	assert.Equal(t, "sess-9", h.SessionID())
	assert.Equal(t, 2, h.Status().QueueRemaining)

	// A status without sid keeps the session.
	h.onFrame(textFrame(t, "status", map[string]any{
		"status": map[string]any{"exec_info": map[string]any{"queue_remaining": 0}},
	}))
	assert.Equal(t, "sess-9", h.SessionID())
	assert.Equal(t, 0, h.Status().QueueRemaining)
}

func TestDispatch_ServerLogsAreCapped(t *testing.T) {
	var (
		mu    sync.Mutex
		lines []string
	)
	h := newTestHost(t, Config{MaxServerLogs: 2}, WithLifecycleHooks(domain.LifecycleHooks{
		OnServerLog: func(_ context.Context, e *domain.LogEvent) {
			mu.Lock()
			lines = append(lines, e.Content)
			mu.Unlock()
		},
	}))

	for _, line := range []string{"one", "two", "three"} {
		h.onFrame(textFrame(t, "manager-terminal-feedback", map[string]any{"data": line}))
	}

	logs := h.ServerLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, "two", logs[0].Content)
	assert.Equal(t, 3, logs[1].ID)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"one", "two", "three"}, lines)
}

func TestOnFrame_BinaryPreview(t *testing.T) {
	metrics := newCountingMetrics()
	var previews []*domain.PreviewEvent
	h := newTestHost(t, Config{}, WithMetrics(metrics), WithLifecycleHooks(domain.LifecycleHooks{
		OnPreview: func(_ context.Context, e *domain.PreviewEvent) { previews = append(previews, e) },
	}))
	track(h, "p1", twoNodeWorkflow(t))
	h.onFrame(textFrame(t, "execution_start", map[string]any{"prompt_id": "p1"}))

	// 1. A valid preview is kept and attributed to the active prompt
	h.onFrame(transport.Frame{Binary: true, Data: protocol.EncodePreview(protocol.ImagePNG, []byte("png-bytes"))})
	preview := h.LatestPreview()
	require.NotNil(t, preview)
	assert.Equal(t, "image/png", preview.Mime)
	assert.Equal(t, "p1", preview.PromptID)
	assert.Equal(t, []byte("png-bytes"), preview.Data)

	// 2. A short frame is dropped and the preview kept
	h.onFrame(transport.Frame{Binary: true, Data: []byte{0, 0}})
	assert.Same(t, preview, h.LatestPreview())

	require.Len(t, previews, 1)
	assert.Equal(t, 9, previews[0].Size)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, 2, metrics.frames[protocol.KindBinary])
	assert.Equal(t, 1, metrics.failed[protocol.KindBinary])
}
