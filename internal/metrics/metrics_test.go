package metrics_test

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/comfyflow/internal/metrics"
	"github.com/aretw0/comfyflow/pkg/domain"
)

func TestCollector(t *testing.T) {
	c := metrics.New()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	// 1. Connection level counts
	c.FrameReceived("text")
	c.FrameReceived("text")
	c.FrameReceived("binary")
	c.DecodeFailed("text")
	c.Connected()
	c.SchemaRefreshed(true)

	// 2. Prompt level counts through hooks
	hooks := c.Hooks()
	ctx := context.Background()
	hooks.OnNodeStatus(ctx, &domain.NodeEvent{Status: domain.NodeDone})
	hooks.OnPromptFinished(ctx, &domain.PromptEvent{Status: domain.PromptSuccess})
	hooks.OnPromptFinished(ctx, &domain.PromptEvent{Status: domain.PromptFailure})
	hooks.OnArtifact(ctx, &domain.ArtifactEvent{Duration: 20 * time.Millisecond})
	hooks.OnArtifact(ctx, &domain.ArtifactEvent{Error: "status 404"})
	hooks.OnPreview(ctx, &domain.PreviewEvent{})

	srv := httptest.NewServer(metrics.Handler(reg))
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `comfyflow_ws_frames_total{kind="text"} 2`)
	assert.Contains(t, text, `comfyflow_ws_frames_total{kind="binary"} 1`)
	assert.Contains(t, text, `comfyflow_ws_decode_errors_total{kind="text"} 1`)
	assert.Contains(t, text, `comfyflow_ws_connects_total 1`)
	assert.Contains(t, text, `comfyflow_schema_refresh_total{ok="true"} 1`)
	assert.Contains(t, text, `comfyflow_prompts_finished_total{status="Success"} 1`)
	assert.Contains(t, text, `comfyflow_prompts_finished_total{status="Failure"} 1`)
	assert.Contains(t, text, `comfyflow_artifacts_total{result="saved"} 1`)
	assert.Contains(t, text, `comfyflow_artifacts_total{result="failed"} 1`)
	assert.Contains(t, text, `comfyflow_artifact_retrieval_seconds_count 2`)
	assert.Contains(t, text, `comfyflow_previews_total 1`)
}

func TestCollector_RegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(metrics.New()))
	assert.Error(t, reg.Register(metrics.New()))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.New(), "comfyflow_ws_connects_total"))
}
