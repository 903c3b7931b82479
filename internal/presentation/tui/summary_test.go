package tui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/comfyflow/pkg/artifact"
	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/aretw0/comfyflow/pkg/graph"
	"github.com/aretw0/comfyflow/pkg/prompt"
	"github.com/aretw0/comfyflow/pkg/schema"
)

func TestRunSummary_Success(t *testing.T) {
	catalog := schema.NewCatalog(&schema.NodeSchema{Name: "Gen"}, &schema.NodeSchema{Name: "Save", OutputNode: true})
	wf := graph.NewWorkflow(catalog)
	gen, err := wf.CreateNode("Gen", nil, graph.Meta{})
	require.NoError(t, err)
	save, err := wf.CreateNode("Save", nil, graph.Meta{})
	require.NoError(t, err)
	gen.SetStatus(domain.NodeDone)
	save.Disable()

	res := &prompt.Result{
		PromptID:   "p-1",
		Status:     domain.PromptSuccess,
		FinishedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Artifacts: []*artifact.Saved{
			{NodeID: "2", Path: "out/p-1/2/a.png", Mime: "image/png", Size: 2048},
		},
		RetrievalErrors: []error{errors.New("fetch b.png:\n  timeout")},
	}

	md := RunSummary(res, wf)
	assert.Contains(t, md, "# ✅ Prompt `p-1`")
	assert.Contains(t, md, "**Finished:** 2026-01-02 03:04:05")
	assert.Contains(t, md, "| 0 | Gen | done |")
	assert.Contains(t, md, "| 1 | Save | disabled |")
	assert.Contains(t, md, "| 2 | `out/p-1/2/a.png` | image/png | 2.0 KiB |")
	assert.Contains(t, md, "- fetch b.png: timeout")
	assert.NotContains(t, md, "## Failure")
}

func TestRunSummary_Failure(t *testing.T) {
	res := &prompt.Result{
		PromptID: "p-2",
		Status:   domain.PromptFailure,
		Failure: &prompt.ExecutionFailure{
			NodeID:           "3",
			NodeType:         "KSampler",
			ExceptionType:    "RuntimeError",
			ExceptionMessage: "CUDA out of memory",
			Traceback:        []string{"line 1\n", "line 2\n"},
		},
	}

	md := RunSummary(res, nil)
	assert.Contains(t, md, "# ❌ Prompt `p-2`")
	assert.Contains(t, md, "Node `3` (KSampler) raised `RuntimeError`")
	assert.Contains(t, md, "> CUDA out of memory")
	assert.Contains(t, md, "```\nline 1\nline 2\n```")
	assert.NotContains(t, md, "## Nodes")
	assert.NotContains(t, md, "**Finished:**")
}

func TestPrintBanner_PlainOutsideTerminal(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "v1.2.3")
	assert.Contains(t, buf.String(), "v1.2.3")
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestNewRenderer_NonInteractivePassesThrough(t *testing.T) {
	render := NewRenderer(false)
	out, err := render("# Title")
	require.NoError(t, err)
	assert.Equal(t, "# Title", out)
}
