package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/aretw0/comfyflow/pkg/graph"
	"github.com/aretw0/comfyflow/pkg/prompt"
)

// RunSummary renders a finished prompt as markdown: outcome, per-node
// status and the saved artifacts. wf may be nil.
func RunSummary(res *prompt.Result, wf *graph.Workflow) string {
	var sb strings.Builder

	icon := "✅"
	if res.Status != domain.PromptSuccess {
		icon = "❌"
	}
	fmt.Fprintf(&sb, "# %s Prompt `%s`\n\n", icon, res.PromptID)
	fmt.Fprintf(&sb, "**Status:** %s  \n", res.Status)
	if !res.FinishedAt.IsZero() {
		fmt.Fprintf(&sb, "**Finished:** %s\n", res.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	sb.WriteString("\n")

	if f := res.Failure; f != nil {
		sb.WriteString("## Failure\n\n")
		fmt.Fprintf(&sb, "Node `%s` (%s) raised `%s`:\n\n", f.NodeID, f.NodeType, f.ExceptionType)
		fmt.Fprintf(&sb, "> %s\n\n", oneLine(f.ExceptionMessage))
		if len(f.Traceback) > 0 {
			sb.WriteString("```\n")
			for _, line := range f.Traceback {
				sb.WriteString(strings.TrimRight(line, "\n"))
				sb.WriteString("\n")
			}
			sb.WriteString("```\n\n")
		}
	}

	if wf != nil && wf.Len() > 0 {
		sb.WriteString("## Nodes\n\n| ID | Type | Status |\n|---|---|---|\n")
		for _, n := range wf.Nodes() {
			status := string(n.Status())
			if status == "" {
				status = "-"
			}
			if n.Disabled() {
				status = "disabled"
			}
			fmt.Fprintf(&sb, "| %s | %s | %s |\n", n.ID(), n.TypeName(), status)
		}
		sb.WriteString("\n")
	}

	if len(res.Artifacts) > 0 {
		sb.WriteString("## Artifacts\n\n| Node | File | Type | Size |\n|---|---|---|---|\n")
		for _, a := range res.Artifacts {
			fmt.Fprintf(&sb, "| %s | `%s` | %s | %s |\n", a.NodeID, filepath.ToSlash(a.Path), a.Mime, humanSize(a.Size))
		}
		sb.WriteString("\n")
	}

	if len(res.RetrievalErrors) > 0 {
		sb.WriteString("## Retrieval errors\n\n")
		for _, err := range res.RetrievalErrors {
			fmt.Fprintf(&sb, "- %s\n", oneLine(err.Error()))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func humanSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
