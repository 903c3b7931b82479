package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/comfyflow/pkg/domain"
	model "github.com/aretw0/comfyflow/pkg/graph"
)

// Options controls GenerateMermaid.
type Options struct {
	// Status styles nodes by their last reported execution status.
	Status bool
	// Groups renders workflow groups as subgraphs.
	Groups bool
}

// GenerateMermaid produces a Mermaid flowchart of the workflow.
// Shapes:
//   - Source (no linked inputs): ([Stadium])
//   - Output node: [[Subroutine]]
//   - Default: [Rectangle]
//
// Links are labelled with their type; links into disabled nodes are dotted.
func GenerateMermaid(w *model.Workflow, opts Options) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	grouped := make(map[string]bool)
	if opts.Groups {
		for i, g := range w.Groups() {
			fmt.Fprintf(&sb, "    subgraph group%d [\"%s\"]\n", i, escape(g.Title))
			for _, n := range g.Nodes {
				fmt.Fprintf(&sb, "    %s", nodeLine(n))
				grouped[n.ID()] = true
			}
			sb.WriteString("    end\n")
		}
	}

	nodes := w.Nodes()
	for _, n := range nodes {
		if !grouped[n.ID()] {
			sb.WriteString(nodeLine(n))
		}
	}

	for _, n := range nodes {
		for _, e := range n.IncomingEdges() {
			arrow := fmt.Sprintf("-- \"%s\" -->", escape(e.Type))
			if n.Disabled() {
				arrow = fmt.Sprintf("-. \"%s\" .->", escape(e.Type))
			}
			fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(e.From), arrow, sanitizeMermaidID(n.ID()))
		}
	}

	if opts.Status {
		writeStatus(&sb, nodes)
	}
	return sb.String()
}

func nodeLine(n *model.Node) string {
	opener, closer := "[", "]"
	switch {
	case n.Schema().OutputNode:
		opener, closer = "[[", "]]"
	case len(n.IncomingEdges()) == 0:
		opener, closer = "([", "])"
	}

	label := n.TypeName()
	if title := n.Meta().Title; title != "" {
		label = title
	}
	label = fmt.Sprintf("%s: %s", n.ID(), escape(label))
	if n.Disabled() {
		label += " (disabled)"
	}
	if p := n.Progress(); n.Status() == domain.NodeExecuting && p > 0 {
		label += fmt.Sprintf(" <br/> %.0f%%", p*100)
	}
	return fmt.Sprintf("    %s%s\"%s\"%s\n", sanitizeMermaidID(n.ID()), opener, label, closer)
}

var statusStyles = []struct {
	status domain.NodeStatus
	style  string
}{
	{domain.NodeWaiting, "fill:#eceff1,stroke:#90a4ae,color:#000"},
	{domain.NodeExecuting, "fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000"},
	{domain.NodeCached, "fill:#e1f5fe,stroke:#01579b,color:#000"},
	{domain.NodeDone, "fill:#c8e6c9,stroke:#2e7d32,color:#000"},
	{domain.NodeError, "fill:#ffcdd2,stroke:#c62828,stroke-width:4px,color:#000"},
}

func writeStatus(sb *strings.Builder, nodes []*model.Node) {
	byStatus := make(map[domain.NodeStatus][]string)
	for _, n := range nodes {
		if s := n.Status(); s != domain.NodeIdle {
			byStatus[s] = append(byStatus[s], sanitizeMermaidID(n.ID()))
		}
	}
	if len(byStatus) == 0 {
		return
	}

	sb.WriteString("\n    %% Status\n")
	for _, st := range statusStyles {
		ids := byStatus[st.status]
		if len(ids) == 0 {
			continue
		}
		fmt.Fprintf(sb, "    classDef %s %s;\n", st.status, st.style)
		fmt.Fprintf(sb, "    class %s %s;\n", strings.Join(ids, ","), st.status)
	}
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

// sanitizeMermaidID prefixes ids so numeric ones stay valid identifiers.
func sanitizeMermaidID(id string) string {
	s := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_").Replace(id)
	return "n" + s
}
