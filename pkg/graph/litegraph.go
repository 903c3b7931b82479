package graph

import (
	"encoding/json"
	"slices"
	"strconv"

	"github.com/aretw0/comfyflow/pkg/schema"
)

// LiteGraph is the visual graph snapshot understood by ComfyUI front-ends.
type LiteGraph struct {
	LastNodeID int            `json:"last_node_id"`
	LastLinkID int            `json:"last_link_id"`
	Nodes      []LiteNode     `json:"nodes"`
	Links      []LiteLink     `json:"links"`
	Groups     []LiteGroup    `json:"groups"`
	Config     map[string]any `json:"config"`
	Extra      map[string]any `json:"extra"`
	Version    float64        `json:"version"`
}

// LiteNode is one node of a LiteGraph snapshot.
type LiteNode struct {
	ID            int            `json:"id"`
	Type          string         `json:"type"`
	Title         string         `json:"title,omitempty"`
	Pos           [2]float64     `json:"pos"`
	Size          [2]float64     `json:"size"`
	Flags         struct{}       `json:"flags"`
	Order         int            `json:"order"`
	Mode          int            `json:"mode"`
	Inputs        []LiteInput    `json:"inputs,omitempty"`
	Outputs       []LiteOutput   `json:"outputs"`
	Properties    map[string]any `json:"properties"`
	WidgetsValues []any          `json:"widgets_values,omitempty"`
}

type LiteInput struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Link *int   `json:"link"`
}

type LiteOutput struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Links     []int  `json:"links"`
	SlotIndex int    `json:"slot_index"`
}

// LiteLink serializes as [id, fromNode, fromSlot, toNode, toSlot, type].
type LiteLink struct {
	ID       int
	FromNode int
	FromSlot int
	ToNode   int
	ToSlot   int
	Type     string
}

func (l LiteLink) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{l.ID, l.FromNode, l.FromSlot, l.ToNode, l.ToSlot, l.Type})
}

type LiteGroup struct {
	Title    string     `json:"title"`
	Bounding [4]float64 `json:"bounding"`
	Color    string     `json:"color"`
	FontSize int        `json:"font_size"`
	Flags    struct{}   `json:"flags"`
}

// LiteGraph node modes.
const (
	liteModeAlways = 0
	liteModeNever  = 2
)

// Group frames a set of nodes in the visual snapshot.
type Group struct {
	Title string
	Color string
	Nodes []*Node
}

const (
	groupPadding  = 10
	groupTitleGap = 40
)

// AddGroup registers a group; its bounding box is computed at snapshot time.
func (w *Workflow) AddGroup(title, color string, nodes ...*Node) *Group {
	if color == "" {
		color = "#3f789e"
	}
	g := &Group{Title: title, Color: color, Nodes: nodes}
	w.groups = append(w.groups, g)
	return g
}

// Groups returns the groups in registration order.
func (w *Workflow) Groups() []*Group { return slices.Clone(w.groups) }

// Bounding returns [x, y, width, height] around the group's nodes using their
// last layout positions.
func (g *Group) Bounding() [4]float64 {
	if len(g.Nodes) == 0 {
		return [4]float64{}
	}
	minX, minY := g.Nodes[0].x, g.Nodes[0].y
	maxX, maxY := minX, minY
	for _, n := range g.Nodes {
		minX = min(minX, n.x)
		minY = min(minY, n.y)
		maxX = max(maxX, n.x+n.Width())
		maxY = max(maxY, n.y+n.Height())
	}
	return [4]float64{
		minX - groupPadding,
		minY - groupTitleGap,
		maxX - minX + 2*groupPadding,
		maxY - minY + groupTitleGap + groupPadding,
	}
}

// VisualGraph re-runs AutoLayout and projects the workflow into a LiteGraph snapshot.
func (w *Workflow) VisualGraph(opts LayoutOptions) *LiteGraph {
	w.AutoLayout(opts)

	// LiteGraph wants integer ids; non-numeric ids get numbers past the highest one.
	numeric := make(map[string]int, len(w.nodes))
	highest := 0
	for _, n := range w.nodes {
		if v, err := strconv.Atoi(n.id); err == nil {
			numeric[n.id] = v
			highest = max(highest, v)
		}
	}
	for _, n := range w.nodes {
		if _, ok := numeric[n.id]; !ok {
			highest++
			numeric[n.id] = highest
		}
	}

	order := make(map[*Node]int, len(w.nodes))
	for i, n := range w.TopologicalOrder() {
		order[n] = i
	}

	lg := &LiteGraph{
		LastNodeID: highest,
		Nodes:      make([]LiteNode, 0, len(w.nodes)),
		Links:      []LiteLink{},
		Groups:     []LiteGroup{},
		Config:     map[string]any{},
		Extra:      map[string]any{"ds": map[string]any{"scale": 1, "offset": [2]float64{0, 0}}},
		Version:    0.4,
	}

	nodeIndex := make(map[string]int, len(w.nodes))
	for _, n := range w.nodes {
		ln := LiteNode{
			ID:         numeric[n.id],
			Type:       n.schema.Name,
			Title:      n.meta.Title,
			Pos:        [2]float64{n.x, n.y},
			Size:       [2]float64{n.Width(), n.Height()},
			Order:      order[n],
			Mode:       liteModeAlways,
			Properties: map[string]any{"Node name for S&R": n.schema.Name},
		}
		if n.disabled {
			ln.Mode = liteModeNever
		}
		for _, o := range n.outputs {
			ln.Outputs = append(ln.Outputs, LiteOutput{Name: o.spec.Name, Type: o.spec.Type, Links: []int{}, SlotIndex: o.spec.Index})
		}
		if ln.Outputs == nil {
			ln.Outputs = []LiteOutput{}
		}
		for _, name := range n.inputOrder {
			v, present := n.inputs[name]
			spec, declared := n.schema.Input(name)
			if _, isEdge := v.(Edge); isEdge || (declared && !spec.IsPrimitive()) {
				typ := spec.Type
				if !declared {
					typ = schema.TypeAny
				}
				ln.Inputs = append(ln.Inputs, LiteInput{Name: name, Type: typ})
				continue
			}
			if present {
				ln.WidgetsValues = append(ln.WidgetsValues, v)
			}
		}
		nodeIndex[n.id] = len(lg.Nodes)
		lg.Nodes = append(lg.Nodes, ln)
	}

	for _, n := range w.nodes {
		to := &lg.Nodes[nodeIndex[n.id]]
		for slot, in := range to.Inputs {
			e, ok := n.inputs[in.Name].(Edge)
			if !ok {
				continue
			}
			src, ok := w.index[e.NodeID]
			if !ok {
				continue
			}
			lg.LastLinkID++
			link := LiteLink{
				ID:       lg.LastLinkID,
				FromNode: numeric[src.id],
				FromSlot: e.Slot,
				ToNode:   to.ID,
				ToSlot:   slot,
				Type:     src.outputs[e.Slot].spec.Type,
			}
			lg.Links = append(lg.Links, link)
			id := link.ID
			to.Inputs[slot].Link = &id
			from := &lg.Nodes[nodeIndex[src.id]]
			from.Outputs[e.Slot].Links = append(from.Outputs[e.Slot].Links, id)
		}
	}

	for _, g := range w.groups {
		lg.Groups = append(lg.Groups, LiteGroup{Title: g.Title, Bounding: g.Bounding(), Color: g.Color, FontSize: 24})
	}
	return lg
}
