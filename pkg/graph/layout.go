package graph

import (
	"sort"
)

// LayoutOptions controls AutoLayout. Zero separators fall back to 20.
type LayoutOptions struct {
	HSep      float64 `mapstructure:"hsep" json:"hsep" yaml:"hsep"`
	VSep      float64 `mapstructure:"vsep" json:"vsep" yaml:"vsep"`
	ForceLeft bool    `mapstructure:"force_left" json:"force_left" yaml:"force_left"`
}

// DefaultLayoutOptions returns the layout used when a host has no preference.
func DefaultLayoutOptions() LayoutOptions {
	return LayoutOptions{HSep: 50, VSep: 50}
}

const (
	defaultSep = 20
	layoutTopY = 32
)

// Point is a 2D position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Layout is the result of AutoLayout.
type Layout struct {
	Positions map[string]Point
	Columns   map[string]int
	Width     float64
	Height    float64
}

type placement struct {
	minCol int
	maxCol int
	hasMax bool
}

func (p placement) column() int {
	if p.hasMax {
		return p.maxCol
	}
	return p.minCol
}

// AutoLayout places nodes in columns following the topological order: every
// node sits strictly right of all its parents. Unless ForceLeft is set, nodes
// are then pulled towards their children. Within a column, taller nodes come first.
func (w *Workflow) AutoLayout(opts LayoutOptions) *Layout {
	hsep, vsep := opts.HSep, opts.VSep
	if hsep == 0 {
		hsep = defaultSep
	}
	if vsep == 0 {
		vsep = defaultSep
	}

	order := w.TopologicalOrder()
	ranges := make(map[*Node]*placement, len(order))

	for _, n := range order {
		minCol := 0
		for _, p := range n.Parents() {
			if r, ok := ranges[p]; ok && r.minCol+1 > minCol {
				minCol = r.minCol + 1
			}
		}
		ranges[n] = &placement{minCol: minCol}
	}

	if !opts.ForceLeft {
		for i := len(order) - 1; i >= 0; i-- {
			r := ranges[order[i]]
			limit := r.column() - 1
			for _, p := range order[i].Parents() {
				pr := ranges[p]
				if !pr.hasMax || limit < pr.maxCol {
					pr.maxCol = limit
					pr.hasMax = true
				}
			}
		}
	}

	byCol := make(map[int][]*Node)
	var cols []int
	for _, n := range order {
		c := ranges[n].column()
		if _, seen := byCol[c]; !seen {
			cols = append(cols, c)
		}
		byCol[c] = append(byCol[c], n)
	}
	sort.Ints(cols)

	layout := &Layout{
		Positions: make(map[string]Point, len(order)),
		Columns:   make(map[string]int, len(order)),
	}
	colX, maxY := 0.0, 0.0
	for _, c := range cols {
		nodes := byCol[c]
		sort.SliceStable(nodes, func(i, j int) bool {
			hi, hj := nodes[i].Height(), nodes[j].Height()
			if hi != hj {
				return hi > hj
			}
			return nodes[i].ordinal < nodes[j].ordinal
		})
		colWidth := 0.0
		y := float64(layoutTopY)
		for _, n := range nodes {
			colWidth = max(colWidth, n.Width())
			n.x, n.y, n.col = colX, y, c
			layout.Positions[n.id] = Point{X: colX, Y: y}
			layout.Columns[n.id] = c
			y += n.Height() + vsep
		}
		maxY = max(maxY, y)
		colX += colWidth + hsep
	}
	layout.Width = colX
	layout.Height = maxY

	w.layout = layout
	return layout
}

// LastLayout returns the result of the most recent AutoLayout, or nil.
func (w *Workflow) LastLayout() *Layout { return w.layout }

// TopologicalOrder sorts nodes with Kahn's algorithm, breaking ties by creation
// order. Nodes left over by a cycle are appended in creation order.
func (w *Workflow) TopologicalOrder() []*Node {
	indegree := make(map[*Node]int, len(w.nodes))
	children := make(map[*Node][]*Node, len(w.nodes))
	for _, n := range w.nodes {
		for _, p := range n.Parents() {
			indegree[n]++
			children[p] = append(children[p], n)
		}
	}

	var queue []*Node
	for _, n := range w.nodes {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	order := make([]*Node, 0, len(w.nodes))
	visited := make(map[*Node]bool, len(w.nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		visited[n] = true
		for _, c := range children[n] {
			indegree[c]--
			if indegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}

	for _, n := range w.nodes {
		if !visited[n] {
			order = append(order, n)
		}
	}
	return order
}
