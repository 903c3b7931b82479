package graph

import (
	"fmt"
	"time"

	"github.com/aretw0/comfyflow/pkg/domain"
)

// ProgressReport summarizes execution progress.
type ProgressReport struct {
	Percent    float64 `json:"percent"`
	IsDone     bool    `json:"is_done"`
	CountDone  float64 `json:"count_done"`
	CountTotal int     `json:"count_total"`
}

// OnExecuting handles an "executing" notification. The previously current node
// is marked done. An empty nodeID means the engine went idle: the workflow is
// flagged done and no node is current anymore.
func (w *Workflow) OnExecuting(nodeID string) (*Node, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current != nil {
		w.current.setStatus(domain.NodeDone)
	}
	if nodeID == "" {
		w.current = nil
		w.done = true
		return nil, nil
	}

	w.done = false
	n, ok := w.index[nodeID]
	if !ok {
		w.current = nil
		return nil, fmt.Errorf("executing %q: %w", nodeID, domain.ErrNodeNotFound)
	}
	w.current = n
	n.progress = 0
	n.setStatus(domain.NodeExecuting)
	return n, nil
}

// OnProgress sets the current node ratio to value / max(maxValue, 1).
// It returns nil when no node is executing.
func (w *Workflow) OnProgress(value, maxValue float64) *Node {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil {
		return nil
	}
	w.current.progress = min(max(value/max(maxValue, 1), 0), 1)
	w.current.updatedAt = time.Now()
	return w.current
}

// OnCached marks the listed nodes as cached. Unknown ids are reported but do
// not stop the others from being marked.
func (w *Workflow) OnCached(nodeIDs []string) ([]*Node, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var (
		marked  []*Node
		missing []string
	)
	for _, id := range nodeIDs {
		n, ok := w.index[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		n.setStatus(domain.NodeCached)
		marked = append(marked, n)
	}
	if len(missing) > 0 {
		return marked, fmt.Errorf("cached %v: %w", missing, domain.ErrNodeNotFound)
	}
	return marked, nil
}

// OnError marks the failing node and clears the current pointer.
func (w *Workflow) OnError(nodeID string) *Node {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.current = nil
	n, ok := w.index[nodeID]
	if !ok {
		return nil
	}
	n.setStatus(domain.NodeError)
	return n
}

// CurrentNode returns the node being executed, or nil.
func (w *Workflow) CurrentNode() *Node {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Done reports whether the engine signalled the end of execution.
func (w *Workflow) Done() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.done
}

// PendingNodes returns the nodes that are neither done nor cached.
func (w *Workflow) PendingNodes() []*Node {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []*Node
	for _, n := range w.nodes {
		if !n.status.IsFinished() {
			out = append(out, n)
		}
	}
	return out
}

// ProgressGlobal is (finished + current ratio) / total.
func (w *Workflow) ProgressGlobal() ProgressReport {
	w.mu.RLock()
	defer w.mu.RUnlock()

	total := len(w.nodes)
	finished := 0
	for _, n := range w.nodes {
		if n.status.IsFinished() {
			finished++
		}
	}
	bonus := 0.0
	if w.current != nil {
		bonus = w.current.progress
	}
	count := float64(finished) + bonus

	percent := 0.0
	if total > 0 {
		percent = count / float64(total) * 100
	}
	if w.done {
		percent = 100
	}
	return ProgressReport{Percent: percent, IsDone: w.done, CountDone: count, CountTotal: total}
}
