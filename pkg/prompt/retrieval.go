package prompt

import (
	"fmt"
	"time"

	"github.com/aretw0/comfyflow/pkg/artifact"
	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/aretw0/comfyflow/pkg/protocol"
)

// startRetrievalsLocked spawns one retrieval per artifact of an executed
// message. It never blocks on I/O.
func (p *Prompt) startRetrievalsLocked(m *protocol.Executed) error {
	refs := m.Output.Refs()
	if len(refs) == 0 {
		return nil
	}
	if p.claimed {
		p.logger.Warn("executed after terminal message, artifacts skipped", "node", m.Node, "count", len(refs))
		return nil
	}
	if p.deps.Saver == nil {
		p.logger.Debug("no saver configured, artifacts skipped", "node", m.Node, "count", len(refs))
		return nil
	}

	nodeID := p.localID(m.Node)
	node, found := p.wf.Node(nodeID)

	var format *artifact.SaveFormat
	if f := p.deps.Config.SaveFormat; f != (artifact.SaveFormat{}) {
		format = &f
	}

	for _, ref := range refs {
		req := artifact.Request{PromptID: p.id, NodeID: nodeID, Ref: ref, Format: format}
		if found {
			meta := node.Meta()
			req.Tags = meta.Tags
			req.StoreAs = meta.StoreAs
		}
		p.pending.Add(1)
		p.group.Go(func() error {
			p.retrieve(req)
			return nil
		})
	}

	if !found {
		return fmt.Errorf("executed %q: %w", m.Node, domain.ErrNodeNotFound)
	}
	return nil
}

func (p *Prompt) retrieve(req artifact.Request) {
	defer p.pending.Add(-1)
	start := time.Now()

	saved, err := p.save(req)

	p.mu.Lock()
	late := p.result != nil
	if err != nil {
		p.retrievalErrs = append(p.retrievalErrs, err)
	} else {
		p.artifacts = append(p.artifacts, saved)
	}
	p.mu.Unlock()

	ev := &domain.ArtifactEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventArtifact},
		PromptID:  p.id,
		NodeID:    req.NodeID,
		Filename:  req.Ref.Filename,
		Duration:  time.Since(start),
	}
	switch {
	case err != nil:
		ev.Error = err.Error()
		p.logger.Warn("artifact retrieval failed", "node", req.NodeID, "file", req.Ref.Filename, "err", err)
	case late:
		ev.Path, ev.Size = saved.Path, saved.Size
		p.logger.Warn("artifact written after prompt resolved", "node", req.NodeID, "path", saved.Path)
	default:
		ev.Path, ev.Size = saved.Path, saved.Size
		p.logger.Debug("artifact retrieved", "node", req.NodeID, "path", saved.Path)
	}
	if h := p.deps.Hooks.OnArtifact; h != nil {
		h(p.base, ev)
	}
}

func (p *Prompt) save(req artifact.Request) (*artifact.Saved, error) {
	if p.sem != nil {
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return nil, err
		}
		defer p.sem.Release(1)
	}
	return p.deps.Saver.Save(p.ctx, req)
}
