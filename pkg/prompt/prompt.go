package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/aretw0/comfyflow/internal/logging"
	"github.com/aretw0/comfyflow/pkg/artifact"
	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/aretw0/comfyflow/pkg/graph"
	"github.com/aretw0/comfyflow/pkg/ports"
	"github.com/aretw0/comfyflow/pkg/protocol"
)

// Saver retrieves one artifact. *artifact.Saver implements it.
type Saver interface {
	Save(ctx context.Context, req artifact.Request) (*artifact.Saved, error)
}

// Config holds per-prompt settings.
type Config struct {
	// SaveFormat overrides the saver default when non-zero.
	SaveFormat artifact.SaveFormat
	// MaxRetrievals bounds concurrent retrievals. Zero means unbounded.
	MaxRetrievals int64
	// WireIDs maps node ids as sent to the server back to workflow ids.
	// Nil means they are identical.
	WireIDs map[string]string
}

// Deps are the collaborators of a Prompt. Every field is optional.
type Deps struct {
	Saver  Saver
	Store  ports.PromptStore
	Logger *slog.Logger
	Hooks  domain.LifecycleHooks
	Config Config
}

// Prompt is the client-side tracker of one submitted execution.
type Prompt struct {
	id        string
	wf        *graph.Workflow
	deps      Deps
	logger    *slog.Logger
	createdAt time.Time

	// base outlives resolution and is used for hooks and persistence.
	base   context.Context
	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
	sem    *semaphore.Weighted

	pending atomic.Int64
	storeMu sync.Mutex

	mu            sync.Mutex
	status        domain.PromptStatus
	claimed       bool
	updatedAt     time.Time
	artifacts     []*artifact.Saved
	retrievalErrs []error
	result        *Result
	done          chan struct{}
}

// New creates a tracker for the execution id returned by the server.
// The prompt starts Scheduled. ctx bounds artifact retrieval.
func New(ctx context.Context, id string, wf *graph.Workflow, deps Deps) *Prompt {
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	rctx, cancel := context.WithCancel(ctx)
	now := time.Now()
	p := &Prompt{
		id:        id,
		wf:        wf,
		deps:      deps,
		logger:    deps.Logger.With("prompt", id),
		createdAt: now,
		base:      context.WithoutCancel(ctx),
		ctx:       rctx,
		cancel:    cancel,
		status:    domain.PromptNew,
		updatedAt: now,
		done:      make(chan struct{}),
	}
	if deps.Config.MaxRetrievals > 0 {
		p.sem = semaphore.NewWeighted(deps.Config.MaxRetrievals)
	}

	p.mu.Lock()
	rec := p.transitionLocked(domain.PromptScheduled)
	p.mu.Unlock()
	p.persist(rec)
	return p
}

func (p *Prompt) ID() string                { return p.id }
func (p *Prompt) Workflow() *graph.Workflow { return p.wf }
func (p *Prompt) CreatedAt() time.Time      { return p.createdAt }

// Status returns the current state.
func (p *Prompt) Status() domain.PromptStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Done is closed once the prompt resolved.
func (p *Prompt) Done() <-chan struct{} { return p.done }

// Wait blocks until the prompt resolves or ctx ends. The final record is
// persisted and the finish hook has run by the time it returns.
func (p *Prompt) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-p.done:
		return p.Result(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the resolution, or nil while the prompt is in flight.
func (p *Prompt) Result() *Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// Artifacts returns every artifact saved so far, including late ones.
func (p *Prompt) Artifacts() []*artifact.Saved {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.artifacts)
}

// Pending is the number of retrievals not finished yet.
func (p *Prompt) Pending() int { return int(p.pending.Load()) }

// Progress reports overall progress. A successful prompt is always complete.
func (p *Prompt) Progress() graph.ProgressReport {
	if p.Status() == domain.PromptSuccess {
		return graph.ProgressReport{Percent: 100, IsDone: true, CountDone: 1, CountTotal: 1}
	}
	return p.wf.ProgressGlobal()
}

// Record returns the persisted view of the prompt.
func (p *Prompt) Record() *domain.PromptRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recordLocked()
}

func (p *Prompt) recordLocked() *domain.PromptRecord {
	rec := &domain.PromptRecord{
		ID:         p.id,
		WorkflowID: p.wf.ID(),
		Status:     p.status,
		CreatedAt:  p.createdAt,
		UpdatedAt:  p.updatedAt,
	}
	for _, a := range p.artifacts {
		rec.Artifacts = append(rec.Artifacts, a.Path)
	}
	if p.result != nil && p.result.Failure != nil {
		rec.Error = p.result.Failure.ExceptionMessage
		rec.ErrorNode = p.result.Failure.NodeID
	}
	return rec
}

// Handle applies one routed message. Errors are per message; the prompt
// stays usable after any of them.
func (p *Prompt) Handle(msg protocol.PromptMessage) error {
	p.mu.Lock()
	after, err := p.handleLocked(msg)
	p.mu.Unlock()

	for _, fn := range after {
		fn()
	}
	if err != nil {
		p.logger.Warn("message not applied", "type", msg.Type(), "err", err)
	}
	return err
}

func (p *Prompt) handleLocked(msg protocol.PromptMessage) ([]func(), error) {
	var after []func()
	running := func() {
		if rec := p.transitionLocked(domain.PromptRunning); rec != nil {
			after = append(after, func() { p.persist(rec) })
		}
	}

	switch m := msg.(type) {
	case *protocol.ExecutionStart:
		running()

	case *protocol.ExecutionCached:
		running()
		ids := make([]string, len(m.Nodes))
		for i, id := range m.Nodes {
			ids[i] = p.localID(id)
		}
		nodes, err := p.wf.OnCached(ids)
		for _, n := range nodes {
			after = append(after, p.nodeEvent(n))
		}
		return after, err

	case *protocol.Executing:
		running()
		prev := p.wf.CurrentNode()
		id := m.Node
		if id != "" {
			id = p.localID(id)
		}
		n, err := p.wf.OnExecuting(id)
		if prev != nil {
			after = append(after, p.nodeEvent(prev))
		}
		if n != nil {
			after = append(after, p.nodeEvent(n))
		}
		if id == "" {
			p.logger.Debug("execution idle")
		}
		return after, err

	case *protocol.Progress:
		running()
		if n := p.wf.OnProgress(m.Value, m.Max); n != nil {
			after = append(after, p.nodeEvent(n))
		}

	case *protocol.Executed:
		return after, p.startRetrievalsLocked(m)

	case *protocol.ExecutionSuccess:
		if p.claimed {
			return after, p.alreadyFinished(domain.PromptSuccess)
		}
		p.claimed = true
		go p.resolveAfterRetrievals()

	case *protocol.ExecutionError:
		if p.claimed {
			return after, p.alreadyFinished(domain.PromptFailure)
		}
		p.claimed = true
		nodeID := p.localID(m.NodeID)
		if n := p.wf.OnError(nodeID); n != nil {
			after = append(after, p.nodeEvent(n))
		}
		p.cancel()
		return append(after, p.resolveLocked(domain.PromptFailure, failureFrom(m, nodeID))...), nil

	default:
		return after, fmt.Errorf("prompt %s: unexpected message %q", p.id, msg.Type())
	}
	return after, nil
}

func (p *Prompt) alreadyFinished(attempt domain.PromptStatus) error {
	p.logger.Error("second terminal transition", "attempt", attempt, "status", p.status)
	return fmt.Errorf("prompt %s -> %s: %w", p.id, attempt, domain.ErrAlreadyFinished)
}

func (p *Prompt) localID(wire string) string {
	if id, ok := p.deps.Config.WireIDs[wire]; ok {
		return id
	}
	return wire
}

// transitionLocked moves to a non-terminal status and returns the record to
// persist, or nil when nothing changed.
func (p *Prompt) transitionLocked(to domain.PromptStatus) *domain.PromptRecord {
	if p.claimed || p.status == to || p.status.IsTerminal() {
		return nil
	}
	if to == domain.PromptScheduled && p.status != domain.PromptNew {
		return nil
	}
	p.logger.Debug("prompt status", "from", p.status, "to", to)
	p.status = to
	p.updatedAt = time.Now()
	return p.recordLocked()
}

func (p *Prompt) resolveAfterRetrievals() {
	_ = p.group.Wait()
	p.mu.Lock()
	after := p.resolveLocked(domain.PromptSuccess, nil)
	p.mu.Unlock()
	p.cancel()
	for _, fn := range after {
		fn()
	}
}

func (p *Prompt) resolveLocked(status domain.PromptStatus, failure *ExecutionFailure) []func() {
	now := time.Now()
	p.status = status
	p.updatedAt = now
	p.result = &Result{
		PromptID:        p.id,
		Status:          status,
		Failure:         failure,
		Artifacts:       slices.Clone(p.artifacts),
		RetrievalErrors: slices.Clone(p.retrievalErrs),
		FinishedAt:      now,
	}

	rec := p.recordLocked()
	attrs := []any{"status", status, "artifacts", len(p.artifacts)}
	if failure != nil {
		attrs = append(attrs, "node", failure.NodeID, "err", failure.ExceptionMessage, "in_flight", p.pending.Load())
	}
	p.logger.Info("prompt finished", attrs...)

	ev := &domain.PromptEvent{
		EventBase: domain.EventBase{Timestamp: now, Type: domain.EventPromptFinished},
		PromptID:  p.id,
		Status:    status,
		Error:     rec.Error,
	}
	return []func(){
		func() { p.persist(rec) },
		func() {
			if h := p.deps.Hooks.OnPromptFinished; h != nil {
				h(p.base, ev)
			}
		},
		func() { close(p.done) },
	}
}

func (p *Prompt) nodeEvent(n *graph.Node) func() {
	ev := &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventNodeStatus},
		PromptID:  p.id,
		NodeID:    n.ID(),
		NodeType:  n.TypeName(),
		Status:    n.Status(),
		Progress:  n.Progress(),
	}
	return func() {
		if h := p.deps.Hooks.OnNodeStatus; h != nil {
			h(p.base, ev)
		}
	}
}

func (p *Prompt) persist(rec *domain.PromptRecord) {
	if p.deps.Store == nil || rec == nil {
		return
	}
	p.storeMu.Lock()
	defer p.storeMu.Unlock()
	if err := p.deps.Store.Save(p.base, rec); err != nil {
		p.logger.Warn("failed to persist prompt record", "status", rec.Status, "err", err)
	}
}
