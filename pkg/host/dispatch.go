package host

import (
	"errors"
	"slices"
	"time"

	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/aretw0/comfyflow/pkg/prompt"
	"github.com/aretw0/comfyflow/pkg/protocol"
	"github.com/aretw0/comfyflow/pkg/transport"
)

// onFrame handles one inbound frame. A frame that cannot be decoded is
// logged and dropped; it never affects the following ones.
func (h *Host) onFrame(f transport.Frame) {
	kind := protocol.KindText
	if f.Binary {
		kind = protocol.KindBinary
	}
	if h.metrics != nil {
		h.metrics.FrameReceived(kind)
	}

	if f.Binary {
		h.onBinary(f.Data)
		return
	}

	msg, err := h.decoder.Decode(f.Data)
	if err != nil {
		h.decodeFailed(kind, err)
		return
	}
	h.dispatch(msg)
}

func (h *Host) decodeFailed(kind string, err error) {
	if h.metrics != nil {
		h.metrics.DecodeFailed(kind)
	}
	var de *protocol.DecodeError
	if errors.As(err, &de) && de.MessageType != "" {
		h.logger.Warn("frame dropped", "kind", kind, "type", de.MessageType, "err", err)
		return
	}
	h.logger.Warn("frame dropped", "kind", kind, "err", err)
}

func (h *Host) onBinary(data []byte) {
	preview, err := protocol.DecodeBinary(data)
	if err != nil {
		h.decodeFailed(protocol.KindBinary, err)
		return
	}
	preview.PromptID = h.ActivePromptID()

	h.mu.Lock()
	h.preview = preview
	h.mu.Unlock()

	if hook := h.hooks.OnPreview; hook != nil {
		hook(h.ctx, &domain.PreviewEvent{
			EventBase: domain.EventBase{Timestamp: preview.ReceivedAt, Type: domain.EventPreview},
			PromptID:  preview.PromptID,
			Mime:      preview.Mime,
			Size:      len(preview.Data),
		})
	}
}

func (h *Host) dispatch(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.Status:
		h.mu.Lock()
		if sid := m.SessionID(); sid != "" {
			h.status.SessionID = sid
		}
		h.status.QueueRemaining = m.QueueRemaining()
		h.status.UpdatedAt = time.Now()
		h.mu.Unlock()

	case *protocol.ManagerFeedback:
		h.addLog(m.Data)

	case *protocol.Ignored:
		h.logger.Debug("message ignored", "type", m.Kind)

	case protocol.PromptMessage:
		h.route(m)

	default:
		h.logger.Warn("message not routed", "type", msg.Type())
	}
}

// route delivers a prompt message, or buffers it until the prompt exists.
// Progress frames without a prompt id go to the active prompt.
func (h *Host) route(msg protocol.PromptMessage) {
	h.routeMu.Lock()
	defer h.routeMu.Unlock()

	id := msg.PromptID()
	if id == "" {
		id = h.active
		if id == "" {
			h.logger.Debug("no active prompt, message dropped", "type", msg.Type())
			return
		}
	}
	h.active = id

	if p, ok := h.prompts[id]; ok {
		h.deliver(p, msg)
		return
	}

	if _, ok := h.buffered[id]; !ok {
		if len(h.bufferOrder) >= maxBufferedPrompts {
			evict := h.bufferOrder[0]
			h.bufferOrder = h.bufferOrder[1:]
			h.logger.Warn("buffer full, dropping messages of unknown prompt", "prompt", evict, "count", len(h.buffered[evict]))
			delete(h.buffered, evict)
		}
		h.bufferOrder = append(h.bufferOrder, id)
	}
	h.buffered[id] = append(h.buffered[id], msg)
}

// register adds a prompt and replays its buffered messages in arrival order.
func (h *Host) register(p *prompt.Prompt) {
	h.routeMu.Lock()
	defer h.routeMu.Unlock()

	id := p.ID()
	h.prompts[id] = p
	h.order = append(h.order, id)

	pending := h.buffered[id]
	delete(h.buffered, id)
	h.bufferOrder = slices.DeleteFunc(h.bufferOrder, func(s string) bool { return s == id })
	if len(pending) > 0 {
		h.logger.Debug("replaying buffered messages", "prompt", id, "count", len(pending))
	}
	for _, msg := range pending {
		h.deliver(p, msg)
	}
}

func (h *Host) deliver(p *prompt.Prompt, msg protocol.PromptMessage) {
	if err := p.Handle(msg); err != nil {
		h.logger.Debug("prompt rejected message", "prompt", p.ID(), "type", msg.Type(), "err", err)
	}
}

// bufferedCount is the number of messages waiting for prompt id.
func (h *Host) bufferedCount(id string) int {
	h.routeMu.Lock()
	defer h.routeMu.Unlock()
	return len(h.buffered[id])
}
