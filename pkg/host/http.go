package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aretw0/comfyflow/pkg/artifact"
	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/aretw0/comfyflow/pkg/graph"
	"github.com/aretw0/comfyflow/pkg/prompt"
	"github.com/aretw0/comfyflow/pkg/protocol"
)

// maxResponseBody bounds bodies read into memory for API calls, not artifacts.
const maxResponseBody = 64 << 20

// SubmissionError is returned when the server rejects a workflow.
// Body holds the raw response, usually a JSON document with node_errors.
type SubmissionError struct {
	StatusCode int
	Body       []byte
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("prompt rejected with status %d: %s", e.StatusCode, bytes.TrimSpace(e.Body))
}

// NodeErrors decodes the node_errors section of the body, if present.
func (e *SubmissionError) NodeErrors() map[string]any {
	var body struct {
		NodeErrors map[string]any `json:"node_errors"`
	}
	if json.Unmarshal(e.Body, &body) != nil {
		return nil
	}
	return body.NodeErrors
}

// SubmitOptions tune one submission. Zero fields fall back to the host config.
type SubmitOptions struct {
	SaveFormat *artifact.SaveFormat
	IDMode     graph.IDMode
	// Extra is merged into extra_data.extra_pnginfo next to the workflow snapshot.
	Extra map[string]any
}

type submitRequest struct {
	ClientID  string                      `json:"client_id"`
	Prompt    map[string]graph.PromptNode `json:"prompt"`
	ExtraData struct {
		ExtraPNGInfo map[string]any `json:"extra_pnginfo"`
	} `json:"extra_data"`
}

type submitResponse struct {
	PromptID string `json:"prompt_id"`
	Number   int    `json:"number"`
}

// Submit posts the workflow and returns the prompt tracking it.
// Messages received for the returned id before this call returned are replayed first.
func (h *Host) Submit(ctx context.Context, wf *graph.Workflow, opts SubmitOptions) (*prompt.Prompt, error) {
	ctx, span := h.tracer.Start(ctx, "host.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("workflow.id", wf.ID()), attribute.Int("workflow.nodes", wf.Len()))

	p, err := h.submit(ctx, wf, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("prompt.id", p.ID()))
	return p, nil
}

func (h *Host) submit(ctx context.Context, wf *graph.Workflow, opts SubmitOptions) (*prompt.Prompt, error) {
	mode := opts.IDMode
	if mode == "" {
		mode = h.cfg.IDMode
	}
	if problems := wf.Problems(); len(problems) > 0 {
		h.logger.Warn("submitting workflow with problems", "workflow", wf.ID(), "problems", len(problems))
	}

	var req submitRequest
	req.ClientID = h.SessionID()
	req.Prompt = wf.PromptPayload(mode)
	req.ExtraData.ExtraPNGInfo = map[string]any{}
	for k, v := range opts.Extra {
		req.ExtraData.ExtraPNGInfo[k] = v
	}
	req.ExtraData.ExtraPNGInfo["workflow"] = wf.VisualGraph(h.cfg.Layout)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode prompt: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.HTTPURL()+"/prompt", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to post prompt: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &SubmissionError{StatusCode: resp.StatusCode, Body: data}
	}

	var out submitResponse
	if err := json.Unmarshal(data, &out); err != nil || out.PromptID == "" {
		return nil, &SubmissionError{StatusCode: resp.StatusCode, Body: data}
	}

	cfg := prompt.Config{
		SaveFormat:    h.cfg.SaveFormat,
		MaxRetrievals: h.cfg.MaxRetrievals,
		WireIDs:       wf.WireIDs(mode),
	}
	if opts.SaveFormat != nil {
		cfg.SaveFormat = *opts.SaveFormat
	}
	p := prompt.New(h.ctx, out.PromptID, wf, prompt.Deps{
		Saver:  h.saver,
		Store:  h.store,
		Logger: h.logger,
		Hooks:  h.hooks,
		Config: cfg,
	})
	h.register(p)
	h.logger.Info("prompt submitted", "prompt", out.PromptID, "workflow", wf.ID(), "queue_number", out.Number)
	return p, nil
}

// SubmitAndWait submits and waits for resolution. An execution failure is
// reported in the result, not as an error.
func (h *Host) SubmitAndWait(ctx context.Context, wf *graph.Workflow, opts SubmitOptions) (*prompt.Result, error) {
	p, err := h.Submit(ctx, wf, opts)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}

// Fetch downloads an artifact through GET /view.
func (h *Host) Fetch(ctx context.Context, ref protocol.ImageRef) ([]byte, error) {
	q := url.Values{}
	q.Set("filename", ref.Filename)
	q.Set("subfolder", ref.Subfolder)
	q.Set("type", ref.Type)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.HTTPURL()+"/view?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET /view %s: status %d", ref.Filename, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// WaitOnline polls the server root every interval until it answers,
// up to maxAttempts times. A non-positive interval means
// DefaultPingInterval; fewer than one attempt means one.
func (h *Host) WaitOnline(ctx context.Context, interval time.Duration, maxAttempts int) error {
	if interval <= 0 {
		interval = DefaultPingInterval
	}
	maxAttempts = max(maxAttempts, 1)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := h.ping(ctx, interval)
		if err == nil {
			h.logger.Info("host online", "attempt", attempt)
			return nil
		}
		h.logger.Debug("host not reachable", "attempt", attempt, "err", err)
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", h.cfg.HTTPURL(), maxAttempts, domain.ErrHostUnreachable)
}

func (h *Host) ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.HTTPURL()+"/", nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// SetServerLogForwarding asks the manager extension to start or stop
// forwarding terminal output over the WebSocket.
func (h *Host) SetServerLogForwarding(ctx context.Context, enabled bool) error {
	_, err := h.getBytes(ctx, "/manager/terminal?mode="+strconv.FormatBool(enabled))
	return err
}

func (h *Host) getBytes(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.HTTPURL()+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return data, nil
}

var _ artifact.Fetcher = (*Host)(nil)

// IsSubmissionError reports whether err is a rejected submission.
func IsSubmissionError(err error) bool {
	var se *SubmissionError
	return errors.As(err, &se)
}
