package comfyflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/comfyflow/internal/compiler"
	"github.com/aretw0/comfyflow/internal/logging"
	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/aretw0/comfyflow/pkg/graph"
	"github.com/aretw0/comfyflow/pkg/host"
	"github.com/aretw0/comfyflow/pkg/ports"
	"github.com/aretw0/comfyflow/pkg/prompt"
)

const connectPoll = 50 * time.Millisecond

// Client is the high-level entry point of the library.
// It wraps a Host and compiles workflow files against its schema.
type Client struct {
	host   *host.Host
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	logger *slog.Logger
	host   []host.Option
}

// WithLogger sets the logger of the client and its host.
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithStore persists prompt records.
func WithStore(s ports.PromptStore) Option {
	return func(o *clientOptions) { o.host = append(o.host, host.WithStore(s)) }
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *clientOptions) { o.host = append(o.host, host.WithLifecycleHooks(hooks)) }
}

// WithHostOptions passes options through to host.New.
func WithHostOptions(opts ...host.Option) Option {
	return func(o *clientOptions) { o.host = append(o.host, opts...) }
}

// New creates a client for the engine described by cfg. Nothing is dialed
// until Start.
func New(cfg host.Config, opts ...Option) (*Client, error) {
	o := clientOptions{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	h, err := host.New(cfg, append([]host.Option{host.WithLogger(o.logger)}, o.host...)...)
	if err != nil {
		return nil, err
	}
	return &Client{host: h, logger: o.logger}, nil
}

// Host returns the underlying host.
func (c *Client) Host() *host.Host { return c.host }

// Start connects and blocks until the socket is open and a schema is loaded.
// The connection lives until ctx ends or Close is called.
func (c *Client) Start(ctx context.Context) error {
	c.host.Start(ctx)

	ticker := time.NewTicker(connectPoll)
	defer ticker.Stop()
	for !c.host.IsConnected() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for connection: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	_, err := c.host.WaitSchema(ctx)
	return err
}

// Close disconnects and cancels pending retrievals.
func (c *Client) Close() error { return c.host.Close() }

// NewWorkflow returns an empty workflow bound to the loaded schema.
func (c *Client) NewWorkflow(opts ...graph.Option) (*graph.Workflow, error) {
	return c.host.NewWorkflow(opts...)
}

// Compile reads a workflow file (YAML or JSON) and builds it.
func (c *Client) Compile(path string) (*graph.Workflow, error) {
	catalog := c.host.Schema()
	if catalog == nil {
		return nil, domain.ErrSchemaNotLoaded
	}
	return compiler.New(catalog, compiler.WithLogger(c.logger)).CompileFile(path)
}

// Run submits wf and waits for its result. A failed execution is reported
// in the result, not as an error.
func (c *Client) Run(ctx context.Context, wf *graph.Workflow, opts ...host.SubmitOptions) (*prompt.Result, error) {
	var so host.SubmitOptions
	if len(opts) > 0 {
		so = opts[0]
	}
	return c.host.SubmitAndWait(ctx, wf, so)
}

// RunFile compiles the workflow file at path and runs it.
func (c *Client) RunFile(ctx context.Context, path string) (*prompt.Result, error) {
	wf, err := c.Compile(path)
	if err != nil {
		return nil, err
	}
	return c.Run(ctx, wf)
}
