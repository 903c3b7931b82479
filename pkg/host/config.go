package host

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/comfyflow/pkg/artifact"
	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/aretw0/comfyflow/pkg/graph"
	"github.com/aretw0/comfyflow/pkg/ports"
	"github.com/aretw0/comfyflow/pkg/transport"
)

const (
	DefaultAddress       = "127.0.0.1:8188"
	DefaultOutputDir     = "outputs"
	DefaultMaxServerLogs = 200
	// DefaultPingInterval is used by WaitOnline when no interval is given.
	DefaultPingInterval = time.Second
	// DefaultSessionID is reported until the server assigns one.
	DefaultSessionID = "temp"
)

// Config describes one execution engine and how results are kept.
// It replaces any process-wide setting: everything a Host and its prompts
// need is carried here.
type Config struct {
	// ID names the host; it keys the on-disk schema cache.
	// Defaults to the address with separators replaced.
	ID      string `mapstructure:"id" json:"id" yaml:"id"`
	Address string `mapstructure:"address" json:"address" yaml:"address"`
	HTTPS   bool   `mapstructure:"https" json:"https" yaml:"https"`
	// ClientID is sent as ?clientId= and as client_id on submission.
	// A random id is generated when empty.
	ClientID string `mapstructure:"client_id" json:"client_id" yaml:"client_id"`

	OutputDir   string `mapstructure:"output_dir" json:"output_dir" yaml:"output_dir"`
	CacheSchema bool   `mapstructure:"cache_schema" json:"cache_schema" yaml:"cache_schema"`

	Layout        graph.LayoutOptions `mapstructure:"layout" json:"layout" yaml:"layout"`
	SaveFormat    artifact.SaveFormat `mapstructure:"save_format" json:"save_format" yaml:"save_format"`
	IDMode        graph.IDMode        `mapstructure:"id_mode" json:"id_mode" yaml:"id_mode"`
	MaxRetrievals int64               `mapstructure:"max_retrievals" json:"max_retrievals" yaml:"max_retrievals"`
	MaxServerLogs int                 `mapstructure:"max_server_logs" json:"max_server_logs" yaml:"max_server_logs"`

	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" json:"reconnect_delay" yaml:"reconnect_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout" yaml:"request_timeout"`
}

func (c *Config) setDefaults() {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.ID == "" {
		c.ID = strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(c.Address)
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.Layout == (graph.LayoutOptions{}) {
		c.Layout = graph.DefaultLayoutOptions()
	}
	if c.IDMode == "" {
		c.IDMode = graph.IDNumeric
	}
	if c.MaxServerLogs <= 0 {
		c.MaxServerLogs = DefaultMaxServerLogs
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = transport.DefaultReconnectDelay
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if strings.Contains(c.Address, "://") {
		errs = append(errs, fmt.Errorf("address %q must be host:port, set https instead of a scheme", c.Address))
	}
	switch c.IDMode {
	case "", graph.IDNumeric, graph.IDPrefixed:
	default:
		errs = append(errs, fmt.Errorf("unknown id mode %q", c.IDMode))
	}
	if err := c.SaveFormat.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// HTTPURL is the base URL of the HTTP API.
func (c Config) HTTPURL() string {
	scheme := "http"
	if c.HTTPS {
		scheme = "https"
	}
	return scheme + "://" + c.Address
}

// WSURL is the WebSocket endpoint, carrying the client id.
func (c Config) WSURL() string {
	scheme := "ws"
	if c.HTTPS {
		scheme = "wss"
	}
	u := scheme + "://" + c.Address + "/ws"
	if c.ClientID != "" {
		u += "?clientId=" + url.QueryEscape(c.ClientID)
	}
	return u
}

// CacheDir is where the schema payloads are cached.
func (c Config) CacheDir() string {
	return filepath.Join(c.OutputDir, "hosts", c.ID)
}

// Metrics receives connection level counts. Prompt and artifact outcomes
// are reported through LifecycleHooks instead.
type Metrics interface {
	FrameReceived(kind string)
	DecodeFailed(kind string)
	Connected()
	SchemaRefreshed(ok bool)
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Host) { h.client = c }
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d transport.Dialer) Option {
	return func(h *Host) { h.dialer = d }
}

// WithLifecycleHooks registers observability hooks. Repeated calls merge.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(h *Host) { h.hooks = h.hooks.Merge(hooks) }
}

// WithStore persists prompt records.
func WithStore(s ports.PromptStore) Option {
	return func(h *Host) { h.store = s }
}

// WithMetrics reports connection level counts.
func WithMetrics(m Metrics) Option {
	return func(h *Host) { h.metrics = m }
}

// WithTracerProvider sets the tracer provider. The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(h *Host) { h.tracer = tp.Tracer(tracerName) }
}

// WithSaver replaces the artifact saver built from the config.
func WithSaver(s *artifact.Saver) Option {
	return func(h *Host) { h.saver = s }
}
