package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/aretw0/comfyflow/internal/compiler"
	"github.com/aretw0/comfyflow/internal/config"
	"github.com/aretw0/comfyflow/internal/presentation/graph"
	model "github.com/aretw0/comfyflow/pkg/graph"
	"github.com/aretw0/comfyflow/pkg/host"
	"github.com/aretw0/comfyflow/pkg/schema"
)

// Graph output formats.
const (
	FormatMermaid   = "mermaid"
	FormatPrompt    = "prompt"
	FormatLiteGraph = "litegraph"
)

// PingOptions configures the ping command.
type PingOptions struct {
	ConfigPath string
	Interval   time.Duration
	Attempts   int
	Out        io.Writer
}

// Ping waits until the configured host answers HTTP.
func Ping(opts PingOptions) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	h, err := createHost(cfg, createLogger(cfg.Debug), nil)
	if err != nil {
		return err
	}
	defer h.Close()

	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	start := time.Now()
	if err := h.WaitOnline(sigCtx, opts.Interval, opts.Attempts); err != nil {
		return handleExecutionError(opts.Out, sigCtx.Signal(), err)
	}
	printSystemMessage(opts.Out, "%s is online (%s)", cfg.Host.HTTPURL(), time.Since(start).Round(time.Millisecond))
	return nil
}

// SchemaOptions configures the schema command.
type SchemaOptions struct {
	ConfigPath string
	Timeout    time.Duration
	// Category filters the listed node types.
	Category string
	JSON     bool
	Out      io.Writer
}

// Schema downloads the node catalog, caches it when configured and lists
// the node types.
func Schema(opts SchemaOptions) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	logger := createLogger(cfg.Debug)
	h, err := createHost(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeoutOr(opts.Timeout))
	defer cancel()
	if err := h.RefreshSchema(ctx); err != nil {
		return err
	}
	return listSchema(opts.Out, h.Schema(), h.SchemaUpdateResult(), opts.Category, opts.JSON)
}

type nodeSummary struct {
	Name     string   `json:"name"`
	Category string   `json:"category,omitempty"`
	Output   bool     `json:"output_node,omitempty"`
	Inputs   []string `json:"inputs,omitempty"`
	Outputs  []string `json:"outputs,omitempty"`
}

func listSchema(w io.Writer, catalog *schema.Catalog, res host.SchemaUpdateResult, category string, asJSON bool) error {
	var nodes []nodeSummary
	for _, name := range catalog.Names() {
		n, _ := catalog.Node(name)
		if category != "" && n.Category != category {
			continue
		}
		s := nodeSummary{Name: n.Name, Category: n.Category, Output: n.OutputNode}
		for _, in := range n.Inputs {
			s.Inputs = append(s.Inputs, in.Name+":"+in.Type)
		}
		for _, out := range n.Outputs {
			s.Outputs = append(s.Outputs, out.Type)
		}
		nodes = append(nodes, s)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(nodes)
	}
	for _, n := range nodes {
		fmt.Fprintf(w, "%-40s %s\n", n.Name, n.Category)
	}
	printSystemMessage(w, "%d node types (%d listed) from %s", res.Nodes, len(nodes), res.Source)
	for _, issue := range res.Issues {
		printSystemMessage(w, "issue: %s", issue)
	}
	return nil
}

// GraphOptions configures the graph command.
type GraphOptions struct {
	Workflow string
	// SchemaFile is an /object_info payload. Without it the schema is
	// fetched from the configured host, or read from its cache.
	SchemaFile string
	ConfigPath string
	Format     string
	IDMode     model.IDMode
	Groups     bool
	Timeout    time.Duration
	Out        io.Writer
}

// Graph compiles a workflow file and prints it without submitting it.
func Graph(opts GraphOptions) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	logger := createLogger(cfg.Debug)

	catalog, err := loadCatalog(opts, cfg)
	if err != nil {
		return err
	}
	wf, err := compiler.New(catalog, compiler.WithLogger(logger)).CompileFile(opts.Workflow)
	if err != nil {
		return err
	}
	for _, p := range wf.Problems() {
		fmt.Fprintf(os.Stderr, "warning: %s\n", p)
	}
	mode := opts.IDMode
	if mode == "" {
		mode = cfg.Host.IDMode
	}
	return writeGraph(opts.Out, wf, opts.Format, mode, cfg.Host.Layout, opts.Groups)
}

func loadCatalog(opts GraphOptions, cfg *config.Config) (*schema.Catalog, error) {
	if opts.SchemaFile != "" {
		data, err := os.ReadFile(opts.SchemaFile)
		if err != nil {
			return nil, err
		}
		return schema.Parse(data, nil)
	}

	h, err := createHost(cfg, createLogger(cfg.Debug), nil)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeoutOr(opts.Timeout))
	defer cancel()
	if err := h.RefreshSchema(ctx); err != nil {
		if cacheErr := h.LoadSchemaFromCache(); cacheErr != nil {
			return nil, err
		}
	}
	return h.Schema(), nil
}

func writeGraph(w io.Writer, wf *model.Workflow, format string, mode model.IDMode, layout model.LayoutOptions, groups bool) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	switch format {
	case "", FormatMermaid:
		fmt.Fprint(w, graph.GenerateMermaid(wf, graph.Options{Groups: groups}))
		return nil
	case FormatPrompt:
		return enc.Encode(wf.PromptPayload(mode))
	case FormatLiteGraph:
		return enc.Encode(wf.VisualGraph(layout))
	}
	return fmt.Errorf("unknown format %q (want %s, %s or %s)", format, FormatMermaid, FormatPrompt, FormatLiteGraph)
}

func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return config.DefaultRequestTimeout
	}
	return d
}
