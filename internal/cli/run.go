package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aretw0/comfyflow/internal/compiler"
	"github.com/aretw0/comfyflow/internal/config"
	"github.com/aretw0/comfyflow/internal/presentation/tui"
	"github.com/aretw0/comfyflow/pkg/artifact"
	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/aretw0/comfyflow/pkg/host"
	"github.com/aretw0/comfyflow/pkg/prompt"
)

const connectPoll = 100 * time.Millisecond

// RunOptions contains all the configuration for the Run command.
type RunOptions struct {
	ConfigPath string
	Workflow   string
	Debug      bool
	JSON       bool
	Quiet      bool
	// Timeout bounds connection, execution and retrieval. Zero waits forever.
	Timeout   time.Duration
	OutputDir string
	// Format overrides the configured save format: raw, png or jpeg.
	Format string
	// Extra is a raw JSON object merged into extra_pnginfo.
	Extra string

	Out io.Writer
}

// Execute handles the 'run' command: compile a workflow file, submit it,
// wait for the result and print a summary.
func Execute(opts RunOptions) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg, opts.Debug, opts.OutputDir)

	submit := host.SubmitOptions{}
	if opts.Format != "" {
		f := cfg.Host.SaveFormat
		f.Format = parseFormat(opts.Format)
		if err := f.Validate(); err != nil {
			return err
		}
		submit.SaveFormat = &f
	}
	if opts.Extra != "" {
		if err := json.Unmarshal([]byte(opts.Extra), &submit.Extra); err != nil {
			return fmt.Errorf("error parsing --extra JSON: %w", err)
		}
	}

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()
	var ctx context.Context = sigCtx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(sigCtx, opts.Timeout)
		defer cancel()
	}

	res, err := run(ctx, cfg, opts, submit)
	if err != nil {
		return handleExecutionError(opts.Out, sigCtx.Signal(), err)
	}
	if res.Status == domain.PromptFailure {
		return res.Err()
	}
	return nil
}

func applyOverrides(cfg *config.Config, debug bool, outputDir string) {
	if debug {
		cfg.Debug = true
	}
	if outputDir != "" {
		cfg.Host.OutputDir = outputDir
	}
}

func run(ctx context.Context, cfg *config.Config, opts RunOptions, submit host.SubmitOptions) (*prompt.Result, error) {
	logger := createLogger(cfg.Debug)

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	h, err := createHost(cfg, logger, store)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	h.Start(ctx)
	if err := waitConnected(ctx, h, connectPoll); err != nil {
		return nil, err
	}
	catalog, err := h.WaitSchema(ctx)
	if err != nil {
		return nil, err
	}

	wf, err := compiler.New(catalog, compiler.WithLogger(logger)).CompileFile(opts.Workflow)
	if err != nil {
		return nil, err
	}
	if !opts.Quiet && !opts.JSON {
		printSystemMessage(opts.Out, "Submitting '%s' (%d nodes) to %s", wf.ID(), wf.Len(), h.Config().HTTPURL())
	}

	res, err := h.SubmitAndWait(ctx, wf, submit)
	if err != nil {
		return nil, err
	}

	if opts.JSON {
		enc := json.NewEncoder(opts.Out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return nil, err
		}
	} else if !opts.Quiet {
		render := tui.NewRenderer(tui.IsTerminal(opts.Out))
		out, err := render(tui.RunSummary(res, wf))
		if err != nil {
			return nil, err
		}
		fmt.Fprint(opts.Out, out)
	}
	return res, nil
}

// parseFormat accepts short names next to the MIME types.
func parseFormat(s string) artifact.Format {
	switch s {
	case "png":
		return artifact.FormatPNG
	case "jpeg", "jpg":
		return artifact.FormatJPEG
	}
	return artifact.Format(s)
}
