package cli

import (
	"context"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aretw0/comfyflow"
	"github.com/aretw0/comfyflow/internal/compiler"
	"github.com/aretw0/comfyflow/internal/config"
	"github.com/aretw0/comfyflow/internal/metrics"
	"github.com/aretw0/comfyflow/internal/presentation/tui"
	monitor "github.com/aretw0/comfyflow/pkg/adapters/http"
	"github.com/aretw0/comfyflow/pkg/host"
)

const shutdownTimeout = 5 * time.Second

// WatchOptions configures the watch command.
type WatchOptions struct {
	ConfigPath string
	Debug      bool
	// Addr overrides the monitor listen address.
	Addr string
	// Workflow, when set, is submitted at start and again whenever it changes.
	Workflow string
	Interval time.Duration

	Out io.Writer
}

// RunWatch connects to the host and serves the monitoring API until
// interrupted. With a workflow file it also resubmits on every change.
func RunWatch(opts WatchOptions) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Interval <= 0 {
		opts.Interval = 300 * time.Millisecond
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg, opts.Debug, "")
	if opts.Addr != "" {
		cfg.Monitor.Addr = opts.Addr
	}

	logger := createLogger(cfg.Debug)
	tui.PrintBanner(opts.Out, comfyflow.Version)

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	store, closeStore, err := openStore(sigCtx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	collector := metrics.New()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := monitor.New(nil,
		monitor.WithStore(store),
		monitor.WithGatherer(registry),
		monitor.WithVersion(comfyflow.Version),
		monitor.WithLogger(logger))

	h, err := createHost(cfg, logger, store,
		host.WithMetrics(collector),
		host.WithLifecycleHooks(collector.Hooks().Merge(srv.Hooks())))
	if err != nil {
		return err
	}
	defer h.Close()
	srv.Source = h

	httpSrv := &http.Server{
		Addr:              cfg.Monitor.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpSrv.ListenAndServe()
	}()
	printSystemMessage(opts.Out, "Monitor at http://%s, host %s", cfg.Monitor.Addr, cfg.Host.HTTPURL())

	h.Start(sigCtx)
	if opts.Workflow != "" {
		go watchWorkflow(sigCtx, h, opts.Workflow, opts.Interval, logger, opts.Out)
	}

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("monitor server: %w", err)
		}
	case <-sigCtx.Done():
	}

	printSystemMessage(opts.Out, "Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
		_ = httpSrv.Close()
	}
	return nil
}

// watchWorkflow submits path at start and whenever its content changes.
// Events are debounced by interval. Compile errors are reported and the
// previous version is kept.
func watchWorkflow(ctx context.Context, h *host.Host, path string, interval time.Duration, logger *slog.Logger, out io.Writer) {
	if _, err := h.WaitSchema(ctx); err != nil {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("Watcher: failed to start", "err", err)
		return
	}
	defer watcher.Close()

	// Editors often replace the file, so the directory is watched instead.
	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Error("Watcher: failed to watch", "path", path, "err", err)
		return
	}

	var last []byte
	submit := func() {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("Watcher: failed to read workflow", "path", path, "err", err)
			return
		}
		if last != nil && bytes.Equal(data, last) {
			return
		}
		last = data
		c := compiler.New(h.Schema(), compiler.WithLogger(logger))
		submitChanged(ctx, h, c, data, logger, out)
	}
	submit()

	debounce := time.NewTimer(interval)
	debounce.Stop()
	defer debounce.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			debounce.Reset(interval)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Watcher: error", "err", err)
		case <-debounce.C:
			submit()
		}
	}
}

func submitChanged(ctx context.Context, h *host.Host, c *compiler.Compiler, data []byte, logger *slog.Logger, out io.Writer) {
	f, err := compiler.Parse(data)
	if err != nil {
		printSystemMessage(out, "Workflow invalid: %v", err)
		return
	}
	wf, err := c.Compile(f)
	if err != nil {
		printSystemMessage(out, "Workflow invalid: %v", err)
		return
	}
	p, err := h.Submit(ctx, wf, host.SubmitOptions{})
	if err != nil {
		printSystemMessage(out, "Submission failed: %v", err)
		return
	}
	printSystemMessage(out, "Submitted '%s' as prompt %s", wf.ID(), p.ID())
	go func() {
		res, err := p.Wait(ctx)
		if err != nil {
			return
		}
		logger.Info("Watcher: prompt finished", "prompt", res.PromptID, "status", res.Status, "artifacts", len(res.Artifacts))
		printSystemMessage(out, "Prompt %s finished: %s (%d artifacts)", res.PromptID, res.Status, len(res.Artifacts))
	}()
}
