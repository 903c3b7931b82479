package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aretw0/comfyflow/internal/logging"
	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/aretw0/comfyflow/pkg/host"
)

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	start  sync.Once
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	sc.start.Do(func() {
		signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			select {
			case sig := <-sc.sigCh:
				sc.mu.Lock()
				sc.sigVal = sig
				sc.mu.Unlock()
				sc.Cancel()
			case <-sc.Context.Done():
			}
			sc.stop.Do(func() {
				signal.Stop(sc.sigCh)
			})
		}()
	})

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// createLogger configures the application logger.
// In debug mode, it writes to Stderr (to separate from Stdout summaries).
func createLogger(debug bool) *slog.Logger {
	if debug {
		return logging.New(slog.LevelDebug)
	}
	return logging.NewNop()
}

// printSystemMessage prints a standardized system message to w.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeStatus: func(ctx context.Context, e *domain.NodeEvent) {
			logger.Debug("Node Status", "prompt", e.PromptID, "node_id", e.NodeID, "type", e.NodeType, "status", e.Status, "progress", e.Progress)
		},
		OnPromptFinished: func(ctx context.Context, e *domain.PromptEvent) {
			if e.Error != "" {
				logger.Debug("Prompt Finished (Error)", "prompt", e.PromptID, "status", e.Status, "err", e.Error)
				return
			}
			logger.Debug("Prompt Finished", "prompt", e.PromptID, "status", e.Status)
		},
		OnArtifact: func(ctx context.Context, e *domain.ArtifactEvent) {
			if e.Error != "" {
				logger.Debug("Artifact Failed", "prompt", e.PromptID, "node_id", e.NodeID, "file", e.Filename, "err", e.Error)
				return
			}
			logger.Debug("Artifact Saved", "prompt", e.PromptID, "node_id", e.NodeID, "path", e.Path, "duration", e.Duration)
		},
		OnServerLog: func(ctx context.Context, e *domain.LogEvent) {
			logger.Debug("Server Log", "content", e.Content)
		},
	}
}

// waitConnected polls until the socket is open.
func waitConnected(ctx context.Context, h *host.Host, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for !h.IsConnected() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for connection: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}

// handleExecutionError turns interruptions into a clean exit.
func handleExecutionError(w io.Writer, sig os.Signal, err error) error {
	if err == nil {
		return nil
	}
	if isInterrupted(err) {
		switch sig {
		case os.Interrupt:
			fmt.Fprintf(w, "[CTRL+C]\n")
			printSystemMessage(w, "Interrupted.")
		case nil:
			printSystemMessage(w, "Cancelled.")
		default:
			fmt.Fprintf(w, "\n")
			printSystemMessage(w, "Terminated.")
		}
		return nil
	}
	return err
}
