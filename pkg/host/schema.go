package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/aretw0/comfyflow/pkg/graph"
	"github.com/aretw0/comfyflow/pkg/schema"
)

const (
	objectInfoFile = "object_info.json"
	embeddingsFile = "embeddings.json"
)

// SchemaUpdateResult reports the last schema refresh.
type SchemaUpdateResult struct {
	At     time.Time `json:"at"`
	Source string    `json:"source"`
	Nodes  int       `json:"nodes"`
	Issues []string  `json:"issues,omitempty"`
	Err    error     `json:"-"`
}

// OK reports whether the refresh produced a catalog.
func (r SchemaUpdateResult) OK() bool { return r.Err == nil && !r.At.IsZero() }

// Schema returns the loaded catalog, or nil.
func (h *Host) Schema() *schema.Catalog {
	h.schemaMu.RLock()
	defer h.schemaMu.RUnlock()
	return h.catalog
}

// SchemaUpdateResult returns the outcome of the last refresh.
func (h *Host) SchemaUpdateResult() SchemaUpdateResult {
	h.schemaMu.RLock()
	defer h.schemaMu.RUnlock()
	return h.schemaResult
}

// WaitSchema blocks until a catalog is loaded.
func (h *Host) WaitSchema(ctx context.Context) (*schema.Catalog, error) {
	select {
	case <-h.schemaReady:
		return h.Schema(), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for schema: %w", ctx.Err())
	}
}

// NewWorkflow returns an empty workflow bound to the current catalog.
func (h *Host) NewWorkflow(opts ...graph.Option) (*graph.Workflow, error) {
	catalog := h.Schema()
	if catalog == nil {
		return nil, domain.ErrSchemaNotLoaded
	}
	opts = append([]graph.Option{graph.WithLogger(h.logger)}, opts...)
	return graph.NewWorkflow(catalog, opts...), nil
}

// RefreshSchema downloads /object_info and /embeddings and swaps the catalog.
// Concurrent refreshes are serialized.
func (h *Host) RefreshSchema(ctx context.Context) error {
	h.refreshMu.Lock()
	defer h.refreshMu.Unlock()

	ctx, span := h.tracer.Start(ctx, "host.RefreshSchema")
	defer span.End()
	if err := h.refreshSchema(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (h *Host) refreshSchema(ctx context.Context) error {
	objectInfo, err := h.getBytes(ctx, "/object_info")
	if err != nil {
		return h.schemaFailed("remote", err)
	}
	embData, err := h.getBytes(ctx, "/embeddings")
	if err != nil {
		return h.schemaFailed("remote", err)
	}
	var embeddings []string
	if err := json.Unmarshal(embData, &embeddings); err != nil {
		return h.schemaFailed("remote", fmt.Errorf("failed to decode embeddings: %w", err))
	}

	if err := h.loadSchema("remote", objectInfo, embeddings); err != nil {
		return err
	}
	if h.cfg.CacheSchema {
		if err := h.writeCache(objectInfo, embData); err != nil {
			h.logger.Warn("failed to cache schema", "err", err)
		}
	}
	return nil
}

// LoadSchemaFromCache loads the payloads cached by a previous refresh.
func (h *Host) LoadSchemaFromCache() error {
	dir := h.cfg.CacheDir()
	objectInfo, err := os.ReadFile(filepath.Join(dir, objectInfoFile))
	if err != nil {
		return err
	}
	var embeddings []string
	if data, err := os.ReadFile(filepath.Join(dir, embeddingsFile)); err == nil {
		if err := json.Unmarshal(data, &embeddings); err != nil {
			return h.schemaFailed("cache", fmt.Errorf("failed to decode cached embeddings: %w", err))
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return h.loadSchema("cache", objectInfo, embeddings)
}

func (h *Host) loadSchema(source string, objectInfo []byte, embeddings []string) error {
	catalog, err := schema.Parse(objectInfo, embeddings)
	if err != nil {
		return h.schemaFailed(source, err)
	}
	issues := catalog.Check()
	for _, issue := range issues {
		h.logger.Warn("schema issue", "issue", issue)
	}

	h.schemaMu.Lock()
	h.catalog = catalog
	h.schemaResult = SchemaUpdateResult{At: time.Now(), Source: source, Nodes: catalog.Len(), Issues: issues}
	h.schemaMu.Unlock()
	h.schemaOnce.Do(func() { close(h.schemaReady) })

	if h.metrics != nil {
		h.metrics.SchemaRefreshed(true)
	}
	h.logger.Info("schema loaded", "source", source, "nodes", catalog.Len(), "embeddings", len(embeddings))
	return nil
}

func (h *Host) schemaFailed(source string, err error) error {
	h.schemaMu.Lock()
	h.schemaResult = SchemaUpdateResult{At: time.Now(), Source: source, Err: err}
	h.schemaMu.Unlock()
	if h.metrics != nil {
		h.metrics.SchemaRefreshed(false)
	}
	return fmt.Errorf("schema from %s: %w", source, err)
}

func (h *Host) writeCache(objectInfo, embeddings []byte) error {
	dir := h.cfg.CacheDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, objectInfo, "", "    "); err != nil {
		pretty.Reset()
		pretty.Write(objectInfo)
	}
	if err := os.WriteFile(filepath.Join(dir, objectInfoFile), pretty.Bytes(), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, embeddingsFile), embeddings, 0o644)
}
