package artifact

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	"image/jpeg"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/comfyflow/internal/logging"
	"github.com/aretw0/comfyflow/pkg/protocol"
	_ "golang.org/x/image/webp" // register decoder
)

// Request describes one artifact to retrieve.
type Request struct {
	PromptID string
	NodeID   string
	Ref      protocol.ImageRef
	Tags     []string
	StoreAs  string
	// Format overrides the saver default when non-zero.
	Format *SaveFormat
}

// Saved describes an artifact written to disk.
type Saved struct {
	Path     string            `json:"path"`
	PromptID string            `json:"prompt_id"`
	NodeID   string            `json:"node_id"`
	Ref      protocol.ImageRef `json:"ref"`
	Tags     []string          `json:"tags,omitempty"`
	StoreAs  string            `json:"store_as,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Mime     string            `json:"mime"`
	Size     int               `json:"size"`
	SavedAt  time.Time         `json:"saved_at"`
}

// Saver fetches artifacts and writes them below a root directory.
type Saver struct {
	fetcher Fetcher
	root    string
	format  SaveFormat
	logger  *slog.Logger
}

// Option configures a Saver.
type Option func(*Saver)

// WithFormat sets the default save format.
func WithFormat(f SaveFormat) Option {
	return func(s *Saver) { s.format = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Saver) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSaver creates a Saver writing below root.
func NewSaver(f Fetcher, root string, opts ...Option) *Saver {
	s := &Saver{fetcher: f, root: root, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Saver) Root() string       { return s.root }
func (s *Saver) Format() SaveFormat { return s.format }

// Save retrieves one artifact. The context is checked before the download and
// again before anything touches the disk, so a cancelled retrieval writes nothing.
func (s *Saver) Save(ctx context.Context, req Request) (*Saved, error) {
	wrap := func(err error) error {
		return &RetrievalError{PromptID: req.PromptID, NodeID: req.NodeID, Ref: req.Ref, Err: err}
	}

	f := s.format
	if req.Format != nil {
		f = *req.Format
	}
	if err := f.Validate(); err != nil {
		return nil, wrap(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, wrap(err)
	}

	data, err := s.fetcher.Fetch(ctx, req.Ref)
	if err != nil {
		return nil, wrap(fmt.Errorf("fetch: %w", err))
	}

	mime := http.DetectContentType(data)
	meta := map[string]string{}
	if mime == string(FormatPNG) {
		if text, err := ReadPNGText(data); err == nil {
			meta = text
		}
	}

	// Animated outputs lose their frames when re-encoded; keep them as sent.
	if mime == "image/gif" && !f.Raw() {
		s.logger.Debug("keeping animated artifact raw", "file", req.Ref.Filename)
		f = SaveFormat{Format: FormatRaw, Prefix: f.Prefix}
	}

	out := data
	if !f.Raw() {
		out, err = encode(data, f, meta)
		if err != nil {
			return nil, wrap(fmt.Errorf("re-encode %s: %w", f.Format, err))
		}
		mime = string(f.Format)
	}

	if err := ctx.Err(); err != nil {
		return nil, wrap(err)
	}

	path := Destination(s.root, req.PromptID, req.NodeID, req.Ref, f)
	if err := writeAtomic(path, out); err != nil {
		return nil, wrap(err)
	}

	tags := append([]string(nil), req.Tags...)
	s.logger.Debug("artifact saved", "prompt", req.PromptID, "node", req.NodeID, "path", path, "bytes", len(out))
	return &Saved{
		Path:     path,
		PromptID: req.PromptID,
		NodeID:   req.NodeID,
		Ref:      req.Ref,
		Tags:     tags,
		StoreAs:  req.StoreAs,
		Metadata: meta,
		Mime:     mime,
		Size:     len(out),
		SavedAt:  time.Now(),
	}, nil
}

func encode(data []byte, f SaveFormat, meta map[string]string) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	switch f.Format {
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
		return WritePNGText(buf.Bytes(), meta)
	case FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: f.JPEGQuality()}); err != nil {
			return nil, err
		}
		return WriteJPEGComment(buf.Bytes(), meta)
	}
	return nil, fmt.Errorf("unsupported save format %q", f.Format)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
