package artifact

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/aretw0/comfyflow/pkg/protocol"
)

// Fetcher downloads the bytes of a server-side artifact.
type Fetcher interface {
	Fetch(ctx context.Context, ref protocol.ImageRef) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, ref protocol.ImageRef) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, ref protocol.ImageRef) ([]byte, error) {
	return f(ctx, ref)
}

// Format is the on-disk encoding of a saved artifact.
type Format string

const (
	FormatRaw  Format = "raw"
	FormatPNG  Format = "image/png"
	FormatJPEG Format = "image/jpeg"
)

// DefaultQuality is the JPEG quality used when SaveFormat.Quality is zero.
const DefaultQuality = 90

// SaveFormat controls how retrieved artifacts are written.
// The zero value writes the bytes as received.
type SaveFormat struct {
	Format  Format  `json:"format,omitempty" yaml:"format" mapstructure:"format"`
	Quality float64 `json:"quality,omitempty" yaml:"quality" mapstructure:"quality"`
	Prefix  string  `json:"prefix,omitempty" yaml:"prefix" mapstructure:"prefix"`
}

// Raw reports whether no re-encoding happens.
func (f SaveFormat) Raw() bool { return f.Format == "" || f.Format == FormatRaw }

// Extension is the suffix appended to re-encoded files, without the dot.
func (f SaveFormat) Extension() string {
	if f.Raw() {
		return ""
	}
	_, ext, _ := strings.Cut(string(f.Format), "/")
	return ext
}

// Validate rejects unknown formats and out-of-range qualities.
func (f SaveFormat) Validate() error {
	switch f.Format {
	case "", FormatRaw, FormatPNG, FormatJPEG:
	default:
		return fmt.Errorf("unsupported save format %q", f.Format)
	}
	if f.Quality < 0 || f.Quality > 1 {
		return fmt.Errorf("quality %v out of range [0, 1]", f.Quality)
	}
	return nil
}

// JPEGQuality maps Quality (0..1) to the 1..100 encoder scale.
func (f SaveFormat) JPEGQuality() int {
	if f.Quality == 0 {
		return DefaultQuality
	}
	return min(max(int(math.Round(f.Quality*100)), 1), 100)
}

// Destination returns where an artifact lands on disk:
//
//	<root>/<promptID>/<nodeID>/<prefix or subfolder>/<filename>[.<ext>]
//
// Every server-provided segment is confined below its parent.
func Destination(root, promptID, nodeID string, ref protocol.ImageRef, f SaveFormat) string {
	sub := ref.Subfolder
	if f.Prefix != "" {
		sub = f.Prefix
	}
	name := segment(ref.Filename)
	if ext := f.Extension(); ext != "" {
		name += "." + ext
	}
	return filepath.Join(root, segment(promptID), segment(nodeID), confine(sub), name)
}

// confine cleans p as if rooted, so ".." cannot climb above the join point.
func confine(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(filepath.Clean("/"+p), string(filepath.Separator))
}

func segment(s string) string {
	s = filepath.Base(strings.ReplaceAll(s, "\\", "/"))
	switch s {
	case ".", "..", "/", "":
		return "_"
	}
	return s
}

// RetrievalError wraps any failure to retrieve or write one artifact.
type RetrievalError struct {
	PromptID string
	NodeID   string
	Ref      protocol.ImageRef
	Err      error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve %s (prompt %s, node %s): %v", e.Ref.Filename, e.PromptID, e.NodeID, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }
