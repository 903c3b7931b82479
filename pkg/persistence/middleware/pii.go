package middleware

import (
	"context"
	"regexp"
	"slices"

	"github.com/aretw0/comfyflow/pkg/domain"
	"github.com/aretw0/comfyflow/pkg/ports"
)

// Mask replaces redacted text.
const Mask = "***"

type piiMiddleware struct {
	next     ports.PromptStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks every match of the
// patterns in exception messages and artifact paths before they are stored.
// Engine errors often carry absolute paths, user names or tokens.
// Invalid patterns panic.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.PromptStore) ports.PromptStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, record *domain.PromptRecord) error {
	// Clone so the live tracker keeps the original.
	cloned := *record
	cloned.Artifacts = slices.Clone(record.Artifacts)

	cloned.Error = m.mask(cloned.Error)
	for i, a := range cloned.Artifacts {
		cloned.Artifacts[i] = m.mask(a)
	}
	return m.next.Save(ctx, &cloned)
}

func (m *piiMiddleware) mask(s string) string {
	for _, p := range m.patterns {
		s = p.ReplaceAllString(s, Mask)
	}
	return s
}

func (m *piiMiddleware) Load(ctx context.Context, promptID string) (*domain.PromptRecord, error) {
	return m.next.Load(ctx, promptID)
}

func (m *piiMiddleware) Delete(ctx context.Context, promptID string) error {
	return m.next.Delete(ctx, promptID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
