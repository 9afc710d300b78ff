package genai

import (
	"context"
	"fmt"
	"strings"

	"funnelforge/internal/content"
)

// StaticGenerator produces deterministic placeholder copy for every
// requested field. It keeps the worker fully operational in local and CI
// environments where no API key is configured.
type StaticGenerator struct{}

func NewStaticGenerator() *StaticGenerator { return &StaticGenerator{} }

func (s *StaticGenerator) GenerateChunk(_ context.Context, req ChunkRequest) (content.Document, error) {
	business := "your business"
	if v, ok := req.Context["business_name"].(string); ok && v != "" {
		business = v
	}
	doc := make(content.Document, len(req.Fields))
	for _, f := range req.Fields {
		text := fmt.Sprintf("Placeholder %s copy for %s.", strings.ReplaceAll(f.Name, "_", " "), business)
		if f.SubAttr == "" {
			doc[f.Name] = text
			continue
		}
		doc[f.Name] = map[string]any{f.SubAttr: text}
	}
	return doc, nil
}

var _ Generator = (*StaticGenerator)(nil)
