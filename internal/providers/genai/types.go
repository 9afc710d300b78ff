// Package genai holds the generation-collaborator clients: the Gemini REST
// client used in production and a deterministic static generator for local
// and CI environments.
package genai

import (
	"context"

	"funnelforge/internal/content"
)

// ChunkRequest scopes one generation call to a single partition-plan chunk:
// the chunk's field specs plus the shared business context for the content
// group.
type ChunkRequest struct {
	ContentType  string
	ContentLabel string
	ChunkID      string
	Fields       []content.FieldSpec
	// Context carries the intake answers shared by every chunk of the job
	// (business name, offer, audience, tone, ...).
	Context map[string]any
}

// Generator is the external content-generation collaborator. A failed call
// or unparseable model output is returned as an error and treated by the
// orchestrator as a chunk failure, never a fatal job error.
type Generator interface {
	GenerateChunk(ctx context.Context, req ChunkRequest) (content.Document, error)
}
