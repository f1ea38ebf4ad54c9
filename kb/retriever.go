// Package kb implements the knowledge-base agent's retrieval collaborator
// seam (SPEC_FULL.md's "kb" entry). It is grounded on the teacher's
// databases.DatabaseProvider/SearchResult pair (pkg/databases/registry.go),
// narrowed to the one read-path operation a KB agent needs: embed the
// latest user message and search a collection for the closest match.
package kb

import "context"

// Embedder turns text into a vector, grounded on the teacher's
// embedders.EmbedderProvider (pkg/embedders/registry.go).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchResult is one retrieval hit, mirroring the teacher's
// databases.SearchResult field set.
type SearchResult struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]any
}

// Retriever is the vector-store read seam a KB agent depends on.
type Retriever interface {
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error)
}
