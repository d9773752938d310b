// Package app wires application components and startup helpers.
package app

import (
	"context"
	"log/slog"

	qdrantcli "github.com/clipforge/clipforge/internal/adapter/vector/qdrant"
	"github.com/clipforge/clipforge/internal/config"
)

// researchEmbeddingSize matches the deterministic hash-derived pseudo-vector
// internal/provider/real.Research writes (no real embedding model is in
// scope for this spec).
const researchEmbeddingSize = 8

// EnsureDefaultCollections ensures the research trend-cache collection
// exists before the worker starts writing to it. internal/provider/real.Research
// also ensures it lazily on first use; this call just surfaces a
// misconfigured Qdrant at startup instead of on the first research job.
func EnsureDefaultCollections(ctx context.Context, qcli *qdrantcli.Client, cfg config.Config) {
	if qcli == nil {
		return
	}
	if err := qcli.EnsureCollection(ctx, cfg.ResearchCacheCollection, researchEmbeddingSize, "Cosine"); err != nil {
		slog.Warn("qdrant ensure research cache collection failed", slog.Any("error", err))
	}
}
