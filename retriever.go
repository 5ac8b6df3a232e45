package lore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// RetrievalResult is the combined context payload for one query: the top
// chunks by vector similarity, the expanded entity neighborhood, and a
// textual rendering of the edges inside that neighborhood.
type RetrievalResult struct {
	Chunks       []ScoredChunk `json:"chunks"`
	Entities     []Entity      `json:"entities"`
	GraphContext string        `json:"graph_context"`
}

// Retriever answers a query with ranked chunks plus graph context.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) (RetrievalResult, error)
}

// RetrieverOption configures a GraphRetriever.
type RetrieverOption func(*retrieverConfig)

type retrieverConfig struct {
	neighborFanOut int
	logger         *slog.Logger
}

// WithNeighborFanOut caps how many relationship edges per direction are
// followed when expanding each seed entity. Default is 3.
func WithNeighborFanOut(n int) RetrieverOption {
	return func(c *retrieverConfig) { c.neighborFanOut = n }
}

// WithRetrieverLogger sets a structured logger for degraded stages.
func WithRetrieverLogger(l *slog.Logger) RetrieverOption {
	return func(c *retrieverConfig) { c.logger = l }
}

// GraphRetriever combines nearest-neighbor vector search over chunks with
// breadth-first local expansion of the entity graph. It does not attempt
// global relevance ranking across entities: seeds come first in discovery
// order, then their neighbors.
type GraphRetriever struct {
	store    Store
	embedder Embedder
	cfg      retrieverConfig
}

var _ Retriever = (*GraphRetriever)(nil)

// NewGraphRetriever creates a Retriever over the given store. The embedder
// is used for the single query embedding (purpose retrieval, cache-checked
// like any other text).
func NewGraphRetriever(store Store, embedder Embedder, opts ...RetrieverOption) *GraphRetriever {
	cfg := retrieverConfig{neighborFanOut: 3}
	for _, o := range opts {
		o(&cfg)
	}
	return &GraphRetriever{store: store, embedder: embedder, cfg: cfg}
}

// Retrieve embeds the query, ranks chunks by cosine similarity, seeds
// entities whose name literally appears in the query, expands one hop of
// neighbors per seed, and renders the edges among the resulting set.
//
// A query-embedding failure returns an empty result and no error:
// retrieval augments a user-facing response and must never block it.
func (r *GraphRetriever) Retrieve(ctx context.Context, query string, topK int) (RetrievalResult, error) {
	embs, err := r.embedder.EmbedTexts(ctx, []string{query}, PurposeRetrieval)
	if err != nil || len(embs) == 0 || embs[0] == nil {
		if r.cfg.logger != nil {
			r.cfg.logger.Warn("retrieve: query embedding failed, returning empty result", "err", err)
		}
		return RetrievalResult{}, nil
	}

	chunks, err := r.store.SearchChunks(ctx, embs[0], topK)
	if err != nil {
		return RetrievalResult{}, fmt.Errorf("vector search: %w", err)
	}

	entities, edges := r.expandGraph(ctx, query)

	return RetrievalResult{
		Chunks:       chunks,
		Entities:     entities,
		GraphContext: renderGraphContext(entities, edges),
	}, nil
}

// expandGraph seeds entities by literal name match against the query, then
// adds each seed's direct neighbors. Graph errors degrade to a smaller set;
// they never fail the query.
func (r *GraphRetriever) expandGraph(ctx context.Context, query string) ([]Entity, []Relationship) {
	seeds, err := r.store.MatchEntities(ctx, query)
	if err != nil {
		if r.cfg.logger != nil {
			r.cfg.logger.Warn("retrieve: entity match failed", "err", err)
		}
		return nil, nil
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	// Seeds first in input order, then neighbors in discovery order.
	seen := make(map[string]bool, len(seeds))
	entities := make([]Entity, 0, len(seeds))
	for _, s := range seeds {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		entities = append(entities, s)
	}

	var neighborIDs []string
	for _, s := range seeds {
		rels, err := r.store.GetNeighborEdges(ctx, s.ID, r.cfg.neighborFanOut)
		if err != nil {
			if r.cfg.logger != nil {
				r.cfg.logger.Warn("retrieve: neighbor expansion failed", "entity", s.Name, "err", err)
			}
			continue
		}
		for _, rel := range rels {
			for _, id := range []string{rel.SourceID, rel.TargetID} {
				if !seen[id] {
					seen[id] = true
					neighborIDs = append(neighborIDs, id)
				}
			}
		}
	}

	if len(neighborIDs) > 0 {
		neighbors, err := r.store.GetEntitiesByIDs(ctx, neighborIDs)
		if err == nil {
			// Preserve discovery order.
			byID := make(map[string]Entity, len(neighbors))
			for _, n := range neighbors {
				byID[n.ID] = n
			}
			for _, id := range neighborIDs {
				if n, ok := byID[id]; ok {
					entities = append(entities, n)
				}
			}
		} else if r.cfg.logger != nil {
			r.cfg.logger.Warn("retrieve: neighbor fetch failed", "err", err)
		}
	}

	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	edges, err := r.store.GetRelationshipsAmong(ctx, ids)
	if err != nil {
		if r.cfg.logger != nil {
			r.cfg.logger.Warn("retrieve: edge fetch failed", "err", err)
		}
		edges = nil
	}

	return entities, edges
}

// renderGraphContext renders edges whose endpoints are both in the entity
// set as "Source --[type]--> Target" lines, one per edge.
func renderGraphContext(entities []Entity, edges []Relationship) string {
	if len(edges) == 0 {
		return ""
	}
	names := make(map[string]string, len(entities))
	for _, e := range entities {
		names[e.ID] = e.Name
	}

	var b strings.Builder
	for _, rel := range edges {
		src, okS := names[rel.SourceID]
		dst, okT := names[rel.TargetID]
		if !okS || !okT {
			continue
		}
		fmt.Fprintf(&b, "%s --[%s]--> %s\n", src, rel.RelType, dst)
	}
	return strings.TrimRight(b.String(), "\n")
}
