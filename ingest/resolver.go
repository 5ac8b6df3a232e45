package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	lore "github.com/maretho/lore"
)

// ResolveStats summarizes one resolver pass for logs and callers.
type ResolveStats struct {
	EntitiesReused  int
	EntitiesCreated int
	Mentions        int
	Relationships   int
	DroppedEdges    int
}

// Resolver deduplicates extracted entities against the graph, creates the
// missing ones with graph-purpose embeddings, and records mention links
// and relationship edges for one document.
type Resolver struct {
	store    lore.Store
	embedder lore.Embedder
	logger   *slog.Logger
}

// NewResolver creates a Resolver. logger may be nil.
func NewResolver(store lore.Store, embedder lore.Embedder, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{store: store, embedder: embedder, logger: logger}
}

// Apply upserts the extraction results for one document whose chunks are
// already persisted. Entities are matched by exact (name, type); missing
// ones are embedded (purpose graph) and inserted with insert-if-absent so
// concurrent ingestions racing on the same entity converge on one row.
// Relationships whose endpoints cannot be resolved are dropped silently —
// extraction output routinely names entities it never listed.
//
// Extracted entities are linked to the document's first persisted chunk:
// extraction ran over document-level text, so there is no per-chunk
// position to anchor a mention to.
func (r *Resolver) Apply(ctx context.Context, doc lore.Document, chunks []lore.Chunk, ext lore.Extraction) (ResolveStats, error) {
	var stats ResolveStats
	if len(ext.Entities) == 0 {
		return stats, nil
	}

	// Resolve existing entities by natural key. resolved is keyed by the
	// full (name, type) pair: the same name under two types is two
	// entities, and each gets its own mention link. byName keeps the
	// first ID per name for relationship endpoints, which extraction
	// names without a type.
	type nameType struct{ name, typ string }
	resolved := make(map[nameType]string, len(ext.Entities)) // -> entity ID
	byName := make(map[string]string, len(ext.Entities))     // name -> entity ID
	var missing []lore.ExtractedEntity

	for _, ex := range ext.Entities {
		name := strings.TrimSpace(ex.Name)
		if name == "" {
			continue
		}
		existing, err := r.store.GetEntityByNameType(ctx, name, ex.Type)
		switch {
		case err == nil:
			stats.EntitiesReused++
			resolved[nameType{name, ex.Type}] = existing.ID
			if _, ok := byName[name]; !ok {
				byName[name] = existing.ID
			}
		case err == lore.ErrNotFound:
			missing = append(missing, ex)
		default:
			return stats, fmt.Errorf("lookup entity %q: %w", name, err)
		}
	}

	// Embed and insert the missing ones. Embedding gaps are tolerated:
	// an entity without a vector is still a valid graph node.
	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for i, ex := range missing {
			texts[i] = ex.Name + ": " + ex.Description
		}
		vectors, err := r.embedder.EmbedTexts(ctx, texts, lore.PurposeGraph)
		if err != nil {
			r.logger.Warn("entity embedding degraded", "document", doc.ID, "err", err)
		}

		for i, ex := range missing {
			e := lore.Entity{
				ID:          lore.NewID(),
				Name:        strings.TrimSpace(ex.Name),
				Type:        ex.Type,
				Description: ex.Description,
			}
			if vectors != nil {
				e.Embedding = vectors[i]
			}
			canonical, err := r.store.InsertEntityIfAbsent(ctx, e)
			if err != nil {
				return stats, fmt.Errorf("insert entity %q: %w", e.Name, err)
			}
			if canonical.ID == e.ID {
				stats.EntitiesCreated++
			} else {
				stats.EntitiesReused++
			}
			resolved[nameType{canonical.Name, canonical.Type}] = canonical.ID
			if _, ok := byName[canonical.Name]; !ok {
				byName[canonical.Name] = canonical.ID
			}
		}
	}

	// Mention links: every resolved entity against the first chunk.
	if len(chunks) > 0 {
		first := chunks[0]
		mentions := make([]lore.EntityMention, 0, len(resolved))
		for _, id := range resolved {
			mentions = append(mentions, lore.EntityMention{
				ID:         lore.NewID(),
				ChunkID:    first.ID,
				DocumentID: doc.ID,
				EntityID:   id,
			})
		}
		if err := r.store.PutMentions(ctx, mentions); err != nil {
			return stats, fmt.Errorf("store mentions: %w", err)
		}
		stats.Mentions = len(mentions)
	}

	// Relationship edges, endpoints resolved through the name map.
	var rels []lore.Relationship
	for _, ex := range ext.Relationships {
		srcID, okS := byName[strings.TrimSpace(ex.Source)]
		dstID, okT := byName[strings.TrimSpace(ex.Target)]
		if !okS || !okT {
			stats.DroppedEdges++
			continue
		}
		rels = append(rels, lore.Relationship{
			ID:          lore.NewID(),
			SourceID:    srcID,
			TargetID:    dstID,
			RelType:     ex.Type,
			Description: ex.Description,
			Weight:      1,
			DocumentID:  doc.ID,
		})
	}
	if len(rels) > 0 {
		if err := r.store.PutRelationships(ctx, rels); err != nil {
			return stats, fmt.Errorf("store relationships: %w", err)
		}
	}
	stats.Relationships = len(rels)

	if stats.DroppedEdges > 0 {
		r.logger.Debug("dropped unresolvable edges", "document", doc.ID, "dropped", stats.DroppedEdges)
	}
	return stats, nil
}
