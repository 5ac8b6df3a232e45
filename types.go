package lore

// --- Domain types (database records) ---

// DocStatus tracks a document through the ingestion state machine:
// pending -> processing -> completed | failed. A failed document is
// re-enterable through a fresh ingestion attempt, never auto-retried.
type DocStatus string

const (
	DocPending    DocStatus = "pending"
	DocProcessing DocStatus = "processing"
	DocCompleted  DocStatus = "completed"
	DocFailed     DocStatus = "failed"
)

// EmbedStatus marks whether a chunk has an embedding vector yet.
// Chunks persisted after a failed embedding batch stay pending.
type EmbedStatus string

const (
	EmbedPending EmbedStatus = "pending"
	Embedded     EmbedStatus = "embedded"
)

// Purpose distinguishes embeddings computed for entity/graph use from
// chunk/retrieval use. Vectors for different purposes are never shared,
// even for identical text.
type Purpose string

const (
	PurposeGraph     Purpose = "graph"
	PurposeRetrieval Purpose = "retrieval"
)

type Document struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Source         string    `json:"source"`
	Content        string    `json:"content"`
	ContentHash    string    `json:"content_hash"`
	Summary        string    `json:"summary,omitempty"`
	Status         DocStatus `json:"status"`
	EmbeddingModel string    `json:"embedding_model"`
	CreatedAt      int64     `json:"created_at"`
	UpdatedAt      int64     `json:"updated_at"`
}

type Chunk struct {
	ID          string      `json:"id"`
	DocumentID  string      `json:"document_id"`
	ChunkIndex  int         `json:"chunk_index"`
	Content     string      `json:"content"`
	ContentHash string      `json:"content_hash"`
	TokenCount  int         `json:"token_count"`
	Embedding   []float32   `json:"-"`
	EmbedStatus EmbedStatus `json:"embed_status"`
}

// Entity is a knowledge-graph node. The (Name, Type) pair is the natural
// key: the same name may exist under two types ("Python" the technology
// and "Python" the concept are distinct entities).
type Entity struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Embedding   []float32 `json:"-"`
}

// EntityMention links one chunk (and transitively its document) to one
// entity. Mentions are deleted with their document; entities are shared
// across documents and survive.
type EntityMention struct {
	ID         string `json:"id"`
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	EntityID   string `json:"entity_id"`
}

// Relationship is a directed edge between two entities. DocumentID is the
// document that asserted the edge; multiple documents may assert the same
// edge independently.
type Relationship struct {
	ID          string  `json:"id"`
	SourceID    string  `json:"source_id"`
	TargetID    string  `json:"target_id"`
	RelType     string  `json:"rel_type"`
	Description string  `json:"description,omitempty"`
	Weight      float32 `json:"weight"`
	DocumentID  string  `json:"document_id,omitempty"`
}

// ScoredChunk is a chunk with a similarity score in [0, 1].
type ScoredChunk struct {
	Chunk
	Score float32 `json:"score"`
}

// --- Extraction results (schema-validated provider output) ---

type ExtractedEntity struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type ExtractedRelationship struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Extraction is the validated output of the extraction provider. An empty
// Extraction is a legitimate result, not an error.
type Extraction struct {
	Entities      []ExtractedEntity       `json:"entities"`
	Relationships []ExtractedRelationship `json:"relationships"`
}

// --- LLM protocol types ---

type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}
