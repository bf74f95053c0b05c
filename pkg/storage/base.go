// Package storage defines the persistent store contract for the brain graph:
// content nodes with decay metadata, chunks, taxonomy categories, graph edges,
// embeddings, node scores, and the interaction signal log.
//
// All SQL backends (SQLite, PostgreSQL, MySQL) implement the Store interface.
// Record types are defined here so that backends do not depend on the core
// package.
package storage

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by all backends.
var (
	// ErrNotFound indicates that a referenced node, chunk, category, or model
	// does not exist in the store.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate indicates a uniqueness violation (e.g. an edge that
	// already exists).
	ErrDuplicate = errors.New("duplicate record")

	// ErrLexicalUnsupported is returned by SearchLexical on backends without
	// a native full-text ranking engine. Callers fall back to the
	// token-overlap lexical engine.
	ErrLexicalUnsupported = errors.New("lexical search not supported by this backend")

	// ErrDimensionMismatch indicates that an embedding vector's dimension
	// does not match the registered model dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// NodeType enumerates the kinds of content a node can hold.
type NodeType string

const (
	NodeDocument     NodeType = "document"
	NodeNote         NodeType = "note"
	NodeArticle      NodeType = "article"
	NodeWebpage      NodeType = "webpage"
	NodeBook         NodeType = "book"
	NodeEmail        NodeType = "email"
	NodeConversation NodeType = "conversation"
	NodeCode         NodeType = "code"
	NodeImage        NodeType = "image"
	NodePhoto        NodeType = "photo"
	NodeScreenshot   NodeType = "screenshot"
	NodeVideo        NodeType = "video"
	NodeAudio        NodeType = "audio"
	NodePerson       NodeType = "person"
	NodeEvent        NodeType = "event"
	NodeProject      NodeType = "project"
	NodeLocation     NodeType = "location"
	NodeOrganization NodeType = "organization"
	NodeTask         NodeType = "task"
	NodeSynthesis    NodeType = "synthesis"
)

// DecayConfig controls how a node's relevance decays over time.
type DecayConfig struct {
	// Method is the decay method tag (currently always "exponential").
	Method string `json:"method"`

	// HalfLifeDays is an explicit half-life override in days. When nil, the
	// half-life is derived from the node's highest-confidence taxonomy
	// category. Must be > 0 when set.
	HalfLifeDays *float64 `json:"half_life_days,omitempty"`

	// BaselineRelevance is the relevance of a freshly created node (0-1).
	BaselineRelevance float64 `json:"baseline_relevance"`

	// MinRelevance is the floor below which a decay score never drops.
	// Must be <= BaselineRelevance.
	MinRelevance float64 `json:"min_relevance"`
}

// UsageStats accumulates access activity for a node.
//
// AccessCount and the window counters only ever increase through
// TrackAccess; the window counters are strictly accumulating (no periodic
// roll-over happens in this core).
type UsageStats struct {
	AccessCount  int64      `json:"access_count"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	Last7Days    int64      `json:"last_7_days"`
	Last30Days   int64      `json:"last_30_days"`
	Last90Days   int64      `json:"last_90_days"`
}

// Supersession records directed "replaces" relationships for a node.
type Supersession struct {
	// SupersededBy lists nodes that replace this one.
	SupersededBy []string `json:"superseded_by"`

	// Supersedes lists nodes this one replaces.
	Supersedes []string `json:"supersedes"`
}

// Lifecycle holds one-way state flags. MarkedObsolete and Archived are never
// cleared by these components.
type Lifecycle struct {
	MarkedObsolete bool    `json:"marked_obsolete"`
	ObsoleteReason *string `json:"obsolete_reason,omitempty"`
	Archived       bool    `json:"archived"`
}

// DecayMetadata is the structured record every node owns exactly once.
// Its sub-sections are mutated by different components: UsageStats by the
// signal tracker, Supersession and Lifecycle.MarkedObsolete by the
// supersession manager.
type DecayMetadata struct {
	DecayConfig  DecayConfig  `json:"decay_config"`
	UsageStats   UsageStats   `json:"usage_stats"`
	Supersession Supersession `json:"supersession"`
	Lifecycle    Lifecycle    `json:"lifecycle"`
}

// DefaultDecayMetadata returns the decay metadata assigned to new nodes:
// exponential decay, baseline 1.0, floor 0.1, no usage, no supersession.
func DefaultDecayMetadata() DecayMetadata {
	return DecayMetadata{
		DecayConfig: DecayConfig{
			Method:            "exponential",
			BaselineRelevance: 1.0,
			MinRelevance:      0.1,
		},
	}
}

// Node is a unit of stored content: a document, media item, person, event,
// and so on.
type Node struct {
	// ID is a ULID-style string identifier supplied by the caller.
	ID string `json:"id"`

	// Type is one of the NodeType enumeration values.
	Type NodeType `json:"type"`

	Title       string `json:"title"`
	TextContent string `json:"text_content,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	AudioURL    string `json:"audio_url,omitempty"`
	VideoURL    string `json:"video_url,omitempty"`

	// Metadata holds free-form attributes outside the decay system.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Decay is the structured decay record. Every node has exactly one.
	Decay DecayMetadata `json:"decay_metadata"`

	// Synthesis carries extra attributes for derived/meta nodes.
	Synthesis map[string]interface{} `json:"synthesis_metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Category is a hierarchical taxonomy node.
type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"` // slash separated, e.g. "tech/programming/go"
	Level    int    `json:"level"`
	ParentID *int64 `json:"parent_id,omitempty"`

	// TopicImportance, ChangeVelocity, and UsageFocus are 1-10 ratings.
	// ChangeVelocity drives the default half-life bucket.
	TopicImportance int `json:"topic_importance"`
	ChangeVelocity  int `json:"change_velocity"`
	UsageFocus      int `json:"usage_focus"`

	Keywords  []string  `json:"keywords,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CategoryAssignment links a node to a taxonomy category with a confidence.
type CategoryAssignment struct {
	NodeID     string    `json:"node_id"`
	CategoryID int64     `json:"category_id"`
	Confidence float64   `json:"confidence"` // 0-1
	AssignedBy string    `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
}

// ScoreType identifies what a stored node score measures.
type ScoreType string

// ScoreDecay is the score type written by the decay engine.
const ScoreDecay ScoreType = "decay"

// NodeScore is a (node, score type, model name) keyed value with expiry.
type NodeScore struct {
	NodeID     string    `json:"node_id"`
	ScoreType  ScoreType `json:"score_type"`
	ModelName  string    `json:"model_name"`
	Score      float64   `json:"score"`
	ComputedAt time.Time `json:"computed_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Modality of an embedding model.
type Modality string

const (
	ModalityText   Modality = "text"
	ModalityVision Modality = "vision"
	ModalityAudio  Modality = "audio"
)

// EmbeddingModel describes a registered embedding model and its fixed
// output dimension.
type EmbeddingModel struct {
	Name      string   `json:"model_name"`
	Modality  Modality `json:"modality"`
	Dimension int      `json:"dimension"`
	Active    bool     `json:"is_active"`
}

// Embedding is a stored vector for a node or chunk, keyed by
// (owner, modality, model, source part).
type Embedding struct {
	ID        int64    `json:"id"`
	NodeID    string   `json:"node_id"`
	ChunkID   *string  `json:"chunk_id,omitempty"`
	Modality  Modality `json:"modality"`
	ModelName string   `json:"model_name"`

	// SourcePart names which part of the content the vector represents:
	// node-level "full", "title", "summary"; chunk-level "chunk:content",
	// "chunk:summary".
	SourcePart string `json:"source_part"`

	Vector       []float64  `json:"embedding"`
	ContentHash  string     `json:"content_hash,omitempty"`
	GeneratedAt  time.Time  `json:"generated_at"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
}

// Chunk is an ordered sub-unit of a node's content used for fine-grained
// retrieval. Position orders chunks within their node; adjacency follows
// position.
type Chunk struct {
	ID       string `json:"id"`
	NodeID   string `json:"node_id"`
	Position int    `json:"position"`
	Content  string `json:"content"`
	Summary  string `json:"summary,omitempty"`
}

// EdgeSupersedes is the edge type written by the supersession manager.
const EdgeSupersedes = "SUPERSEDES"

// Edge is a directed typed relation between two nodes.
type Edge struct {
	ID         int64                  `json:"id"`
	SourceID   string                 `json:"source_id"`
	TargetID   string                 `json:"target_id"`
	Type       string                 `json:"edge_type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	CreatedBy  string                 `json:"created_by"` // "user" or "system"
	CreatedAt  time.Time              `json:"created_at"`
}

// SignalView is the signal type recorded for node accesses.
const SignalView = "view"

// Signal is an append-only interaction record.
type Signal struct {
	ID         int64     `json:"id"`
	NodeID     string    `json:"node_id"`
	Type       string    `json:"signal_type"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Granularity selects the retrieval unit for search operations.
type Granularity string

const (
	GranularityNode  Granularity = "node"
	GranularityChunk Granularity = "chunk"
)

// LexicalHit is a full-text match with a backend-normalized relevance score
// in [0, 1] (best hit in the result set scores 1.0).
type LexicalHit struct {
	ID    string // node ID or chunk ID depending on granularity
	Score float64
}

// VectorHit is a nearest-neighbor match ordered ascending by cosine distance.
type VectorHit struct {
	ID       string // node ID or chunk ID depending on granularity
	Distance float64
}

// LexicalOptions configures SearchLexical.
type LexicalOptions struct {
	Granularity Granularity
	Types       []NodeType // node-type filter; empty means all
	Language    string     // hint for text-search configuration, default "en"
	Limit       int
}

// VectorOptions configures SearchVector.
type VectorOptions struct {
	Granularity Granularity
	ModelName   string
	SourceParts []string // restrict to these source-part categories
	Types       []NodeType
	Limit       int
}

// ListOptions paginates ListNodes.
type ListOptions struct {
	Type   NodeType // zero value means all types
	Limit  int
	Offset int
}

// EdgeFilter narrows ListEdges.
type EdgeFilter struct {
	SourceID string
	TargetID string
	NodeID   string // matches either endpoint
	Type     string
	Limit    int
}

// NodeBrief is the metadata joined onto node-level search results.
type NodeBrief struct {
	ID    string
	Type  NodeType
	Title string
}

// ChunkBrief is the metadata joined onto chunk-level search results.
type ChunkBrief struct {
	ChunkID   string
	NodeID    string
	NodeTitle string
	Content   string
	Summary   string
}

// TextDoc is a raw text record consumed by the token-overlap lexical engine
// on backends without native full-text ranking.
type TextDoc struct {
	ID   string // node ID or chunk ID depending on granularity
	Text string
}

// Store is the persistent store contract.
//
// Implementations must provide the atomicity guarantees the components rely
// on: TrackAccess serializes the read-modify-write of a node's usage stats,
// and Supersede commits its writes to both nodes, the edge, and the score
// invalidation as one transaction. Reads may run fully concurrently with
// writers under the engine's own snapshot isolation.
type Store interface {
	// Nodes.
	CreateNode(ctx context.Context, node *Node) error
	GetNode(ctx context.Context, id string) (*Node, error)
	ListNodes(ctx context.Context, opts *ListOptions) ([]*Node, error)
	// ListActiveNodeIDs returns the IDs of all non-archived nodes, the
	// population for batch decay recomputation.
	ListActiveNodeIDs(ctx context.Context) ([]string, error)
	DeleteNode(ctx context.Context, id string) error
	// NodeBriefs resolves (type, title) for a set of node IDs. Missing IDs
	// are simply absent from the result.
	NodeBriefs(ctx context.Context, ids []string) (map[string]NodeBrief, error)

	// Taxonomy.
	CreateCategory(ctx context.Context, cat *Category) error
	AssignCategory(ctx context.Context, a *CategoryAssignment) error
	// TopCategory returns the highest-confidence category assigned to the
	// node, or (nil, 0, nil) when the node has no assignment.
	TopCategory(ctx context.Context, nodeID string) (*Category, float64, error)

	// Usage tracking. TrackAccess atomically increments the node's usage
	// counters, sets last_accessed, appends a view signal, and touches
	// last_accessed on the node's embeddings.
	TrackAccess(ctx context.Context, nodeID string, at time.Time) error
	DeleteSignalsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountSignals(ctx context.Context, nodeID string) (int64, error)

	// Supersession. Supersede appends newID to oldID's superseded_by set,
	// marks oldID obsolete, appends oldID to newID's supersedes set, creates
	// the SUPERSEDES edge new->old (no-op when present), and deletes stored
	// decay scores for both nodes, all in one transaction. Returns
	// ErrNotFound without partial writes when either node is missing.
	Supersede(ctx context.Context, oldID, newID, reason string, at time.Time) error

	// Scores.
	UpsertScore(ctx context.Context, score *NodeScore) error
	GetScore(ctx context.Context, nodeID string, st ScoreType, model string) (*NodeScore, error)
	// CurrentScores resolves unexpired scores of the given type for a set of
	// node IDs. Nodes without a live score are absent from the result.
	CurrentScores(ctx context.Context, ids []string, st ScoreType, now time.Time) (map[string]float64, error)
	DeleteExpiredScores(ctx context.Context, now time.Time) (int64, error)

	// Edges. CreateEdge returns ErrDuplicate when an identical
	// (source, target, type) edge already exists.
	CreateEdge(ctx context.Context, edge *Edge) error
	ListEdges(ctx context.Context, f *EdgeFilter) ([]*Edge, error)

	// Embedding models and vectors. StoreEmbedding validates the vector
	// dimension against the registered model and returns
	// ErrDimensionMismatch on disagreement.
	RegisterModel(ctx context.Context, m *EmbeddingModel) error
	GetModel(ctx context.Context, name string) (*EmbeddingModel, error)
	StoreEmbedding(ctx context.Context, e *Embedding) error

	// Chunks.
	CreateChunk(ctx context.Context, chunk *Chunk) error
	GetChunk(ctx context.Context, id string) (*Chunk, error)
	// AdjacentChunks returns up to n chunks preceding and following the
	// given chunk within its node, ordered by position.
	AdjacentChunks(ctx context.Context, chunkID string, n int) (before, after []*Chunk, err error)
	ChunkBriefs(ctx context.Context, ids []string) (map[string]ChunkBrief, error)

	// Retrieval.
	SearchLexical(ctx context.Context, query string, opts *LexicalOptions) ([]LexicalHit, error)
	SearchVector(ctx context.Context, vector []float64, opts *VectorOptions) ([]VectorHit, error)
	// ListTexts feeds the token-overlap fallback engine with raw candidate
	// text at the requested granularity.
	ListTexts(ctx context.Context, g Granularity, types []NodeType) ([]TextDoc, error)

	Close() error
}
