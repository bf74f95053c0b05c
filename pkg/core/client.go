package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/braingraph/braingraph-go/pkg/decay"
	"github.com/braingraph/braingraph-go/pkg/embedder"
	hashEmbedder "github.com/braingraph/braingraph-go/pkg/embedder/hash"
	openaiEmbedder "github.com/braingraph/braingraph-go/pkg/embedder/openai"
	qwenEmbedder "github.com/braingraph/braingraph-go/pkg/embedder/qwen"
	"github.com/braingraph/braingraph-go/pkg/modelselect"
	"github.com/braingraph/braingraph-go/pkg/search"
	"github.com/braingraph/braingraph-go/pkg/signals"
	"github.com/braingraph/braingraph-go/pkg/storage"
	mysqlStore "github.com/braingraph/braingraph-go/pkg/storage/mysql"
	postgresStore "github.com/braingraph/braingraph-go/pkg/storage/postgres"
	sqliteStore "github.com/braingraph/braingraph-go/pkg/storage/sqlite"
	"github.com/braingraph/braingraph-go/pkg/supersession"
)

// Client is the main brain graph client.
//
// It manages content nodes and their chunks, taxonomy categories, typed
// edges, multi-model embeddings, decay scores, interaction signals,
// supersession relationships, and hybrid search over all of it.
//
// The client is thread-safe and can be used concurrently from multiple
// goroutines.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	client, _ := core.NewClient(config)
//	defer client.Close()
//
//	node := &storage.Node{ID: "01J...", Type: storage.NodeNote, Title: "Go tips"}
//	_ = client.CreateNode(ctx, node)
//	results, _ := client.SearchNodes(ctx, &search.Request{Query: "go tips", Alpha: 0.5, Limit: 10})
type Client struct {
	// config contains the client configuration.
	config *Config

	// store is the relational backend holding the graph.
	store storage.Store

	// embedder is the embedding provider for vector generation.
	embedder embedder.Provider

	// engine computes and persists decay scores.
	engine *decay.Engine

	// tracker records access signals.
	tracker *signals.Tracker

	// superseder manages replacement relationships.
	superseder *supersession.Manager

	// ranker performs hybrid search.
	ranker *search.Ranker

	// snowflakeNode generates unique IDs for edges and embeddings.
	snowflakeNode *snowflake.Node
}

// NewClient creates a new brain graph client.
//
// The client is initialized with:
//   - Storage backend (SQLite, PostgreSQL, or MySQL)
//   - Embedding provider (OpenAI-compatible endpoint, or the deterministic
//     hash fallback)
//   - Decay engine, signal tracker, supersession manager, hybrid ranker
//
// The lexical engine follows the backend: store-native full-text ranking
// where the backend has it, token-overlap matching otherwise. The built-in
// embedding model registry is seeded into the store on startup.
//
// Parameters:
//   - cfg: Configuration containing store and embedder settings
//
// Returns a new Client instance, or an error if initialization fails.
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := initStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	provider, err := initEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewGraphError("NewClient", err)
	}

	var engineOpts []decay.Option
	if cfg.Decay != nil && cfg.Decay.Interval > 0 {
		engineOpts = append(engineOpts, decay.WithInterval(cfg.Decay.Interval))
	}

	lexical := chooseLexical(store)

	client := &Client{
		config:        cfg,
		store:         store,
		embedder:      provider,
		engine:        decay.NewEngine(store, engineOpts...),
		tracker:       signals.NewTracker(store),
		superseder:    supersession.NewManager(store),
		ranker:        search.NewRanker(store, lexical, provider),
		snowflakeNode: node,
	}

	if err := client.registerBuiltinModels(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

// registerBuiltinModels seeds the embedding model registry.
func (c *Client) registerBuiltinModels(ctx context.Context) error {
	for _, m := range modelselect.Models() {
		model := m
		if err := c.store.RegisterModel(ctx, &model); err != nil {
			return NewGraphError("NewClient", err)
		}
	}
	return nil
}

// chooseLexical probes the backend for native full-text ranking and falls
// back to the token-overlap engine when it reports ErrLexicalUnsupported
// (MySQL, or a SQLite build without FTS5).
func chooseLexical(store storage.Store) search.Lexical {
	_, err := store.SearchLexical(context.Background(), "probe", &storage.LexicalOptions{Limit: 1})
	if errors.Is(err, storage.ErrLexicalUnsupported) {
		return search.NewTokenOverlap(store)
	}
	return search.NewStoreLexical(store)
}

// initStore creates the storage backend from configuration.
func initStore(cfg StoreConfig) (storage.Store, error) {
	switch cfg.Provider {
	case "sqlite":
		return sqliteStore.NewClient(&sqliteStore.Config{
			DBPath: getStringConfig(cfg.Config, "db_path", "./braingraph.db"),
		})
	case "postgres":
		return postgresStore.NewClient(&postgresStore.Config{
			Host:     getStringConfig(cfg.Config, "host", "localhost"),
			Port:     getIntConfig(cfg.Config, "port", 5432),
			User:     getStringConfig(cfg.Config, "user", "postgres"),
			Password: getStringConfig(cfg.Config, "password", ""),
			DBName:   getStringConfig(cfg.Config, "db_name", "braingraph"),
			SSLMode:  getStringConfig(cfg.Config, "ssl_mode", "disable"),
		})
	case "mysql":
		return mysqlStore.NewClient(&mysqlStore.Config{
			Host:     getStringConfig(cfg.Config, "host", "127.0.0.1"),
			Port:     getIntConfig(cfg.Config, "port", 3306),
			User:     getStringConfig(cfg.Config, "user", "root"),
			Password: getStringConfig(cfg.Config, "password", ""),
			DBName:   getStringConfig(cfg.Config, "db_name", "braingraph"),
		})
	default:
		return nil, NewGraphError("NewClient",
			fmt.Errorf("%w: unknown store provider %q", ErrInvalidConfig, cfg.Provider))
	}
}

// initEmbedder creates the embedding provider from configuration.
func initEmbedder(cfg EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	case "qwen":
		return qwenEmbedder.NewClient(&qwenEmbedder.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	case "hash":
		dims := cfg.Dimensions
		if dims <= 0 {
			dims = 768
		}
		return hashEmbedder.NewProvider(dims), nil
	default:
		return nil, NewGraphError("NewClient",
			fmt.Errorf("%w: unknown embedder provider %q", ErrInvalidConfig, cfg.Provider))
	}
}

// CreateNode stores a new content node. Nodes created without decay metadata
// get the defaults (exponential decay, baseline 1.0, floor 0.1).
func (c *Client) CreateNode(ctx context.Context, node *storage.Node) error {
	if node == nil || node.ID == "" || node.Type == "" {
		return NewGraphError("CreateNode", ErrInvalidInput)
	}
	if err := c.store.CreateNode(ctx, node); err != nil {
		return NewGraphError("CreateNode", err)
	}
	return nil
}

// GetNode loads a node and records the access: the node's usage counters are
// incremented and a view signal is appended.
func (c *Client) GetNode(ctx context.Context, id string) (*storage.Node, error) {
	node, err := c.store.GetNode(ctx, id)
	if err != nil {
		return nil, NewGraphError("GetNode", err)
	}
	if err := c.tracker.TrackAccess(ctx, id); err != nil {
		return nil, NewGraphError("GetNode", err)
	}
	return node, nil
}

// PeekNode loads a node without recording an access.
func (c *Client) PeekNode(ctx context.Context, id string) (*storage.Node, error) {
	node, err := c.store.GetNode(ctx, id)
	if err != nil {
		return nil, NewGraphError("PeekNode", err)
	}
	return node, nil
}

// ListNodes returns nodes newest first, optionally filtered by type.
func (c *Client) ListNodes(ctx context.Context, opts *storage.ListOptions) ([]*storage.Node, error) {
	nodes, err := c.store.ListNodes(ctx, opts)
	if err != nil {
		return nil, NewGraphError("ListNodes", err)
	}
	return nodes, nil
}

// DeleteNode removes a node along with its chunks, embeddings, scores,
// signals, and edges.
func (c *Client) DeleteNode(ctx context.Context, id string) error {
	if err := c.store.DeleteNode(ctx, id); err != nil {
		return NewGraphError("DeleteNode", err)
	}
	return nil
}

// CreateChunk stores an ordered content chunk under its node.
func (c *Client) CreateChunk(ctx context.Context, chunk *storage.Chunk) error {
	if chunk == nil || chunk.ID == "" || chunk.NodeID == "" {
		return NewGraphError("CreateChunk", ErrInvalidInput)
	}
	if err := c.store.CreateChunk(ctx, chunk); err != nil {
		return NewGraphError("CreateChunk", err)
	}
	return nil
}

// CreateEdge stores a directed typed edge between two nodes. The edge ID is
// generated; CreatedBy defaults to "user".
func (c *Client) CreateEdge(ctx context.Context, edge *storage.Edge) error {
	if edge == nil || edge.SourceID == "" || edge.TargetID == "" || edge.Type == "" {
		return NewGraphError("CreateEdge", ErrInvalidInput)
	}
	if edge.ID == 0 {
		edge.ID = c.snowflakeNode.Generate().Int64()
	}
	if edge.CreatedBy == "" {
		edge.CreatedBy = "user"
	}
	if err := c.store.CreateEdge(ctx, edge); err != nil {
		return NewGraphError("CreateEdge", err)
	}
	return nil
}

// ListEdges returns edges matching the filter.
func (c *Client) ListEdges(ctx context.Context, f *storage.EdgeFilter) ([]*storage.Edge, error) {
	edges, err := c.store.ListEdges(ctx, f)
	if err != nil {
		return nil, NewGraphError("ListEdges", err)
	}
	return edges, nil
}

// CreateCategory adds a taxonomy category.
func (c *Client) CreateCategory(ctx context.Context, cat *storage.Category) error {
	if cat == nil || cat.Path == "" {
		return NewGraphError("CreateCategory", ErrInvalidInput)
	}
	if err := c.store.CreateCategory(ctx, cat); err != nil {
		return NewGraphError("CreateCategory", err)
	}
	return nil
}

// AssignCategory links a node to a taxonomy category with a confidence.
// The node's decay half-life follows its highest-confidence category.
func (c *Client) AssignCategory(ctx context.Context, a *storage.CategoryAssignment) error {
	if a == nil || a.NodeID == "" || a.CategoryID == 0 {
		return NewGraphError("AssignCategory", ErrInvalidInput)
	}
	if err := c.store.AssignCategory(ctx, a); err != nil {
		return NewGraphError("AssignCategory", err)
	}
	return nil
}

// EmbedAndStore generates an embedding for the text with the configured
// provider and stores it under the given node, model, and source part.
func (c *Client) EmbedAndStore(ctx context.Context, nodeID, modelName, sourcePart, text string) error {
	vector, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return NewGraphError("EmbedAndStore", fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
	}
	return c.StoreEmbedding(ctx, &storage.Embedding{
		NodeID:     nodeID,
		ModelName:  modelName,
		SourcePart: sourcePart,
		Vector:     vector,
	})
}

// StoreEmbedding stores a pre-computed vector. The embedding ID is generated
// and the modality is inferred from the registered model when unset.
func (c *Client) StoreEmbedding(ctx context.Context, e *storage.Embedding) error {
	if e == nil || e.NodeID == "" || e.ModelName == "" || e.SourcePart == "" {
		return NewGraphError("StoreEmbedding", ErrInvalidInput)
	}
	if e.ID == 0 {
		e.ID = c.snowflakeNode.Generate().Int64()
	}
	if e.Modality == "" {
		model, err := c.store.GetModel(ctx, e.ModelName)
		if err != nil {
			return NewGraphError("StoreEmbedding", err)
		}
		e.Modality = model.Modality
	}
	if err := c.store.StoreEmbedding(ctx, e); err != nil {
		return NewGraphError("StoreEmbedding", err)
	}
	return nil
}

// ModelsForType returns the recommended embedding models for a node type, in
// priority order.
func (c *Client) ModelsForType(t storage.NodeType) []modelselect.Recommendation {
	return modelselect.ModelsFor(t)
}

// ComputeDecayScore computes the node's current decay score without storing
// it.
func (c *Client) ComputeDecayScore(ctx context.Context, nodeID string) (float64, error) {
	score, err := c.engine.ScoreNode(ctx, nodeID, time.Now())
	if err != nil {
		return 0, NewGraphError("ComputeDecayScore", err)
	}
	return score, nil
}

// RecomputeDecayScores recomputes and stores decay scores for every
// non-archived node. Individual node failures are skipped and counted.
func (c *Client) RecomputeDecayScores(ctx context.Context) (*decay.BatchResult, error) {
	result, err := c.engine.RecomputeAll(ctx)
	if err != nil {
		return result, NewGraphError("RecomputeDecayScores", err)
	}
	return result, nil
}

// StartDecayLoop launches the background score recomputation loop.
func (c *Client) StartDecayLoop() { c.engine.Start() }

// StopDecayLoop stops the background loop and waits for it to exit.
func (c *Client) StopDecayLoop() { c.engine.Stop() }

// TrackAccess records an access to a node: usage counters, last-accessed
// timestamps, and the signal log are all updated atomically.
func (c *Client) TrackAccess(ctx context.Context, nodeID string) error {
	if err := c.tracker.TrackAccess(ctx, nodeID); err != nil {
		return NewGraphError("TrackAccess", err)
	}
	return nil
}

// CleanupOldSignals deletes signal log entries older than daysToKeep days
// (90 when daysToKeep <= 0) and returns how many were removed. Aggregated
// usage counters on the nodes are unaffected.
func (c *Client) CleanupOldSignals(ctx context.Context, daysToKeep int) (int64, error) {
	removed, err := c.tracker.CleanupOldSignals(ctx, daysToKeep)
	if err != nil {
		return removed, NewGraphError("CleanupOldSignals", err)
	}
	return removed, nil
}

// MarkSuperseded records that newID replaces oldID: the old node is marked
// obsolete, both nodes' supersession sets are updated, a SUPERSEDES edge is
// created, and stored decay scores for both nodes are invalidated, all
// atomically.
func (c *Client) MarkSuperseded(ctx context.Context, oldID, newID, reason string) error {
	if err := c.superseder.MarkSuperseded(ctx, oldID, newID, reason); err != nil {
		return NewGraphError("MarkSuperseded", err)
	}
	return nil
}

// IsSuperseded reports whether any node replaces the given one.
func (c *Client) IsSuperseded(ctx context.Context, nodeID string) (bool, error) {
	superseded, err := c.superseder.IsSuperseded(ctx, nodeID)
	if err != nil {
		return false, NewGraphError("IsSuperseded", err)
	}
	return superseded, nil
}

// Replacements returns the IDs of nodes that replace the given one.
func (c *Client) Replacements(ctx context.Context, nodeID string) ([]string, error) {
	ids, err := c.superseder.Replacements(ctx, nodeID)
	if err != nil {
		return nil, NewGraphError("Replacements", err)
	}
	return ids, nil
}

// SearchNodes runs a hybrid node-level search. Accesses to the returned
// nodes are tracked best effort: a tracking failure never fails the search.
func (c *Client) SearchNodes(ctx context.Context, req *search.Request) ([]*search.Result, error) {
	c.applySearchDefaults(req)
	results, err := c.ranker.SearchNodes(ctx, req)
	if err != nil {
		return nil, NewGraphError("SearchNodes", err)
	}
	for _, res := range results {
		_ = c.tracker.TrackAccess(ctx, res.NodeID)
	}
	return results, nil
}

// SearchChunks runs a hybrid chunk-level search. Accesses to the owning
// nodes are tracked best effort, once per distinct node.
func (c *Client) SearchChunks(ctx context.Context, req *search.Request) ([]*search.Result, error) {
	c.applySearchDefaults(req)
	results, err := c.ranker.SearchChunks(ctx, req)
	if err != nil {
		return nil, NewGraphError("SearchChunks", err)
	}
	seen := make(map[string]bool)
	for _, res := range results {
		if res.NodeID != "" && !seen[res.NodeID] {
			seen[res.NodeID] = true
			_ = c.tracker.TrackAccess(ctx, res.NodeID)
		}
	}
	return results, nil
}

// ChunkWithContext loads a chunk together with up to n preceding and
// following chunks of its node.
func (c *Client) ChunkWithContext(ctx context.Context, chunkID string, n int) (*search.Result, error) {
	res, err := c.ranker.ChunkWithContext(ctx, chunkID, n)
	if err != nil {
		return nil, NewGraphError("ChunkWithContext", err)
	}
	return res, nil
}

// applySearchDefaults fills zero-valued request fields from the configured
// search settings.
func (c *Client) applySearchDefaults(req *search.Request) {
	if req == nil {
		return
	}
	settings := c.config.Search
	if req.Limit == 0 {
		if settings != nil && settings.Limit > 0 {
			req.Limit = settings.Limit
		} else {
			req.Limit = 10
		}
	}
	if req.Alpha == 0 && strings.TrimSpace(req.Query) != "" && settings != nil && settings.Alpha > 0 {
		req.Alpha = settings.Alpha
	}
	if req.ContextSize == 0 && settings != nil && settings.ContextSize > 0 {
		req.ContextSize = settings.ContextSize
	}
}

// Close releases the client's resources: the background decay loop, the
// embedding provider, and the storage backend.
func (c *Client) Close() error {
	c.engine.Stop()
	if c.embedder != nil {
		_ = c.embedder.Close()
	}
	if err := c.store.Close(); err != nil {
		return NewGraphError("Close", err)
	}
	return nil
}
