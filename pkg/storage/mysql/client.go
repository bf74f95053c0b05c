// Package mysql implements the graph store on MySQL (and MySQL-compatible
// engines such as OceanBase).
//
// Decay metadata lives in a JSON column and vectors in JSON arrays compared
// in memory. MySQL has no full-text ranking function compatible with the
// normalized-score contract, so SearchLexical reports
// storage.ErrLexicalUnsupported and callers use the token-overlap engine
// over ListTexts instead.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/braingraph/braingraph-go/pkg/storage"
)

// Client implements storage.Store on MySQL.
type Client struct {
	db *sql.DB
}

// Config contains MySQL configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// NewClient connects to MySQL and initializes the schema.
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}

	client := &Client{db: db}
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS nodes (
			id VARCHAR(64) PRIMARY KEY,
			type VARCHAR(32) NOT NULL,
			title TEXT NOT NULL,
			text_content LONGTEXT,
			image_url TEXT,
			audio_url TEXT,
			video_url TEXT,
			metadata JSON,
			decay_metadata JSON NOT NULL,
			synthesis_metadata JSON,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS taxonomy (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			name VARCHAR(255) NOT NULL,
			path VARCHAR(512) NOT NULL,
			level INT NOT NULL,
			parent_id BIGINT,
			topic_importance INT NOT NULL,
			change_velocity INT NOT NULL,
			usage_focus INT NOT NULL,
			keywords JSON,
			created_at DATETIME(6) NOT NULL,
			UNIQUE KEY uniq_taxonomy_path (path)
		)`,
		`CREATE TABLE IF NOT EXISTS node_categories (
			node_id VARCHAR(64) NOT NULL,
			category_id BIGINT NOT NULL,
			confidence DOUBLE NOT NULL,
			assigned_by VARCHAR(32) NOT NULL,
			assigned_at DATETIME(6) NOT NULL,
			PRIMARY KEY (node_id, category_id)
		)`,
		`CREATE TABLE IF NOT EXISTS node_scores (
			node_id VARCHAR(64) NOT NULL,
			score_type VARCHAR(32) NOT NULL,
			model_name VARCHAR(128) NOT NULL,
			score DOUBLE NOT NULL,
			computed_at DATETIME(6) NOT NULL,
			expires_at DATETIME(6) NOT NULL,
			PRIMARY KEY (node_id, score_type, model_name)
		)`,
		`CREATE TABLE IF NOT EXISTS embedding_models (
			model_name VARCHAR(128) PRIMARY KEY,
			modality VARCHAR(16) NOT NULL,
			dimension INT NOT NULL,
			is_active TINYINT(1) NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS embeddings (
			id BIGINT PRIMARY KEY,
			node_id VARCHAR(64) NOT NULL,
			chunk_id VARCHAR(64),
			modality VARCHAR(16) NOT NULL,
			model_name VARCHAR(128) NOT NULL,
			source_part VARCHAR(32) NOT NULL,
			embedding JSON NOT NULL,
			content_hash VARCHAR(64),
			generated_at DATETIME(6) NOT NULL,
			last_accessed DATETIME(6),
			KEY idx_embeddings_lookup (model_name, source_part)
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id VARCHAR(64) PRIMARY KEY,
			node_id VARCHAR(64) NOT NULL,
			position INT NOT NULL,
			content LONGTEXT NOT NULL,
			summary TEXT,
			UNIQUE KEY uniq_chunk_position (node_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS graph_edges (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			source_id VARCHAR(64) NOT NULL,
			target_id VARCHAR(64) NOT NULL,
			edge_type VARCHAR(64) NOT NULL,
			properties JSON,
			created_by VARCHAR(32) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			UNIQUE KEY uniq_edge (source_id, target_id, edge_type)
		)`,
		`CREATE TABLE IF NOT EXISTS signals (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			node_id VARCHAR(64) NOT NULL,
			signal_type VARCHAR(32) NOT NULL,
			value DOUBLE NOT NULL,
			recorded_at DATETIME(6) NOT NULL,
			KEY idx_signals_recorded (recorded_at)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}
	return nil
}

const nodeColumns = `id, type, title, text_content, image_url, audio_url, video_url,
	metadata, decay_metadata, synthesis_metadata, created_at, updated_at`

// CreateNode inserts a node. A zero-value decay record is replaced with the
// defaults.
func (c *Client) CreateNode(ctx context.Context, node *storage.Node) error {
	if node.Decay.DecayConfig.BaselineRelevance == 0 {
		node.Decay = storage.DefaultDecayMetadata()
	}
	now := time.Now()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	node.UpdatedAt = now

	metadataJSON, err := marshalMap(node.Metadata)
	if err != nil {
		return fmt.Errorf("CreateNode: %w", err)
	}
	decayJSON, err := json.Marshal(node.Decay)
	if err != nil {
		return fmt.Errorf("CreateNode: %w", err)
	}
	synthesisJSON, err := marshalMap(node.Synthesis)
	if err != nil {
		return fmt.Errorf("CreateNode: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO nodes (`+nodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		node.ID, string(node.Type), node.Title,
		nullString(node.TextContent), nullString(node.ImageURL),
		nullString(node.AudioURL), nullString(node.VideoURL),
		metadataJSON, string(decayJSON), synthesisJSON,
		node.CreatedAt, node.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("CreateNode: %w", storage.ErrDuplicate)
		}
		return fmt.Errorf("CreateNode: %w", err)
	}
	return nil
}

// GetNode loads a node by ID.
func (c *Client) GetNode(ctx context.Context, id string) (*storage.Node, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)

	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetNode: node %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetNode: %w", err)
	}
	return node, nil
}

// ListNodes returns nodes ordered newest first.
func (c *Client) ListNodes(ctx context.Context, opts *storage.ListOptions) ([]*storage.Node, error) {
	if opts == nil {
		opts = &storage.ListOptions{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + nodeColumns + ` FROM nodes`
	args := []interface{}{}
	if opts.Type != "" {
		query += ` WHERE type = ?`
		args = append(args, string(opts.Type))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListNodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var nodes []*storage.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("ListNodes: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// ListActiveNodeIDs returns IDs of nodes not marked archived.
func (c *Client) ListActiveNodeIDs(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id FROM nodes
		WHERE COALESCE(JSON_EXTRACT(decay_metadata, '$.lifecycle.archived'), FALSE) = FALSE
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("ListActiveNodeIDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ListActiveNodeIDs: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteNode removes a node and its dependent rows. MySQL schemas here carry
// no foreign keys, so dependents are cleaned up explicitly.
func (c *Client) DeleteNode(ctx context.Context, id string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("DeleteNode: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("DeleteNode: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("DeleteNode: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("DeleteNode: node %s: %w", id, storage.ErrNotFound)
	}

	cleanups := []string{
		`DELETE FROM node_categories WHERE node_id = ?`,
		`DELETE FROM node_scores WHERE node_id = ?`,
		`DELETE FROM embeddings WHERE node_id = ?`,
		`DELETE FROM chunks WHERE node_id = ?`,
		`DELETE FROM signals WHERE node_id = ?`,
	}
	for _, stmt := range cleanups {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("DeleteNode: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM graph_edges WHERE source_id = ? OR target_id = ?`, id, id); err != nil {
		return fmt.Errorf("DeleteNode: %w", err)
	}

	return tx.Commit()
}

// NodeBriefs resolves type and title for a set of node IDs.
func (c *Client) NodeBriefs(ctx context.Context, ids []string) (map[string]storage.NodeBrief, error) {
	briefs := make(map[string]storage.NodeBrief, len(ids))
	if len(ids) == 0 {
		return briefs, nil
	}

	query := `SELECT id, type, title FROM nodes WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := c.db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("NodeBriefs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var b storage.NodeBrief
		var nodeType string
		if err := rows.Scan(&b.ID, &nodeType, &b.Title); err != nil {
			return nil, fmt.Errorf("NodeBriefs: %w", err)
		}
		b.Type = storage.NodeType(nodeType)
		briefs[b.ID] = b
	}
	return briefs, rows.Err()
}

// CreateCategory inserts a taxonomy category and fills in its assigned ID.
func (c *Client) CreateCategory(ctx context.Context, cat *storage.Category) error {
	if cat.CreatedAt.IsZero() {
		cat.CreatedAt = time.Now()
	}
	keywordsJSON, err := json.Marshal(cat.Keywords)
	if err != nil {
		return fmt.Errorf("CreateCategory: %w", err)
	}

	result, err := c.db.ExecContext(ctx, `
		INSERT INTO taxonomy (name, path, level, parent_id, topic_importance,
			change_velocity, usage_focus, keywords, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		cat.Name, cat.Path, cat.Level, cat.ParentID,
		cat.TopicImportance, cat.ChangeVelocity, cat.UsageFocus,
		string(keywordsJSON), cat.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("CreateCategory: %w", storage.ErrDuplicate)
		}
		return fmt.Errorf("CreateCategory: %w", err)
	}

	cat.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("CreateCategory: %w", err)
	}
	return nil
}

// AssignCategory links a node to a category, updating the confidence when
// the assignment already exists.
func (c *Client) AssignCategory(ctx context.Context, a *storage.CategoryAssignment) error {
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO node_categories (node_id, category_id, confidence, assigned_by, assigned_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			confidence = VALUES(confidence),
			assigned_by = VALUES(assigned_by),
			assigned_at = VALUES(assigned_at)
	`, a.NodeID, a.CategoryID, a.Confidence, a.AssignedBy, a.AssignedAt)
	if err != nil {
		return fmt.Errorf("AssignCategory: %w", err)
	}
	return nil
}

// TopCategory returns the highest-confidence category assigned to the node,
// or (nil, 0, nil) when the node has no assignment.
func (c *Client) TopCategory(ctx context.Context, nodeID string) (*storage.Category, float64, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT t.id, t.name, t.path, t.level, t.parent_id, t.topic_importance,
		       t.change_velocity, t.usage_focus, t.keywords, t.created_at,
		       nc.confidence
		FROM node_categories nc
		JOIN taxonomy t ON t.id = nc.category_id
		WHERE nc.node_id = ?
		ORDER BY nc.confidence DESC, t.id ASC
		LIMIT 1
	`, nodeID)

	var cat storage.Category
	var keywordsJSON sql.NullString
	var confidence float64
	err := row.Scan(&cat.ID, &cat.Name, &cat.Path, &cat.Level, &cat.ParentID,
		&cat.TopicImportance, &cat.ChangeVelocity, &cat.UsageFocus,
		&keywordsJSON, &cat.CreatedAt, &confidence)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("TopCategory: %w", err)
	}

	if keywordsJSON.Valid && keywordsJSON.String != "" {
		if err := json.Unmarshal([]byte(keywordsJSON.String), &cat.Keywords); err != nil {
			return nil, 0, fmt.Errorf("TopCategory: parse keywords: %w", err)
		}
	}
	return &cat, confidence, nil
}

// TrackAccess atomically updates the node's usage stats under a row lock,
// appends a view signal, and touches the node's embedding rows.
func (c *Client) TrackAccess(ctx context.Context, nodeID string, at time.Time) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("TrackAccess: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	decay, err := loadDecayForUpdate(ctx, tx, nodeID)
	if err != nil {
		return fmt.Errorf("TrackAccess: %w", err)
	}

	decay.UsageStats.AccessCount++
	decay.UsageStats.LastAccessed = &at
	decay.UsageStats.Last7Days++
	decay.UsageStats.Last30Days++
	decay.UsageStats.Last90Days++

	if err := saveDecay(ctx, tx, nodeID, decay, at); err != nil {
		return fmt.Errorf("TrackAccess: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO signals (node_id, signal_type, value, recorded_at)
		VALUES (?, ?, 1.0, ?)
	`, nodeID, storage.SignalView, at)
	if err != nil {
		return fmt.Errorf("TrackAccess: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE embeddings SET last_accessed = ? WHERE node_id = ?`, at, nodeID)
	if err != nil {
		return fmt.Errorf("TrackAccess: %w", err)
	}

	return tx.Commit()
}

// DeleteSignalsBefore removes signal log entries older than the cutoff.
func (c *Client) DeleteSignalsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := c.db.ExecContext(ctx,
		`DELETE FROM signals WHERE recorded_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("DeleteSignalsBefore: %w", err)
	}
	return result.RowsAffected()
}

// CountSignals counts signal log entries for a node.
func (c *Client) CountSignals(ctx context.Context, nodeID string) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM signals WHERE node_id = ?`, nodeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("CountSignals: %w", err)
	}
	return count, nil
}

// Supersede commits the full supersession bookkeeping for a node pair as one
// transaction. Rows are locked in ID order to avoid deadlocks between
// concurrent supersessions.
func (c *Client) Supersede(ctx context.Context, oldID, newID, reason string, at time.Time) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Supersede: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	first, second := oldID, newID
	if second < first {
		first, second = second, first
	}
	locked := map[string]*storage.DecayMetadata{}
	for _, id := range []string{first, second} {
		decay, err := loadDecayForUpdate(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("Supersede: node %s: %w", id, err)
		}
		locked[id] = decay
	}
	oldDecay, newDecay := locked[oldID], locked[newID]

	if !containsString(oldDecay.Supersession.SupersededBy, newID) {
		oldDecay.Supersession.SupersededBy = append(oldDecay.Supersession.SupersededBy, newID)
	}
	oldDecay.Lifecycle.MarkedObsolete = true
	if reason != "" {
		oldDecay.Lifecycle.ObsoleteReason = &reason
	}
	if !containsString(newDecay.Supersession.Supersedes, oldID) {
		newDecay.Supersession.Supersedes = append(newDecay.Supersession.Supersedes, oldID)
	}

	if err := saveDecay(ctx, tx, oldID, oldDecay, at); err != nil {
		return fmt.Errorf("Supersede: %w", err)
	}
	if err := saveDecay(ctx, tx, newID, newDecay, at); err != nil {
		return fmt.Errorf("Supersede: %w", err)
	}

	props, err := json.Marshal(map[string]interface{}{
		"reason":    reason,
		"marked_at": at.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("Supersede: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT IGNORE INTO graph_edges (source_id, target_id, edge_type, properties, created_by, created_at)
		VALUES (?, ?, ?, ?, 'system', ?)
	`, newID, oldID, storage.EdgeSupersedes, string(props), at)
	if err != nil {
		return fmt.Errorf("Supersede: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM node_scores
		WHERE node_id IN (?, ?) AND score_type = ?
	`, oldID, newID, string(storage.ScoreDecay))
	if err != nil {
		return fmt.Errorf("Supersede: %w", err)
	}

	return tx.Commit()
}

// UpsertScore writes a node score, replacing any previous value for the same
// (node, score type, model) key.
func (c *Client) UpsertScore(ctx context.Context, score *storage.NodeScore) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO node_scores (node_id, score_type, model_name, score, computed_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			score = VALUES(score),
			computed_at = VALUES(computed_at),
			expires_at = VALUES(expires_at)
	`, score.NodeID, string(score.ScoreType), score.ModelName,
		score.Score, score.ComputedAt, score.ExpiresAt)
	if err != nil {
		return fmt.Errorf("UpsertScore: %w", err)
	}
	return nil
}

// GetScore loads a stored score.
func (c *Client) GetScore(ctx context.Context, nodeID string, st storage.ScoreType, model string) (*storage.NodeScore, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT node_id, score_type, model_name, score, computed_at, expires_at
		FROM node_scores
		WHERE node_id = ? AND score_type = ? AND model_name = ?
	`, nodeID, string(st), model)

	var s storage.NodeScore
	var scoreType string
	err := row.Scan(&s.NodeID, &scoreType, &s.ModelName, &s.Score, &s.ComputedAt, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetScore: %w", storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetScore: %w", err)
	}
	s.ScoreType = storage.ScoreType(scoreType)
	return &s, nil
}

// CurrentScores resolves unexpired scores for a set of node IDs.
func (c *Client) CurrentScores(ctx context.Context, ids []string, st storage.ScoreType, now time.Time) (map[string]float64, error) {
	scores := make(map[string]float64, len(ids))
	if len(ids) == 0 {
		return scores, nil
	}

	args := stringArgs(ids)
	args = append(args, string(st), now)
	rows, err := c.db.QueryContext(ctx, `
		SELECT node_id, MAX(score)
		FROM node_scores
		WHERE node_id IN (`+placeholders(len(ids))+`)
		  AND score_type = ? AND expires_at > ?
		GROUP BY node_id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("CurrentScores: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("CurrentScores: %w", err)
		}
		scores[id] = score
	}
	return scores, rows.Err()
}

// DeleteExpiredScores removes score rows whose expiry has passed.
func (c *Client) DeleteExpiredScores(ctx context.Context, now time.Time) (int64, error) {
	result, err := c.db.ExecContext(ctx,
		`DELETE FROM node_scores WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("DeleteExpiredScores: %w", err)
	}
	return result.RowsAffected()
}

// CreateEdge inserts a directed edge. An identical (source, target, type)
// edge yields storage.ErrDuplicate.
func (c *Client) CreateEdge(ctx context.Context, edge *storage.Edge) error {
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now()
	}
	propsJSON, err := marshalMap(edge.Properties)
	if err != nil {
		return fmt.Errorf("CreateEdge: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO graph_edges (id, source_id, target_id, edge_type, properties, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, edge.ID, edge.SourceID, edge.TargetID, edge.Type, propsJSON, edge.CreatedBy, edge.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("CreateEdge: %w", storage.ErrDuplicate)
		}
		return fmt.Errorf("CreateEdge: %w", err)
	}
	return nil
}

// ListEdges returns edges matching the filter, newest first.
func (c *Client) ListEdges(ctx context.Context, f *storage.EdgeFilter) ([]*storage.Edge, error) {
	if f == nil {
		f = &storage.EdgeFilter{}
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, source_id, target_id, edge_type, properties, created_by, created_at
		FROM graph_edges`
	var conditions []string
	var args []interface{}
	if f.NodeID != "" {
		conditions = append(conditions, `(source_id = ? OR target_id = ?)`)
		args = append(args, f.NodeID, f.NodeID)
	}
	if f.SourceID != "" {
		conditions = append(conditions, `source_id = ?`)
		args = append(args, f.SourceID)
	}
	if f.TargetID != "" {
		conditions = append(conditions, `target_id = ?`)
		args = append(args, f.TargetID)
	}
	if f.Type != "" {
		conditions = append(conditions, `edge_type = ?`)
		args = append(args, f.Type)
	}
	query += whereClause(conditions) + ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListEdges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []*storage.Edge
	for rows.Next() {
		var e storage.Edge
		var propsJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Type, &propsJSON, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListEdges: %w", err)
		}
		if propsJSON.Valid && propsJSON.String != "" {
			if err := json.Unmarshal([]byte(propsJSON.String), &e.Properties); err != nil {
				return nil, fmt.Errorf("ListEdges: parse properties: %w", err)
			}
		}
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}

// RegisterModel upserts an embedding model registration.
func (c *Client) RegisterModel(ctx context.Context, m *storage.EmbeddingModel) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO embedding_models (model_name, modality, dimension, is_active)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			modality = VALUES(modality),
			dimension = VALUES(dimension),
			is_active = VALUES(is_active)
	`, m.Name, string(m.Modality), m.Dimension, m.Active)
	if err != nil {
		return fmt.Errorf("RegisterModel: %w", err)
	}
	return nil
}

// GetModel loads an active embedding model by name.
func (c *Client) GetModel(ctx context.Context, name string) (*storage.EmbeddingModel, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT model_name, modality, dimension, is_active
		FROM embedding_models
		WHERE model_name = ? AND is_active = 1
	`, name)

	var m storage.EmbeddingModel
	var modality string
	err := row.Scan(&m.Name, &modality, &m.Dimension, &m.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetModel: model %s: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetModel: %w", err)
	}
	m.Modality = storage.Modality(modality)
	return &m, nil
}

// StoreEmbedding validates the vector dimension against the registered model
// and inserts the row.
func (c *Client) StoreEmbedding(ctx context.Context, e *storage.Embedding) error {
	model, err := c.GetModel(ctx, e.ModelName)
	if err != nil {
		return fmt.Errorf("StoreEmbedding: %w", err)
	}
	if len(e.Vector) != model.Dimension {
		return fmt.Errorf("StoreEmbedding: model %s expects %d dimensions, got %d: %w",
			e.ModelName, model.Dimension, len(e.Vector), storage.ErrDimensionMismatch)
	}

	if e.GeneratedAt.IsZero() {
		e.GeneratedAt = time.Now()
	}
	vectorJSON, err := json.Marshal(e.Vector)
	if err != nil {
		return fmt.Errorf("StoreEmbedding: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO embeddings (id, node_id, chunk_id, modality, model_name,
			source_part, embedding, content_hash, generated_at, last_accessed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.NodeID, e.ChunkID, string(e.Modality), e.ModelName,
		e.SourcePart, string(vectorJSON), nullString(e.ContentHash),
		e.GeneratedAt, e.LastAccessed)
	if err != nil {
		return fmt.Errorf("StoreEmbedding: %w", err)
	}
	return nil
}

// CreateChunk inserts a chunk.
func (c *Client) CreateChunk(ctx context.Context, chunk *storage.Chunk) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO chunks (id, node_id, position, content, summary)
		VALUES (?, ?, ?, ?, ?)
	`, chunk.ID, chunk.NodeID, chunk.Position, chunk.Content, nullString(chunk.Summary))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("CreateChunk: %w", storage.ErrDuplicate)
		}
		return fmt.Errorf("CreateChunk: %w", err)
	}
	return nil
}

// GetChunk loads a chunk by ID.
func (c *Client) GetChunk(ctx context.Context, id string) (*storage.Chunk, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, node_id, position, content, COALESCE(summary, '')
		FROM chunks WHERE id = ?
	`, id)

	var chunk storage.Chunk
	err := row.Scan(&chunk.ID, &chunk.NodeID, &chunk.Position, &chunk.Content, &chunk.Summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetChunk: chunk %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetChunk: %w", err)
	}
	return &chunk, nil
}

// AdjacentChunks returns up to n chunks on each side of the given chunk
// within its node, ordered by position.
func (c *Client) AdjacentChunks(ctx context.Context, chunkID string, n int) ([]*storage.Chunk, []*storage.Chunk, error) {
	chunk, err := c.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, nil, err
	}
	if n <= 0 {
		return nil, nil, nil
	}

	before, err := c.queryChunks(ctx, `
		SELECT id, node_id, position, content, COALESCE(summary, '')
		FROM chunks
		WHERE node_id = ? AND position < ?
		ORDER BY position DESC LIMIT ?
	`, chunk.NodeID, chunk.Position, n)
	if err != nil {
		return nil, nil, fmt.Errorf("AdjacentChunks: %w", err)
	}
	for i, j := 0, len(before)-1; i < j; i, j = i+1, j-1 {
		before[i], before[j] = before[j], before[i]
	}

	after, err := c.queryChunks(ctx, `
		SELECT id, node_id, position, content, COALESCE(summary, '')
		FROM chunks
		WHERE node_id = ? AND position > ?
		ORDER BY position ASC LIMIT ?
	`, chunk.NodeID, chunk.Position, n)
	if err != nil {
		return nil, nil, fmt.Errorf("AdjacentChunks: %w", err)
	}

	return before, after, nil
}

// ChunkBriefs resolves chunk content and owning-node metadata for a set of
// chunk IDs.
func (c *Client) ChunkBriefs(ctx context.Context, ids []string) (map[string]storage.ChunkBrief, error) {
	briefs := make(map[string]storage.ChunkBrief, len(ids))
	if len(ids) == 0 {
		return briefs, nil
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT c.id, c.node_id, n.title, c.content, COALESCE(c.summary, '')
		FROM chunks c
		JOIN nodes n ON n.id = c.node_id
		WHERE c.id IN (`+placeholders(len(ids))+`)
	`, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("ChunkBriefs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var b storage.ChunkBrief
		if err := rows.Scan(&b.ChunkID, &b.NodeID, &b.NodeTitle, &b.Content, &b.Summary); err != nil {
			return nil, fmt.Errorf("ChunkBriefs: %w", err)
		}
		briefs[b.ChunkID] = b
	}
	return briefs, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *Client) queryChunks(ctx context.Context, query string, args ...interface{}) ([]*storage.Chunk, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chunks []*storage.Chunk
	for rows.Next() {
		var chunk storage.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.NodeID, &chunk.Position, &chunk.Content, &chunk.Summary); err != nil {
			return nil, err
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// loadDecayForUpdate reads a node's decay metadata under a row lock.
func loadDecayForUpdate(ctx context.Context, tx *sql.Tx, nodeID string) (*storage.DecayMetadata, error) {
	var decayJSON string
	err := tx.QueryRowContext(ctx,
		`SELECT decay_metadata FROM nodes WHERE id = ? FOR UPDATE`, nodeID).Scan(&decayJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %s: %w", nodeID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var decay storage.DecayMetadata
	if err := json.Unmarshal([]byte(decayJSON), &decay); err != nil {
		return nil, fmt.Errorf("parse decay metadata: %w", err)
	}
	return &decay, nil
}

// saveDecay writes a node's decay metadata inside a transaction.
func saveDecay(ctx context.Context, tx *sql.Tx, nodeID string, decay *storage.DecayMetadata, at time.Time) error {
	decayJSON, err := json.Marshal(decay)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE nodes SET decay_metadata = ?, updated_at = ? WHERE id = ?`,
		string(decayJSON), at, nodeID)
	return err
}

// isUniqueViolation reports whether err is a MySQL duplicate-entry error.
func isUniqueViolation(err error) bool {
	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
