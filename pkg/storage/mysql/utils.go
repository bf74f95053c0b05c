package mysql

import (
	"database/sql"
	"encoding/json"
	"math"
	"strings"

	"github.com/braingraph/braingraph-go/pkg/storage"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanNode decodes one row of the nodes table, including its JSON columns.
func scanNode(row rowScanner) (*storage.Node, error) {
	var node storage.Node
	var nodeType string
	var textContent, imageURL, audioURL, videoURL sql.NullString
	var metadataJSON, synthesisJSON sql.NullString
	var decayJSON string

	err := row.Scan(&node.ID, &nodeType, &node.Title,
		&textContent, &imageURL, &audioURL, &videoURL,
		&metadataJSON, &decayJSON, &synthesisJSON,
		&node.CreatedAt, &node.UpdatedAt)
	if err != nil {
		return nil, err
	}

	node.Type = storage.NodeType(nodeType)
	node.TextContent = textContent.String
	node.ImageURL = imageURL.String
	node.AudioURL = audioURL.String
	node.VideoURL = videoURL.String

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &node.Metadata); err != nil {
			return nil, err
		}
	}
	if err := json.Unmarshal([]byte(decayJSON), &node.Decay); err != nil {
		return nil, err
	}
	if synthesisJSON.Valid && synthesisJSON.String != "" {
		if err := json.Unmarshal([]byte(synthesisJSON.String), &node.Synthesis); err != nil {
			return nil, err
		}
	}
	return &node, nil
}

// placeholders returns n comma-separated ? placeholders.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// stringArgs widens a string slice for variadic query args.
func stringArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// whereClause joins conditions into a WHERE clause, or returns "" when there
// are none.
func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

// nullString maps "" to NULL.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalMap serializes a metadata map, mapping nil to NULL.
func marshalMap(m map[string]interface{}) (interface{}, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// cosineSimilarity calculates cosine similarity between two vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
