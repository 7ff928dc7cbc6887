package node

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"
)

// widenPredicate is the extra OR-clause the include_containers_and_tasks
// flag adds: every task node plus every root container.
const widenPredicate = `(node_type = 'task' OR container_node_id IS NULL)`

func (s *Service) scanRows(rows *sql.Rows) ([]*Node, error) {
	defer rows.Close()
	var out []*Node
	for rows.Next() {
		var n Node
		var containerID sql.NullString
		var propsJSON string
		var created, modified int64
		if err := rows.Scan(&n.ID, &n.NodeType, &n.Content, &containerID, &propsJSON,
			&n.Version, &created, &modified); err != nil {
			return nil, err
		}
		n.ContainerNodeID = containerID.String
		n.CreatedAt = time.Unix(created, 0)
		n.ModifiedAt = time.Unix(modified, 0)
		if propsJSON != "" {
			if err := json.Unmarshal([]byte(propsJSON), &n.Properties); err != nil {
				return nil, err
			}
		}
		n.PersistenceState = Persisted
		out = append(out, &n)
	}
	return out, rows.Err()
}

const selectColumns = `id, node_type, content, container_node_id, properties, version, created_at, modified_at`

// FindByMentionedBy implements the mentioned_by query path: nodes whose
// content mentions targetID.
func (s *Service) FindByMentionedBy(ctx context.Context, targetID string, widen bool) ([]*Node, error) {
	q := `SELECT ` + selectColumns + ` FROM nodes
		WHERE id IN (SELECT source_id FROM mentions WHERE target_id = ?)`
	args := []any{targetID}
	if widen {
		q += ` OR ` + widenPredicate
	}
	rows, err := s.store.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return s.scanRows(rows)
}

// FindByContent implements the content_contains path, optionally narrowed
// by node_type; every token must appear in content (AND semantics).
func (s *Service) FindByContent(ctx context.Context, tokens []string, nodeType string, widen bool) ([]*Node, error) {
	var pred strings.Builder
	args := make([]any, 0, len(tokens)+2)
	if len(tokens) == 0 {
		pred.WriteString(`1 = 0`)
	}
	for i, tok := range tokens {
		if i > 0 {
			pred.WriteString(` AND `)
		}
		pred.WriteString(`content LIKE ?`)
		args = append(args, "%"+tok+"%")
	}
	if nodeType != "" {
		pred.WriteString(` AND node_type = ?`)
		args = append(args, nodeType)
	}

	q := `SELECT ` + selectColumns + ` FROM nodes WHERE (` + pred.String() + `)`
	if widen {
		q += ` OR ` + widenPredicate
	}
	rows, err := s.store.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return s.scanRows(rows)
}

// FindByNodeType implements the node_type-only path.
func (s *Service) FindByNodeType(ctx context.Context, nodeType string, widen bool) ([]*Node, error) {
	q := `SELECT ` + selectColumns + ` FROM nodes WHERE node_type = ?`
	args := []any{nodeType}
	if widen {
		q += ` OR ` + widenPredicate
	}
	rows, err := s.store.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return s.scanRows(rows)
}

// FindContainersAndTasks implements the include_containers_and_tasks-alone
// path: every task node plus every root container.
func (s *Service) FindContainersAndTasks(ctx context.Context) ([]*Node, error) {
	q := `SELECT ` + selectColumns + ` FROM nodes WHERE ` + widenPredicate
	rows, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.scanRows(rows)
}
