package graphstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS nodes (
	id         TEXT PRIMARY KEY,
	label      TEXT NOT NULL,
	vector_id  TEXT NOT NULL DEFAULT '',
	properties TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS edges (
	id         TEXT PRIMARY KEY,
	from_id    TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	to_id      TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	type       TEXT NOT NULL,
	properties TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	UNIQUE(from_id, to_id, type)
);

CREATE INDEX IF NOT EXISTS idx_nodes_label ON nodes(label);
CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_id);
CREATE INDEX IF NOT EXISTS idx_edges_to   ON edges(to_id);
`

// SQLiteConfig configures the persistent graph backend.
type SQLiteConfig struct {
	// Path is the database file. Empty means in-memory.
	Path string

	// BusyTimeout is applied via PRAGMA busy_timeout.
	BusyTimeout time.Duration
}

// ApplyDefaults fills unset fields.
func (c *SQLiteConfig) ApplyDefaults() {
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
}

// SQLiteGraph is a persistent Store backed by modernc.org/sqlite.
type SQLiteGraph struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteGraph opens (creating if needed) a SQLite-backed graph.
func NewSQLiteGraph(cfg SQLiteConfig, logger *zap.Logger) (*SQLiteGraph, error) {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := cfg.Path
	if dsn == "" {
		dsn = "file::memory:?mode=memory&cache=shared"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrBackendUnavailable, dsn, err)
	}
	// modernc's driver is not safe for concurrent writes on multiple conns.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, p, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create schema: %v", ErrBackendUnavailable, err)
	}

	logger.Debug("opened sqlite graph", zap.String("path", cfg.Path))
	return &SQLiteGraph{db: db, logger: logger}, nil
}

// UpsertNode creates or updates a node.
func (g *SQLiteGraph) UpsertNode(ctx context.Context, label Label, id string, props Properties) (string, error) {
	if label == "" {
		return "", fmt.Errorf("%w: label is empty", ErrInvalidArgument)
	}
	if id == "" {
		id = uuid.NewString()
	}

	var existingLabel string
	var existingProps string
	err := g.db.QueryRowContext(ctx,
		`SELECT label, properties FROM nodes WHERE id = ?`, id,
	).Scan(&existingLabel, &existingProps)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		raw, merr := json.Marshal(propsOrEmpty(props))
		if merr != nil {
			return "", fmt.Errorf("%w: encode properties: %v", ErrInvalidArgument, merr)
		}
		_, err = g.db.ExecContext(ctx,
			`INSERT INTO nodes (id, label, properties, created_at) VALUES (?, ?, ?, ?)`,
			id, string(label), string(raw), time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return "", fmt.Errorf("insert node %s: %w", id, err)
		}
		return id, nil
	case err != nil:
		return "", fmt.Errorf("lookup node %s: %w", id, err)
	}

	if existingLabel != string(label) {
		return "", fmt.Errorf("%w: node %s has label %s, cannot relabel to %s",
			ErrConstraintViolation, id, existingLabel, label)
	}
	merged := make(Properties)
	if err := json.Unmarshal([]byte(existingProps), &merged); err != nil {
		return "", fmt.Errorf("decode properties of %s: %w", id, err)
	}
	for k, v := range props {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("%w: encode properties: %v", ErrInvalidArgument, err)
	}
	if _, err := g.db.ExecContext(ctx,
		`UPDATE nodes SET properties = ? WHERE id = ?`, string(raw), id); err != nil {
		return "", fmt.Errorf("update node %s: %w", id, err)
	}
	return id, nil
}

// UpsertEdge creates or updates the (from, to, type) edge.
func (g *SQLiteGraph) UpsertEdge(ctx context.Context, from, to string, edgeType EdgeType, props Properties) (string, error) {
	if edgeType == "" {
		return "", fmt.Errorf("%w: edge type is empty", ErrInvalidArgument)
	}
	for _, endpoint := range []string{from, to} {
		var one int
		err := g.db.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE id = ?`, endpoint).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: node %s", ErrEndpointMissing, endpoint)
		}
		if err != nil {
			return "", fmt.Errorf("lookup node %s: %w", endpoint, err)
		}
	}

	var id, existingProps string
	err := g.db.QueryRowContext(ctx,
		`SELECT id, properties FROM edges WHERE from_id = ? AND to_id = ? AND type = ?`,
		from, to, string(edgeType),
	).Scan(&id, &existingProps)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString()
		raw, merr := json.Marshal(propsOrEmpty(props))
		if merr != nil {
			return "", fmt.Errorf("%w: encode properties: %v", ErrInvalidArgument, merr)
		}
		_, err = g.db.ExecContext(ctx,
			`INSERT INTO edges (id, from_id, to_id, type, properties, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, from, to, string(edgeType), string(raw), time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return "", fmt.Errorf("insert edge %s-[%s]->%s: %w", from, edgeType, to, err)
		}
		return id, nil
	case err != nil:
		return "", fmt.Errorf("lookup edge: %w", err)
	}

	merged := make(Properties)
	if err := json.Unmarshal([]byte(existingProps), &merged); err != nil {
		return "", fmt.Errorf("decode edge properties: %w", err)
	}
	for k, v := range props {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("%w: encode properties: %v", ErrInvalidArgument, err)
	}
	if _, err := g.db.ExecContext(ctx,
		`UPDATE edges SET properties = ? WHERE id = ?`, string(raw), id); err != nil {
		return "", fmt.Errorf("update edge %s: %w", id, err)
	}
	return id, nil
}

// GetNode returns the node with the given id.
func (g *SQLiteGraph) GetNode(ctx context.Context, id string) (Node, error) {
	row := g.db.QueryRowContext(ctx,
		`SELECT id, label, vector_id, properties, created_at FROM nodes WHERE id = ?`, id)
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	return node, err
}

// DeleteNode removes a node; foreign keys cascade to incident edges.
func (g *SQLiteGraph) DeleteNode(ctx context.Context, id string) error {
	if _, err := g.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	return nil
}

// SetVectorID sets the vector cross-link on a node.
func (g *SQLiteGraph) SetVectorID(ctx context.Context, id, vectorID string) error {
	res, err := g.db.ExecContext(ctx,
		`UPDATE nodes SET vector_id = ? WHERE id = ?`, vectorID, id)
	if err != nil {
		return fmt.Errorf("set vector id on %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set vector id on %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	return nil
}

// Neighbors returns nodes reachable from id, breadth-first. Each BFS level
// issues one adjacency query; traversal depth is expected to be small.
func (g *SQLiteGraph) Neighbors(ctx context.Context, id string, opts NeighborOptions) ([]Neighbor, error) {
	applyNeighborDefaults(&opts)

	if _, err := g.GetNode(ctx, id); err != nil {
		return nil, err
	}

	type frame struct {
		id   string
		path []string
	}
	visited := map[string]bool{id: true}
	queue := []frame{{id: id, path: []string{id}}}
	var result []Neighbor

	for depth := 1; depth <= opts.MaxDepth && len(queue) > 0; depth++ {
		var next []frame
		for _, f := range queue {
			adj, err := g.adjacentIDs(ctx, f.id, opts)
			if err != nil {
				return nil, err
			}
			for _, nid := range adj {
				if visited[nid] {
					continue
				}
				visited[nid] = true
				node, err := g.GetNode(ctx, nid)
				if err != nil {
					return nil, err
				}
				path := append(append([]string{}, f.path...), nid)
				result = append(result, Neighbor{Node: node, PathLength: depth, Path: path})
				if opts.Limit > 0 && len(result) >= opts.Limit {
					return result, nil
				}
				next = append(next, frame{id: nid, path: path})
			}
		}
		queue = next
	}
	return result, nil
}

func (g *SQLiteGraph) adjacentIDs(ctx context.Context, id string, opts NeighborOptions) ([]string, error) {
	var clauses []string
	var args []any
	typeFilter, typeArgs := edgeTypeClause(opts.EdgeTypes)

	if opts.Direction == DirectionOut || opts.Direction == DirectionBoth {
		clauses = append(clauses,
			`SELECT to_id, created_at FROM edges WHERE from_id = ?`+typeFilter)
		args = append(args, id)
		args = append(args, typeArgs...)
	}
	if opts.Direction == DirectionIn || opts.Direction == DirectionBoth {
		clauses = append(clauses,
			`SELECT from_id, created_at FROM edges WHERE to_id = ?`+typeFilter)
		args = append(args, id)
		args = append(args, typeArgs...)
	}

	query := strings.Join(clauses, " UNION ALL ") + ` ORDER BY created_at`
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("adjacency of %s: %w", id, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var nid, createdAt string
		if err := rows.Scan(&nid, &createdAt); err != nil {
			return nil, err
		}
		ids = append(ids, nid)
	}
	return ids, rows.Err()
}

func edgeTypeClause(types []EdgeType) (string, []any) {
	if len(types) == 0 {
		return "", nil
	}
	placeholders := make([]string, len(types))
	args := make([]any, len(types))
	for i, t := range types {
		placeholders[i] = "?"
		args[i] = string(t)
	}
	return " AND type IN (" + strings.Join(placeholders, ",") + ")", args
}

// Query executes a parameterized structural query.
func (g *SQLiteGraph) Query(ctx context.Context, template QueryTemplate, params QueryParams) ([]Row, error) {
	switch template {
	case QueryNodesByLabel:
		return g.queryNodes(ctx,
			`SELECT id, label, vector_id, properties, created_at FROM nodes
			 WHERE label = ? ORDER BY created_at, id`,
			params.Limit, string(params.Label))
	case QueryNodesByProperty:
		// json_extract returns the raw value; compare stringified forms so
		// callers can pass numbers or strings interchangeably.
		return g.queryNodes(ctx,
			`SELECT id, label, vector_id, properties, created_at FROM nodes
			 WHERE CAST(json_extract(properties, '$.' || ?) AS TEXT) = ?
			 ORDER BY created_at, id`,
			params.Limit, params.Key, fmt.Sprint(params.Value))
	case QueryTextContains:
		if params.Text == "" {
			return nil, fmt.Errorf("%w: text is empty", ErrInvalidArgument)
		}
		return g.queryNodes(ctx,
			`SELECT id, label, vector_id, properties, created_at FROM nodes
			 WHERE lower(properties) LIKE ? ORDER BY created_at, id`,
			params.Limit, "%"+strings.ToLower(params.Text)+"%")
	case QueryTraverse:
		neighbors, err := g.Neighbors(ctx, params.StartID, NeighborOptions{
			EdgeTypes: params.EdgeTypes,
			Direction: DirectionBoth,
			MaxDepth:  params.MaxDepth,
			Limit:     params.Limit,
		})
		if err != nil {
			return nil, err
		}
		rows := make([]Row, len(neighbors))
		for i, n := range neighbors {
			rows[i] = Row{Node: n.Node, PathLength: n.PathLength, Path: n.Path}
		}
		return rows, nil
	case QueryShortestPath:
		return g.shortestPath(ctx, params.StartID, params.EndID, params.MaxDepth)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, template)
	}
}

func (g *SQLiteGraph) queryNodes(ctx context.Context, query string, limit int, args ...any) ([]Row, error) {
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, Row{Node: node})
	}
	return result, rows.Err()
}

func (g *SQLiteGraph) shortestPath(ctx context.Context, start, end string, maxLen int) ([]Row, error) {
	if maxLen <= 0 {
		maxLen = 5
	}
	if _, err := g.GetNode(ctx, start); err != nil {
		return nil, err
	}
	endNode, err := g.GetNode(ctx, end)
	if err != nil {
		return nil, err
	}
	if start == end {
		return []Row{{Node: endNode, Path: []string{start}}}, nil
	}

	opts := NeighborOptions{Direction: DirectionBoth}
	type frame struct {
		id   string
		path []string
	}
	visited := map[string]bool{start: true}
	queue := []frame{{id: start, path: []string{start}}}

	for depth := 1; depth <= maxLen && len(queue) > 0; depth++ {
		var next []frame
		for _, f := range queue {
			adj, err := g.adjacentIDs(ctx, f.id, opts)
			if err != nil {
				return nil, err
			}
			for _, nid := range adj {
				if visited[nid] {
					continue
				}
				visited[nid] = true
				path := append(append([]string{}, f.path...), nid)
				if nid == end {
					return []Row{{Node: endNode, PathLength: depth, Path: path}}, nil
				}
				next = append(next, frame{id: nid, path: path})
			}
		}
		queue = next
	}
	return nil, nil
}

// Close closes the underlying database.
func (g *SQLiteGraph) Close() error {
	return g.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(r rowScanner) (Node, error) {
	var node Node
	var label, props, createdAt string
	if err := r.Scan(&node.ID, &label, &node.VectorID, &props, &createdAt); err != nil {
		return Node{}, err
	}
	node.Label = Label(label)
	if err := json.Unmarshal([]byte(props), &node.Properties); err != nil {
		return Node{}, fmt.Errorf("decode properties of %s: %w", node.ID, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Node{}, fmt.Errorf("parse created_at of %s: %w", node.ID, err)
	}
	node.CreatedAt = ts
	return node, nil
}

func propsOrEmpty(p Properties) Properties {
	if p == nil {
		return Properties{}
	}
	return p
}
