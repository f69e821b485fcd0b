package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"mycelica/arbor/internal/graph"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// scanNode scans a row into a Node. The row must have nodeColumns in order.
func scanNode(scanner interface{ Scan(dest ...any) error }) (graph.Node, error) {
	var (
		n        graph.Node
		parentID sql.NullString
		children string
		typ      string
	)
	err := scanner.Scan(
		&n.ID, &parentID, &children, &n.X, &n.Y, &n.Level, &typ, &n.Label,
		&n.ManuallyPositioned, &n.Shared, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return n, err
	}
	if parentID.Valid {
		n.ParentID = &parentID.String
	}
	n.Type = graph.NodeType(typ)
	if err := json.Unmarshal([]byte(children), &n.Children); err != nil {
		return n, fmt.Errorf("node %s children: %w", n.ID, err)
	}
	return n, nil
}

// loadNodes returns a document's nodes in saved order.
func loadNodes(ctx context.Context, q querier, docID string) ([]graph.Node, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE doc_id = ? ORDER BY position`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nodes := []graph.Node{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// Nodes returns the nodes of docID in saved order.
func (d *DB) Nodes(ctx context.Context, docID string) ([]graph.Node, error) {
	return loadNodes(ctx, d.conn, docID)
}

// SaveNodes replaces the whole node list of docID.
func (d *DB) SaveNodes(ctx context.Context, docID string, nodes []graph.Node) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if err := writeNodes(ctx, tx, docID, nodes); err != nil {
		return err
	}
	return tx.Commit()
}

func writeNodes(ctx context.Context, tx *sql.Tx, docID string, nodes []graph.Node) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET updated_at = ? WHERE id = ?`, time.Now().UnixMilli(), docID)
	if err != nil {
		return fmt.Errorf("touching document %s: %w", docID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", docID, graph.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("clearing nodes: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (doc_id, id, parent_id, children, x, y, level, type, label,
		                   manually_positioned, shared, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, n := range nodes {
		children := n.Children
		if children == nil {
			children = []string{}
		}
		childJSON, err := json.Marshal(children)
		if err != nil {
			return fmt.Errorf("encoding children of %s: %w", n.ID, err)
		}
		var parent any
		if n.ParentID != nil {
			parent = *n.ParentID
		}
		if _, err := stmt.ExecContext(ctx,
			docID, n.ID, parent, string(childJSON), n.X, n.Y, n.Level, string(n.Type), n.Label,
			n.ManuallyPositioned, n.Shared, i, n.CreatedAt, n.UpdatedAt,
		); err != nil {
			return fmt.Errorf("inserting node %s: %w", n.ID, err)
		}
	}
	return nil
}

// UpdateNode applies a single-node patch. Position, label and shared are
// updated in place; a parent change goes through graph.Reparent so both
// sides of the link stay consistent.
func (d *DB) UpdateNode(ctx context.Context, docID, nodeID string, patch graph.NodePatch) error {
	if patch.IsEmpty() {
		return nil
	}
	now := time.Now().UnixMilli()

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	var sets []string
	var args []any
	if patch.X != nil {
		sets = append(sets, "x = ?", "manually_positioned = 1")
		args = append(args, *patch.X)
	}
	if patch.Y != nil {
		sets = append(sets, "y = ?")
		args = append(args, *patch.Y)
		if patch.X == nil {
			sets = append(sets, "manually_positioned = 1")
		}
	}
	if patch.Label != nil {
		sets = append(sets, "label = ?")
		args = append(args, *patch.Label)
	}
	if patch.Shared != nil {
		sets = append(sets, "shared = ?")
		args = append(args, *patch.Shared)
	}

	if len(sets) > 0 {
		sets = append(sets, "updated_at = ?")
		args = append(args, now, docID, nodeID)
		res, err := tx.ExecContext(ctx,
			`UPDATE nodes SET `+strings.Join(sets, ", ")+` WHERE doc_id = ? AND id = ?`, args...)
		if err != nil {
			return fmt.Errorf("updating node %s: %w", nodeID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("node %s: %w", nodeID, graph.ErrNotFound)
		}
	}

	if patch.ParentID != nil {
		nodes, err := loadNodes(ctx, tx, docID)
		if err != nil {
			return fmt.Errorf("loading nodes: %w", err)
		}
		nodes, err = graph.Reparent(nodes, nodeID, *patch.ParentID, now)
		if err != nil {
			return fmt.Errorf("reparenting %s: %w", nodeID, err)
		}
		if err := writeNodes(ctx, tx, docID, nodes); err != nil {
			return err
		}
	} else if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET updated_at = ? WHERE id = ?`, now, docID); err != nil {
		return fmt.Errorf("touching document %s: %w", docID, err)
	}

	return tx.Commit()
}

// CountNodes returns how many nodes docID has.
func (d *DB) CountNodes(ctx context.Context, docID string) (int, error) {
	var n int
	err := d.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE doc_id = ?`, docID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}
