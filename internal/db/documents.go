package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mycelica/arbor/internal/graph"
)

// scanDocument scans a row into a Document (without nodes). The row must
// have documentColumns in order.
func scanDocument(scanner interface{ Scan(dest ...any) error }) (graph.Document, error) {
	var (
		doc     graph.Document
		kind    string
		shareID sql.NullString
	)
	err := scanner.Scan(
		&doc.ID, &doc.Title, &doc.OwnerID, &kind, &doc.Layout.AutoLayout,
		&doc.Sharing.Shared, &doc.Sharing.ReadOnly, &shareID, &doc.CreatedAt, &doc.UpdatedAt,
	)
	doc.Layout.Kind = graph.LayoutKind(kind)
	doc.Sharing.ShareID = shareID.String
	return doc, err
}

// CreateDocument inserts doc and its nodes. An empty ID is filled with a new
// UUID and zero timestamps with now.
func (d *DB) CreateDocument(ctx context.Context, doc *graph.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UnixMilli()
	if doc.CreatedAt == 0 {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt == 0 {
		doc.UpdatedAt = now
	}
	if doc.Layout.Kind == "" {
		doc.Layout.Kind = graph.LayoutTree
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback()

	var shareID any
	if doc.Sharing.ShareID != "" {
		shareID = doc.Sharing.ShareID
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.Title, doc.OwnerID, string(doc.Layout.Kind), doc.Layout.AutoLayout,
		doc.Sharing.Shared, doc.Sharing.ReadOnly, shareID, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	if err := writeNodes(ctx, tx, doc.ID, doc.Nodes); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *DB) getDocument(ctx context.Context, where string, args ...any) (*graph.Document, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE `+where, args...)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, graph.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	doc.Nodes, err = loadNodes(ctx, d.conn, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("reading nodes of %s: %w", doc.ID, err)
	}
	return &doc, nil
}

// GetDocument returns docID if userID owns it.
func (d *DB) GetDocument(ctx context.Context, docID, userID string) (*graph.Document, error) {
	doc, err := d.getDocument(ctx, `id = ? AND owner_id = ?`, docID, userID)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", docID, err)
	}
	return doc, nil
}

// GetSharedDocument returns docID if it is shared.
func (d *DB) GetSharedDocument(ctx context.Context, docID string) (*graph.Document, error) {
	doc, err := d.getDocument(ctx, `id = ? AND shared = 1`, docID)
	if err != nil {
		return nil, fmt.Errorf("shared document %s: %w", docID, err)
	}
	return doc, nil
}

// ListDocuments returns ownerID's documents (without nodes), most recently
// updated first. An empty ownerID lists every document.
func (d *DB) ListDocuments(ctx context.Context, ownerID string) ([]graph.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY updated_at DESC, id`

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []graph.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// SetSharing updates the sharing metadata of docID.
func (d *DB) SetSharing(ctx context.Context, docID string, sharing graph.Sharing) error {
	var shareID any
	if sharing.ShareID != "" {
		shareID = sharing.ShareID
	}
	res, err := d.conn.ExecContext(ctx, `
		UPDATE documents SET shared = ?, read_only = ?, share_id = ?, updated_at = ? WHERE id = ?
	`, sharing.Shared, sharing.ReadOnly, shareID, time.Now().UnixMilli(), docID)
	if err != nil {
		return fmt.Errorf("updating sharing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", docID, graph.ErrNotFound)
	}
	return nil
}

// SetLayout updates the layout configuration of docID.
func (d *DB) SetLayout(ctx context.Context, docID string, layout graph.LayoutConfig) error {
	res, err := d.conn.ExecContext(ctx, `
		UPDATE documents SET layout_kind = ?, auto_layout = ?, updated_at = ? WHERE id = ?
	`, string(layout.Kind), layout.AutoLayout, time.Now().UnixMilli(), docID)
	if err != nil {
		return fmt.Errorf("updating layout: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", docID, graph.ErrNotFound)
	}
	return nil
}

// DeleteDocument removes docID with its nodes and presence records.
func (d *DB) DeleteDocument(ctx context.Context, docID string) error {
	res, err := d.conn.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, docID)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", docID, graph.ErrNotFound)
	}
	return nil
}
