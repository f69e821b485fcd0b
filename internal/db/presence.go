package db

import (
	"context"
	"fmt"

	"mycelica/arbor/internal/graph"
)

// UpdateActiveEditor inserts or refreshes a presence record.
func (d *DB) UpdateActiveEditor(ctx context.Context, e graph.ActiveEditor) error {
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO active_editors (doc_id, user_id, display_name, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (doc_id, user_id) DO UPDATE SET
			display_name = excluded.display_name,
			last_seen = excluded.last_seen
	`, e.DocumentID, e.UserID, e.DisplayName, e.LastSeen)
	if err != nil {
		return fmt.Errorf("updating active editor: %w", err)
	}
	return nil
}

// GetActiveEditors returns docID's presence records, most recent first.
func (d *DB) GetActiveEditors(ctx context.Context, docID string) ([]graph.ActiveEditor, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT doc_id, user_id, display_name, last_seen
		FROM active_editors WHERE doc_id = ?
		ORDER BY last_seen DESC, user_id
	`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	editors := []graph.ActiveEditor{}
	for rows.Next() {
		var e graph.ActiveEditor
		if err := rows.Scan(&e.DocumentID, &e.UserID, &e.DisplayName, &e.LastSeen); err != nil {
			return nil, err
		}
		editors = append(editors, e)
	}
	return editors, rows.Err()
}

// RemoveActiveEditor deletes a presence record. Removing a missing record is
// not an error.
func (d *DB) RemoveActiveEditor(ctx context.Context, docID, userID string) error {
	_, err := d.conn.ExecContext(ctx,
		`DELETE FROM active_editors WHERE doc_id = ? AND user_id = ?`, docID, userID)
	if err != nil {
		return fmt.Errorf("removing active editor: %w", err)
	}
	return nil
}

// PruneActiveEditors deletes presence records last seen before cutoff (unix
// millis). Returns how many were removed.
func (d *DB) PruneActiveEditors(ctx context.Context, cutoff int64) (int64, error) {
	res, err := d.conn.ExecContext(ctx, `DELETE FROM active_editors WHERE last_seen < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning active editors: %w", err)
	}
	return res.RowsAffected()
}
