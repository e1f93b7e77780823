package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/application"
	"github.com/marcantoine-malacquis/hydracat-sub001/internal/persistence"
)

// QueueRepository implements application.QueueStore on the local store. The
// autoincrement sequence column preserves enqueue order independently of the
// operation ids.
type QueueRepository struct {
	store *Store
}

// NewQueueRepository wires a repository on the store.
func NewQueueRepository(store *Store) *QueueRepository {
	return &QueueRepository{store: store}
}

// AppendOperation persists the operation; it is durable once this returns.
func (r *QueueRepository) AppendOperation(ctx context.Context, op application.QueuedOperation) error {
	payload, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("encode queued operation: %w", err)
	}
	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO queue_operations (id, payload, created_at)
		VALUES (?, ?, ?)`,
		op.ID,
		string(payload),
		op.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return mapError(err)
}

// ListOperations returns queued operations in enqueue order.
func (r *QueueRepository) ListOperations(ctx context.Context) ([]application.QueuedOperation, error) {
	rows, err := r.store.db.QueryContext(ctx, `SELECT payload FROM queue_operations ORDER BY seq`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var ops []application.QueuedOperation
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var op application.QueuedOperation
		if err := json.Unmarshal([]byte(payload), &op); err != nil {
			return nil, &application.DataFormatError{Detail: "unreadable queued operation", Cause: err}
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// RemoveOperation deletes a replayed operation by id.
func (r *QueueRepository) RemoveOperation(ctx context.Context, id string) error {
	result, err := r.store.db.ExecContext(ctx, `DELETE FROM queue_operations WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
