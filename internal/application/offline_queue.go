package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// QueuedOperationType tags the replayable mutation kinds.
type QueuedOperationType string

const (
	// QueuedOpCreateSession replays a session create.
	QueuedOpCreateSession QueuedOperationType = "create-session"
	// QueuedOpUpdateSession replays an old-for-new session replacement.
	QueuedOpUpdateSession QueuedOperationType = "update-session"
)

// QueuedOperation is one durable mutation record. ID doubles as the stable
// idempotency identifier; it is a ULID so enqueue order and lexical order
// agree.
type QueuedOperation struct {
	ID        string
	Type      QueuedOperationType
	PetID     string
	UserID    string
	Session   LoggedSession
	Previous  *LoggedSession
	CreatedAt time.Time
}

// QueueStore persists queued operations in enqueue order.
type QueueStore interface {
	AppendOperation(ctx context.Context, op QueuedOperation) error
	ListOperations(ctx context.Context) ([]QueuedOperation, error)
	RemoveOperation(ctx context.Context, id string) error
}

// OfflineQueue defers session writes while connectivity is unavailable and
// replays them, strictly in enqueue order, once it returns. Replay stops on
// the first failure and preserves the remaining queue: at-least-once,
// ordered, non-concurrent.
type OfflineQueue struct {
	store    QueueStore
	sessions SessionStore
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

// NewOfflineQueue wires the queue service.
func NewOfflineQueue(store QueueStore, sessions SessionStore, now func() time.Time, logger *slog.Logger) *OfflineQueue {
	if now == nil {
		now = time.Now
	}
	return &OfflineQueue{
		store:    store,
		sessions: sessions,
		now:      now,
		newID:    func() string { return ulid.Make().String() },
		logger:   defaultLogger(logger),
	}
}

// Enqueue persists the operation before returning. The record carries its
// idempotency id and creation timestamp from this point on.
func (q *OfflineQueue) Enqueue(ctx context.Context, op QueuedOperation) error {
	if q == nil || q.store == nil {
		return fmt.Errorf("offline queue not configured")
	}
	if op.Type != QueuedOpCreateSession && op.Type != QueuedOpUpdateSession {
		return fmt.Errorf("offline queue: unknown operation type %q", op.Type)
	}
	if op.ID == "" {
		op.ID = q.newID()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = q.now()
	}

	if err := q.store.AppendOperation(ctx, op); err != nil {
		return fmt.Errorf("enqueue %s: %w", op.Type, err)
	}

	serviceLogger(ctx, q.logger, "OfflineQueue", "Enqueue", "op_id", op.ID, "op_type", string(op.Type)).
		Info("deferred session write while offline")
	return nil
}

// Drain replays queued operations in enqueue order, removing each record only
// after its write succeeded. On the first failure it stops and returns how
// many operations were applied; the failed operation and everything behind it
// stay queued in order.
func (q *OfflineQueue) Drain(ctx context.Context) (int, error) {
	if q == nil || q.store == nil {
		return 0, fmt.Errorf("offline queue not configured")
	}

	ops, err := q.store.ListOperations(ctx)
	if err != nil {
		return 0, fmt.Errorf("drain offline queue: %w", err)
	}

	logger := serviceLogger(ctx, q.logger, "OfflineQueue", "Drain", "queued", len(ops))

	applied := 0
	for _, op := range ops {
		if err := q.apply(ctx, op); err != nil {
			logger.Warn("queue replay stopped", "op_id", op.ID, "applied", applied, "error", err)
			return applied, fmt.Errorf("replay %s %s: %w", op.Type, op.ID, err)
		}
		if err := q.store.RemoveOperation(ctx, op.ID); err != nil {
			// The write landed but the record survived; the next drain will
			// replay it, which is within the at-least-once contract.
			logger.Warn("failed to remove replayed operation", "op_id", op.ID, "error", err)
			return applied + 1, fmt.Errorf("remove replayed operation %s: %w", op.ID, err)
		}
		applied++
	}

	if applied > 0 {
		logger.Info("offline queue drained", "applied", applied)
	}
	return applied, nil
}

// Pending returns how many operations are waiting for replay.
func (q *OfflineQueue) Pending(ctx context.Context) (int, error) {
	if q == nil || q.store == nil {
		return 0, fmt.Errorf("offline queue not configured")
	}
	ops, err := q.store.ListOperations(ctx)
	if err != nil {
		return 0, err
	}
	return len(ops), nil
}

func (q *OfflineQueue) apply(ctx context.Context, op QueuedOperation) error {
	if q.sessions == nil {
		return fmt.Errorf("session store not configured")
	}
	switch op.Type {
	case QueuedOpCreateSession:
		_, err := q.sessions.CreateSession(ctx, op.Session)
		return err
	case QueuedOpUpdateSession:
		if op.Previous == nil {
			return fmt.Errorf("update operation %s is missing its previous session", op.ID)
		}
		return q.sessions.UpdateSession(ctx, *op.Previous, op.Session)
	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
}
