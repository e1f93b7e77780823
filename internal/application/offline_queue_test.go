package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type queueStoreStub struct {
	mu  sync.Mutex
	ops []QueuedOperation
}

func (s *queueStoreStub) AppendOperation(ctx context.Context, op QueuedOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op)
	return nil
}

func (s *queueStoreStub) ListOperations(ctx context.Context) ([]QueuedOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]QueuedOperation, len(s.ops))
	copy(out, s.ops)
	return out, nil
}

func (s *queueStoreStub) RemoveOperation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, op := range s.ops {
		if op.ID == id {
			s.ops = append(s.ops[:i], s.ops[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("operation %s not found", id)
}

type sessionStoreStub struct {
	mu        sync.Mutex
	created   []LoggedSession
	updated   []LoggedSession
	createErr map[string]error
}

func (s *sessionStoreStub) CreateSession(ctx context.Context, session LoggedSession) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createErr[session.ID]; err != nil {
		return "", err
	}
	s.created = append(s.created, session)
	return session.ID, nil
}

func (s *sessionStoreStub) UpdateSession(ctx context.Context, oldSession, newSession LoggedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, newSession)
	return nil
}

func queuedCreate(sessionID string) QueuedOperation {
	return QueuedOperation{
		Type:   QueuedOpCreateSession,
		PetID:  "pet-1",
		UserID: "user-1",
		Session: LoggedSession{
			ID:             sessionID,
			UserID:         "user-1",
			PetID:          "pet-1",
			Kind:           TreatmentKindMedication,
			At:             time.Date(2024, time.March, 15, 8, 0, 0, 0, time.UTC),
			MedicationName: "Amlodipine",
			DosageGiven:    1,
			Completed:      true,
		},
	}
}

func TestOfflineQueue_Enqueue(t *testing.T) {
	store := &queueStoreStub{}
	now := time.Date(2024, time.March, 15, 8, 0, 0, 0, time.UTC)
	queue := NewOfflineQueue(store, &sessionStoreStub{}, func() time.Time { return now }, nil)

	if err := queue.Enqueue(context.Background(), queuedCreate("session-1")); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	if len(store.ops) != 1 {
		t.Fatalf("expected the operation to be persisted before return")
	}
	op := store.ops[0]
	if op.ID == "" {
		t.Fatalf("expected an idempotency id to be assigned")
	}
	if !op.CreatedAt.Equal(now) {
		t.Fatalf("expected the enqueue timestamp, got %v", op.CreatedAt)
	}

	if err := queue.Enqueue(context.Background(), QueuedOperation{Type: "drop-table"}); err == nil {
		t.Fatalf("expected unknown operation types to be rejected")
	}
}

func TestOfflineQueue_DrainAppliesInOrder(t *testing.T) {
	store := &queueStoreStub{}
	sessions := &sessionStoreStub{}
	queue := NewOfflineQueue(store, sessions, nil, nil)

	for _, id := range []string{"session-1", "session-2", "session-3"} {
		if err := queue.Enqueue(context.Background(), queuedCreate(id)); err != nil {
			t.Fatalf("Enqueue returned error: %v", err)
		}
	}

	applied, err := queue.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if applied != 3 {
		t.Fatalf("expected 3 applied operations, got %d", applied)
	}
	if len(sessions.created) != 3 {
		t.Fatalf("expected 3 session writes, got %d", len(sessions.created))
	}
	for i, id := range []string{"session-1", "session-2", "session-3"} {
		if sessions.created[i].ID != id {
			t.Fatalf("expected replay in enqueue order, got %v", sessions.created)
		}
	}
	if pending, _ := queue.Pending(context.Background()); pending != 0 {
		t.Fatalf("expected an empty queue after drain, got %d", pending)
	}
}

func TestOfflineQueue_DrainStopsOnFirstFailure(t *testing.T) {
	store := &queueStoreStub{}
	sessions := &sessionStoreStub{createErr: map[string]error{
		"session-2": errors.New("backend unavailable"),
	}}
	queue := NewOfflineQueue(store, sessions, nil, nil)

	for _, id := range []string{"session-1", "session-2", "session-3"} {
		if err := queue.Enqueue(context.Background(), queuedCreate(id)); err != nil {
			t.Fatalf("Enqueue returned error: %v", err)
		}
	}

	applied, err := queue.Drain(context.Background())
	if err == nil {
		t.Fatalf("expected drain to surface the replay failure")
	}
	if applied != 1 {
		t.Fatalf("expected 1 applied operation before the failure, got %d", applied)
	}

	// The failed operation and everything behind it stay queued, in order.
	remaining, lerr := store.ListOperations(context.Background())
	if lerr != nil {
		t.Fatalf("ListOperations returned error: %v", lerr)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 operations to survive, got %d", len(remaining))
	}
	if remaining[0].Session.ID != "session-2" || remaining[1].Session.ID != "session-3" {
		t.Fatalf("unexpected surviving order: %s, %s", remaining[0].Session.ID, remaining[1].Session.ID)
	}

	// A later drain replays the survivors.
	sessions.mu.Lock()
	delete(sessions.createErr, "session-2")
	sessions.mu.Unlock()

	applied, err = queue.Drain(context.Background())
	if err != nil {
		t.Fatalf("second drain returned error: %v", err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 applied operations on retry, got %d", applied)
	}
}

func TestOfflineQueue_DrainReplaysUpdates(t *testing.T) {
	store := &queueStoreStub{}
	sessions := &sessionStoreStub{}
	queue := NewOfflineQueue(store, sessions, nil, nil)

	previous := queuedCreate("session-1").Session
	corrected := previous
	corrected.DosageGiven = 2

	err := queue.Enqueue(context.Background(), QueuedOperation{
		Type:     QueuedOpUpdateSession,
		PetID:    "pet-1",
		UserID:   "user-1",
		Session:  corrected,
		Previous: &previous,
	})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	if _, err := queue.Drain(context.Background()); err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if len(sessions.updated) != 1 || sessions.updated[0].DosageGiven != 2 {
		t.Fatalf("expected the corrected session to be applied, got %+v", sessions.updated)
	}
}
