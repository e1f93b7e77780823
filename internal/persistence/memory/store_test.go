package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/application"
	"github.com/marcantoine-malacquis/hydracat-sub001/internal/persistence"
	"github.com/marcantoine-malacquis/hydracat-sub001/internal/testfixtures"
)

func TestStore_Schedules(t *testing.T) {
	ctx := context.Background()
	store := NewStore(time.UTC)
	pet := "pet-mem"

	med := testfixtures.NewMedicationSchedule(testfixtures.WithPetID(pet))
	fluid := testfixtures.NewFluidSchedule(testfixtures.WithPetID(pet))
	retired := testfixtures.NewMedicationSchedule(testfixtures.WithPetID(pet), testfixtures.Inactive())
	for _, s := range []application.Schedule{med, fluid, retired} {
		if _, err := store.CreateSchedule(ctx, s); err != nil {
			t.Fatalf("CreateSchedule returned error: %v", err)
		}
	}

	if _, err := store.CreateSchedule(ctx, med); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	gotFluid, err := store.ActiveFluidSchedule(ctx, pet)
	if err != nil || gotFluid == nil || gotFluid.ID != fluid.ID {
		t.Fatalf("unexpected fluid schedule: %+v err=%v", gotFluid, err)
	}

	meds, err := store.ActiveMedicationSchedules(ctx, pet)
	if err != nil || len(meds) != 1 || meds[0].ID != med.ID {
		t.Fatalf("unexpected medication schedules: %+v err=%v", meds, err)
	}

	all, err := store.ListSchedules(ctx, pet)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected all 3 schedules, got %+v err=%v", all, err)
	}

	if err := store.DeleteSchedule(ctx, med.ID); err != nil {
		t.Fatalf("DeleteSchedule returned error: %v", err)
	}
	if _, err := store.GetSchedule(ctx, med.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStore_SessionsScopedByDate(t *testing.T) {
	ctx := context.Background()
	store := NewStore(time.UTC)

	day := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	today := testfixtures.NewMedicationSession(testfixtures.At(day.Add(8 * time.Hour)))
	tomorrow := testfixtures.NewMedicationSession(testfixtures.At(day.AddDate(0, 0, 1)))
	for _, s := range []application.LoggedSession{today, tomorrow} {
		if _, err := store.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession returned error: %v", err)
		}
	}

	got, err := store.SessionsOn(ctx, "pet-1", "2024-03-15")
	if err != nil {
		t.Fatalf("SessionsOn returned error: %v", err)
	}
	if len(got) != 1 || got[0].ID != today.ID {
		t.Fatalf("expected only today's session, got %+v", got)
	}

	corrected := today
	corrected.DosageGiven = 2
	if err := store.UpdateSession(ctx, today, corrected); err != nil {
		t.Fatalf("UpdateSession returned error: %v", err)
	}
	got, _ = store.SessionsOn(ctx, "pet-1", "2024-03-15")
	if len(got) != 1 || got[0].DosageGiven != 2 {
		t.Fatalf("expected the corrected session, got %+v", got)
	}
}

func TestStore_QueueOrder(t *testing.T) {
	ctx := context.Background()
	store := NewStore(time.UTC)

	ids := testfixtures.NewIDGenerator("op")
	for i := 0; i < 3; i++ {
		op := application.QueuedOperation{
			ID:        ids.Next(),
			Type:      application.QueuedOpCreateSession,
			Session:   testfixtures.NewMedicationSession(),
			CreatedAt: testfixtures.ReferenceTime(),
		}
		if err := store.AppendOperation(ctx, op); err != nil {
			t.Fatalf("AppendOperation returned error: %v", err)
		}
	}

	if err := store.RemoveOperation(ctx, "op-2"); err != nil {
		t.Fatalf("RemoveOperation returned error: %v", err)
	}

	ops, err := store.ListOperations(ctx)
	if err != nil {
		t.Fatalf("ListOperations returned error: %v", err)
	}
	if len(ops) != 2 || ops[0].ID != "op-1" || ops[1].ID != "op-3" {
		t.Fatalf("unexpected queue contents: %+v", ops)
	}

	if err := store.RemoveOperation(ctx, "op-2"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
