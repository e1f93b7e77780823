package testfixtures

import (
	"testing"
	"time"
)

func TestClockZeroStartPinsReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
}

func TestClockWalksADayForward(t *testing.T) {
	morning := time.Date(2024, time.March, 15, 8, 0, 0, 0, time.UTC)
	clock := NewClock(morning)

	// Step past a two-hour completion window one write at a time.
	first := clock.Advance(time.Hour)
	second := clock.Advance(time.Hour + time.Minute)
	if !second.After(first) {
		t.Fatalf("advances must be strictly increasing: %v then %v", first, second)
	}
	if !clock.Now().Equal(morning.Add(2*time.Hour + time.Minute)) {
		t.Fatalf("unexpected clock position %v", clock.Now())
	}

	evening := time.Date(2024, time.March, 15, 18, 0, 0, 0, time.UTC)
	clock.Set(evening)
	if !clock.Now().Equal(evening) {
		t.Fatalf("expected %v after Set, got %v", evening, clock.Now())
	}
}
