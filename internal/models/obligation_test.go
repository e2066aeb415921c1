package models

import (
	"testing"
	"time"
)

func TestResolveStatus(t *testing.T) {
	scheduled := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	base := Obligation{
		ID:            "ob-1",
		UnitsRequired: 3,
		ScheduledAt:   scheduled,
		BindingTime:   BindingTimeFor(scheduled),
		Status:        ObligationCreated,
	}

	tests := []struct {
		name   string
		stored ObligationStatus
		now    time.Time
		want   ObligationStatus
	}{
		{"48h before stays created", ObligationCreated, scheduled.Add(-48 * time.Hour), ObligationCreated},
		{"exactly at binding time", ObligationCreated, scheduled.Add(-24 * time.Hour), ObligationBinding},
		{"12h before is binding", ObligationCreated, scheduled.Add(-12 * time.Hour), ObligationBinding},
		{"at scheduled time is bound", ObligationCreated, scheduled, ObligationBound},
		{"after window still bound", ObligationBinding, scheduled.Add(30 * time.Hour), ObligationBound},
		{"stored bound never regresses", ObligationBound, scheduled.Add(-48 * time.Hour), ObligationBound},
		{"stored binding never regresses", ObligationBinding, scheduled.Add(-30 * time.Hour), ObligationBinding},
		{"executed passes through", ObligationExecuted, scheduled.Add(2 * time.Hour), ObligationExecuted},
		{"failed passes through", ObligationFailed, scheduled.Add(-48 * time.Hour), ObligationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := base
			o.Status = tt.stored
			if got := ResolveStatus(o, tt.now); got != tt.want {
				t.Errorf("ResolveStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestObligationWindowEnd(t *testing.T) {
	scheduled := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	o := Obligation{ScheduledAt: scheduled}
	if want := scheduled.Add(24 * time.Hour); !o.WindowEnd().Equal(want) {
		t.Errorf("WindowEnd() = %v, want %v", o.WindowEnd(), want)
	}
	if !BindingTimeFor(scheduled).Equal(scheduled.Add(-24 * time.Hour)) {
		t.Error("BindingTimeFor should be 24h before scheduled time")
	}
}

func TestActionLockTimes(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	lock := &ActionLock{
		Status:         LockActive,
		WindowEnd:      now.Add(2 * time.Hour),
		LastActivityAt: now.Add(-90 * time.Second),
	}

	if got := lock.TimeRemaining(now); got != 2*time.Hour {
		t.Errorf("TimeRemaining() = %v, want 2h", got)
	}
	if got := lock.TimeRemaining(now.Add(3 * time.Hour)); got != 0 {
		t.Errorf("TimeRemaining() past window = %v, want 0", got)
	}
	if got := lock.IdleFor(now); got != 90*time.Second {
		t.Errorf("IdleFor() = %v, want 90s", got)
	}

	var nilLock *ActionLock
	if nilLock.IsActive() {
		t.Error("nil lock should not be active")
	}
}
