package cli

import (
	"testing"
	"time"

	"github.com/julianstephens/lockstep/internal/models"
)

func TestParseWhen(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "empty is now", input: "", want: now},
		{name: "now", input: "now", want: now},
		{name: "duration offset", input: "+90m", want: now.Add(90 * time.Minute)},
		{name: "day offset", input: "+3d", want: now.Add(72 * time.Hour)},
		{name: "local datetime", input: "2026-03-12 18:30", want: time.Date(2026, 3, 12, 18, 30, 0, 0, time.UTC)},
		{name: "rfc3339", input: "2026-03-12T18:30:00Z", want: time.Date(2026, 3, 12, 18, 30, 0, 0, time.UTC)},
		{name: "negative offset", input: "+-1h", wantErr: true},
		{name: "bad day offset", input: "+xd", wantErr: true},
		{name: "garbage", input: "tomorrow", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWhen(tt.input, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseWhen(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseWhen(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatObligation(t *testing.T) {
	o := models.Obligation{
		ID:             "ob-1",
		Type:           "reading",
		Status:         models.ObligationBinding,
		UnitsRequired:  3,
		UnitsCompleted: 1,
		ScheduledAt:    time.Date(2026, 3, 12, 18, 30, 0, 0, time.UTC),
		DebtRepayment:  true,
	}
	want := "[BINDING] ob-1 reading - 1/3 units, scheduled 2026-03-12 18:30 [debt]"
	if got := FormatObligation(o, time.UTC); got != want {
		t.Errorf("FormatObligation() = %q, want %q", got, want)
	}
}
