package tenants

import (
	"testing"
	"time"
)

func TestBusinessHoursWithin(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	hours := BusinessHours{
		Start:    "09:00",
		End:      "20:00",
		Weekdays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		// 2026-03-10 is a Tuesday; 15:00 UTC is 10:00 in New York.
		{"weekday inside window", time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC), true},
		// 08:00 UTC is 03:00 local.
		{"weekday before open", time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC), false},
		// 01:30 UTC Wednesday is 20:30 Tuesday local, after close.
		{"weekday after close", time.Date(2026, 3, 11, 1, 30, 0, 0, time.UTC), false},
		// 2026-03-14 is a Saturday.
		{"weekend excluded", time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC), false},
		// Exactly at close is outside (half-open window).
		{"close boundary", time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := hours.Within(tc.now, ny); got != tc.want {
				t.Fatalf("Within(%v) = %v, want %v", tc.now, got, tc.want)
			}
		})
	}
}

func TestBusinessHoursEmptyAlwaysOpen(t *testing.T) {
	var hours BusinessHours
	if !hours.Within(time.Date(2026, 3, 14, 3, 0, 0, 0, time.UTC), time.UTC) {
		t.Fatal("empty window should always be open")
	}
}

func TestSettingsLocationFallback(t *testing.T) {
	if loc := (Settings{Timezone: "Not/AZone"}).Location(); loc != time.UTC {
		t.Fatalf("bad zone should fall back to UTC, got %v", loc)
	}
	if loc := (Settings{}).Location(); loc != time.UTC {
		t.Fatalf("empty zone should fall back to UTC, got %v", loc)
	}
}
