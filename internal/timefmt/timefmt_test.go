package timefmt

import (
	"testing"
	"time"
)

// A fixed Wednesday afternoon keeps the weekday buckets deterministic.
var wednesday = time.Date(2025, time.March, 12, 15, 30, 0, 0, time.Local)

func TestMessageTime(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"earlier today", wednesday.Add(-2 * time.Hour), "1:30 PM"},
		{"this morning", time.Date(2025, time.March, 12, 9, 5, 0, 0, time.Local), "9:05 AM"},
		{"yesterday evening", wednesday.Add(-24 * time.Hour), "Yesterday"},
		{"three days ago", wednesday.AddDate(0, 0, -3), "Sun"},
		{"six days ago", wednesday.AddDate(0, 0, -6), "Thu"},
		{"one week ago", wednesday.AddDate(0, 0, -7), "Mar 5"},
		{"last year", time.Date(2024, time.December, 25, 10, 0, 0, 0, time.Local), "Dec 25"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MessageTime(tt.at, wednesday); got != tt.want {
				t.Errorf("MessageTime(%v) = %q, want %q", tt.at, got, tt.want)
			}
		})
	}
}

func TestLastSeen(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"seconds ago", wednesday.Add(-30 * time.Second), "Just now"},
		{"five minutes", wednesday.Add(-5 * time.Minute), "5 min ago"},
		{"one hour", wednesday.Add(-90 * time.Minute), "1 hour ago"},
		{"several hours", wednesday.Add(-5 * time.Hour), "5 hours ago"},
		{"one day", wednesday.Add(-30 * time.Hour), "1 day ago"},
		{"several days", wednesday.Add(-4 * 24 * time.Hour), "4 days ago"},
		{"over a week", wednesday.Add(-10 * 24 * time.Hour), "Mar 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LastSeen(tt.at, wednesday); got != tt.want {
				t.Errorf("LastSeen(%v) = %q, want %q", tt.at, got, tt.want)
			}
		})
	}
}
