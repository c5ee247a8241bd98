package chat

import "testing"

func TestCanAdvance(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusSending, StatusSent, true},
		{StatusSending, StatusFailed, true},
		{StatusSent, StatusDelivered, true},
		{StatusSent, StatusRead, true},
		{StatusDelivered, StatusRead, true},

		// Regressions are never allowed.
		{StatusSent, StatusSending, false},
		{StatusDelivered, StatusSent, false},
		{StatusRead, StatusDelivered, false},

		// Skipping sent is not allowed.
		{StatusSending, StatusDelivered, false},
		{StatusSending, StatusRead, false},

		// failed is terminal and only reachable from sending.
		{StatusFailed, StatusSending, false},
		{StatusFailed, StatusSent, false},
		{StatusSent, StatusFailed, false},
		{StatusDelivered, StatusFailed, false},
		{StatusRead, StatusFailed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanAdvance(tt.from, tt.to); got != tt.want {
				t.Errorf("CanAdvance(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusRead, StatusFailed} {
		if !Terminal(s) {
			t.Errorf("Terminal(%s) = false, want true", s)
		}
	}
	for _, s := range []Status{StatusSending, StatusSent, StatusDelivered} {
		if Terminal(s) {
			t.Errorf("Terminal(%s) = true, want false", s)
		}
	}
}

func TestPending(t *testing.T) {
	for _, s := range []Status{StatusSent, StatusDelivered} {
		if !Pending(s) {
			t.Errorf("Pending(%s) = false, want true", s)
		}
	}
	for _, s := range []Status{StatusSending, StatusRead, StatusFailed} {
		if Pending(s) {
			t.Errorf("Pending(%s) = true, want false", s)
		}
	}
}
