package model

import "testing"

func TestValidCallTransition(t *testing.T) {
	tests := []struct {
		from, to string
		ok       bool
	}{
		{CallStatusRinging, CallStatusActive, true},
		{CallStatusRinging, CallStatusDeclined, true},
		{CallStatusRinging, CallStatusEnded, true},
		{CallStatusActive, CallStatusEnded, true},
		{CallStatusActive, CallStatusDeclined, false},
		{CallStatusActive, CallStatusActive, false},
		{CallStatusEnded, CallStatusActive, false},
		{CallStatusDeclined, CallStatusEnded, false},
		{CallStatusRinging, "paused", false},
	}

	for _, tt := range tests {
		if got := ValidCallTransition(tt.from, tt.to); got != tt.ok {
			t.Fatalf("ValidCallTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestCallIsTerminal(t *testing.T) {
	for _, status := range []string{CallStatusRinging, CallStatusActive} {
		c := Call{Status: status}
		if c.IsTerminal() {
			t.Fatalf("%s call reported terminal", status)
		}
	}
	for _, status := range []string{CallStatusEnded, CallStatusDeclined} {
		c := Call{Status: status}
		if !c.IsTerminal() {
			t.Fatalf("%s call not reported terminal", status)
		}
	}
}
