package models

import "testing"

func TestNextStatus_ForwardOnly(t *testing.T) {
	order := []string{StatusNew, StatusAnalyzed, StatusPreFilled, StatusSubmitted}
	for i := 0; i < len(order)-1; i++ {
		if got := NextStatus(order[i]); got != order[i+1] {
			t.Fatalf("NextStatus(%q) = %q, want %q", order[i], got, order[i+1])
		}
	}
	if got := NextStatus(StatusSubmitted); got != "" {
		t.Fatalf("submitted is terminal, NextStatus returned %q", got)
	}
	if got := NextStatus("ready"); got != "" {
		t.Fatalf("ready is not a stored status, NextStatus returned %q", got)
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []string{StatusNew, StatusAnalyzed, StatusPreFilled, StatusSubmitted} {
		if !ValidStatus(s) {
			t.Fatalf("ValidStatus(%q) = false", s)
		}
	}
	for _, s := range []string{"", "ready", "archived", "New"} {
		if ValidStatus(s) {
			t.Fatalf("ValidStatus(%q) = true", s)
		}
	}
}
