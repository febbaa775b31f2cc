package enums

import "testing"

func TestTicketStatusLabels(t *testing.T) {
	cases := map[TicketStatus]string{
		TicketStatusOpen:       "открыт",
		TicketStatusInProgress: "в работе",
		TicketStatusClosed:     "закрыт",
	}
	for status, want := range cases {
		if got := status.Label(); got != want {
			t.Fatalf("label for %s: got %q, want %q", status, got, want)
		}
	}
}

func TestParseTicketStatus(t *testing.T) {
	if _, err := ParseTicketStatus("in_progress"); err != nil {
		t.Fatalf("parse in_progress: %v", err)
	}
	if _, err := ParseTicketStatus("archived"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
