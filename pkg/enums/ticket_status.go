package enums

import "fmt"

// TicketStatus maps to the ticket_status enum in Postgres. Any transition
// between statuses is legal; the workflow order is open -> in_progress -> closed.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusClosed     TicketStatus = "closed"
)

var validTicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusClosed,
}

var ticketStatusLabels = map[TicketStatus]string{
	TicketStatusOpen:       "открыт",
	TicketStatusInProgress: "в работе",
	TicketStatusClosed:     "закрыт",
}

// String implements fmt.Stringer.
func (s TicketStatus) String() string {
	return string(s)
}

// Label returns the user-facing status label used in notifications and emails.
func (s TicketStatus) Label() string {
	if label, ok := ticketStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

// IsValid reports whether the value is a known TicketStatus.
func (s TicketStatus) IsValid() bool {
	for _, candidate := range validTicketStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseTicketStatus converts raw input into a TicketStatus.
func ParseTicketStatus(value string) (TicketStatus, error) {
	for _, candidate := range validTicketStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ticket status %q", value)
}
