package store

import (
	"sort"

	"github.com/google/uuid"

	"github.com/loudlane/cabinet-backend/pkg/db/models"
)

// Store holds the in-memory mirror of the backend tables for one sync
// session. It is pure data: lookups and blind overwrites only. Staleness
// rules live in the reducer, and the session serializes all access, so the
// store itself carries no locking.
type Store struct {
	users    map[uuid.UUID]models.User
	tickets  map[uuid.UUID]models.Ticket
	messages map[uuid.UUID]models.Message
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:    map[uuid.UUID]models.User{},
		tickets:  map[uuid.UUID]models.Ticket{},
		messages: map[uuid.UUID]models.Message{},
	}
}

// UpsertUser overwrites the stored user record.
func (s *Store) UpsertUser(user models.User) {
	s.users[user.ID] = user
}

// RemoveUser deletes the user if present.
func (s *Store) RemoveUser(id uuid.UUID) {
	delete(s.users, id)
}

// User returns the stored user record.
func (s *Store) User(id uuid.UUID) (models.User, bool) {
	user, ok := s.users[id]
	return user, ok
}

// Users returns every known user, ordered by creation time then id for a
// stable sequence.
func (s *Store) Users() []models.User {
	out := make([]models.User, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// UpsertTicket overwrites the stored ticket record.
func (s *Store) UpsertTicket(ticket models.Ticket) {
	s.tickets[ticket.ID] = ticket
}

// RemoveTicket deletes the ticket if present.
func (s *Store) RemoveTicket(id uuid.UUID) {
	delete(s.tickets, id)
}

// Ticket returns the stored ticket record.
func (s *Store) Ticket(id uuid.UUID) (models.Ticket, bool) {
	ticket, ok := s.tickets[id]
	return ticket, ok
}

// Tickets returns every ticket, newest first; ties broken by id for a
// stable sequence.
func (s *Store) Tickets() []models.Ticket {
	out := make([]models.Ticket, 0, len(s.tickets))
	for _, ticket := range s.tickets {
		out = append(out, ticket)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// UpsertMessage overwrites the stored message record.
func (s *Store) UpsertMessage(message models.Message) {
	s.messages[message.ID] = message
}

// RemoveMessage deletes the message if present.
func (s *Store) RemoveMessage(id uuid.UUID) {
	delete(s.messages, id)
}

// Message returns the stored message record.
func (s *Store) Message(id uuid.UUID) (models.Message, bool) {
	message, ok := s.messages[id]
	return message, ok
}

// MessagesForTicket returns the ticket's messages oldest first; ties broken
// by id for a stable sequence.
func (s *Store) MessagesForTicket(ticketID uuid.UUID) []models.Message {
	out := []models.Message{}
	for _, message := range s.messages {
		if message.TicketID == ticketID {
			out = append(out, message)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Messages returns every message oldest first.
func (s *Store) Messages() []models.Message {
	out := make([]models.Message, 0, len(s.messages))
	for _, message := range s.messages {
		out = append(out, message)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
