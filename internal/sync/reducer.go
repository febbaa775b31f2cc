package sync

import (
	"context"
	"encoding/json"

	"github.com/loudlane/cabinet-backend/internal/backend"
	"github.com/loudlane/cabinet-backend/internal/store"
	"github.com/loudlane/cabinet-backend/pkg/db/models"
	"github.com/loudlane/cabinet-backend/pkg/enums"
	"github.com/loudlane/cabinet-backend/pkg/errors"
	"github.com/loudlane/cabinet-backend/pkg/logger"
	"github.com/loudlane/cabinet-backend/pkg/metrics"
)

// Outcome describes what the reducer did with one event. At most one of
// Applied, Buffered and StaleRejected is set; all false means the event was
// a no-op (delete of an absent row).
type Outcome struct {
	Applied       bool
	Buffered      bool
	StaleRejected bool

	Table backend.Table
	Op    enums.ChangeOp

	// Ticket and PrevTicket are set for applied ticket events: the row
	// after the change and, for updates, the row it replaced.
	Ticket     *models.Ticket
	PrevTicket *models.Ticket
	// Message is set for applied message events.
	Message *models.Message
}

// Reducer folds change-feed events into a Store. Until MarkBootstrapped is
// called, every event is buffered; the bootstrap snapshot is loaded first
// and the buffer replayed on top of it in arrival order. The reducer is not
// safe for concurrent use; the session serializes calls to it.
type Reducer struct {
	store        *store.Store
	logg         *logger.Logger
	metrics      *metrics.SyncMetrics
	bootstrapped bool
	buffer       []backend.ChangeEvent
}

// NewReducer returns a reducer over the given store. The reducer starts in
// buffering mode.
func NewReducer(s *store.Store, logg *logger.Logger, m *metrics.SyncMetrics) *Reducer {
	return &Reducer{store: s, logg: logg, metrics: m}
}

// Bootstrapped reports whether the snapshot has been loaded and replayed.
func (r *Reducer) Bootstrapped() bool {
	return r.bootstrapped
}

// Apply folds one event into the store, or buffers it when the snapshot has
// not been loaded yet.
func (r *Reducer) Apply(ctx context.Context, event backend.ChangeEvent) Outcome {
	if !r.bootstrapped {
		r.buffer = append(r.buffer, event)
		r.metrics.IncBuffered(string(event.Table))
		return Outcome{Buffered: true, Table: event.Table, Op: event.Op}
	}
	return r.apply(ctx, event)
}

// LoadSnapshot seeds the store from a bootstrap read. Rows already present
// (placed there by a reordered replay in a previous session life) are
// overwritten: the snapshot is the baseline, the buffer replays on top.
func (r *Reducer) LoadSnapshot(users []models.User, tickets []models.Ticket, msgs []models.Message) {
	for _, user := range users {
		r.store.UpsertUser(user)
	}
	for _, ticket := range tickets {
		r.store.UpsertTicket(ticket)
	}
	for _, message := range msgs {
		r.store.UpsertMessage(message)
	}
}

// MarkBootstrapped replays the buffered events in arrival order and switches
// the reducer to live mode. The buffer is released afterwards.
func (r *Reducer) MarkBootstrapped(ctx context.Context) []Outcome {
	outcomes := make([]Outcome, 0, len(r.buffer))
	r.bootstrapped = true
	for _, event := range r.buffer {
		outcomes = append(outcomes, r.apply(ctx, event))
	}
	r.buffer = nil
	return outcomes
}

func (r *Reducer) apply(ctx context.Context, event backend.ChangeEvent) Outcome {
	ctx = r.logg.WithTable(ctx, string(event.Table))
	switch event.Table {
	case backend.TableUsers:
		return r.applyUser(ctx, event)
	case backend.TableTickets:
		return r.applyTicket(ctx, event)
	case backend.TableMessages:
		return r.applyMessage(ctx, event)
	default:
		r.logg.Warn(ctx, "change event for unknown table dropped")
		return Outcome{Table: event.Table, Op: event.Op}
	}
}

func (r *Reducer) applyUser(ctx context.Context, event backend.ChangeEvent) Outcome {
	out := Outcome{Table: event.Table, Op: event.Op}
	switch event.Op {
	case enums.ChangeOpInsert, enums.ChangeOpUpdate:
		var user models.User
		if err := decodeRow(event.After, &user); err != nil {
			r.logg.Error(ctx, "undecodable user row dropped", err)
			return out
		}
		r.store.UpsertUser(user)
		out.Applied = true
	case enums.ChangeOpDelete:
		var user models.User
		if err := decodeRow(event.Before, &user); err != nil {
			r.logg.Error(ctx, "undecodable user row dropped", err)
			return out
		}
		if _, ok := r.store.User(user.ID); !ok {
			return out
		}
		r.store.RemoveUser(user.ID)
		out.Applied = true
	}
	if out.Applied {
		r.metrics.IncApplied(string(event.Table), event.Op.String())
	}
	return out
}

func (r *Reducer) applyTicket(ctx context.Context, event backend.ChangeEvent) Outcome {
	out := Outcome{Table: event.Table, Op: event.Op}
	switch event.Op {
	case enums.ChangeOpInsert, enums.ChangeOpUpdate:
		var ticket models.Ticket
		if err := decodeRow(event.After, &ticket); err != nil {
			r.logg.Error(ctx, "undecodable ticket row dropped", err)
			return out
		}
		ctx = r.logg.WithTicketID(ctx, ticket.ID.String())
		prev, existed := r.store.Ticket(ticket.ID)
		// An insert for a known row replays an already-mirrored write;
		// treat it as an update so the stale guard still applies.
		if existed && !ticket.UpdatedAt.After(prev.UpdatedAt) {
			r.metrics.IncStaleRejected()
			r.logg.Debug(ctx, "stale ticket event rejected")
			out.StaleRejected = true
			return out
		}
		r.store.UpsertTicket(ticket)
		out.Applied = true
		out.Ticket = &ticket
		if existed {
			out.PrevTicket = &prev
		}
	case enums.ChangeOpDelete:
		var ticket models.Ticket
		if err := decodeRow(event.Before, &ticket); err != nil {
			r.logg.Error(ctx, "undecodable ticket row dropped", err)
			return out
		}
		prev, ok := r.store.Ticket(ticket.ID)
		if !ok {
			return out
		}
		r.store.RemoveTicket(ticket.ID)
		out.Applied = true
		out.PrevTicket = &prev
	}
	if out.Applied {
		r.metrics.IncApplied(string(event.Table), event.Op.String())
	}
	return out
}

func (r *Reducer) applyMessage(ctx context.Context, event backend.ChangeEvent) Outcome {
	out := Outcome{Table: event.Table, Op: event.Op}
	switch event.Op {
	case enums.ChangeOpInsert, enums.ChangeOpUpdate:
		var message models.Message
		if err := decodeRow(event.After, &message); err != nil {
			r.logg.Error(ctx, "undecodable message row dropped", err)
			return out
		}
		r.store.UpsertMessage(message)
		out.Applied = true
		out.Message = &message
	case enums.ChangeOpDelete:
		var message models.Message
		if err := decodeRow(event.Before, &message); err != nil {
			r.logg.Error(ctx, "undecodable message row dropped", err)
			return out
		}
		if _, ok := r.store.Message(message.ID); !ok {
			return out
		}
		r.store.RemoveMessage(message.ID)
		out.Applied = true
	}
	if out.Applied {
		r.metrics.IncApplied(string(event.Table), event.Op.String())
	}
	return out
}

func decodeRow(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return errors.New(errors.CodeValidation, "change event carries no row payload")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.Wrap(errors.CodeValidation, err, "decode change event row")
	}
	return nil
}
