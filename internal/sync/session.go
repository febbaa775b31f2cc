package sync

import (
	"context"
	stdsync "sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/loudlane/cabinet-backend/internal/access"
	"github.com/loudlane/cabinet-backend/internal/backend"
	"github.com/loudlane/cabinet-backend/internal/notify"
	"github.com/loudlane/cabinet-backend/internal/store"
	"github.com/loudlane/cabinet-backend/pkg/config"
	"github.com/loudlane/cabinet-backend/pkg/db/models"
	"github.com/loudlane/cabinet-backend/pkg/enums"
	"github.com/loudlane/cabinet-backend/pkg/errors"
	"github.com/loudlane/cabinet-backend/pkg/logger"
	"github.com/loudlane/cabinet-backend/pkg/metrics"
)

// State is the session lifecycle phase.
type State string

const (
	StateIdle          State = "idle"
	StateBootstrapping State = "bootstrapping"
	StateLive          State = "live"
	StateClosed        State = "closed"
)

// Session owns one live mirror of the backend tables: an entity store, the
// reducer folding the change feed into it, and the subscriptions feeding
// the reducer. All store access goes through the session mutex, so feed
// events and readers never interleave mid-mutation. One Session serves the
// whole process; per-viewer filtering happens in the read helpers.
type Session struct {
	data      backend.DataService
	feed      backend.ChangeFeed
	readState notify.ReadStateStore
	logg      *logger.Logger
	metrics   *metrics.SyncMetrics
	cfg       config.SyncConfig

	mu      stdsync.Mutex
	state   State
	store   *store.Store
	reducer *Reducer
	subs    []backend.Subscription
}

func NewSession(
	data backend.DataService,
	feed backend.ChangeFeed,
	readState notify.ReadStateStore,
	logg *logger.Logger,
	sm *metrics.SyncMetrics,
	cfg config.SyncConfig,
) *Session {
	s := store.New()
	return &Session{
		data:      data,
		feed:      feed,
		readState: readState,
		logg:      logg,
		metrics:   sm,
		cfg:       cfg,
		state:     StateIdle,
		store:     s,
		reducer:   NewReducer(s, logg, sm),
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start subscribes to the change feed and then bootstraps the store from a
// bulk read. Subscribing first means nothing is missed: events arriving
// during the bulk read are buffered by the reducer and replayed on top of
// the snapshot. A failed subscription or a failed table read degrades that
// table instead of failing the session.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return errors.New(errors.CodeConflict, "session already started")
	}
	s.state = StateBootstrapping
	s.mu.Unlock()

	for _, table := range backend.Tables() {
		sub, err := s.feed.Subscribe(ctx, table, s.handleEvent)
		if err != nil {
			s.logg.Error(s.logg.WithTable(ctx, string(table)), "change feed subscription failed, table degrades to bootstrap-only data", err)
			continue
		}
		s.mu.Lock()
		if s.state == StateClosed {
			// Close ran while this table was subscribing; it can no
			// longer see this subscription, so detach it here.
			s.mu.Unlock()
			if err := sub.Cancel(); err != nil {
				s.logg.Error(s.logg.WithTable(ctx, string(table)), "canceling subscription created during close", err)
			}
			return errors.New(errors.CodeConflict, "session closed during bootstrap")
		}
		s.subs = append(s.subs, sub)
		s.mu.Unlock()
	}

	bootstrapCtx, cancel := context.WithTimeout(ctx, s.cfg.BootstrapTimeout)
	defer cancel()

	users, err := s.data.Users(bootstrapCtx)
	if err != nil {
		s.logg.Error(bootstrapCtx, "users bootstrap failed, proceeding without", err)
	}
	tickets, err := s.data.Tickets(bootstrapCtx)
	if err != nil {
		s.logg.Error(bootstrapCtx, "tickets bootstrap failed, proceeding without", err)
	}
	messages, err := s.data.Messages(bootstrapCtx)
	if err != nil {
		s.logg.Error(bootstrapCtx, "messages bootstrap failed, proceeding without", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return errors.New(errors.CodeConflict, "session closed during bootstrap")
	}
	s.reducer.LoadSnapshot(users, tickets, messages)
	replayed := s.reducer.MarkBootstrapped(ctx)
	s.state = StateLive

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"users":    len(users),
		"tickets":  len(tickets),
		"messages": len(messages),
		"replayed": len(replayed),
	}), "sync session live")
	return nil
}

func (s *Session) handleEvent(event backend.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.reducer.Apply(context.Background(), event)
}

// Close detaches every change-feed subscription and marks the session
// closed. Events in flight when Close is called are discarded; Cancel does
// not return until its stream stops delivering.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	// Cancel outside the mutex: a draining subscription may still be
	// inside handleEvent.
	var errs error
	for _, sub := range subs {
		errs = multierr.Append(errs, sub.Cancel())
	}
	return errs
}

// UserByID returns the mirrored user record.
func (s *Session) UserByID(id uuid.UUID) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.User(id)
}

// Admins returns every mirrored admin user.
func (s *Session) Admins() []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, user := range s.store.Users() {
		if user.Role == enums.RoleAdmin {
			out = append(out, user)
		}
	}
	return out
}

// TicketsFor returns the tickets the viewer may see, newest first.
func (s *Session) TicketsFor(viewer models.User) []models.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Ticket{}
	for _, ticket := range s.store.Tickets() {
		if access.CanAccessTicket(viewer, ticket) {
			out = append(out, ticket)
		}
	}
	return out
}

// TicketFor returns one ticket if the viewer may see it.
func (s *Session) TicketFor(viewer models.User, id uuid.UUID) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.store.Ticket(id)
	if !ok {
		return models.Ticket{}, errors.New(errors.CodeNotFound, "ticket not found")
	}
	if !access.CanAccessTicket(viewer, ticket) {
		return models.Ticket{}, errors.New(errors.CodeForbidden, "ticket belongs to another sublabel")
	}
	return ticket, nil
}

// MessagesFor returns the ticket's thread, oldest first, if the viewer may
// see the ticket.
func (s *Session) MessagesFor(viewer models.User, ticketID uuid.UUID) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.store.Ticket(ticketID)
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "ticket not found")
	}
	if !access.CanAccessTicket(viewer, ticket) {
		return nil, errors.New(errors.CodeForbidden, "ticket belongs to another sublabel")
	}
	return s.store.MessagesForTicket(ticketID), nil
}

// Notifications derives the viewer's notification list with read flags
// overlaid. The read-state load happens outside the session mutex; only
// the derivation pass holds it.
func (s *Session) Notifications(ctx context.Context, viewer models.User) ([]notify.Notification, error) {
	readState, err := s.readState.ReadState(ctx, viewer.ID.String())
	if err != nil {
		// Unreadable read-state degrades to all-unread, matching how
		// a corrupt local map is treated.
		s.logg.Error(ctx, "read state unavailable, deriving all-unread", err)
		readState = map[string]bool{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return notify.Derive(viewer, s.store, readState), nil
}

// MarkNotificationsRead flags the given notification ids as read for the
// viewer.
func (s *Session) MarkNotificationsRead(ctx context.Context, viewer models.User, ids ...string) error {
	return s.readState.MarkRead(ctx, viewer.ID.String(), ids...)
}
