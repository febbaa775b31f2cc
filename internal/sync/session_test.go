package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loudlane/cabinet-backend/internal/backend"
	"github.com/loudlane/cabinet-backend/internal/notify"
	"github.com/loudlane/cabinet-backend/pkg/config"
	"github.com/loudlane/cabinet-backend/pkg/db/models"
	"github.com/loudlane/cabinet-backend/pkg/enums"
	"github.com/loudlane/cabinet-backend/pkg/errors"
)

type fakeDataService struct {
	users    []models.User
	tickets  []models.Ticket
	messages []models.Message

	usersErr error
	// onTickets runs while the bulk read is in flight, letting tests
	// inject feed events that race the bootstrap.
	onTickets func()
}

func (f *fakeDataService) Users(context.Context) ([]models.User, error) {
	return f.users, f.usersErr
}

func (f *fakeDataService) Tickets(context.Context) ([]models.Ticket, error) {
	if f.onTickets != nil {
		f.onTickets()
	}
	return f.tickets, nil
}

func (f *fakeDataService) Messages(context.Context) ([]models.Message, error) {
	return f.messages, nil
}

func (f *fakeDataService) InsertTicket(context.Context, *models.Ticket) error { return nil }

func (f *fakeDataService) UpdateTicket(context.Context, uuid.UUID, backend.TicketPatch) (*models.Ticket, error) {
	return nil, nil
}

func (f *fakeDataService) InsertMessage(context.Context, *models.Message) error { return nil }

type fakeSubscription struct {
	mu       sync.Mutex
	canceled bool
}

func (f *fakeSubscription) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = true
	return nil
}

func (f *fakeSubscription) isCanceled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canceled
}

type fakeFeed struct {
	mu       sync.Mutex
	handlers map[backend.Table]func(backend.ChangeEvent)
	subs     []*fakeSubscription
	failFor  map[backend.Table]error
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{handlers: map[backend.Table]func(backend.ChangeEvent){}}
}

func (f *fakeFeed) Subscribe(_ context.Context, table backend.Table, handler func(backend.ChangeEvent)) (backend.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[table]; err != nil {
		return nil, err
	}
	f.handlers[table] = handler
	sub := &fakeSubscription{}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeFeed) deliver(t *testing.T, table backend.Table, event backend.ChangeEvent) {
	t.Helper()
	f.mu.Lock()
	handler := f.handlers[table]
	f.mu.Unlock()
	require.NotNil(t, handler, "no handler subscribed for table %s", table)
	handler(event)
}

// gatedFeed parks the first Subscribe call until released, letting tests
// interleave Close with a Start that is still subscribing.
type gatedFeed struct {
	*fakeFeed
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedFeed() *gatedFeed {
	return &gatedFeed{
		fakeFeed: newFakeFeed(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (f *gatedFeed) Subscribe(ctx context.Context, table backend.Table, handler func(backend.ChangeEvent)) (backend.Subscription, error) {
	f.once.Do(func() { close(f.entered) })
	<-f.release
	return f.fakeFeed.Subscribe(ctx, table, handler)
}

func syncCfg() config.SyncConfig {
	return config.SyncConfig{BootstrapTimeout: time.Second, PublishTimeout: time.Second}
}

func newTestSession(data backend.DataService, feed backend.ChangeFeed) *Session {
	return NewSession(data, feed, notify.NewMemoryReadState(), testLogger(), nil, syncCfg())
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	feed := newFakeFeed()
	session := newTestSession(&fakeDataService{}, feed)

	assert.Equal(t, StateIdle, session.State())
	require.NoError(t, session.Start(ctx))
	assert.Equal(t, StateLive, session.State())
	assert.Len(t, feed.subs, 3)

	require.NoError(t, session.Close())
	assert.Equal(t, StateClosed, session.State())
	for _, sub := range feed.subs {
		assert.True(t, sub.isCanceled())
	}

	// Closing again is a no-op.
	require.NoError(t, session.Close())
}

func TestSessionCloseDuringStartCancelsLateSubscriptions(t *testing.T) {
	feed := newGatedFeed()
	session := newTestSession(&fakeDataService{}, feed)

	errCh := make(chan error, 1)
	go func() { errCh <- session.Start(context.Background()) }()

	<-feed.entered
	require.NoError(t, session.Close())
	close(feed.release)

	err := <-errCh
	require.Error(t, err)
	assert.Equal(t, errors.CodeConflict, errors.CodeOf(err))
	assert.Equal(t, StateClosed, session.State())

	// The subscription created after Close must not outlive the session.
	require.NotEmpty(t, feed.subs)
	for _, sub := range feed.subs {
		assert.True(t, sub.isCanceled())
	}
}

func TestSessionStartTwiceFails(t *testing.T) {
	ctx := context.Background()
	session := newTestSession(&fakeDataService{}, newFakeFeed())

	require.NoError(t, session.Start(ctx))
	err := session.Start(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.CodeConflict, errors.CodeOf(err))
}

func TestSessionBootstrapLoadsSnapshot(t *testing.T) {
	ctx := context.Background()
	sub := models.User{ID: uuid.New(), Email: "sub@x.io", Role: enums.RoleSublabel}
	ticket := models.Ticket{ID: uuid.New(), Title: "t", Status: enums.TicketStatusOpen, CreatedBy: sub.ID, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}

	data := &fakeDataService{users: []models.User{sub}, tickets: []models.Ticket{ticket}}
	session := newTestSession(data, newFakeFeed())
	require.NoError(t, session.Start(ctx))

	got, ok := session.UserByID(sub.ID)
	require.True(t, ok)
	assert.Equal(t, "sub@x.io", got.Email)

	tickets := session.TicketsFor(sub)
	require.Len(t, tickets, 1)
	assert.Equal(t, ticket.ID, tickets[0].ID)
}

func TestSessionReplaysEventsArrivingDuringBootstrap(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	sub := models.User{ID: uuid.New(), Role: enums.RoleSublabel}
	snapshot := models.Ticket{ID: uuid.New(), Title: "t", Status: enums.TicketStatusOpen, CreatedBy: sub.ID, CreatedAt: base, UpdatedAt: base}

	live := snapshot
	live.Status = enums.TicketStatusClosed
	live.UpdatedAt = base.Add(time.Minute)

	feed := newFakeFeed()
	data := &fakeDataService{users: []models.User{sub}, tickets: []models.Ticket{snapshot}}
	var session *Session
	data.onTickets = func() {
		feed.deliver(t, backend.TableTickets, backend.ChangeEvent{
			Table: backend.TableTickets,
			Op:    enums.ChangeOpUpdate,
			After: mustJSON(t, live),
		})
	}

	session = newTestSession(data, feed)
	require.NoError(t, session.Start(ctx))

	tickets := session.TicketsFor(sub)
	require.Len(t, tickets, 1)
	assert.Equal(t, enums.TicketStatusClosed, tickets[0].Status)
}

func TestSessionDegradesWhenSubscriptionFails(t *testing.T) {
	ctx := context.Background()
	feed := newFakeFeed()
	feed.failFor = map[backend.Table]error{
		backend.TableMessages: errors.New(errors.CodeDependency, "broker down"),
	}
	ticket := models.Ticket{ID: uuid.New(), Title: "t", CreatedBy: uuid.New(), CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	data := &fakeDataService{tickets: []models.Ticket{ticket}, usersErr: errors.New(errors.CodeDependency, "db down")}

	session := newTestSession(data, feed)
	require.NoError(t, session.Start(ctx))
	assert.Equal(t, StateLive, session.State())
	assert.Len(t, feed.subs, 2)

	admin := models.User{ID: uuid.New(), Role: enums.RoleAdmin}
	assert.Len(t, session.TicketsFor(admin), 1)
	assert.Empty(t, session.Admins())
}

func TestSessionDiscardsEventsAfterClose(t *testing.T) {
	ctx := context.Background()
	feed := newFakeFeed()
	session := newTestSession(&fakeDataService{}, feed)
	require.NoError(t, session.Start(ctx))

	admin := models.User{ID: uuid.New(), Role: enums.RoleAdmin}
	require.NoError(t, session.Close())

	ticket := newTicket(time.Now().UTC())
	feed.deliver(t, backend.TableTickets, backend.ChangeEvent{
		Table: backend.TableTickets,
		Op:    enums.ChangeOpInsert,
		After: mustJSON(t, ticket),
	})
	assert.Empty(t, session.TicketsFor(admin))
}

func TestSessionAccessFiltering(t *testing.T) {
	ctx := context.Background()
	creator := models.User{ID: uuid.New(), Role: enums.RoleSublabel}
	other := models.User{ID: uuid.New(), Role: enums.RoleSublabel}
	admin := models.User{ID: uuid.New(), Role: enums.RoleAdmin}
	ticket := models.Ticket{ID: uuid.New(), Title: "t", CreatedBy: creator.ID, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	message := models.Message{ID: uuid.New(), TicketID: ticket.ID, UserID: creator.ID, Content: "hi", CreatedAt: time.Now().UTC()}

	data := &fakeDataService{
		users:    []models.User{creator, other, admin},
		tickets:  []models.Ticket{ticket},
		messages: []models.Message{message},
	}
	session := newTestSession(data, newFakeFeed())
	require.NoError(t, session.Start(ctx))

	assert.Len(t, session.TicketsFor(admin), 1)
	assert.Len(t, session.TicketsFor(creator), 1)
	assert.Empty(t, session.TicketsFor(other))

	_, err := session.TicketFor(other, ticket.ID)
	assert.Equal(t, errors.CodeForbidden, errors.CodeOf(err))

	_, err = session.MessagesFor(other, ticket.ID)
	assert.Equal(t, errors.CodeForbidden, errors.CodeOf(err))

	_, err = session.TicketFor(admin, uuid.New())
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))

	msgs, err := session.MessagesFor(creator, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSessionNotificationsWithReadState(t *testing.T) {
	ctx := context.Background()
	creator := models.User{ID: uuid.New(), Email: "sub@x.io", Role: enums.RoleSublabel}
	ticket := models.Ticket{ID: uuid.New(), Title: "t", Status: enums.TicketStatusClosed, CreatedBy: creator.ID, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}

	data := &fakeDataService{users: []models.User{creator}, tickets: []models.Ticket{ticket}}
	session := newTestSession(data, newFakeFeed())
	require.NoError(t, session.Start(ctx))

	got, err := session.Notifications(ctx, creator)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, n := range got {
		assert.False(t, n.Read)
	}

	require.NoError(t, session.MarkNotificationsRead(ctx, creator, notify.RatingID(ticket.ID)))

	got, err = session.Notifications(ctx, creator)
	require.NoError(t, err)
	for _, n := range got {
		if n.ID == notify.RatingID(ticket.ID) {
			assert.True(t, n.Read)
		} else {
			assert.False(t, n.Read)
		}
	}
}
