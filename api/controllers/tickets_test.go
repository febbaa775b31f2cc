package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loudlane/cabinet-backend/api/middleware"
	"github.com/loudlane/cabinet-backend/internal/access"
	"github.com/loudlane/cabinet-backend/internal/backend"
	"github.com/loudlane/cabinet-backend/internal/notify"
	"github.com/loudlane/cabinet-backend/pkg/db/models"
	"github.com/loudlane/cabinet-backend/pkg/enums"
	pkgerrors "github.com/loudlane/cabinet-backend/pkg/errors"
	"github.com/loudlane/cabinet-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

// fakeReader mirrors a fixed user/ticket/message set.
type fakeReader struct {
	users    map[uuid.UUID]models.User
	tickets  []models.Ticket
	messages map[uuid.UUID][]models.Message
	marked   []string
}

func newFakeReader(users ...models.User) *fakeReader {
	r := &fakeReader{users: map[uuid.UUID]models.User{}, messages: map[uuid.UUID][]models.Message{}}
	for _, user := range users {
		r.users[user.ID] = user
	}
	return r
}

func (f *fakeReader) UserByID(id uuid.UUID) (models.User, bool) {
	user, ok := f.users[id]
	return user, ok
}

func (f *fakeReader) Admins() []models.User {
	var out []models.User
	for _, user := range f.users {
		if user.Role == enums.RoleAdmin {
			out = append(out, user)
		}
	}
	return out
}

func (f *fakeReader) TicketsFor(viewer models.User) []models.Ticket {
	out := []models.Ticket{}
	for _, ticket := range f.tickets {
		if access.CanAccessTicket(viewer, ticket) {
			out = append(out, ticket)
		}
	}
	return out
}

func (f *fakeReader) TicketFor(viewer models.User, id uuid.UUID) (models.Ticket, error) {
	for _, ticket := range f.tickets {
		if ticket.ID == id {
			if !access.CanAccessTicket(viewer, ticket) {
				return models.Ticket{}, pkgerrors.New(pkgerrors.CodeForbidden, "ticket belongs to another sublabel")
			}
			return ticket, nil
		}
	}
	return models.Ticket{}, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
}

func (f *fakeReader) MessagesFor(viewer models.User, ticketID uuid.UUID) ([]models.Message, error) {
	if _, err := f.TicketFor(viewer, ticketID); err != nil {
		return nil, err
	}
	return f.messages[ticketID], nil
}

func (f *fakeReader) Notifications(_ context.Context, viewer models.User) ([]notify.Notification, error) {
	return []notify.Notification{}, nil
}

func (f *fakeReader) MarkNotificationsRead(_ context.Context, _ models.User, ids ...string) error {
	f.marked = append(f.marked, ids...)
	return nil
}

type fakeData struct {
	insertedTickets  []models.Ticket
	insertedMessages []models.Message
	updated          *models.Ticket
	updateErr        error
}

func (f *fakeData) Users(context.Context) ([]models.User, error)       { return nil, nil }
func (f *fakeData) Tickets(context.Context) ([]models.Ticket, error)   { return nil, nil }
func (f *fakeData) Messages(context.Context) ([]models.Message, error) { return nil, nil }

func (f *fakeData) InsertTicket(_ context.Context, ticket *models.Ticket) error {
	ticket.ID = uuid.New()
	ticket.CreatedAt = time.Now().UTC()
	ticket.UpdatedAt = ticket.CreatedAt
	f.insertedTickets = append(f.insertedTickets, *ticket)
	return nil
}

func (f *fakeData) UpdateTicket(_ context.Context, id uuid.UUID, patch backend.TicketPatch) (*models.Ticket, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return f.updated, nil
}

func (f *fakeData) InsertMessage(_ context.Context, message *models.Message) error {
	message.ID = uuid.New()
	message.CreatedAt = time.Now().UTC()
	f.insertedMessages = append(f.insertedMessages, *message)
	return nil
}

func authedRequest(t *testing.T, method, target string, body any, viewer models.User) *http.Request {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, buf)
	ctx := middleware.WithUserID(req.Context(), viewer.ID.String())
	ctx = middleware.WithRole(ctx, string(viewer.Role))
	return req.WithContext(ctx)
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

func TestListTicketsFiltersByViewer(t *testing.T) {
	sub := models.User{ID: uuid.New(), Role: enums.RoleSublabel}
	other := models.User{ID: uuid.New(), Role: enums.RoleSublabel}
	reader := newFakeReader(sub, other)
	reader.tickets = []models.Ticket{
		{ID: uuid.New(), Title: "mine", CreatedBy: sub.ID},
		{ID: uuid.New(), Title: "theirs", CreatedBy: other.ID},
	}

	rec := httptest.NewRecorder()
	ListTickets(reader, testLogger())(rec, authedRequest(t, http.MethodGet, "/api/v1/tickets", nil, sub))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []models.Ticket
	decodeData(t, rec, &got)
	require.Len(t, got, 1)
	assert.Equal(t, "mine", got[0].Title)
}

func TestListTicketsRequiresKnownUser(t *testing.T) {
	reader := newFakeReader()
	viewer := models.User{ID: uuid.New(), Role: enums.RoleSublabel}

	rec := httptest.NewRecorder()
	ListTickets(reader, testLogger())(rec, authedRequest(t, http.MethodGet, "/api/v1/tickets", nil, viewer))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeUnauthorized), decodeErrorCode(t, rec))
}

func TestCreateTicketDefaultsAndInserts(t *testing.T) {
	sub := models.User{ID: uuid.New(), Role: enums.RoleSublabel}
	reader := newFakeReader(sub)
	data := &fakeData{}

	body := map[string]string{"title": "no payout report", "description": "missing for Q2"}
	rec := httptest.NewRecorder()
	CreateTicket(data, reader, nil, testLogger())(rec, authedRequest(t, http.MethodPost, "/api/v1/tickets", body, sub))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, data.insertedTickets, 1)
	inserted := data.insertedTickets[0]
	assert.Equal(t, enums.TicketStatusOpen, inserted.Status)
	assert.Equal(t, enums.TicketPriorityMedium, inserted.Priority)
	assert.Equal(t, sub.ID, inserted.CreatedBy)
}

func TestCreateTicketValidatesBody(t *testing.T) {
	sub := models.User{ID: uuid.New(), Role: enums.RoleSublabel}
	reader := newFakeReader(sub)

	body := map[string]string{"title": "x"}
	rec := httptest.NewRecorder()
	CreateTicket(&fakeData{}, reader, nil, testLogger())(rec, authedRequest(t, http.MethodPost, "/api/v1/tickets", body, sub))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), decodeErrorCode(t, rec))
}

func TestUpdateTicketRequiresAdmin(t *testing.T) {
	sub := models.User{ID: uuid.New(), Role: enums.RoleSublabel}
	reader := newFakeReader(sub)
	ticketID := uuid.New()
	reader.tickets = []models.Ticket{{ID: ticketID, CreatedBy: sub.ID}}

	status := "closed"
	body := map[string]any{"status": status}
	req := withURLParam(authedRequest(t, http.MethodPatch, "/api/v1/tickets/"+ticketID.String(), body, sub), "ticketID", ticketID.String())

	rec := httptest.NewRecorder()
	UpdateTicket(&fakeData{}, reader, nil, testLogger())(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateTicketAppliesPatch(t *testing.T) {
	admin := models.User{ID: uuid.New(), Role: enums.RoleAdmin}
	reader := newFakeReader(admin)
	ticketID := uuid.New()
	updated := models.Ticket{ID: ticketID, Title: "t", Status: enums.TicketStatusClosed, CreatedBy: uuid.New()}
	data := &fakeData{updated: &updated}

	body := map[string]any{"status": "closed"}
	req := withURLParam(authedRequest(t, http.MethodPatch, "/api/v1/tickets/"+ticketID.String(), body, admin), "ticketID", ticketID.String())

	rec := httptest.NewRecorder()
	UpdateTicket(data, reader, nil, testLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Ticket
	decodeData(t, rec, &got)
	assert.Equal(t, enums.TicketStatusClosed, got.Status)
}

func TestUpdateTicketRejectsEmptyPatch(t *testing.T) {
	admin := models.User{ID: uuid.New(), Role: enums.RoleAdmin}
	reader := newFakeReader(admin)
	ticketID := uuid.New()

	req := withURLParam(authedRequest(t, http.MethodPatch, "/api/v1/tickets/"+ticketID.String(), map[string]any{}, admin), "ticketID", ticketID.String())

	rec := httptest.NewRecorder()
	UpdateTicket(&fakeData{}, reader, nil, testLogger())(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
