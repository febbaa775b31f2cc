package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loudlane/cabinet-backend/pkg/db/models"
	"github.com/loudlane/cabinet-backend/pkg/enums"
	pkgerrors "github.com/loudlane/cabinet-backend/pkg/errors"
)

func TestListMessagesEnforcesTicketAccess(t *testing.T) {
	sub := models.User{ID: uuid.New(), Role: enums.RoleSublabel}
	other := models.User{ID: uuid.New(), Role: enums.RoleSublabel}
	reader := newFakeReader(sub, other)
	ticketID := uuid.New()
	reader.tickets = []models.Ticket{{ID: ticketID, CreatedBy: other.ID}}
	reader.messages[ticketID] = []models.Message{{ID: uuid.New(), TicketID: ticketID, UserID: other.ID, Content: "hi"}}

	req := withURLParam(authedRequest(t, http.MethodGet, "/api/v1/tickets/"+ticketID.String()+"/messages", nil, sub), "ticketID", ticketID.String())
	rec := httptest.NewRecorder()
	ListMessages(reader, testLogger())(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeForbidden), decodeErrorCode(t, rec))
}

func TestListMessagesReturnsThread(t *testing.T) {
	sub := models.User{ID: uuid.New(), Role: enums.RoleSublabel}
	reader := newFakeReader(sub)
	ticketID := uuid.New()
	reader.tickets = []models.Ticket{{ID: ticketID, CreatedBy: sub.ID}}
	reader.messages[ticketID] = []models.Message{
		{ID: uuid.New(), TicketID: ticketID, UserID: sub.ID, Content: "first"},
		{ID: uuid.New(), TicketID: ticketID, UserID: sub.ID, Content: "second"},
	}

	req := withURLParam(authedRequest(t, http.MethodGet, "/api/v1/tickets/"+ticketID.String()+"/messages", nil, sub), "ticketID", ticketID.String())
	rec := httptest.NewRecorder()
	ListMessages(reader, testLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got []models.Message
	decodeData(t, rec, &got)
	assert.Len(t, got, 2)
}

func TestCreateMessageInsertsForAccessibleTicket(t *testing.T) {
	sub := models.User{ID: uuid.New(), Role: enums.RoleSublabel}
	reader := newFakeReader(sub)
	ticketID := uuid.New()
	reader.tickets = []models.Ticket{{ID: ticketID, Title: "t", CreatedBy: sub.ID}}
	data := &fakeData{}

	body := map[string]string{"content": "  any update?  "}
	req := withURLParam(authedRequest(t, http.MethodPost, "/api/v1/tickets/"+ticketID.String()+"/messages", body, sub), "ticketID", ticketID.String())
	rec := httptest.NewRecorder()
	CreateMessage(data, reader, nil, testLogger())(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, data.insertedMessages, 1)
	assert.Equal(t, "any update?", data.insertedMessages[0].Content)
	assert.Equal(t, sub.ID, data.insertedMessages[0].UserID)
}

func TestCreateMessageUnknownTicket(t *testing.T) {
	sub := models.User{ID: uuid.New(), Role: enums.RoleSublabel}
	reader := newFakeReader(sub)
	ticketID := uuid.New()

	body := map[string]string{"content": "hello"}
	req := withURLParam(authedRequest(t, http.MethodPost, "/api/v1/tickets/"+ticketID.String()+"/messages", body, sub), "ticketID", ticketID.String())
	rec := httptest.NewRecorder()
	CreateMessage(&fakeData{}, reader, nil, testLogger())(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
