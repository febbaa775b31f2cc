package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loudlane/cabinet-backend/internal/backend"
	"github.com/loudlane/cabinet-backend/internal/notify"
	pkgAuth "github.com/loudlane/cabinet-backend/pkg/auth"
	"github.com/loudlane/cabinet-backend/pkg/config"
	"github.com/loudlane/cabinet-backend/pkg/db/models"
	"github.com/loudlane/cabinet-backend/pkg/enums"
	"github.com/loudlane/cabinet-backend/pkg/logger"
	"github.com/loudlane/cabinet-backend/pkg/metrics"
)

type stubReader struct {
	viewer models.User
}

func (s stubReader) UserByID(id uuid.UUID) (models.User, bool) {
	if id == s.viewer.ID {
		return s.viewer, true
	}
	return models.User{}, false
}

func (s stubReader) Admins() []models.User { return nil }

func (s stubReader) TicketsFor(models.User) []models.Ticket { return []models.Ticket{} }

func (s stubReader) TicketFor(models.User, uuid.UUID) (models.Ticket, error) {
	return models.Ticket{}, nil
}

func (s stubReader) MessagesFor(models.User, uuid.UUID) ([]models.Message, error) {
	return nil, nil
}

func (s stubReader) Notifications(context.Context, models.User) ([]notify.Notification, error) {
	return []notify.Notification{}, nil
}

func (s stubReader) MarkNotificationsRead(context.Context, models.User, ...string) error {
	return nil
}

type stubData struct{}

func (stubData) Users(context.Context) ([]models.User, error)       { return nil, nil }
func (stubData) Tickets(context.Context) ([]models.Ticket, error)   { return nil, nil }
func (stubData) Messages(context.Context) ([]models.Message, error) { return nil, nil }
func (stubData) InsertTicket(context.Context, *models.Ticket) error { return nil }
func (stubData) UpdateTicket(context.Context, uuid.UUID, backend.TicketPatch) (*models.Ticket, error) {
	return &models.Ticket{}, nil
}
func (stubData) InsertMessage(context.Context, *models.Message) error { return nil }

func testRouter(t *testing.T, viewer models.User) (http.Handler, *config.Config) {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.JWT = config.JWTConfig{Secret: "router-secret", Issuer: "cabinet-test", ExpirationMinutes: 30}

	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	registry := prometheus.NewRegistry()
	metrics.NewSyncMetrics(registry)

	handler := NewRouter(cfg, logg, nil, nil, stubData{}, stubReader{viewer: viewer}, nil, registry)
	return handler, cfg
}

func TestHealthLiveIsOpen(t *testing.T) {
	handler, _ := testRouter(t, models.User{ID: uuid.New(), Role: enums.RoleAdmin})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-Cabinet-Env"))
}

func TestMetricsEndpointIsOpen(t *testing.T) {
	handler, _ := testRouter(t, models.User{ID: uuid.New(), Role: enums.RoleAdmin})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresAuth(t *testing.T) {
	handler, _ := testRouter(t, models.User{ID: uuid.New(), Role: enums.RoleAdmin})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tickets", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIAcceptsBearerToken(t *testing.T) {
	viewer := models.User{ID: uuid.New(), Role: enums.RoleSublabel}
	handler, cfg := testRouter(t, viewer)

	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now().UTC(), pkgAuth.AccessTokenPayload{
		UserID: viewer.ID,
		Role:   viewer.Role,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tickets", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
