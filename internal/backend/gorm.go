package backend

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/loudlane/cabinet-backend/pkg/db"
	"github.com/loudlane/cabinet-backend/pkg/db/models"
	"github.com/loudlane/cabinet-backend/pkg/enums"
	pkgerrors "github.com/loudlane/cabinet-backend/pkg/errors"
	"github.com/loudlane/cabinet-backend/pkg/logger"
)

// Publisher is the slice of the Pub/Sub publisher the service needs.
type Publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// GormService implements DataService on top of the shared GORM connection.
// Every committed write is published to the changes topic so that live
// sessions (this process and any other portal instance) observe it through
// the same feed as external writes.
type GormService struct {
	db             *gorm.DB
	publisher      Publisher
	logg           *logger.Logger
	publishTimeout time.Duration
	now            func() time.Time
}

// NewGormService wires the data service. The publisher is optional: without
// one, writes still commit but no change events are emitted (bootstrap-only
// mirrors).
func NewGormService(db *gorm.DB, publisher Publisher, publishTimeout time.Duration, logg *logger.Logger) (*GormService, error) {
	if db == nil {
		return nil, errors.New("gorm connection is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if publishTimeout <= 0 {
		publishTimeout = 10 * time.Second
	}
	return &GormService{
		db:             db,
		publisher:      publisher,
		logg:           logg,
		publishTimeout: publishTimeout,
		now:            time.Now,
	}, nil
}

func (s *GormService) Users(ctx context.Context) ([]models.User, error) {
	var rows []models.User
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "select users")
	}
	return rows, nil
}

func (s *GormService) Tickets(ctx context.Context) ([]models.Ticket, error) {
	var rows []models.Ticket
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "select tickets")
	}
	return rows, nil
}

func (s *GormService) Messages(ctx context.Context) ([]models.Message, error) {
	var rows []models.Message
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "select messages")
	}
	return rows, nil
}

func (s *GormService) InsertTicket(ctx context.Context, ticket *models.Ticket) error {
	if ticket == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "ticket is required")
	}
	if ticket.CreatedBy == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "ticket creator is required")
	}

	var creator models.User
	if err := s.db.WithContext(ctx).First(&creator, "id = ?", ticket.CreatedBy).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeValidation, "ticket creator does not exist")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify ticket creator")
	}
	if err := s.verifyAssignee(ctx, ticket.AssignedTo); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Create(ticket).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "ticket already exists")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert ticket")
	}

	s.publishChange(ctx, TableTickets, enums.ChangeOpInsert, nil, ticket)
	return nil
}

func (s *GormService) UpdateTicket(ctx context.Context, id uuid.UUID, patch TicketPatch) (*models.Ticket, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket id is required")
	}
	if patch.Status != nil && !patch.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid ticket status")
	}
	if patch.Priority != nil && !patch.Priority.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid ticket priority")
	}
	if err := s.verifyAssignee(ctx, patch.AssignedTo); err != nil {
		return nil, err
	}

	var before models.Ticket
	if err := s.db.WithContext(ctx).First(&before, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket")
	}

	updates := map[string]any{"updated_at": s.now().UTC()}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.Priority != nil {
		updates["priority"] = *patch.Priority
	}
	if patch.AssignedTo != nil {
		updates["assigned_to"] = *patch.AssignedTo
	}

	if err := s.db.WithContext(ctx).Model(&models.Ticket{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update ticket")
	}

	var after models.Ticket
	if err := s.db.WithContext(ctx).First(&after, "id = ?", id).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload ticket")
	}

	s.publishChange(ctx, TableTickets, enums.ChangeOpUpdate, &before, &after)
	return &after, nil
}

func (s *GormService) InsertMessage(ctx context.Context, message *models.Message) error {
	if message == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "message is required")
	}
	if message.TicketID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "ticket id is required")
	}
	if message.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "author is required")
	}
	if strings.TrimSpace(message.Content) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "content is required")
	}

	if err := s.db.WithContext(ctx).Create(message).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "message already exists")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert message")
	}

	s.publishChange(ctx, TableMessages, enums.ChangeOpInsert, nil, message)
	return nil
}

func (s *GormService) verifyAssignee(ctx context.Context, assignee *uuid.UUID) error {
	if assignee == nil || *assignee == uuid.Nil {
		return nil
	}
	var admin models.User
	if err := s.db.WithContext(ctx).First(&admin, "id = ?", *assignee).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeValidation, "assignee does not exist")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify assignee")
	}
	if admin.Role != enums.RoleAdmin {
		return pkgerrors.New(pkgerrors.CodeValidation, "assignee must be an admin")
	}
	return nil
}

// publishChange emits the change event best-effort: a publish failure is
// logged and never rolls back the committed write.
func (s *GormService) publishChange(ctx context.Context, table Table, op enums.ChangeOp, before, after any) {
	if s.publisher == nil {
		return
	}

	envelope := eventEnvelope{
		Version:    envelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: s.now().UTC(),
		Table:      table,
		Op:         op,
	}
	if before != nil {
		raw, err := json.Marshal(before)
		if err != nil {
			s.logg.Error(ctx, "marshal change event before-image", err)
			return
		}
		envelope.Before = raw
	}
	if after != nil {
		raw, err := json.Marshal(after)
		if err != nil {
			s.logg.Error(ctx, "marshal change event after-image", err)
			return
		}
		envelope.After = raw
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		s.logg.Error(ctx, "marshal change event envelope", err)
		return
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	result := s.publisher.Publish(publishCtx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"table":    string(table),
			"op":       string(op),
			"event_id": envelope.EventID,
		},
	})
	if _, err := result.Get(publishCtx); err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"table":    string(table),
			"op":       string(op),
			"event_id": envelope.EventID,
		})
		s.logg.Error(logCtx, "publish change event", err)
	}
}
