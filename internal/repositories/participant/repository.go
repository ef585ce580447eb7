package participant

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var columns = []string{"id", "call_id", "email", "name", "is_host", "contact_id"}

// Repository handles call participant persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) CreateBatch(ctx context.Context, participants []models.CallParticipant) error {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.CreateBatch")
	defer span.End()

	if len(participants) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("call_participants")
	ib.Cols(columns...)
	for i := range participants {
		p := &participants[i]
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		if p.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*p.Email))
			p.Email = &email
		}
		ib.Values(p.ID, p.CallID, p.Email, p.Name, p.IsHost, p.ContactID)
	}

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(participants)}).Error("Failed to create call participants")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create call participants")
	}
	return nil
}

func (r *Repository) ListByCall(ctx context.Context, callID string) ([]models.CallParticipant, error) {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.ListByCall")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("call_participants")
	sb.Where(sb.Equal("call_id", callID))
	sb.OrderBy("is_host DESC", "id")

	query, args := sb.Build()
	var participants []models.CallParticipant
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &participants, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list call participants")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list call participants")
	}
	return participants, nil
}

func (r *Repository) ListIDsByContact(ctx context.Context, contactID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.ListIDsByContact")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id")
	sb.From("call_participants")
	sb.Where(sb.Equal("contact_id", contactID))
	sb.OrderBy("id")

	query, args := sb.Build()
	var ids []string
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list participants by contact")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list call participants")
	}
	return ids, nil
}

// LinkContact points the call's participants with email at contactID.
func (r *Repository) LinkContact(ctx context.Context, callID, email, contactID string) error {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.LinkContact")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("call_participants")
	ub.Set(ub.Assign("contact_id", contactID))
	ub.Where(
		ub.Equal("call_id", callID),
		ub.Equal("email", strings.ToLower(strings.TrimSpace(email))),
	)

	query, args := ub.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to link participant contact")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to link participant")
	}
	return nil
}

func (r *Repository) RelinkContact(ctx context.Context, participantIDs []string, contactID string) error {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.RelinkContact")
	defer span.End()

	if len(participantIDs) == 0 {
		return nil
	}

	ub := database.NewUpdateBuilder()
	ub.Update("call_participants")
	ub.Set(ub.Assign("contact_id", contactID))
	ub.Where(ub.In("id", database.Args(participantIDs)...))

	query, args := ub.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to re-link participants")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to re-link participants")
	}
	return nil
}
