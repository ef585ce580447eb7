package call

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var columns = []string{
	"id", "organization_id", "account_id", "provider", "external_id", "recording_id", "title", "duration_seconds",
	"occurred_at", "recording_url", "match_method", "match_confidence", "dismissed_at", "created_at", "updated_at",
}

// Repository handles call persistence
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

type upsertRow struct {
	models.Call
	Inserted bool `db:"inserted"`
}

// Upsert stores a provider call. Calls ingested through an aggregator are matched
// on recording id first, everything else on (organization, provider, external id).
// Resolution fields are never touched on update.
func (r *Repository) Upsert(ctx context.Context, call *models.Call) (*models.CallUpsert, error) {
	ctx, span := tracing.StartSpan(ctx, "call.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	if call.RecordingID != nil {
		existing, err := r.getByRecordingID(ctx, call.OrganizationID, *call.RecordingID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			updated, err := r.refresh(ctx, existing.ID, call, now)
			if err != nil {
				return nil, err
			}
			return &models.CallUpsert{Call: updated, IsNew: false}, nil
		}
	}

	if call.ID == "" {
		call.ID = uuid.New().String()
	}
	call.MatchMethod = models.MatchMethodNone
	call.MatchConfidence = 0
	call.AccountID = nil
	call.CreatedAt = now
	call.UpdatedAt = now

	ib := database.NewInsertBuilder()
	ib.InsertInto("calls")
	ib.Cols(columns...)
	ib.Values(call.ID, call.OrganizationID, call.AccountID, call.Provider, call.ExternalID, call.RecordingID, call.Title,
		call.DurationSeconds, call.OccurredAt, call.RecordingURL, call.MatchMethod, call.MatchConfidence, call.DismissedAt,
		call.CreatedAt, call.UpdatedAt)

	query, args := ib.Build()
	query += " ON CONFLICT (organization_id, provider, external_id) DO UPDATE SET" +
		" title = EXCLUDED.title, duration_seconds = EXCLUDED.duration_seconds, occurred_at = EXCLUDED.occurred_at," +
		" recording_url = COALESCE(EXCLUDED.recording_url, calls.recording_url), updated_at = EXCLUDED.updated_at" +
		" RETURNING " + strings.Join(columns, ", ") + ", (xmax = 0) AS inserted"

	var row upsertRow
	if err := database.Conn(ctx, r.db).GetContext(ctx, &row, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, httperror.NewHTTPError(http.StatusConflict, "call recording already stored")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"provider":    call.Provider,
			"external_id": call.ExternalID,
		}).Error("Failed to upsert call")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert call")
	}

	stored := row.Call
	return &models.CallUpsert{Call: &stored, IsNew: row.Inserted}, nil
}

func (r *Repository) getByRecordingID(ctx context.Context, orgID, recordingID string) (*models.Call, error) {
	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("calls")
	sb.Where(
		sb.Equal("organization_id", orgID),
		sb.Equal("recording_id", recordingID),
	)

	query, args := sb.Build()
	var call models.Call
	if err := database.Conn(ctx, r.db).GetContext(ctx, &call, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get call by recording id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get call")
	}
	return &call, nil
}

func (r *Repository) refresh(ctx context.Context, id string, call *models.Call, now time.Time) (*models.Call, error) {
	ub := database.NewUpdateBuilder()
	ub.Update("calls")
	ub.Set(
		ub.Assign("title", call.Title),
		ub.Assign("duration_seconds", call.DurationSeconds),
		ub.Assign("occurred_at", call.OccurredAt),
		ub.Assign("updated_at", now),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	query += " RETURNING " + strings.Join(columns, ", ")

	var stored models.Call
	if err := database.Conn(ctx, r.db).GetContext(ctx, &stored, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to refresh call")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update call")
	}
	return &stored, nil
}

func (r *Repository) Get(ctx context.Context, orgID, id string) (*models.Call, error) {
	ctx, span := tracing.StartSpan(ctx, "call.Repository.Get")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("call %s not found", id))
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("calls")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("organization_id", orgID),
	)

	query, args := sb.Build()
	var call models.Call
	if err := database.Conn(ctx, r.db).GetContext(ctx, &call, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("call %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get call")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get call")
	}
	return &call, nil
}

func (r *Repository) UpdateResolution(ctx context.Context, orgID, id string, accountID *string, method models.MatchMethod, confidence float64) error {
	ctx, span := tracing.StartSpan(ctx, "call.Repository.UpdateResolution")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("calls")
	ub.Set(
		ub.Assign("account_id", accountID),
		ub.Assign("match_method", method),
		ub.Assign("match_confidence", confidence),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("organization_id", orgID),
	)

	query, args := ub.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update call resolution")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update call")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("call %s not found", id))
	}
	return nil
}

func reviewFilter(sb *sqlbuilder.SelectBuilder, orgID string, threshold float64, search string) {
	sb.Where(
		sb.Equal("organization_id", orgID),
		sb.IsNull("dismissed_at"),
		sb.Or(
			sb.Equal("match_method", models.MatchMethodNone),
			sb.LessThan("match_confidence", threshold),
		),
	)
	if search = strings.TrimSpace(search); search != "" {
		sb.Where(sb.ILike("title", "%"+likeEscaper.Replace(search)+"%"))
	}
}

// likeEscaper makes LIKE wildcards in user input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListReviewQueue pages unresolved and low-confidence calls that are not dismissed.
func (r *Repository) ListReviewQueue(ctx context.Context, orgID string, threshold float64, params models.ReviewListParams) ([]models.Call, int, error) {
	ctx, span := tracing.StartSpan(ctx, "call.Repository.ListReviewQueue")
	defer span.End()

	params.Normalize()

	cb := database.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("calls")
	reviewFilter(cb, orgID, threshold, params.Search)

	countQuery, countArgs := cb.Build()
	var total int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count review queue")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list review queue")
	}

	sortCol := "occurred_at"
	if params.SortBy == models.ReviewSortConfidence {
		sortCol = "match_confidence"
	}
	direction := "DESC"
	if params.SortOrder == models.SortAsc {
		direction = "ASC"
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("calls")
	reviewFilter(sb, orgID, threshold, params.Search)
	sb.OrderBy(sortCol+" "+direction, "id")
	sb.Limit(params.PageSize)
	sb.Offset(params.Offset())

	query, args := sb.Build()
	var calls []models.Call
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &calls, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list review queue")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list review queue")
	}

	return calls, total, nil
}

func (r *Repository) ReviewStats(ctx context.Context, orgID string, threshold float64) (*models.ReviewStats, error) {
	ctx, span := tracing.StartSpan(ctx, "call.Repository.ReviewStats")
	defer span.End()

	query := `SELECT
		COUNT(*) FILTER (WHERE dismissed_at IS NULL AND (match_method = 'NONE' OR match_confidence < $2)) AS queued,
		COUNT(*) FILTER (WHERE dismissed_at IS NULL AND match_method = 'NONE') AS unmatched,
		COUNT(*) FILTER (WHERE dismissed_at IS NULL AND match_method <> 'NONE' AND match_confidence < $2) AS low_confidence,
		COUNT(*) FILTER (WHERE dismissed_at IS NOT NULL) AS dismissed,
		COUNT(*) FILTER (WHERE match_method = 'MANUAL') AS resolved_manually
		FROM calls WHERE organization_id = $1`

	var row struct {
		Queued           int `db:"queued"`
		Unmatched        int `db:"unmatched"`
		LowConfidence    int `db:"low_confidence"`
		Dismissed        int `db:"dismissed"`
		ResolvedManually int `db:"resolved_manually"`
	}
	if err := database.Conn(ctx, r.db).GetContext(ctx, &row, query, orgID, threshold); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to compute review stats")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to compute review stats")
	}

	return &models.ReviewStats{
		Queued:           row.Queued,
		Unmatched:        row.Unmatched,
		LowConfidence:    row.LowConfidence,
		Dismissed:        row.Dismissed,
		ResolvedManually: row.ResolvedManually,
	}, nil
}

// Dismiss stamps dismissed_at on the given calls, keeping an earlier stamp, and
// returns how many of the ids belong to the organization.
func (r *Repository) Dismiss(ctx context.Context, orgID string, ids []string, at time.Time) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "call.Repository.Dismiss")
	defer span.End()

	if len(ids) == 0 {
		return 0, nil
	}

	ub := database.NewUpdateBuilder()
	ub.Update("calls")
	ub.Set(
		fmt.Sprintf("dismissed_at = COALESCE(dismissed_at, %s)", ub.Var(at)),
		ub.Assign("updated_at", at),
	)
	ub.Where(
		ub.Equal("organization_id", orgID),
		ub.In("id", database.Args(ids)...),
	)

	query, args := ub.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to dismiss calls")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to dismiss calls")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *Repository) ListIDsByAccount(ctx context.Context, orgID, accountID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "call.Repository.ListIDsByAccount")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id")
	sb.From("calls")
	sb.Where(
		sb.Equal("organization_id", orgID),
		sb.Equal("account_id", accountID),
	)
	sb.OrderBy("id")

	query, args := sb.Build()
	var ids []string
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list call ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list calls")
	}
	return ids, nil
}

func (r *Repository) UpdateAccount(ctx context.Context, ids []string, accountID string) error {
	ctx, span := tracing.StartSpan(ctx, "call.Repository.UpdateAccount")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	ub := database.NewUpdateBuilder()
	ub.Update("calls")
	ub.Set(
		ub.Assign("account_id", accountID),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.In("id", database.Args(ids)...))

	query, args := ub.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to re-point calls")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to move calls")
	}
	return nil
}
