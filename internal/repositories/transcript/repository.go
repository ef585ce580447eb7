package transcript

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Repository handles transcript persistence
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

func (r *Repository) Create(ctx context.Context, transcript *models.Transcript) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "transcript.Repository.Create")
	defer span.End()

	if transcript.ID == "" {
		transcript.ID = uuid.New().String()
	}
	if transcript.WordCount == 0 {
		transcript.WordCount = len(strings.Fields(transcript.FullText))
	}
	transcript.CreatedAt = time.Now().UTC()

	ib := database.NewInsertBuilder()
	ib.InsertInto("transcripts")
	ib.Cols("id", "call_id", "full_text", "language", "word_count", "created_at")
	ib.Values(transcript.ID, transcript.CallID, transcript.FullText, transcript.Language, transcript.WordCount, transcript.CreatedAt)
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"call_id": transcript.CallID}).Error("Failed to store transcript")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to store transcript")
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}
