package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Ramsey-B/fern/pkg/jobs"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// maxCallPages stops a provider that never reports the last page.
const maxCallPages = 1000

// syncCalls pages calls from the stored cursor, persisting the cursor after
// every page so an interrupted run resumes where it stopped.
func (s *Syncer) syncCalls(ctx context.Context, cfg *models.IntegrationConfig, provider providers.CallRecordingProvider, credentials json.RawMessage, counts *Counts) error {
	ctx, span := tracing.StartSpan(ctx, "syncer.Syncer.syncCalls")
	defer span.End()

	cursor := cfg.SyncCursor
	since := cfg.LastSyncAt
	for pageNum := 0; pageNum < maxCallPages; pageNum++ {
		if err := s.wait(ctx, cfg.Provider); err != nil {
			return err
		}
		page, err := provider.FetchCalls(ctx, credentials, cursor, since)
		if err != nil {
			return fmt.Errorf("failed to fetch calls: %w", err)
		}

		for i := range page.Data {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.syncCall(ctx, cfg, &page.Data[i], counts); err != nil {
				counts.Failed++
				s.recordOutcome(cfg.Provider, "call", "failed")
				s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"config_id":   cfg.ID,
					"external_id": page.Data[i].ExternalID,
				}).Warn("Failed to sync call")
			}
		}

		if page.NextCursor != nil {
			if err := s.repos.Integrations.UpdateCursor(ctx, cfg.ID, page.NextCursor); err != nil {
				return fmt.Errorf("failed to persist sync cursor: %w", err)
			}
			cursor = page.NextCursor
		}
		if !page.HasMore || page.NextCursor == nil {
			return nil
		}
	}
	s.logger.WithContext(ctx).WithField("config_id", cfg.ID).Warnf("Stopped after %d call pages", maxCallPages)
	return nil
}

func (s *Syncer) syncCall(ctx context.Context, cfg *models.IntegrationConfig, nc *providers.NormalizedCall, counts *Counts) error {
	if strings.TrimSpace(nc.ExternalID) == "" {
		return fmt.Errorf("call without external id")
	}

	var (
		upsert           *models.CallUpsert
		transcriptStored bool
	)
	err := s.runInTx(ctx, func(ctx context.Context) error {
		var err error
		upsert, err = s.repos.Calls.Upsert(ctx, &models.Call{
			OrganizationID:  cfg.OrganizationID,
			Provider:        cfg.Provider,
			ExternalID:      nc.ExternalID,
			RecordingID:     nc.RecordingID,
			Title:           nc.Title,
			DurationSeconds: nc.DurationSeconds,
			OccurredAt:      nc.OccurredAt,
			RecordingURL:    nc.RecordingURL,
		})
		if err != nil {
			return err
		}
		if !upsert.IsNew {
			return nil
		}

		if rows := participantRows(upsert.Call.ID, nc.Participants); len(rows) > 0 {
			if err := s.repos.Participants.CreateBatch(ctx, rows); err != nil {
				return err
			}
		}
		if nc.Transcript != nil && strings.TrimSpace(nc.Transcript.FullText) != "" {
			transcriptStored, err = s.repos.Transcripts.Create(ctx, &models.Transcript{
				CallID:   upsert.Call.ID,
				FullText: nc.Transcript.FullText,
				Language: nc.Transcript.Language,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	call := upsert.Call
	if upsert.IsNew {
		counts.CallsCreated++
		s.recordOutcome(cfg.Provider, "call", "created")
	} else {
		counts.CallsUpdated++
		s.recordOutcome(cfg.Provider, "call", "updated")
	}

	// a reviewer's choice outranks anything the resolver can infer
	if call.MatchMethod != models.MatchMethodManual {
		res, err := s.resolver.ResolveAndLinkContacts(ctx, cfg.OrganizationID, call.ID, nc.Participants, nc.Title)
		if err != nil {
			return fmt.Errorf("failed to resolve call %s: %w", call.ID, err)
		}
		if res.Matched() {
			counts.CallsResolved++
			call.AccountID = &res.AccountID
		}
	}

	if transcriptStored {
		counts.TranscriptsStored++
		s.enqueue(ctx, cfg.Provider, jobs.ProcessingJob{
			CallID:         call.ID,
			OrganizationID: cfg.OrganizationID,
			AccountID:      call.AccountID,
			HasTranscript:  true,
		}, counts)
	}
	return nil
}

func (s *Syncer) enqueue(ctx context.Context, provider models.Provider, job jobs.ProcessingJob, counts *Counts) {
	if s.jobs == nil {
		return
	}
	if s.jobs.Enqueue(ctx, job) {
		counts.JobsEnqueued++
		return
	}
	counts.JobsFailed++
	s.recordOutcome(provider, "job", "failed")
	s.logger.WithContext(ctx).WithField("call_id", job.CallID).Error("Processing job was not queued; the transcript needs a manual reprocess")
}

func participantRows(callID string, participants []models.ParticipantInput) []models.CallParticipant {
	rows := make([]models.CallParticipant, 0, len(participants))
	for _, p := range participants {
		row := models.CallParticipant{CallID: callID, IsHost: p.IsHost}
		if email := normalizers.NormalizeEmail(p.Email); email != "" {
			row.Email = &email
		}
		if name := strings.TrimSpace(p.Name); name != "" {
			row.Name = &name
		}
		if row.Email == nil && row.Name == nil {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}
