package merging

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Undo restores the source account of a completed merge run, with its
// original ids, and moves back everything the merge moved.
func (s *Service) Undo(ctx context.Context, orgID, mergeRunID, undoneBy string) (*models.MergeRun, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Service.Undo")
	defer span.End()

	var run *models.MergeRun
	err := s.runInTx(ctx, func(ctx context.Context) error {
		var err error
		run, err = s.undo(ctx, orgID, mergeRunID, undoneBy)
		return err
	})
	if err != nil {
		metrics.MergesTotal.WithLabelValues(OperationUndo, metrics.StatusError).Inc()
		s.logger.WithContext(ctx).WithError(err).WithField("merge_run_id", mergeRunID).Warn("Merge undo failed")
		return nil, err
	}

	metrics.MergesTotal.WithLabelValues(OperationUndo, metrics.StatusSuccess).Inc()
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"merge_run_id":      run.ID,
		"source_account_id": run.SecondaryAccountID,
		"target_account_id": run.PrimaryAccountID,
		"undone_by":         undoneBy,
	}).Info("Undid account merge")

	ctx = context.WithoutCancel(ctx)
	if s.projector != nil {
		s.bestEffort(ctx, "graph", run, func() error { return s.projector.MergeUndone(ctx, run) })
	}
	if s.events != nil {
		s.bestEffort(ctx, "events", run, func() error { return s.events.EmitAccountMergeUndone(ctx, run) })
	}
	return run, nil
}

func (s *Service) undo(ctx context.Context, orgID, mergeRunID, undoneBy string) (*models.MergeRun, error) {
	run, err := s.repos.MergeRuns.Get(ctx, orgID, mergeRunID)
	if err != nil {
		return nil, err
	}
	if run.Status != models.MergeRunStatusCompleted {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("merge run %s is %s", run.ID, run.Status))
	}
	target, err := s.repos.Accounts.Get(ctx, orgID, run.PrimaryAccountID)
	if err != nil {
		if isNotFound(err) {
			return nil, httperror.NewHTTPError(http.StatusConflict, "the merge target no longer exists")
		}
		return nil, err
	}
	if _, err := s.repos.Accounts.Get(ctx, orgID, run.SecondaryAccountID); err == nil {
		return nil, httperror.NewHTTPError(http.StatusConflict, "an account with the source id already exists")
	} else if !isNotFound(err) {
		return nil, err
	}

	snap := run.Snapshot.Data

	if len(snap.CreatedAliases) > 0 {
		ids := make([]string, 0, len(snap.CreatedAliases))
		for _, a := range snap.CreatedAliases {
			ids = append(ids, a.ID)
		}
		if err := s.repos.Domains.DeleteByIDs(ctx, ids); err != nil {
			return nil, err
		}
	}

	// the target gives adopted ids back before the source row claims them again
	if snap.AdoptedCRMIDs.SalesforceID != nil || snap.AdoptedCRMIDs.HubspotID != nil {
		salesforceID, hubspotID := target.SalesforceID, target.HubspotID
		if snap.AdoptedCRMIDs.SalesforceID != nil {
			salesforceID = nil
		}
		if snap.AdoptedCRMIDs.HubspotID != nil {
			hubspotID = nil
		}
		if err := s.repos.Accounts.UpdateCRMIDs(ctx, orgID, target.ID, salesforceID, hubspotID); err != nil {
			return nil, err
		}
	}

	source := snap.SourceAccount
	if _, err := s.repos.Accounts.Create(ctx, &source); err != nil {
		return nil, err
	}
	for _, alias := range snap.SourceAliases {
		alias := alias
		if _, err := s.repos.Domains.Create(ctx, &alias); err != nil {
			return nil, err
		}
	}

	for _, deleted := range snap.DeletedContacts {
		contact := deleted.Contact
		if _, err := s.repos.Contacts.Create(ctx, &contact); err != nil {
			return nil, err
		}
		if len(deleted.ParticipantIDs) > 0 {
			if err := s.repos.Participants.RelinkContact(ctx, deleted.ParticipantIDs, contact.ID); err != nil {
				return nil, err
			}
		}
	}

	moves := []struct {
		ids    []string
		update func(context.Context, []string, string) error
	}{
		{snap.MovedCallIDs, s.repos.Calls.UpdateAccount},
		{snap.RepointedContactIDs, s.repos.Contacts.UpdateAccount},
		{snap.MovedStoryIDs, s.repos.Stories.UpdateAccount},
		{snap.MovedCRMEventIDs, s.repos.CRMEvents.UpdateAccount},
		{snap.MovedGrantIDs, s.repos.AccessGrants.UpdateAccount},
	}
	for _, m := range moves {
		if len(m.ids) == 0 {
			continue
		}
		if err := m.update(ctx, m.ids, source.ID); err != nil {
			return nil, err
		}
	}

	for _, event := range snap.DeletedCRMEvents {
		event := event
		if _, err := s.repos.CRMEvents.CreateIgnoreDuplicate(ctx, &event); err != nil {
			return nil, err
		}
	}
	for _, grant := range snap.DroppedGrants {
		grant := grant
		if err := s.repos.AccessGrants.Create(ctx, &grant); err != nil {
			return nil, err
		}
	}

	if err := s.repos.MergeRuns.MarkUndone(ctx, run.ID, undoneBy, s.now().UTC()); err != nil {
		return nil, err
	}
	return s.repos.MergeRuns.Get(ctx, orgID, run.ID)
}

func isNotFound(err error) bool {
	return httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound
}
