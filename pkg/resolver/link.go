package resolver

import (
	"context"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ResolveAndLinkContacts resolves a stored call and, when an account is found,
// records the resolution on the call and upserts a contact for every participant
// with a corporate email. Unresolved calls are left untouched.
func (r *Resolver) ResolveAndLinkContacts(ctx context.Context, orgID, callID string, participants []models.ParticipantInput, callTitle string) (*models.Resolution, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.ResolveAndLinkContacts")
	defer span.End()

	res, err := r.Resolve(ctx, orgID, participants, callTitle)
	if err != nil {
		return nil, err
	}
	if !res.Matched() {
		return res, nil
	}

	err = r.runInTx(ctx, func(ctx context.Context) error {
		if _, err := r.LinkContacts(ctx, orgID, callID, res.AccountID, participants); err != nil {
			return err
		}
		accountID := res.AccountID
		return r.repos.Calls.UpdateResolution(ctx, orgID, callID, &accountID, res.Method.MatchMethod(), res.Confidence)
	})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"call_id":    callID,
			"account_id": res.AccountID,
		}).Error("Failed to record call resolution")
		return nil, err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"call_id":      callID,
		"account_id":   res.AccountID,
		"match_method": res.Method,
		"confidence":   res.Confidence,
	}).Debug("Resolved call")
	return res, nil
}

// LinkContacts upserts a contact on accountID for every participant with a
// corporate email and links the call's participant rows to it. An empty callID
// only upserts. It returns the number of contacts written.
func (r *Resolver) LinkContacts(ctx context.Context, orgID, callID, accountID string, participants []models.ParticipantInput) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.LinkContacts")
	defer span.End()

	linked := 0
	seen := map[string]struct{}{}
	for _, p := range participants {
		domain, ok := normalizers.ExtractEmailDomain(p.Email)
		if !ok {
			continue
		}
		email := normalizers.NormalizeEmail(p.Email)
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}

		contact := &models.Contact{
			OrganizationID: orgID,
			AccountID:      accountID,
			Email:          email,
			EmailDomain:    domain,
		}
		if name := strings.TrimSpace(p.Name); name != "" {
			contact.Name = &name
		}
		stored, err := r.repos.Contacts.Upsert(ctx, contact)
		if err != nil {
			return linked, err
		}
		if callID != "" {
			if err := r.repos.Participants.LinkContact(ctx, callID, email, stored.ID); err != nil {
				return linked, err
			}
		}
		linked++
	}
	return linked, nil
}

func (r *Resolver) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.repos.Transactor == nil {
		return fn(ctx)
	}
	return r.repos.Transactor.RunInTx(ctx, fn)
}
