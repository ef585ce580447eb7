package httpjson

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/providers"
)

// FetchCalls returns one page of calls.
func (p *Provider) FetchCalls(ctx context.Context, credentials json.RawMessage, cursor *string, since *time.Time) (*providers.CallPage, error) {
	ep := p.def.Calls
	pg, err := p.fetchPage(ctx, ep, credentials, cursor, since)
	if err != nil {
		return nil, err
	}

	out := &providers.CallPage{NextCursor: pg.nextCursor, HasMore: pg.hasMore}
	for i, data := range pg.records {
		call, err := p.mapCall(record{eval: p.eval, data: data, fields: ep.Fields}, ep.Participants)
		if err != nil {
			return nil, fmt.Errorf("call record %d: %w", i, err)
		}
		out.Data = append(out.Data, *call)
	}
	return out, nil
}

func (p *Provider) mapCall(r record, participants *Mapping) (*providers.NormalizedCall, error) {
	var (
		call providers.NormalizedCall
		err  error
	)
	if call.ExternalID, err = r.str(FieldExternalID); err != nil {
		return nil, err
	}
	if call.ExternalID == "" {
		return nil, fmt.Errorf("missing %s", FieldExternalID)
	}
	if call.RecordingID, err = r.optStr(FieldRecordingID); err != nil {
		return nil, err
	}
	if call.Title, err = r.str(FieldTitle); err != nil {
		return nil, err
	}
	duration, err := r.optInt(FieldDurationSeconds)
	if err != nil {
		return nil, err
	}
	if duration != nil {
		call.DurationSeconds = *duration
	}
	occurred, err := r.optTime(FieldOccurredAt)
	if err != nil {
		return nil, err
	}
	if occurred == nil {
		return nil, fmt.Errorf("missing %s", FieldOccurredAt)
	}
	call.OccurredAt = *occurred
	if call.RecordingURL, err = r.optStr(FieldRecordingURL); err != nil {
		return nil, err
	}

	text, err := r.str(FieldTranscript)
	if err != nil {
		return nil, err
	}
	if text != "" {
		language, err := r.optStr(FieldTranscriptLanguage)
		if err != nil {
			return nil, err
		}
		call.Transcript = &providers.NormalizedTranscript{FullText: text, Language: language}
	}

	if participants != nil {
		rows, err := p.eval.slice(participants.Records, r.data)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			pr := record{eval: p.eval, data: row, fields: participants.Fields}
			var in models.ParticipantInput
			if in.Email, err = pr.str(FieldEmail); err != nil {
				return nil, err
			}
			if in.Name, err = pr.str(FieldName); err != nil {
				return nil, err
			}
			if in.IsHost, err = pr.boolean(FieldIsHost); err != nil {
				return nil, err
			}
			if in.Email == "" && in.Name == "" {
				continue
			}
			call.Participants = append(call.Participants, in)
		}
	}
	return &call, nil
}

func (p *Provider) FetchAccounts(ctx context.Context, credentials json.RawMessage) ([]providers.CRMAccount, error) {
	var out []providers.CRMAccount
	err := p.fetchAll(ctx, p.def.Accounts, credentials, func(r record) error {
		var (
			a   providers.CRMAccount
			err error
		)
		if a.ExternalID, err = r.str(FieldExternalID); err != nil {
			return err
		}
		if a.Name, err = r.str(FieldName); err != nil {
			return err
		}
		if a.ExternalID == "" || a.Name == "" {
			return nil
		}
		if a.Domain, err = r.optStr(FieldDomain); err != nil {
			return err
		}
		if a.Industry, err = r.optStr(FieldIndustry); err != nil {
			return err
		}
		if a.EmployeeCount, err = r.optInt(FieldEmployeeCount); err != nil {
			return err
		}
		if a.AnnualRevenue, err = r.optFloat(FieldAnnualRevenue); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	return out, err
}

func (p *Provider) FetchContacts(ctx context.Context, credentials json.RawMessage) ([]providers.CRMContact, error) {
	var out []providers.CRMContact
	err := p.fetchAll(ctx, p.def.Contacts, credentials, func(r record) error {
		var (
			c   providers.CRMContact
			err error
		)
		if c.ExternalID, err = r.str(FieldExternalID); err != nil {
			return err
		}
		if c.Email, err = r.str(FieldEmail); err != nil {
			return err
		}
		if c.Email == "" {
			return nil
		}
		if c.AccountExternalID, err = r.optStr(FieldAccountExternalID); err != nil {
			return err
		}
		if c.Name, err = r.optStr(FieldName); err != nil {
			return err
		}
		if c.Title, err = r.optStr(FieldTitle); err != nil {
			return err
		}
		if c.Phone, err = r.optStr(FieldPhone); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

func (p *Provider) FetchOpportunities(ctx context.Context, credentials json.RawMessage) ([]providers.CRMOpportunity, error) {
	var out []providers.CRMOpportunity
	err := p.fetchAll(ctx, p.def.Opportunities, credentials, func(r record) error {
		var (
			o   providers.CRMOpportunity
			err error
		)
		if o.ExternalID, err = r.str(FieldExternalID); err != nil {
			return err
		}
		if o.AccountExternalID, err = r.str(FieldAccountExternalID); err != nil {
			return err
		}
		if o.StageName, err = r.str(FieldStageName); err != nil {
			return err
		}
		if o.ExternalID == "" || o.AccountExternalID == "" || o.StageName == "" {
			return nil
		}
		if o.Name, err = r.str(FieldName); err != nil {
			return err
		}
		eventType, err := r.str(FieldEventType)
		if err != nil {
			return err
		}
		o.EventType = models.CRMEventType(eventType)
		if o.IsClosed, err = r.boolean(FieldIsClosed); err != nil {
			return err
		}
		if o.IsWon, err = r.boolean(FieldIsWon); err != nil {
			return err
		}
		if o.Amount, err = r.optFloat(FieldAmount); err != nil {
			return err
		}
		if o.CloseDate, err = r.optTime(FieldCloseDate); err != nil {
			return err
		}
		if o.Description, err = r.optStr(FieldDescription); err != nil {
			return err
		}
		out = append(out, o)
		return nil
	})
	return out, err
}
