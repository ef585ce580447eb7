package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	mergeCypher = `
		MERGE (t:Account {id: $target_id, organization_id: $organization_id})
		SET t.name = $target_name, t.domain = $target_domain, t.merged = false
		MERGE (s:Account {id: $source_id, organization_id: $organization_id})
		SET s.name = $source_name, s.domain = $source_domain, s.merged = true
		MERGE (s)-[r:MERGED_INTO {merge_run_id: $merge_run_id}]->(t)
		SET r.merged_by = $merged_by, r.merged_at = $merged_at
	`

	undoCypher = `
		MATCH (s:Account {id: $source_id, organization_id: $organization_id})-[r:MERGED_INTO {merge_run_id: $merge_run_id}]->()
		SET s.merged = false
		DELETE r
	`
)

// AccountProjection keeps an Account node per account and a MERGED_INTO edge
// per completed merge, so lineage survives the source row being deleted.
type AccountProjection struct {
	client *Client
	logger ectologger.Logger
}

func NewAccountProjection(client *Client, logger ectologger.Logger) *AccountProjection {
	return &AccountProjection{client: client, logger: logger}
}

func (p *AccountProjection) AccountMerged(ctx context.Context, run *models.MergeRun, target *models.Account) error {
	ctx, span := tracing.StartSpan(ctx, "graph.AccountProjection.AccountMerged")
	defer span.End()

	source := run.Snapshot.Data.SourceAccount
	params := map[string]any{
		"organization_id": run.OrganizationID,
		"merge_run_id":    run.ID,
		"target_id":       target.ID,
		"target_name":     target.Name,
		"target_domain":   deref(target.Domain),
		"source_id":       run.SecondaryAccountID,
		"source_name":     source.Name,
		"source_domain":   deref(source.Domain),
		"merged_by":       run.MergedBy,
		"merged_at":       run.CreatedAt.UTC().Format(time.RFC3339),
	}
	if err := p.write(ctx, mergeCypher, params); err != nil {
		return fmt.Errorf("failed to project merge %s: %w", run.ID, err)
	}
	p.logger.WithContext(ctx).WithField("merge_run_id", run.ID).Debug("Projected account merge")
	return nil
}

func (p *AccountProjection) MergeUndone(ctx context.Context, run *models.MergeRun) error {
	ctx, span := tracing.StartSpan(ctx, "graph.AccountProjection.MergeUndone")
	defer span.End()

	params := map[string]any{
		"organization_id": run.OrganizationID,
		"merge_run_id":    run.ID,
		"source_id":       run.SecondaryAccountID,
	}
	if err := p.write(ctx, undoCypher, params); err != nil {
		return fmt.Errorf("failed to project undo of merge %s: %w", run.ID, err)
	}
	return nil
}

// MergedInto returns the ids of the accounts accountID was merged into, following
// every active MERGED_INTO edge.
func (p *AccountProjection) MergedInto(ctx context.Context, orgID, accountID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.AccountProjection.MergedInto")
	defer span.End()

	out, err := p.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (:Account {id: $id, organization_id: $organization_id})-[:MERGED_INTO*1..]->(t:Account)
			RETURN t.id AS id
		`, map[string]any{"id": accountID, "organization_id": orgID})
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(records))
		for _, record := range records {
			if id, ok := record.Get("id"); ok {
				if s, ok := id.(string); ok {
					ids = append(ids, s)
				}
			}
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]string), nil
}

func (p *AccountProjection) write(ctx context.Context, cypher string, params map[string]any) error {
	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Graph write failed")
	}
	return err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
