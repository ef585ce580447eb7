package repositories

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Transactor runs fn in one unit of work. Repositories called with the
// context fn receives join that unit of work.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// AccountRepo defines the interface for account repository operations
type AccountRepo interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	Get(ctx context.Context, orgID, id string) (*models.Account, error)
	ListByOrganization(ctx context.Context, orgID string) ([]models.Account, error)
	FindByPrimaryDomains(ctx context.Context, orgID string, domains []string) ([]models.Account, error)
	UpsertByCRMID(ctx context.Context, account *models.Account, provider models.Provider) (*models.Account, error)
	GetByCRMID(ctx context.Context, orgID string, provider models.Provider, crmID string) (*models.Account, error)
	UpdateCRMIDs(ctx context.Context, orgID, id string, salesforceID, hubspotID *string) error
	Delete(ctx context.Context, orgID, id string) error
}

// AccountDomainRepo defines the interface for alias domain operations
type AccountDomainRepo interface {
	Create(ctx context.Context, domain *models.AccountDomain) (*models.AccountDomain, error)
	FindByDomains(ctx context.Context, orgID string, domains []string) ([]models.AccountDomain, error)
	ListByAccount(ctx context.Context, orgID, accountID string) ([]models.AccountDomain, error)
	// IsClaimed reports whether domain is any account's primary domain or any alias in the org.
	IsClaimed(ctx context.Context, orgID, domain string) (bool, error)
	DeleteByIDs(ctx context.Context, ids []string) error
}

// ContactRepo defines the interface for contact repository operations
type ContactRepo interface {
	Create(ctx context.Context, contact *models.Contact) (*models.Contact, error)
	// Upsert is keyed by (account, email); the name is updated on conflict.
	Upsert(ctx context.Context, contact *models.Contact) (*models.Contact, error)
	FindByEmailDomains(ctx context.Context, orgID string, domains []string) ([]models.Contact, error)
	ListByAccount(ctx context.Context, orgID, accountID string) ([]models.Contact, error)
	UpdateAccount(ctx context.Context, ids []string, accountID string) error
	Delete(ctx context.Context, id string) error
}

// CallRepo defines the interface for call repository operations
type CallRepo interface {
	Upsert(ctx context.Context, call *models.Call) (*models.CallUpsert, error)
	Get(ctx context.Context, orgID, id string) (*models.Call, error)
	UpdateResolution(ctx context.Context, orgID, id string, accountID *string, method models.MatchMethod, confidence float64) error
	ListReviewQueue(ctx context.Context, orgID string, threshold float64, params models.ReviewListParams) ([]models.Call, int, error)
	ReviewStats(ctx context.Context, orgID string, threshold float64) (*models.ReviewStats, error)
	Dismiss(ctx context.Context, orgID string, ids []string, at time.Time) (int, error)
	ListIDsByAccount(ctx context.Context, orgID, accountID string) ([]string, error)
	UpdateAccount(ctx context.Context, ids []string, accountID string) error
}

// ParticipantRepo defines the interface for call participant operations
type ParticipantRepo interface {
	CreateBatch(ctx context.Context, participants []models.CallParticipant) error
	ListByCall(ctx context.Context, callID string) ([]models.CallParticipant, error)
	ListIDsByContact(ctx context.Context, contactID string) ([]string, error)
	LinkContact(ctx context.Context, callID, email, contactID string) error
	RelinkContact(ctx context.Context, participantIDs []string, contactID string) error
}

// TranscriptRepo defines the interface for transcript operations
type TranscriptRepo interface {
	// Create stores the transcript unless the call already has one and reports whether it stored it.
	Create(ctx context.Context, transcript *models.Transcript) (bool, error)
}

// CRMEventRepo defines the interface for the opportunity ledger
type CRMEventRepo interface {
	// CreateIgnoreDuplicate reports false when the (account, opportunity, stage) triple already exists.
	CreateIgnoreDuplicate(ctx context.Context, event *models.CRMEvent) (bool, error)
	ListByAccount(ctx context.Context, orgID, accountID string) ([]models.CRMEvent, error)
	UpdateAccount(ctx context.Context, ids []string, accountID string) error
	DeleteByIDs(ctx context.Context, ids []string) error
}

// StoryRepo defines the interface for re-pointing stories during merge and undo
type StoryRepo interface {
	ListIDsByAccount(ctx context.Context, orgID, accountID string) ([]string, error)
	UpdateAccount(ctx context.Context, ids []string, accountID string) error
}

// AccessGrantRepo defines the interface for per-user account access grants
type AccessGrantRepo interface {
	Create(ctx context.Context, grant *models.AccessGrant) error
	ListByAccount(ctx context.Context, orgID, accountID string) ([]models.AccessGrant, error)
	UpdateAccount(ctx context.Context, ids []string, accountID string) error
	DeleteByIDs(ctx context.Context, ids []string) error
}

// IntegrationRepo defines the interface for integration config operations
type IntegrationRepo interface {
	Create(ctx context.Context, config *models.IntegrationConfig) (*models.IntegrationConfig, error)
	Get(ctx context.Context, orgID, id string) (*models.IntegrationConfig, error)
	ListSyncable(ctx context.Context) ([]models.IntegrationConfig, error)
	UpdateCursor(ctx context.Context, id string, cursor *string) error
	MarkError(ctx context.Context, id string, message string) error
	MarkSuccess(ctx context.Context, id string, at time.Time) error
}

// MergeRunRepo defines the interface for merge run operations
type MergeRunRepo interface {
	Create(ctx context.Context, run *models.MergeRun) (*models.MergeRun, error)
	Get(ctx context.Context, orgID, id string) (*models.MergeRun, error)
	List(ctx context.Context, orgID string, limit int) ([]models.MergeRun, error)
	MarkUndone(ctx context.Context, id, undoneBy string, at time.Time) error
}

// ApprovalRepo defines the interface for approval request operations
type ApprovalRepo interface {
	Create(ctx context.Context, request *models.ApprovalRequest) (*models.ApprovalRequest, error)
	Get(ctx context.Context, orgID, id string) (*models.ApprovalRequest, error)
	List(ctx context.Context, orgID string, status *models.ApprovalStatus) ([]models.ApprovalRequest, error)
	UpdateReview(ctx context.Context, request *models.ApprovalRequest) error
}
