package models

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

type ReviewSortBy string

const (
	ReviewSortOccurredAt ReviewSortBy = "occurred_at"
	ReviewSortConfidence ReviewSortBy = "confidence"
)

// ReviewListParams filters and pages the resolution queue.
type ReviewListParams struct {
	Page      int          `query:"page" validate:"omitempty,min=1"`
	PageSize  int          `query:"page_size" validate:"omitempty,min=1,max=200"`
	Search    string       `query:"search"`
	SortBy    ReviewSortBy `query:"sort_by" validate:"omitempty,oneof=occurred_at confidence"`
	SortOrder SortOrder    `query:"sort_order" validate:"omitempty,oneof=asc desc"`
}

// Normalize fills defaults.
func (p *ReviewListParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 25
	}
	if p.SortBy == "" {
		p.SortBy = ReviewSortOccurredAt
	}
	if p.SortOrder == "" {
		p.SortOrder = SortDesc
	}
}

func (p ReviewListParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

type Suggestion struct {
	AccountID   string  `json:"account_id"`
	AccountName string  `json:"account_name"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
}

type ReviewItem struct {
	Call         Call              `json:"call"`
	Participants []CallParticipant `json:"participants"`
	Suggestions  []Suggestion      `json:"suggestions"`
}

type ReviewPage struct {
	Items    []ReviewItem `json:"items"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

type ReviewStats struct {
	Queued           int `json:"queued"`
	Unmatched        int `json:"unmatched"`
	LowConfidence    int `json:"low_confidence"`
	Dismissed        int `json:"dismissed"`
	ResolvedManually int `json:"resolved_manually"`
}

type ResolveCallRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
}

type BulkResolveRequest struct {
	CallIDs   []string `json:"call_ids" validate:"required,min=1,dive,uuid"`
	AccountID string   `json:"account_id" validate:"required,uuid"`
}

type DismissRequest struct {
	CallIDs []string `json:"call_ids" validate:"required,min=1,dive,uuid"`
}

type CountResponse struct {
	Count int `json:"count"`
}
