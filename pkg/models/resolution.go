package models

// ResolutionMethod is the tier that produced a resolution.
type ResolutionMethod string

const (
	ResolutionMethodEmailDomain ResolutionMethod = "email_domain"
	ResolutionMethodFuzzyName   ResolutionMethod = "fuzzy_name"
	ResolutionMethodNone        ResolutionMethod = "none"
)

// MatchMethod maps the resolution tier onto the method stored on a call.
func (m ResolutionMethod) MatchMethod() MatchMethod {
	switch m {
	case ResolutionMethodEmailDomain:
		return MatchMethodEmailDomain
	case ResolutionMethodFuzzyName:
		return MatchMethodFuzzyName
	default:
		return MatchMethodNone
	}
}

type Resolution struct {
	AccountID   string           `json:"account_id"`
	AccountName string           `json:"account_name"`
	Confidence  float64          `json:"confidence"`
	Method      ResolutionMethod `json:"match_method"`
}

func NoResolution() *Resolution {
	return &Resolution{Method: ResolutionMethodNone}
}

func (r *Resolution) Matched() bool {
	return r != nil && r.Method != ResolutionMethodNone && r.AccountID != ""
}

type ResolveRequest struct {
	Participants []ParticipantInput `json:"participants"`
	CallTitle    string             `json:"call_title,omitempty"`
}
