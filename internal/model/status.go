package model

// Status is a stage of the deal lifecycle.
type Status string

const (
	StatusProspecting  Status = "prospecting"
	StatusPreQualified Status = "pre_qualified"
	StatusInReview     Status = "in_review"
	StatusSubmitted    Status = "submitted"
	StatusApproved     Status = "approved"
	StatusRejected     Status = "rejected"
	StatusFunded       Status = "funded"
	StatusClosed       Status = "closed"
)

var statusSuccessors = map[Status][]Status{
	StatusProspecting:  {StatusPreQualified},
	StatusPreQualified: {StatusInReview},
	StatusInReview:     {StatusSubmitted},
	StatusSubmitted:    {StatusApproved, StatusRejected},
	StatusApproved:     {StatusFunded},
	StatusFunded:       {StatusClosed},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusProspecting, StatusPreQualified, StatusInReview, StatusSubmitted,
		StatusApproved, StatusRejected, StatusFunded, StatusClosed:
		return true
	}
	return false
}

// Successors returns the statuses s may advance to.
func (s Status) Successors() []Status {
	return append([]Status(nil), statusSuccessors[s]...)
}

// CanAdvanceTo reports whether next is a documented successor of s.
func (s Status) CanAdvanceTo(next Status) bool {
	for _, candidate := range statusSuccessors[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s has no outgoing transition.
func (s Status) Terminal() bool {
	return s.Valid() && len(statusSuccessors[s]) == 0
}

// Active reports whether the deal is being worked (pre-qualified through submitted).
func (s Status) Active() bool {
	return s == StatusPreQualified || s == StatusInReview || s == StatusSubmitted
}
