package model

// LenderRecommendation is a ranked candidate lender for a deal.
type LenderRecommendation struct {
	ID                  string   `json:"id"`
	LenderName          string   `json:"lender_name"`
	ApprovalProbability int      `json:"approval_probability"`
	EstimatedRate       float64  `json:"estimated_rate"`
	EstimatedTerms      string   `json:"estimated_terms"`
	TimeToClose         int      `json:"time_to_close"`
	Advantages          []string `json:"advantages"`
	Requirements        []string `json:"requirements"`
	CompetitiveEdge     string   `json:"competitive_edge"`
}

// Clone returns a deep copy of the recommendation.
func (r LenderRecommendation) Clone() LenderRecommendation {
	out := r
	out.Advantages = append([]string(nil), r.Advantages...)
	out.Requirements = append([]string(nil), r.Requirements...)
	return out
}

// LenderMatchResponse is the response for a lender match request.
type LenderMatchResponse struct {
	ConversationID  string                 `json:"conversation_id"`
	Recommendations []LenderRecommendation `json:"recommendations"`
}

// SelectLenderRequest is the request to pick a recommended lender.
type SelectLenderRequest struct {
	RecommendationID string `json:"recommendation_id"`
}
