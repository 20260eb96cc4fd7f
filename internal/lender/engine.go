// Package lender ranks lender recommendations for a deal.
//
// Scoring is a pure function of the deal amount, deal type and borrower risk
// profile, so the same deal always produces the same ranked list.
package lender

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/capitalize-ai/deal-conversations/internal/apperr"
	"github.com/capitalize-ai/deal-conversations/internal/model"
)

const (
	minApproval = 5
	maxApproval = 98

	largeTicket = 1_000_000

	fastestAdvantage    = "Fastest time to close among matched lenders"
	lowestRateAdvantage = "Lowest estimated rate among matched lenders"
)

// recommendationNamespace scopes deterministic recommendation ids.
var recommendationNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:deal-conversations:lender-recommendation"))

// Deal is the input to a recommendation request.
type Deal struct {
	ConversationID string
	Amount         float64
	Type           model.DealType
	Risk           model.BorrowerRisk
}

// DealFrom extracts the matching inputs from a conversation snapshot.
func DealFrom(c model.Conversation) Deal {
	return Deal{
		ConversationID: c.ID,
		Amount:         c.DealAmount,
		Type:           c.DealType,
		Risk:           c.BorrowerRisk,
	}
}

// Engine produces ranked recommendations from a lender catalog.
type Engine struct {
	catalog []Profile
}

// NewEngine creates an engine. An empty catalog falls back to DefaultCatalog.
func NewEngine(catalog []Profile) *Engine {
	if len(catalog) == 0 {
		catalog = DefaultCatalog()
	}
	return &Engine{catalog: catalog}
}

// Recommend scores every lender that serves the deal and returns them ranked.
// Lenders that do not write the deal type or amount are left out, so the
// result may be empty.
func (e *Engine) Recommend(d Deal) ([]model.LenderRecommendation, error) {
	if !model.ValidAmount(d.Amount) {
		return nil, apperr.Validation("deal amount must be a positive finite number")
	}
	if !d.Type.Valid() {
		return nil, apperr.Validation("unknown deal type %q", d.Type)
	}

	recs := make([]model.LenderRecommendation, 0, len(e.catalog))
	for _, p := range e.catalog {
		if !p.Serves(d.Type) || d.Amount < p.MinAmount || d.Amount > p.MaxAmount {
			continue
		}
		recs = append(recs, score(p, d))
	}

	recs = Rank(recs)
	markLeaders(recs)
	return recs, nil
}

// RecommendFor recommends lenders for a conversation snapshot.
func (e *Engine) RecommendFor(c model.Conversation) ([]model.LenderRecommendation, error) {
	return e.Recommend(DealFrom(c))
}

// Rank returns recs ordered by approval probability (highest first), then
// time to close (shortest first), then estimated rate (lowest first), then
// lender name. The input slice is not modified.
func Rank(recs []model.LenderRecommendation) []model.LenderRecommendation {
	out := make([]model.LenderRecommendation, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ApprovalProbability != b.ApprovalProbability {
			return a.ApprovalProbability > b.ApprovalProbability
		}
		if a.TimeToClose != b.TimeToClose {
			return a.TimeToClose < b.TimeToClose
		}
		if a.EstimatedRate != b.EstimatedRate {
			return a.EstimatedRate < b.EstimatedRate
		}
		return a.LenderName < b.LenderName
	})
	return out
}

func score(p Profile, d Deal) model.LenderRecommendation {
	approval := p.BaseApproval + amountFit(p, d.Amount) + creditFit(p, d.Risk.CreditScore) +
		dscrFit(d.Risk.DSCR) + tenureFit(d.Risk.YearsInBusiness) + collateralFit(p, d.Risk.HasCollateral)
	approval = clamp(approval, minApproval, maxApproval)

	rate := p.BaseRate + creditPremium(p, d.Risk.CreditScore)
	if d.Risk.DSCR > 0 && d.Risk.DSCR < 1.25 {
		rate += 0.5
	}
	if d.Amount > largeTicket {
		rate -= 0.25
	}
	rate = math.Round(rate*100) / 100

	days := p.BaseDays
	if d.Amount > largeTicket {
		days += p.BaseDays / 2
	}
	if d.Risk.CreditScore == 0 {
		days += 2
	}
	if days < 1 {
		days = 1
	}

	terms := p.Terms[d.Type]
	if terms == "" {
		terms = defaultTerms[d.Type]
	}

	requirements := append([]string(nil), p.Requirements...)
	requirements = append(requirements, fmt.Sprintf("Minimum credit score of %d", p.MinCredit))

	advantages := append([]string(nil), p.Advantages...)
	if len(advantages) == 0 {
		advantages = []string{fmt.Sprintf("Writes %s deals of this size", d.Type.Label())}
	}

	edge := p.CompetitiveEdge
	if edge == "" {
		edge = p.Name + " actively lends in this segment"
	}

	return model.LenderRecommendation{
		ID:                  uuid.NewSHA1(recommendationNamespace, []byte(d.ConversationID+"/"+p.Name)).String(),
		LenderName:          p.Name,
		ApprovalProbability: approval,
		EstimatedRate:       rate,
		EstimatedTerms:      terms,
		TimeToClose:         days,
		Advantages:          advantages,
		Requirements:        requirements,
		CompetitiveEdge:     edge,
	}
}

func amountFit(p Profile, amount float64) int {
	if amount >= p.SweetSpotMin && amount <= p.SweetSpotMax {
		return 8
	}
	return 0
}

func creditFit(p Profile, credit int) int {
	switch {
	case credit == 0:
		return -5
	case credit < p.MinCredit:
		return -25
	case credit >= p.MinCredit+80:
		return 12
	case credit >= p.MinCredit+40:
		return 7
	default:
		return 2
	}
}

func creditPremium(p Profile, credit int) float64 {
	switch {
	case credit == 0:
		return 0.75
	case credit < p.MinCredit:
		return 2.5
	case credit < p.MinCredit+40:
		return 1.0
	case credit < p.MinCredit+80:
		return 0.5
	default:
		return 0
	}
}

func dscrFit(dscr float64) int {
	switch {
	case dscr == 0:
		return -3
	case dscr >= 1.5:
		return 8
	case dscr >= 1.25:
		return 4
	case dscr >= 1.0:
		return -4
	default:
		return -20
	}
}

func tenureFit(years float64) int {
	switch {
	case years == 0:
		return -2
	case years >= 5:
		return 5
	case years >= 2:
		return 2
	default:
		return -8
	}
}

func collateralFit(p Profile, hasCollateral bool) int {
	if !hasCollateral {
		return 0
	}
	if p.CollateralFocused {
		return 6
	}
	return 3
}

// markLeaders tags the fastest and cheapest options in an already ranked list.
func markLeaders(recs []model.LenderRecommendation) {
	if len(recs) < 2 {
		return
	}
	fastest, cheapest := recs[0].TimeToClose, recs[0].EstimatedRate
	for _, r := range recs[1:] {
		if r.TimeToClose < fastest {
			fastest = r.TimeToClose
		}
		if r.EstimatedRate < cheapest {
			cheapest = r.EstimatedRate
		}
	}
	for i := range recs {
		if recs[i].TimeToClose == fastest {
			recs[i].Advantages = append(recs[i].Advantages, fastestAdvantage)
		}
		if recs[i].EstimatedRate == cheapest {
			recs[i].Advantages = append(recs[i].Advantages, lowestRateAdvantage)
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
