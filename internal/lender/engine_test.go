package lender

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/deal-conversations/internal/apperr"
	"github.com/capitalize-ai/deal-conversations/internal/model"
)

func equipmentDeal() Deal {
	return Deal{
		ConversationID: "conv-1",
		Amount:         750_000,
		Type:           model.DealEquipmentFinancing,
	}
}

func TestRank_ProbabilityThenTimeToClose(t *testing.T) {
	recs := []model.LenderRecommendation{
		{ID: "rec1", LenderName: "A", ApprovalProbability: 88, TimeToClose: 5, EstimatedRate: 7},
		{ID: "rec2", LenderName: "B", ApprovalProbability: 92, TimeToClose: 7, EstimatedRate: 7},
		{ID: "rec3", LenderName: "C", ApprovalProbability: 92, TimeToClose: 5, EstimatedRate: 7},
	}

	ranked := Rank(recs)

	ids := []string{ranked[0].ID, ranked[1].ID, ranked[2].ID}
	assert.Equal(t, []string{"rec3", "rec2", "rec1"}, ids)
	assert.Equal(t, "rec1", recs[0].ID, "input must not be reordered")
}

func TestRank_RateAndNameBreakRemainingTies(t *testing.T) {
	recs := []model.LenderRecommendation{
		{LenderName: "Zeta", ApprovalProbability: 80, TimeToClose: 10, EstimatedRate: 8.5},
		{LenderName: "Beta", ApprovalProbability: 80, TimeToClose: 10, EstimatedRate: 7.9},
		{LenderName: "Alpha", ApprovalProbability: 80, TimeToClose: 10, EstimatedRate: 8.5},
	}

	ranked := Rank(recs)

	assert.Equal(t, "Beta", ranked[0].LenderName)
	assert.Equal(t, "Alpha", ranked[1].LenderName)
	assert.Equal(t, "Zeta", ranked[2].LenderName)
}

func TestRecommend_RejectsNonPositiveAmount(t *testing.T) {
	e := NewEngine(nil)

	for _, amount := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		d := equipmentDeal()
		d.Amount = amount
		_, err := e.Recommend(d)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperr.ErrValidation))
	}
}

func TestRecommend_Deterministic(t *testing.T) {
	e := NewEngine(nil)

	first, err := e.Recommend(equipmentDeal())
	require.NoError(t, err)
	second, err := e.Recommend(equipmentDeal())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRecommend_WellFormed(t *testing.T) {
	e := NewEngine(nil)

	deals := []Deal{
		equipmentDeal(),
		{ConversationID: "c2", Amount: 180_000, Type: model.DealWorkingCapital, Risk: model.BorrowerRisk{CreditScore: 710, DSCR: 1.4, YearsInBusiness: 6}},
		{ConversationID: "c3", Amount: 4_200_000, Type: model.DealCommercialMortgage, Risk: model.BorrowerRisk{CreditScore: 760, DSCR: 1.6, HasCollateral: true}},
		{ConversationID: "c4", Amount: 900_000, Type: model.DealSBALoan, Risk: model.BorrowerRisk{CreditScore: 590, DSCR: 0.9, YearsInBusiness: 1}},
	}

	for _, d := range deals {
		recs, err := e.Recommend(d)
		require.NoError(t, err)
		require.NotEmpty(t, recs, "deal %s should match at least one lender", d.Type)

		for i, r := range recs {
			assert.NotEmpty(t, r.ID)
			assert.NotEmpty(t, r.Advantages)
			assert.NotEmpty(t, r.Requirements)
			assert.NotEmpty(t, r.CompetitiveEdge)
			assert.Positive(t, r.TimeToClose)
			assert.GreaterOrEqual(t, r.ApprovalProbability, 0)
			assert.LessOrEqual(t, r.ApprovalProbability, 100)
			if i > 0 {
				prev := recs[i-1]
				assert.GreaterOrEqual(t, prev.ApprovalProbability, r.ApprovalProbability)
				if prev.ApprovalProbability == r.ApprovalProbability {
					assert.LessOrEqual(t, prev.TimeToClose, r.TimeToClose)
				}
			}
		}
	}
}

func TestRecommend_EquipmentDealRanking(t *testing.T) {
	recs, err := NewEngine(nil).Recommend(equipmentDeal())
	require.NoError(t, err)

	names := make([]string, len(recs))
	for i, r := range recs {
		names[i] = r.LenderName
	}
	assert.Equal(t, []string{
		"Summit Equipment Finance",
		"Meridian Business Capital",
		"Atlas Credit Partners",
		"Keystone Commercial Bank",
	}, names)

	top := recs[0]
	assert.Equal(t, 72, top.ApprovalProbability)
	assert.Equal(t, 8.0, top.EstimatedRate)
	assert.Equal(t, 7, top.TimeToClose)
	assert.Contains(t, recs[1].Advantages, fastestAdvantage)
	assert.Contains(t, recs[3].Advantages, lowestRateAdvantage)
}

func TestRecommend_StrongerBorrowerScoresHigher(t *testing.T) {
	e := NewEngine(nil)

	weak := equipmentDeal()
	weak.Risk = model.BorrowerRisk{CreditScore: 610, DSCR: 0.95, YearsInBusiness: 1}
	strong := equipmentDeal()
	strong.Risk = model.BorrowerRisk{CreditScore: 780, DSCR: 1.8, YearsInBusiness: 12, HasCollateral: true}

	weakRecs, err := e.Recommend(weak)
	require.NoError(t, err)
	strongRecs, err := e.Recommend(strong)
	require.NoError(t, err)

	weakByName := make(map[string]model.LenderRecommendation)
	for _, r := range weakRecs {
		weakByName[r.LenderName] = r
	}
	for _, r := range strongRecs {
		w := weakByName[r.LenderName]
		assert.Greater(t, r.ApprovalProbability, w.ApprovalProbability, r.LenderName)
		assert.Less(t, r.EstimatedRate, w.EstimatedRate, r.LenderName)
	}
}

func TestRecommend_FiltersByTypeAndBand(t *testing.T) {
	e := NewEngine([]Profile{
		{Name: "Small", DealTypes: []model.DealType{model.DealWorkingCapital}, MinAmount: 1, MaxAmount: 100, BaseApproval: 50, BaseRate: 9, BaseDays: 2},
		{Name: "Mortgage", DealTypes: []model.DealType{model.DealCommercialMortgage}, MinAmount: 1, MaxAmount: 1_000_000, BaseApproval: 50, BaseRate: 6, BaseDays: 20},
	})

	recs, err := e.Recommend(Deal{ConversationID: "c", Amount: 500, Type: model.DealWorkingCapital})
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = e.Recommend(Deal{ConversationID: "c", Amount: 50, Type: model.DealWorkingCapital})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Small", recs[0].LenderName)
	assert.NotEmpty(t, recs[0].Advantages, "a lender without configured advantages still gets one")
	assert.NotEmpty(t, recs[0].CompetitiveEdge)
}

func TestRecommend_IDsStablePerConversation(t *testing.T) {
	e := NewEngine(nil)

	a, err := e.Recommend(equipmentDeal())
	require.NoError(t, err)
	other := equipmentDeal()
	other.ConversationID = "conv-2"
	b, err := e.Recommend(other)
	require.NoError(t, err)

	assert.Equal(t, a[0].LenderName, b[0].LenderName)
	assert.NotEqual(t, a[0].ID, b[0].ID)
}
