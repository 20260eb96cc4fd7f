package lender

import (
	"github.com/capitalize-ai/deal-conversations/internal/model"
)

// Profile describes a lender's appetite and pricing.
type Profile struct {
	Name string

	// DealTypes the lender will underwrite.
	DealTypes []model.DealType

	// Amount band the lender writes, and the sub-band it prefers.
	MinAmount, MaxAmount       float64
	SweetSpotMin, SweetSpotMax float64

	BaseApproval int
	BaseRate     float64
	BaseDays     int
	MinCredit    int

	// CollateralFocused lenders weigh pledged collateral more heavily.
	CollateralFocused bool

	Terms           map[model.DealType]string
	Advantages      []string
	Requirements    []string
	CompetitiveEdge string
}

// Serves reports whether the lender underwrites deal type t.
func (p Profile) Serves(t model.DealType) bool {
	for _, dt := range p.DealTypes {
		if dt == t {
			return true
		}
	}
	return false
}

var defaultTerms = map[model.DealType]string{
	model.DealEquipmentFinancing: "36-60 months, equipment as collateral",
	model.DealWorkingCapital:     "12-24 months, revolving draw",
	model.DealCommercialMortgage: "10-year term, 25-year amortization",
	model.DealSBALoan:            "Up to 10 years (25 for real estate)",
}

// DefaultCatalog is the lender panel used when none is configured.
func DefaultCatalog() []Profile {
	return []Profile{
		{
			Name:              "Summit Equipment Finance",
			DealTypes:         []model.DealType{model.DealEquipmentFinancing},
			MinAmount:         25_000,
			MaxAmount:         5_000_000,
			SweetSpotMin:      100_000,
			SweetSpotMax:      1_500_000,
			BaseApproval:      74,
			BaseRate:          7.25,
			BaseDays:          5,
			MinCredit:         640,
			CollateralFocused: true,
			Advantages:        []string{"Specialized equipment underwriting", "Same-week funding on approved deals"},
			Requirements:      []string{"Equipment invoice or quote", "Two years of business tax returns"},
			CompetitiveEdge:   "Dedicated equipment desk with vendor-direct funding",
		},
		{
			Name:            "Meridian Business Capital",
			DealTypes:       []model.DealType{model.DealWorkingCapital, model.DealEquipmentFinancing},
			MinAmount:       10_000,
			MaxAmount:       2_000_000,
			SweetSpotMin:    50_000,
			SweetSpotMax:    500_000,
			BaseApproval:    78,
			BaseRate:        9.5,
			BaseDays:        3,
			MinCredit:       600,
			Advantages:      []string{"Flexible credit box", "Decisions within 24 hours"},
			Requirements:    []string{"Six months of bank statements", "Signed personal guarantee"},
			CompetitiveEdge: "Fastest decisioning on the panel",
		},
		{
			Name:              "Keystone Commercial Bank",
			DealTypes:         []model.DealType{model.DealCommercialMortgage, model.DealSBALoan, model.DealEquipmentFinancing},
			MinAmount:         250_000,
			MaxAmount:         25_000_000,
			SweetSpotMin:      1_000_000,
			SweetSpotMax:      10_000_000,
			BaseApproval:      66,
			BaseRate:          6.5,
			BaseDays:          21,
			MinCredit:         680,
			CollateralFocused: true,
			Advantages:        []string{"Lowest cost of capital for strong credits", "Relationship banking and treasury services"},
			Requirements:      []string{"Three years of audited or reviewed financials", "Appraisal on pledged real estate"},
			CompetitiveEdge:   "Bank balance sheet pricing on larger tickets",
		},
		{
			Name:            "Harbor SBA Lending",
			DealTypes:       []model.DealType{model.DealSBALoan, model.DealWorkingCapital},
			MinAmount:       50_000,
			MaxAmount:       5_000_000,
			SweetSpotMin:    150_000,
			SweetSpotMax:    2_000_000,
			BaseApproval:    70,
			BaseRate:        7.75,
			BaseDays:        30,
			MinCredit:       650,
			Terms:           map[model.DealType]string{model.DealWorkingCapital: "Up to 10 years, SBA 7(a) working capital"},
			Advantages:      []string{"Preferred SBA lender status", "Long amortization lowers payments"},
			Requirements:    []string{"SBA forms 1919 and 413", "Business plan with projections"},
			CompetitiveEdge: "Delegated SBA authority shortens approval",
		},
		{
			Name: "Atlas Credit Partners",
			DealTypes: []model.DealType{
				model.DealEquipmentFinancing, model.DealWorkingCapital,
				model.DealCommercialMortgage, model.DealSBALoan,
			},
			MinAmount:       100_000,
			MaxAmount:       10_000_000,
			SweetSpotMin:    250_000,
			SweetSpotMax:    3_000_000,
			BaseApproval:    68,
			BaseRate:        8.75,
			BaseDays:        10,
			MinCredit:       620,
			Advantages:      []string{"Structures around irregular cash flow", "One credit team across all products"},
			Requirements:    []string{"Year-to-date interim financials", "Accounts receivable aging"},
			CompetitiveEdge: "Creative structuring for deals banks decline",
		},
	}
}
