package aml

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

// AML flags persisted on the transaction.
const (
	FlagLargeTransaction     = "large_transaction"
	FlagVeryLargeTransaction = "very_large_transaction"
	FlagHighVelocity         = "high_velocity"
	FlagPotentialStructuring = "potential_structuring"
	FlagCrossBorder          = "cross_border"
	FlagHighRiskCountry      = "high_risk_country"
	FlagHighRiskCustomer     = "high_risk_customer"
)

const (
	reportingScore = 60
	sarScore       = 80
	maxWeeklyTxns  = 3
)

var (
	reportingThreshold   = decimal.NewFromInt(10000)
	veryLargeThreshold   = decimal.NewFromInt(50000)
	structuringThreshold = decimal.NewFromInt(40000)
)

// Signals is the input to Evaluate.
type Signals struct {
	Amount             decimal.Decimal
	BuyerTxns7d        int64
	PriorTotal30d      decimal.Decimal
	BuyerCountry       string
	SellerCountry      string
	BuyerLastRiskLevel *enums.RiskLevel
}

// Outcome is the scored AML verdict before persistence.
type Outcome struct {
	Flags             []string        `json:"flags"`
	RiskScore         int             `json:"risk_score"`
	RiskLevel         enums.RiskLevel `json:"risk_level"`
	RequiresReporting bool            `json:"requires_reporting"`
	RequiresSAR       bool            `json:"requires_sar"`
}

// CountryList is a set of ISO country codes.
type CountryList map[string]struct{}

// NewCountryList normalises codes to upper case.
func NewCountryList(codes []string) CountryList {
	list := make(CountryList, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" {
			list[code] = struct{}{}
		}
	}
	return list
}

func (c CountryList) Contains(code string) bool {
	_, ok := c[strings.ToUpper(code)]
	return ok
}

// Evaluate applies the AML heuristics. The large and very-large amount points
// are cumulative.
func Evaluate(s Signals, highRisk CountryList) Outcome {
	out := Outcome{Flags: []string{}}
	add := func(points int, flag string) {
		out.RiskScore += points
		out.Flags = append(out.Flags, flag)
	}

	if s.Amount.GreaterThanOrEqual(reportingThreshold) {
		add(20, FlagLargeTransaction)
	}
	if s.Amount.GreaterThanOrEqual(veryLargeThreshold) {
		add(30, FlagVeryLargeTransaction)
	}
	if s.BuyerTxns7d > maxWeeklyTxns {
		add(25, FlagHighVelocity)
	}
	if s.PriorTotal30d.GreaterThan(structuringThreshold) && s.Amount.LessThan(reportingThreshold) {
		add(35, FlagPotentialStructuring)
	}
	if s.BuyerCountry != "" && s.SellerCountry != "" && !strings.EqualFold(s.BuyerCountry, s.SellerCountry) {
		add(15, FlagCrossBorder)
	}
	if highRisk.Contains(s.BuyerCountry) || highRisk.Contains(s.SellerCountry) {
		add(50, FlagHighRiskCountry)
	}
	if s.BuyerLastRiskLevel != nil && *s.BuyerLastRiskLevel == enums.RiskLevelHigh {
		add(30, FlagHighRiskCustomer)
	}

	if out.RiskScore > 100 {
		out.RiskScore = 100
	}
	out.RiskLevel = enums.RiskLevelForScore(out.RiskScore)
	out.RequiresReporting = s.Amount.GreaterThanOrEqual(reportingThreshold) || out.RiskScore >= reportingScore
	out.RequiresSAR = out.RiskScore >= sarScore
	return out
}
