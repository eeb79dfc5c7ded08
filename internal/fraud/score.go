package fraud

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/autoescrow-backend/internal/transactions"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

// Factor categories in evaluation order.
const (
	CategoryUserBehavior       = "user_behavior"
	CategoryTransactionPattern = "transaction_pattern"
	CategoryVelocity           = "velocity"
	CategoryAmountAnomaly      = "amount_anomaly"
	CategoryDevice             = "device"
	CategorySellerReputation   = "seller_reputation"
)

const (
	manualReviewScore  = 60
	maxFailedCounted   = 3
	minSalesForRate    = 5
	maxCancelRate      = 0.30
	maxSellerDisputes  = 2
	maxBuyerTxnsPerDay = 3
)

var (
	highValueAmount      = decimal.NewFromInt(50000)
	oldVehicleAmount     = decimal.NewFromInt(30000)
	roundAmountUnit      = decimal.NewFromInt(1000)
	aboveComparableRatio = decimal.RequireFromString("1.5")
	belowComparableRatio = decimal.RequireFromString("0.5")
)

// Weights holds the tunable factor weights.
type Weights struct {
	RoundAmount int
}

// DefaultWeights returns the production weighting.
func DefaultWeights() Weights {
	return Weights{RoundAmount: 5}
}

// DeviceSignal is the cached device fingerprint verdict for a buyer.
type DeviceSignal struct {
	SharedDevice bool `json:"shared_device"`
	VPN          bool `json:"vpn"`
}

// Signals is everything Score needs. Zero values mean "unknown" and never
// add points on their own.
type Signals struct {
	Amount decimal.Decimal

	BuyerCreatedAt      time.Time
	BuyerKYCVerified    bool
	BuyerCompletedCount int64
	BuyerFailedCount    int64
	BuyerCountry        string

	SellerCountry   string
	SellerCreatedAt time.Time
	Seller          transactions.SellerStats

	VehicleYear   int
	ComparableAvg decimal.Decimal
	BuyerTxns24h  int64
	PairTxns48h   int64
	Device        DeviceSignal
}

// Factor is one category's contribution.
type Factor struct {
	Category   string   `json:"category"`
	Score      int      `json:"score"`
	Indicators []string `json:"indicators"`
}

// Assessment is the scored outcome with its full breakdown.
type Assessment struct {
	Factors              []Factor         `json:"factors"`
	RawScore             int              `json:"raw_score"`
	Score                int              `json:"score"`
	Level                enums.RiskLevel  `json:"level"`
	Action               enums.RiskAction `json:"action"`
	RequiresManualReview bool             `json:"requires_manual_review"`
	AssessedAt           time.Time        `json:"assessed_at"`
}

type factorBuilder struct {
	Factor
}

func newFactor(category string) *factorBuilder {
	return &factorBuilder{Factor{Category: category, Indicators: []string{}}}
}

func (f *factorBuilder) add(points int, indicator string) {
	f.Score += points
	f.Indicators = append(f.Indicators, indicator)
}

// Score is pure: now must already be in the marketplace's local timezone.
func Score(s Signals, now time.Time, w Weights) Assessment {
	factors := []Factor{
		userBehavior(s, now),
		transactionPattern(s, now),
		velocity(s),
		amountAnomaly(s, w),
		device(s),
		sellerReputation(s, now),
	}

	raw := 0
	for _, f := range factors {
		raw += f.Score
	}
	score := clamp(raw, 0, 100)
	return Assessment{
		Factors:              factors,
		RawScore:             raw,
		Score:                score,
		Level:                enums.RiskLevelForScore(score),
		Action:               enums.RiskActionForScore(score),
		RequiresManualReview: score >= manualReviewScore,
		AssessedAt:           now.UTC(),
	}
}

func userBehavior(s Signals, now time.Time) Factor {
	f := newFactor(CategoryUserBehavior)
	if !s.BuyerCreatedAt.IsZero() && now.Sub(s.BuyerCreatedAt) < 7*24*time.Hour {
		f.add(15, "new_account")
	}
	if !s.BuyerKYCVerified {
		f.add(25, "kyc_not_verified")
	}
	if s.BuyerCompletedCount == 0 {
		f.add(20, "first_transaction")
	}
	if s.BuyerFailedCount > 0 {
		n := s.BuyerFailedCount
		if n > maxFailedCounted {
			n = maxFailedCounted
		}
		f.add(10*int(n), fmt.Sprintf("failed_transactions:%d", s.BuyerFailedCount))
	}
	return f.Factor
}

func transactionPattern(s Signals, now time.Time) Factor {
	f := newFactor(CategoryTransactionPattern)
	if s.Amount.GreaterThan(highValueAmount) {
		f.add(15, "high_value")
	}
	if crossBorder(s.BuyerCountry, s.SellerCountry) {
		f.add(10, "cross_border")
	}
	if h := now.Hour(); h >= 2 && h < 5 {
		f.add(8, "night_time")
	}
	if s.VehicleYear > 0 && now.Year()-s.VehicleYear > 10 && s.Amount.GreaterThan(oldVehicleAmount) {
		f.add(12, "old_vehicle_high_price")
	}
	return f.Factor
}

func velocity(s Signals) Factor {
	f := newFactor(CategoryVelocity)
	if s.BuyerTxns24h > maxBuyerTxnsPerDay {
		f.add(25, "buyer_velocity_24h")
	}
	if s.PairTxns48h > 1 {
		f.add(15, "repeat_seller_48h")
	}
	return f.Factor
}

func amountAnomaly(s Signals, w Weights) Factor {
	f := newFactor(CategoryAmountAnomaly)
	if s.ComparableAvg.IsPositive() {
		switch {
		case s.Amount.GreaterThan(s.ComparableAvg.Mul(aboveComparableRatio)):
			f.add(20, "above_market")
		case s.Amount.LessThan(s.ComparableAvg.Mul(belowComparableRatio)):
			f.add(25, "below_market")
		}
	}
	if w.RoundAmount > 0 && s.Amount.IsPositive() && s.Amount.Mod(roundAmountUnit).IsZero() {
		f.add(w.RoundAmount, "round_amount")
	}
	return f.Factor
}

func device(s Signals) Factor {
	f := newFactor(CategoryDevice)
	if s.Device.SharedDevice {
		f.add(20, "shared_device")
	}
	if s.Device.VPN {
		f.add(15, "vpn_detected")
	}
	return f.Factor
}

func sellerReputation(s Signals, now time.Time) Factor {
	f := newFactor(CategorySellerReputation)
	if !s.SellerCreatedAt.IsZero() && now.Sub(s.SellerCreatedAt) < 30*24*time.Hour {
		f.add(10, "new_seller")
	}
	if s.Seller.Sales >= minSalesForRate && float64(s.Seller.Cancelled)/float64(s.Seller.Sales) > maxCancelRate {
		f.add(15, "high_cancellation_rate")
	}
	if s.Seller.Disputes > maxSellerDisputes {
		f.add(12, "dispute_history")
	}
	return f.Factor
}

func crossBorder(a, b string) bool {
	return a != "" && b != "" && a != b
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
