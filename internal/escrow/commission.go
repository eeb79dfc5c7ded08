package escrow

import "github.com/shopspring/decimal"

// Policy holds the platform fee schedule.
type Policy struct {
	ServiceFeeRate  decimal.Decimal
	ServiceFeeFloor decimal.Decimal
	DealerRate      decimal.Decimal
}

// DefaultPolicy is 2.5% with a 25 floor plus 3% for dealer-brokered sales.
func DefaultPolicy() Policy {
	return Policy{
		ServiceFeeRate:  decimal.RequireFromString("0.025"),
		ServiceFeeFloor: decimal.NewFromInt(25),
		DealerRate:      decimal.RequireFromString("0.03"),
	}
}

// Distribution splits an escrowed amount. The three parts always sum to the amount.
type Distribution struct {
	SellerPayout     decimal.Decimal `json:"seller_payout"`
	ServiceFee       decimal.Decimal `json:"service_fee"`
	DealerCommission decimal.Decimal `json:"dealer_commission"`
}

// DistributeCommissions computes fee and commission rounded to cents; the
// seller receives the remainder. The fee floor never takes more than what is
// left after the commission, so the payout is never negative.
func DistributeCommissions(amount decimal.Decimal, hasDealer bool, policy Policy) Distribution {
	commission := decimal.Zero
	if hasDealer {
		commission = amount.Mul(policy.DealerRate).Round(2)
	}
	fee := amount.Mul(policy.ServiceFeeRate).Round(2)
	if fee.LessThan(policy.ServiceFeeFloor) {
		fee = policy.ServiceFeeFloor
	}
	if ceiling := decimal.Max(amount.Sub(commission), decimal.Zero); fee.GreaterThan(ceiling) {
		fee = ceiling
	}
	return Distribution{
		SellerPayout:     amount.Sub(fee).Sub(commission),
		ServiceFee:       fee,
		DealerCommission: commission,
	}
}
