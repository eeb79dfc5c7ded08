package enums

import "fmt"

// PaymentType identifies which monetary leg of a transaction a payment represents.
type PaymentType string

const (
	PaymentTypeDeposit          PaymentType = "deposit"
	PaymentTypeRelease          PaymentType = "release"
	PaymentTypeRefund           PaymentType = "refund"
	PaymentTypeServiceFee       PaymentType = "service_fee"
	PaymentTypeDealerCommission PaymentType = "dealer_commission"
)

var validPaymentTypes = []PaymentType{
	PaymentTypeDeposit,
	PaymentTypeRelease,
	PaymentTypeRefund,
	PaymentTypeServiceFee,
	PaymentTypeDealerCommission,
}

// String implements fmt.Stringer.
func (p PaymentType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentType.
func (p PaymentType) IsValid() bool {
	for _, candidate := range validPaymentTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// PaymentStatus tracks the lifecycle of a payment leg.
type PaymentStatus string

const (
	PaymentStatusSubmitted           PaymentStatus = "submitted"
	PaymentStatusPendingManualReview PaymentStatus = "pending_manual_review"
	PaymentStatusVerified            PaymentStatus = "verified"
	PaymentStatusRejected            PaymentStatus = "rejected"
	PaymentStatusCompleted           PaymentStatus = "completed"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusSubmitted,
	PaymentStatusPendingManualReview,
	PaymentStatusVerified,
	PaymentStatusRejected,
	PaymentStatusCompleted,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
