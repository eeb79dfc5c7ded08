package enums

import "fmt"

// TransactionStatus maps to the transaction_status enum in Postgres.
type TransactionStatus string

const (
	TransactionStatusPending              TransactionStatus = "pending"
	TransactionStatusAwaitingPayment      TransactionStatus = "awaiting_payment"
	TransactionStatusPaymentSubmitted     TransactionStatus = "payment_submitted"
	TransactionStatusPaymentVerified      TransactionStatus = "payment_verified"
	TransactionStatusInspectionScheduled  TransactionStatus = "inspection_scheduled"
	TransactionStatusInspectionFailed     TransactionStatus = "inspection_failed"
	TransactionStatusOwnershipTransferred TransactionStatus = "ownership_transferred"
	TransactionStatusDisputed             TransactionStatus = "disputed"
	TransactionStatusResolved             TransactionStatus = "resolved"
	TransactionStatusCompleted            TransactionStatus = "completed"
	TransactionStatusCancelled            TransactionStatus = "cancelled"
	TransactionStatusRefunded             TransactionStatus = "refunded"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusAwaitingPayment,
	TransactionStatusPaymentSubmitted,
	TransactionStatusPaymentVerified,
	TransactionStatusInspectionScheduled,
	TransactionStatusInspectionFailed,
	TransactionStatusOwnershipTransferred,
	TransactionStatusDisputed,
	TransactionStatusResolved,
	TransactionStatusCompleted,
	TransactionStatusCancelled,
	TransactionStatusRefunded,
}

// String implements fmt.Stringer.
func (s TransactionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TransactionStatus.
func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition may leave this status.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusCompleted, TransactionStatusCancelled, TransactionStatusRefunded:
		return true
	default:
		return false
	}
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}

// InspectionResult tracks the outcome of the pre-transfer vehicle inspection.
type InspectionResult string

const (
	InspectionResultPending InspectionResult = "pending"
	InspectionResultPassed  InspectionResult = "passed"
	InspectionResultFailed  InspectionResult = "failed"
)

// IsValid reports whether the value is a known InspectionResult.
func (r InspectionResult) IsValid() bool {
	switch r {
	case InspectionResultPending, InspectionResultPassed, InspectionResultFailed:
		return true
	default:
		return false
	}
}
