package escrow

import (
	"time"

	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

// DefaultReleaseHold is how long verified funds stay in escrow before they
// may be released automatically.
const DefaultReleaseHold = 72 * time.Hour

type status = enums.TransactionStatus

var transitions = map[status][]status{
	enums.TransactionStatusPending: {
		enums.TransactionStatusAwaitingPayment,
		enums.TransactionStatusCancelled,
	},
	enums.TransactionStatusAwaitingPayment: {
		enums.TransactionStatusPaymentSubmitted,
		enums.TransactionStatusPaymentVerified,
		enums.TransactionStatusCancelled,
	},
	enums.TransactionStatusPaymentSubmitted: {
		enums.TransactionStatusPaymentVerified,
		enums.TransactionStatusCancelled,
	},
	enums.TransactionStatusPaymentVerified: {
		enums.TransactionStatusInspectionScheduled,
		enums.TransactionStatusOwnershipTransferred,
		enums.TransactionStatusDisputed,
		enums.TransactionStatusRefunded,
	},
	enums.TransactionStatusInspectionScheduled: {
		enums.TransactionStatusOwnershipTransferred,
		enums.TransactionStatusInspectionFailed,
		enums.TransactionStatusDisputed,
	},
	enums.TransactionStatusInspectionFailed: {
		enums.TransactionStatusDisputed,
	},
	enums.TransactionStatusOwnershipTransferred: {
		enums.TransactionStatusCompleted,
		enums.TransactionStatusDisputed,
	},
	enums.TransactionStatusDisputed: {
		enums.TransactionStatusResolved,
		enums.TransactionStatusRefunded,
	},
	enums.TransactionStatusResolved: {
		enums.TransactionStatusOwnershipTransferred,
	},
}

// CanTransition reports whether the lifecycle allows moving from -> to.
func CanTransition(from, to enums.TransactionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanAutoRelease is true only when every release condition holds: ownership
// transferred, payment verified at least the hold period ago, no open
// dispute, and a passed inspection.
func CanAutoRelease(txn *models.Transaction, hasOpenDispute bool, now time.Time) bool {
	return canAutoRelease(txn, hasOpenDispute, now, DefaultReleaseHold)
}

func canAutoRelease(txn *models.Transaction, hasOpenDispute bool, now time.Time, hold time.Duration) bool {
	if txn == nil {
		return false
	}
	ownershipTransferred := txn.Status == enums.TransactionStatusOwnershipTransferred
	held := txn.PaymentVerifiedAt != nil && now.Sub(*txn.PaymentVerifiedAt) >= hold
	inspectionPassed := txn.InspectionResult == enums.InspectionResultPassed
	return ownershipTransferred && held && !hasOpenDispute && inspectionPassed
}
