package enums

// KYCStatus mirrors the externally managed document verification state.
type KYCStatus string

const (
	KYCStatusUnverified KYCStatus = "unverified"
	KYCStatusPending    KYCStatus = "pending"
	KYCStatusVerified   KYCStatus = "verified"
	KYCStatusRejected   KYCStatus = "rejected"
)

// UserRole distinguishes marketplace users from platform operators.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleUser, UserRoleAdmin:
		return true
	default:
		return false
	}
}

// VehicleStatus tracks listing availability.
type VehicleStatus string

const (
	VehicleStatusActive   VehicleStatus = "active"
	VehicleStatusReserved VehicleStatus = "reserved"
	VehicleStatusSold     VehicleStatus = "sold"
)

// DisputeStatus tracks whether a dispute still blocks release.
type DisputeStatus string

const (
	DisputeStatusOpen     DisputeStatus = "open"
	DisputeStatusResolved DisputeStatus = "resolved"
)

// DisputeOutcome decides where escrowed funds go when a dispute closes.
type DisputeOutcome string

const (
	DisputeOutcomeRelease DisputeOutcome = "release"
	DisputeOutcomeRefund  DisputeOutcome = "refund"
)

// IsValid reports whether the value is a known DisputeOutcome.
func (o DisputeOutcome) IsValid() bool {
	return o == DisputeOutcomeRelease || o == DisputeOutcomeRefund
}
