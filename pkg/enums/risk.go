package enums

// RiskLevel is shared by fraud, AML and compliance results.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// RiskLevelForScore maps a clamped 0-100 score onto a level.
func RiskLevelForScore(score int) RiskLevel {
	switch {
	case score < 30:
		return RiskLevelLow
	case score < 60:
		return RiskLevelMedium
	case score < 80:
		return RiskLevelHigh
	default:
		return RiskLevelCritical
	}
}

// RiskAction is the recommendation attached to a fraud assessment.
type RiskAction string

const (
	RiskActionAutoApprove          RiskAction = "auto_approve"
	RiskActionStandardVerification RiskAction = "standard_verification"
	RiskActionEnhancedVerification RiskAction = "enhanced_verification"
	RiskActionManualReview         RiskAction = "manual_review_required"
	RiskActionBlock                RiskAction = "block_transaction"
)

// RiskActionForScore maps a clamped 0-100 score onto a recommendation.
func RiskActionForScore(score int) RiskAction {
	switch {
	case score < 30:
		return RiskActionAutoApprove
	case score < 50:
		return RiskActionStandardVerification
	case score < 70:
		return RiskActionEnhancedVerification
	case score < 85:
		return RiskActionManualReview
	default:
		return RiskActionBlock
	}
}

// Severity grades advisory alerts.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// WatchlistList names a local screening list.
type WatchlistList string

const (
	WatchlistPEP  WatchlistList = "pep"
	WatchlistOFAC WatchlistList = "ofac"
	WatchlistEU   WatchlistList = "eu"
	WatchlistUN   WatchlistList = "un"
)

// SanctionsLists are screened independently; a hit on any fails the check.
var SanctionsLists = []WatchlistList{WatchlistOFAC, WatchlistEU, WatchlistUN}
