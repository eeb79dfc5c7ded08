package enums

// AuditEntityType identifies the row an audit entry is attached to.
type AuditEntityType string

const (
	AuditEntityUser        AuditEntityType = "user"
	AuditEntityTransaction AuditEntityType = "transaction"
	AuditEntityPayment     AuditEntityType = "payment"
)

// AuditCheckType names the check that produced an audit entry.
type AuditCheckType string

const (
	AuditCheckKYC               AuditCheckType = "kyc"
	AuditCheckPEP               AuditCheckType = "pep"
	AuditCheckSanctions         AuditCheckType = "sanctions"
	AuditCheckAML               AuditCheckType = "aml"
	AuditCheckFraudRisk         AuditCheckType = "fraud_risk"
	AuditCheckBlocking          AuditCheckType = "blocking"
	AuditCheckReconciliation    AuditCheckType = "reconciliation"
	AuditCheckSuspiciousPattern AuditCheckType = "suspicious_pattern"
	AuditCheckDecision          AuditCheckType = "decision"
)

// AuditResult is the outcome recorded for a check.
type AuditResult string

const (
	AuditResultPassed  AuditResult = "passed"
	AuditResultFailed  AuditResult = "failed"
	AuditResultFlagged AuditResult = "flagged"
)
