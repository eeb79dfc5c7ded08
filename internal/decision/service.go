// Package decision combines the compliance gate, the hard-block check, the
// fraud score and the AML check into one recommendation per transaction.
package decision

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/autoescrow-backend/internal/aml"
	"github.com/angelmondragon/autoescrow-backend/internal/audit"
	"github.com/angelmondragon/autoescrow-backend/internal/compliance"
	"github.com/angelmondragon/autoescrow-backend/internal/fraud"
	"github.com/angelmondragon/autoescrow-backend/internal/repo"
	"github.com/angelmondragon/autoescrow-backend/internal/transactions"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/autoescrow-backend/pkg/errors"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
	"github.com/angelmondragon/autoescrow-backend/pkg/metrics"
)

// Status is the coarse outcome shown to buyers and sellers.
type Status string

const (
	StatusApproved    Status = "approved"
	StatusUnderReview Status = "under_review"
	StatusRejected    Status = "rejected"
	StatusRefunded    Status = "refunded"
)

// Reasons attached to an evaluation. Operators only.
const (
	ReasonComplianceUnavailable = "compliance_unavailable"
	ReasonBlockCheckUnavailable = "block_check_unavailable"
	ReasonRegistryDegraded      = "registry_degraded"
	ReasonFraudUnavailable      = "fraud_check_unavailable"
	ReasonAMLUnavailable        = "aml_check_unavailable"
	ReasonFraudBlock            = "fraud_block"
	ReasonFraudManualReview     = "fraud_manual_review"
	ReasonAMLSuspicious         = "aml_sar_required"
	ReasonAMLHighRisk           = "aml_high_risk"
	ReasonTransactionClosed     = "transaction_closed"
)

type gate interface {
	CanUserTransactFor(ctx context.Context, txn *models.Transaction) (*compliance.TransactDecision, error)
}

type blocker interface {
	ShouldBlockTransaction(ctx context.Context, txn *models.Transaction) (*fraud.BlockDecision, error)
}

type scorer interface {
	Assess(ctx context.Context, txn *models.Transaction, payment *models.Payment) (*fraud.Assessment, error)
}

type amlChecker interface {
	PerformAMLCheck(ctx context.Context, txn *models.Transaction) (*aml.Result, error)
}

// Lifecycle moves pending transactions once a decision is final.
type Lifecycle interface {
	Approve(ctx context.Context, id uuid.UUID) (bool, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (bool, error)
}

// Evaluation is the operator view of a decision.
type Evaluation struct {
	TransactionID uuid.UUID                    `json:"transaction_id"`
	Status        Status                       `json:"status"`
	Reasons       []string                     `json:"reasons"`
	Gate          *compliance.TransactDecision `json:"gate,omitempty"`
	Block         *fraud.BlockDecision         `json:"block,omitempty"`
	Fraud         *fraud.Assessment            `json:"fraud,omitempty"`
	AML           *aml.Result                  `json:"aml,omitempty"`
	EvaluatedAt   time.Time                    `json:"evaluated_at"`
}

// PublicView is what a party to the transaction may see.
type PublicView struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Status        Status    `json:"status"`
}

func (e *Evaluation) Public() PublicView {
	return PublicView{TransactionID: e.TransactionID, Status: e.Status}
}

type ServiceParams struct {
	Transactions transactions.Repository
	Compliance   gate
	Blocking     blocker
	Fraud        scorer
	AML          amlChecker
	Lifecycle    Lifecycle
	Audit        audit.Recorder
	Logger       *logger.Logger
	Metrics      *metrics.DecisionMetrics
	Now          func() time.Time
}

type Service struct {
	transactions transactions.Repository
	compliance   gate
	blocking     blocker
	fraud        scorer
	aml          amlChecker
	lifecycle    Lifecycle
	audit        audit.Recorder
	logg         *logger.Logger
	metrics      *metrics.DecisionMetrics
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Transactions == nil:
		return nil, errors.New("transactions repository is required")
	case params.Compliance == nil:
		return nil, errors.New("compliance gate is required")
	case params.Blocking == nil:
		return nil, errors.New("blocking check is required")
	case params.Fraud == nil:
		return nil, errors.New("fraud scorer is required")
	case params.AML == nil:
		return nil, errors.New("aml monitor is required")
	case params.Audit == nil:
		return nil, errors.New("audit recorder is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		transactions: params.Transactions,
		compliance:   params.Compliance,
		blocking:     params.Blocking,
		fraud:        params.Fraud,
		aml:          params.AML,
		lifecycle:    params.Lifecycle,
		audit:        params.Audit,
		logg:         logg,
		metrics:      params.Metrics,
		now:          now,
	}, nil
}

// Evaluate runs every check against the transaction and returns the combined
// recommendation. Checks that cannot run never approve: an unavailable
// provider or registry turns the outcome into under_review.
func (s *Service) Evaluate(ctx context.Context, id uuid.UUID) (*Evaluation, error) {
	ctx = s.logg.WithTransactionID(ctx, id.String())
	txn, err := s.transactions.Get(ctx, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}

	eval := &Evaluation{TransactionID: txn.ID, EvaluatedAt: s.now()}
	switch txn.Status {
	case enums.TransactionStatusRefunded:
		eval.Status = StatusRefunded
		return eval, nil
	case enums.TransactionStatusCancelled:
		eval.Status = StatusRejected
		eval.Reasons = []string{ReasonTransactionClosed}
		return eval, nil
	}

	s.evaluate(ctx, txn, eval)
	s.applyLifecycle(ctx, txn, eval)

	s.metrics.IncDecision(string(eval.Status))
	if err := s.record(ctx, eval); err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"decision": eval.Status,
		"reasons":  eval.Reasons,
	}), "transaction evaluated")
	return eval, nil
}

func (s *Service) evaluate(ctx context.Context, txn *models.Transaction, eval *Evaluation) {
	reviewReasons := []string{}

	gateDecision, err := s.compliance.CanUserTransactFor(ctx, txn)
	if err != nil {
		s.logg.Error(ctx, "compliance gate unavailable", err)
		eval.Status = StatusUnderReview
		eval.Reasons = []string{ReasonComplianceUnavailable}
		return
	}
	eval.Gate = gateDecision
	if !gateDecision.Allowed {
		eval.Status = StatusRejected
		eval.Reasons = append([]string{}, gateDecision.Reasons...)
		return
	}

	block, err := s.blocking.ShouldBlockTransaction(ctx, txn)
	if err != nil {
		s.logg.Error(ctx, "block check unavailable", err)
		eval.Status = StatusUnderReview
		eval.Reasons = []string{ReasonBlockCheckUnavailable}
		return
	}
	eval.Block = block
	if block.Blocked {
		eval.Status = StatusRejected
		eval.Reasons = append([]string{}, block.Reasons...)
		return
	}
	if block.Degraded {
		reviewReasons = append(reviewReasons, ReasonRegistryDegraded)
	}

	var fraudErr, amlErr error
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		eval.Fraud, fraudErr = s.fraud.Assess(gctx, txn, nil)
		return nil
	})
	group.Go(func() error {
		eval.AML, amlErr = s.aml.PerformAMLCheck(gctx, txn)
		return nil
	})
	_ = group.Wait()

	if fraudErr != nil {
		s.logg.Error(ctx, "fraud assessment unavailable", fraudErr)
		reviewReasons = append(reviewReasons, ReasonFraudUnavailable)
	} else if eval.Fraud.Action == enums.RiskActionBlock {
		eval.Status = StatusRejected
		eval.Reasons = []string{ReasonFraudBlock}
		return
	} else if eval.Fraud.RequiresManualReview {
		reviewReasons = append(reviewReasons, ReasonFraudManualReview)
	}

	if amlErr != nil {
		s.logg.Error(ctx, "aml check unavailable", amlErr)
		reviewReasons = append(reviewReasons, ReasonAMLUnavailable)
	} else {
		switch {
		case eval.AML.RequiresSAR:
			reviewReasons = append(reviewReasons, ReasonAMLSuspicious)
		case eval.AML.RiskLevel == enums.RiskLevelHigh || eval.AML.RiskLevel == enums.RiskLevelCritical:
			reviewReasons = append(reviewReasons, ReasonAMLHighRisk)
		}
	}

	if len(reviewReasons) > 0 {
		eval.Status = StatusUnderReview
		eval.Reasons = reviewReasons
		return
	}
	eval.Status = StatusApproved
	eval.Reasons = reviewReasons
}

// applyLifecycle approves or cancels a pending transaction. Anything past
// pending is left alone; a failed move is logged and does not change the
// recommendation.
func (s *Service) applyLifecycle(ctx context.Context, txn *models.Transaction, eval *Evaluation) {
	if s.lifecycle == nil || txn.Status != enums.TransactionStatusPending {
		return
	}
	var err error
	switch eval.Status {
	case StatusApproved:
		_, err = s.lifecycle.Approve(ctx, txn.ID)
	case StatusRejected:
		_, err = s.lifecycle.Cancel(ctx, txn.ID, "rejected: "+strings.Join(eval.Reasons, ","))
	}
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "lifecycle move after decision failed")
	}
}

func (s *Service) record(ctx context.Context, eval *Evaluation) error {
	result := enums.AuditResultFlagged
	switch eval.Status {
	case StatusApproved:
		result = enums.AuditResultPassed
	case StatusRejected:
		result = enums.AuditResultFailed
	}
	var level *enums.RiskLevel
	if eval.Fraud != nil {
		level = audit.Ptr(eval.Fraud.Level)
	}
	return s.audit.Record(ctx, nil, audit.Entry{
		EntityType: enums.AuditEntityTransaction,
		EntityID:   eval.TransactionID,
		CheckType:  enums.AuditCheckDecision,
		Result:     result,
		RiskLevel:  level,
		Evidence:   eval,
		At:         eval.EvaluatedAt,
	})
}
