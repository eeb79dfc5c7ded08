package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/autoescrow-backend/api/responses"
	"github.com/angelmondragon/autoescrow-backend/api/validators"
	"github.com/angelmondragon/autoescrow-backend/internal/audit"
	"github.com/angelmondragon/autoescrow-backend/internal/escrow"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/autoescrow-backend/pkg/errors"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
	"github.com/angelmondragon/autoescrow-backend/pkg/pagination"
)

type escrowOperator interface {
	AutoReleaseFunds(ctx context.Context, id uuid.UUID) (*escrow.ReleaseResult, error)
	ProcessRefund(ctx context.Context, id uuid.UUID, reason string) (*escrow.RefundResult, error)
}

type auditReader interface {
	Latest(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID, check enums.AuditCheckType) (*models.AuditEntry, error)
}

type auditPager interface {
	PageTrail(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID, params pagination.Params) (*audit.TrailPage, error)
}

type refundRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// checkReport is the operator view of a stored fraud or AML check.
type checkReport struct {
	TransactionID uuid.UUID        `json:"transaction_id"`
	Check         string           `json:"check"`
	Result        string           `json:"result"`
	RiskLevel     *enums.RiskLevel `json:"risk_level,omitempty"`
	Evidence      json.RawMessage  `json:"evidence"`
	CheckedAt     time.Time        `json:"checked_at"`
}

// AdminEvaluateTransaction returns the full evaluation with every reason.
func AdminEvaluateTransaction(svc evaluator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		eval, err := svc.Evaluate(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, eval)
	}
}

func AdminTransactionRisk(audit auditReader, logg *logger.Logger) http.HandlerFunc {
	return latestCheck(audit, enums.AuditCheckFraudRisk, logg)
}

func AdminTransactionAML(audit auditReader, logg *logger.Logger) http.HandlerFunc {
	return latestCheck(audit, enums.AuditCheckAML, logg)
}

func latestCheck(audit auditReader, check enums.AuditCheckType, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entry, err := audit.Latest(r.Context(), enums.AuditEntityTransaction, id, check)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if entry == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, string(check)+" has not run for this transaction"))
			return
		}
		responses.WriteSuccess(w, checkReport{
			TransactionID: id,
			Check:         string(entry.CheckType),
			Result:        string(entry.Result),
			RiskLevel:     entry.RiskLevel,
			Evidence:      entry.Evidence,
			CheckedAt:     entry.CreatedAt,
		})
	}
}

// AdminReleaseFunds runs the auto-release checks for one transaction now.
// An ineligible transaction is reported, not treated as an error.
func AdminReleaseFunds(svc escrowOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.AutoReleaseFunds(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminRefund(svc escrowOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body refundRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ProcessRefund(r.Context(), id, validators.SanitizeString(body.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminTransactionAudit pages through every check recorded against a
// transaction, newest first.
func AdminTransactionAudit(svc auditPager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.PageTrail(r.Context(), enums.AuditEntityTransaction, id, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
