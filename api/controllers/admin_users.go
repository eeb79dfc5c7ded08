package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/autoescrow-backend/api/responses"
	"github.com/angelmondragon/autoescrow-backend/api/validators"
	"github.com/angelmondragon/autoescrow-backend/internal/compliance"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
)

type complianceChecker interface {
	PerformKYC(ctx context.Context, userID uuid.UUID) (*compliance.Result, error)
	CanUserTransact(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*compliance.TransactDecision, error)
}

// AdminPerformKYC screens the user against PEP and sanctions lists and
// appends the outcome to their compliance history.
func AdminPerformKYC(svc complianceChecker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.PerformKYC(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminUserEligibility(svc complianceChecker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := validators.ParseQueryDecimal(r, "amount")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		decision, err := svc.CanUserTransact(r.Context(), userID, amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, decision)
	}
}
