package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/autoescrow-backend/api/middleware"
	"github.com/angelmondragon/autoescrow-backend/api/responses"
	"github.com/angelmondragon/autoescrow-backend/api/validators"
	"github.com/angelmondragon/autoescrow-backend/internal/decision"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/autoescrow-backend/pkg/errors"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
)

type evaluator interface {
	Evaluate(ctx context.Context, id uuid.UUID) (*decision.Evaluation, error)
}

type transactionReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
}

// UserEvaluateTransaction lets a party trigger the risk decision for their
// own transaction. Only the coarse status leaves the service.
func UserEvaluateTransaction(svc evaluator, txns transactionReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor := middleware.ActorID(r.Context())
		txn, err := txns.Get(r.Context(), id)
		if err != nil || txn == nil || (txn.BuyerID != actor && txn.SellerID != actor) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found"))
			return
		}

		eval, err := svc.Evaluate(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, eval.Public())
	}
}
