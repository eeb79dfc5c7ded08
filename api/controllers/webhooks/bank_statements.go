package webhooks

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/autoescrow-backend/api/responses"
	"github.com/angelmondragon/autoescrow-backend/api/validators"
	"github.com/angelmondragon/autoescrow-backend/internal/reconciliation"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
)

type statementMatcher interface {
	MatchBankStatementEntry(ctx context.Context, entry reconciliation.StatementEntry) (*reconciliation.MatchResult, error)
}

type bankStatementRequest struct {
	EntryID    string          `json:"entry_id" validate:"required,max=128"`
	Reference  string          `json:"reference" validate:"required,max=64"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency" validate:"required,len=3"`
	SenderIBAN string          `json:"sender_iban" validate:"required,max=42"`
	SenderName string          `json:"sender_name" validate:"max=200"`
	BookedAt   time.Time       `json:"booked_at"`
}

// BankStatement receives one booked credit from the bank and matches it
// against open escrow transactions. Unmatched entries are acknowledged with
// matched=false so the bank does not retry them.
func BankStatement(svc statementMatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body bankStatementRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := logg.WithFields(r.Context(), map[string]any{
			"statement_entry_id": body.EntryID,
			"bank_reference":     body.Reference,
		})

		result, err := svc.MatchBankStatementEntry(ctx, reconciliation.StatementEntry{
			EntryID:    body.EntryID,
			Reference:  body.Reference,
			Amount:     body.Amount,
			Currency:   body.Currency,
			SenderIBAN: body.SenderIBAN,
			SenderName: validators.SanitizeString(body.SenderName, 200),
			BookedAt:   body.BookedAt,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !result.Matched {
			logg.Warn(logg.WithField(ctx, "reason", result.Reason), "bank statement entry not matched")
		}
		responses.WriteSuccess(w, result)
	}
}
