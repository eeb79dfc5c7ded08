package reconciliation

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/internal/audit"
	"github.com/angelmondragon/autoescrow-backend/internal/repo"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/autoescrow-backend/pkg/errors"
	"github.com/angelmondragon/autoescrow-backend/pkg/iban"
)

// MatchBankStatementEntry handles one credit pushed by the bank. A valid
// entry that matches nothing is reported, not returned as an error. A match
// verifies the deposit (creating it when the buyer never submitted one) and
// moves the transaction to payment_verified atomically.
func (s *Service) MatchBankStatementEntry(ctx context.Context, entry StatementEntry) (*MatchResult, error) {
	if err := validateEntry(&entry); err != nil {
		return nil, err
	}
	now := s.now()

	txn, err := s.findByReference(ctx, entry.Reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find transaction by reference")
	}
	if txn == nil {
		return &MatchResult{Reason: ReasonNoTransaction}, nil
	}
	txnID := txn.ID
	result := &MatchResult{TransactionID: &txnID}

	switch {
	case entry.Currency != txn.Currency:
		result.Reason = ReasonCurrencyMismatch
	case entry.Amount.Sub(txn.Amount).Abs().GreaterThan(amountTolerance):
		result.Reason = ReasonAmountMismatch
	}
	if result.Reason != "" {
		s.logg.Warn(s.logg.WithFields(s.logg.WithTransactionID(ctx, txn.ID.String()), map[string]any{
			"reason": result.Reason,
			"amount": entry.Amount.StringFixed(2),
		}), "bank statement entry rejected")
		return result, s.audit.Record(ctx, nil, audit.Entry{
			EntityType: enums.AuditEntityTransaction,
			EntityID:   txn.ID,
			CheckType:  enums.AuditCheckReconciliation,
			Result:     enums.AuditResultFlagged,
			Evidence:   map[string]any{"reason": result.Reason, "entry": entry},
			At:         now,
		})
	}

	dup, err := s.payments.VerifiedBankReferenceExists(ctx, entry.EntryID, uuid.Nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check duplicate statement entry")
	}
	if dup {
		result.Reason = ReasonDuplicateEntry
		return result, nil
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal statement entry")
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		payments := s.payments.WithTx(tx)
		deposit, err := payments.OpenDeposit(ctx, txn.ID)
		if err != nil && !repo.IsNotFound(err) {
			return err
		}
		if deposit == nil {
			buyer := txn.BuyerID
			ref := entry.EntryID
			deposit = &models.Payment{
				TransactionID:   txn.ID,
				PayerID:         &buyer,
				Amount:          entry.Amount.Round(2),
				Currency:        entry.Currency,
				Type:            enums.PaymentTypeDeposit,
				Status:          enums.PaymentStatusVerified,
				BankReference:   &ref,
				VerifiedAt:      &now,
				BankAPIResponse: raw,
			}
			if err := payments.Create(ctx, deposit); err != nil {
				return err
			}
		} else {
			updates := map[string]any{"verified_at": now, "bank_api_response": raw}
			if deposit.BankReference == nil {
				updates["bank_reference"] = entry.EntryID
			}
			moved, err := payments.Transition(ctx, deposit.ID, deposit.Status, enums.PaymentStatusVerified, updates)
			if err != nil {
				return err
			}
			if !moved {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "deposit changed during matching")
			}
			deposit.Status = enums.PaymentStatusVerified
		}
		paymentID := deposit.ID
		result.PaymentID = &paymentID
		return s.verifyTransaction(ctx, tx, txn, deposit, now)
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, err
		}
		s.logg.Error(s.logg.WithField(ctx, "error_chain", pkgerrors.Dump(err)), "statement match rolled back", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "match bank statement entry")
	}
	result.Matched = true
	return result, nil
}

func validateEntry(entry *StatementEntry) error {
	entry.Reference = strings.TrimSpace(entry.Reference)
	entry.EntryID = strings.TrimSpace(entry.EntryID)
	entry.Currency = strings.ToUpper(strings.TrimSpace(entry.Currency))
	entry.SenderIBAN = iban.Normalize(entry.SenderIBAN)
	switch {
	case entry.Reference == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	case entry.EntryID == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "entry id is required")
	case !entry.Amount.IsPositive():
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	case len(entry.Currency) != 3:
		return pkgerrors.New(pkgerrors.CodeValidation, "currency must be an ISO 4217 code")
	case !iban.Validate(entry.SenderIBAN):
		return pkgerrors.New(pkgerrors.CodeValidation, "sender iban is invalid")
	}
	return nil
}
