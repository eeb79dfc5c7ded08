package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/autoescrow-backend/api/responses"
	pkgerrors "github.com/angelmondragon/autoescrow-backend/pkg/errors"
	"github.com/angelmondragon/autoescrow-backend/pkg/iban"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
)

type ibanValidation struct {
	Valid   bool   `json:"valid"`
	Masked  string `json:"masked"`
	Country string `json:"country,omitempty"`
}

// PublicIBANValidate checks an IBAN without echoing it back in full.
func PublicIBANValidate(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.URL.Query().Get("iban"))
		if raw == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "iban is required"))
			return
		}
		normalized := iban.Normalize(raw)
		out := ibanValidation{
			Valid:  iban.Validate(normalized),
			Masked: iban.Mask(normalized),
		}
		if out.Valid {
			out.Country = normalized[:2]
		}
		responses.WriteSuccess(w, out)
	}
}
