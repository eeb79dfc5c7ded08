package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/angelmondragon/autoescrow-backend/api/responses"
	pkgerrors "github.com/angelmondragon/autoescrow-backend/pkg/errors"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
)

// WebhookSecretHeader carries the shared secret configured with the bank.
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookSecret rejects requests whose shared secret does not match. An unset
// secret rejects everything.
func WebhookSecret(secret string, logg *logger.Logger) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(secret))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(strings.TrimSpace(r.Header.Get(WebhookSecretHeader)))
			if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook secret"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
