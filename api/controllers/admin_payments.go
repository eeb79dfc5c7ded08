package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/autoescrow-backend/api/responses"
	"github.com/angelmondragon/autoescrow-backend/api/validators"
	"github.com/angelmondragon/autoescrow-backend/internal/reconciliation"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
)

type patternScanner interface {
	DetectSuspiciousPatterns(ctx context.Context, since time.Time) ([]reconciliation.Alert, error)
}

// AdminSuspiciousPayments runs the pattern scan over the last `hours` hours
// without recording alerts.
func AdminSuspiciousPayments(svc patternScanner, now func() time.Time, logg *logger.Logger) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		hours, err := validators.ParseQueryInt(r, "hours", 24, 1, 24*30)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		since := now().UTC().Add(-time.Duration(hours) * time.Hour)
		alerts, err := svc.DetectSuspiciousPatterns(r.Context(), since)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if alerts == nil {
			alerts = []reconciliation.Alert{}
		}
		responses.WriteSuccess(w, map[string]any{
			"since":  since,
			"alerts": alerts,
		})
	}
}
