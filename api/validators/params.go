package validators

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/autoescrow-backend/pkg/errors"
)

func fieldError(key, msg string, cause error) *pkgerrors.Error {
	var err *pkgerrors.Error
	if cause != nil {
		err = pkgerrors.Wrap(pkgerrors.CodeValidation, cause, msg)
	} else {
		err = pkgerrors.New(pkgerrors.CodeValidation, msg)
	}
	return err.WithDetails(map[string]any{"field": key})
}

// ParseUUIDParam reads a chi path parameter as a UUID.
func ParseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return uuid.Nil, fieldError(key, "path parameter required", nil)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fieldError(key, "path parameter must be a uuid", err)
	}
	return id, nil
}

// ParseQueryDecimal reads a positive monetary amount from the query string.
func ParseQueryDecimal(r *http.Request, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return decimal.Zero, fieldError(key, "query parameter required", nil)
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fieldError(key, "query parameter must be numeric", err)
	}
	if !value.IsPositive() {
		return decimal.Zero, fieldError(key, "query parameter must be positive", nil)
	}
	return value, nil
}

// ParseQueryInt returns fallback when key is absent and rejects values
// outside [min, max].
func ParseQueryInt(r *http.Request, key string, fallback, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fieldError(key, "query parameter must be numeric", err)
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// SanitizeString trims whitespace and truncates to maxRunes without
// splitting a multi-byte character.
func SanitizeString(input string, maxRunes int) string {
	trimmed := strings.TrimSpace(input)
	if maxRunes <= 0 || utf8.RuneCountInString(trimmed) <= maxRunes {
		return trimmed
	}
	return string([]rune(trimmed)[:maxRunes])
}
