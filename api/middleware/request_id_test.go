package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/autoescrow-backend/api/responses"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
	"github.com/angelmondragon/autoescrow-backend/pkg/metrics"
)

func TestRequestIDKeepsUpstreamValue(t *testing.T) {
	h := RequestID(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(responses.RequestIDHeader, "lb-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(responses.RequestIDHeader); got != "lb-123" {
		t.Fatalf("expected upstream id, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(responses.RequestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(responses.RequestIDHeader); len(got) != 36 {
		t.Fatalf("oversized id should be replaced by a uuid, got %q", got)
	}
}

func TestRecovererWritesInternalError(t *testing.T) {
	h := RequestID(logger.Nop())(Recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("ledger exploded")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/v1/transactions/x/release", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	var body responses.ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Contains(body.Error.Message, "ledger exploded") {
		t.Fatalf("panic value must not leak: %q", body.Error.Message)
	}
	if body.Error.RequestID == "" {
		t.Fatal("expected request id in body")
	}
}

func TestAccessLogRecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := chi.NewRouter()
	r.Use(AccessLog(logger.Nop(), metrics.NewHTTPMetrics(reg)))
	r.Get("/transactions/{transactionId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/transactions/abc", nil))
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", resp.Code)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "autoescrow_http_requests_total" {
			continue
		}
		labels := map[string]string{}
		for _, lp := range mf.GetMetric()[0].GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		if labels["route"] != "/transactions/{transactionId}" || labels["status"] != "202" {
			t.Fatalf("unexpected labels %v", labels)
		}
		return
	}
	t.Fatal("request counter not exported")
}
