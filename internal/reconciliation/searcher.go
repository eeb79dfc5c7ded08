package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/autoescrow-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/autoescrow-backend/pkg/errors"
	"github.com/angelmondragon/autoescrow-backend/pkg/metrics"
	"github.com/angelmondragon/autoescrow-backend/pkg/provider"
)

// Statement provider keys.
const (
	ProviderManual = "manual"
	ProviderHTTP   = "http"
)

// StatementQuery asks the bank for a credit matching one deposit.
type StatementQuery struct {
	Reference string
	Amount    decimal.Decimal
	Currency  string
	From      time.Time
}

// StatementEntry is one booked credit on the escrow account.
type StatementEntry struct {
	EntryID    string          `json:"entry_id"`
	Reference  string          `json:"reference"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	SenderIBAN string          `json:"sender_iban"`
	SenderName string          `json:"sender_name"`
	BookedAt   time.Time       `json:"booked_at"`
}

// SearchResult carries the provider response verbatim so it can be stored as
// evidence on the verified payment.
type SearchResult struct {
	Found bool
	Entry *StatementEntry
	Raw   json.RawMessage
}

// StatementSearcher looks up bank statement entries. An error means the
// search could not be completed; callers treat it as not found.
type StatementSearcher interface {
	Name() string
	Search(ctx context.Context, q StatementQuery) (SearchResult, error)
}

// NewSearcher resolves the configured provider once at startup.
func NewSearcher(cfg config.ReconciliationConfig, providerMetrics *metrics.ProviderMetrics) (StatementSearcher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderManual:
		return ManualSearcher{}, nil
	case ProviderHTTP:
		client, err := provider.New(provider.Options{
			Name:          "bank_statements",
			BaseURL:       cfg.ProviderURL,
			Timeout:       cfg.Timeout,
			RatePerMinute: cfg.RatePerMinute,
			Auth:          provider.Bearer(cfg.ProviderToken),
			Metrics:       providerMetrics,
		})
		if err != nil {
			return nil, fmt.Errorf("bank statement provider: %w", err)
		}
		return NewHTTPSearcher(client), nil
	default:
		return nil, fmt.Errorf("unknown bank statement provider %q", cfg.Provider)
	}
}

// ManualSearcher is used when no bank API is configured. Every deposit waits
// for the webhook or an operator.
type ManualSearcher struct{}

func (ManualSearcher) Name() string { return ProviderManual }

func (ManualSearcher) Search(context.Context, StatementQuery) (SearchResult, error) {
	return SearchResult{}, nil
}

// HTTPSearcher queries a bank statement API over JSON.
type HTTPSearcher struct {
	client *provider.Client
}

func NewHTTPSearcher(client *provider.Client) *HTTPSearcher {
	return &HTTPSearcher{client: client}
}

func (s *HTTPSearcher) Name() string { return s.client.Name() }

type searchResponse struct {
	Found *bool           `json:"found"`
	Entry *StatementEntry `json:"entry"`
}

func (s *HTTPSearcher) Search(ctx context.Context, q StatementQuery) (SearchResult, error) {
	query := url.Values{}
	query.Set("reference", q.Reference)
	query.Set("amount", q.Amount.StringFixed(2))
	query.Set("currency", q.Currency)
	if !q.From.IsZero() {
		query.Set("from", q.From.UTC().Format(time.RFC3339))
	}

	var raw json.RawMessage
	if err := s.client.GetJSON(ctx, "statements/search", query, &raw); err != nil {
		return SearchResult{}, err
	}
	var body searchResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return SearchResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode statement search")
	}
	if body.Found == nil {
		return SearchResult{}, pkgerrors.New(pkgerrors.CodeDependency, "statement search response missing found flag")
	}
	if *body.Found && body.Entry == nil {
		return SearchResult{}, pkgerrors.New(pkgerrors.CodeDependency, "statement search reported a match without an entry")
	}
	return SearchResult{Found: *body.Found, Entry: body.Entry, Raw: raw}, nil
}
