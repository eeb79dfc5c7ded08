package compliance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/autoescrow-backend/pkg/config"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
	"github.com/angelmondragon/autoescrow-backend/pkg/metrics"
	"github.com/angelmondragon/autoescrow-backend/pkg/provider"
)

// Provider keys accepted by AUTOESCROW_PEP_PROVIDER and AUTOESCROW_SANCTIONS_PROVIDER.
const (
	ProviderLocal         = "local"
	ProviderHTTP          = "http"
	ProviderOpenSanctions = "opensanctions"
)

// ScreenRequest is the person data sent to a screening provider.
type ScreenRequest struct {
	List        enums.WatchlistList
	FullName    string
	Country     string
	DateOfBirth *time.Time
}

// Match is one hit returned by a provider.
type Match struct {
	List  enums.WatchlistList `json:"list"`
	Name  string              `json:"name"`
	Score float64             `json:"score"`
}

// ScreenResponse carries every hit for one list.
type ScreenResponse struct {
	Matches []Match `json:"matches"`
}

// Screener screens a person against one list. Any error means the check
// could not be completed and must be treated as failed.
type Screener interface {
	Name() string
	Screen(ctx context.Context, req ScreenRequest) (ScreenResponse, error)
}

// NewScreener resolves a provider key to an implementation once at startup.
// An empty key selects the local watchlist tables, never a pass-through.
func NewScreener(key string, cfg config.ComplianceConfig, local Screener, providerMetrics *metrics.ProviderMetrics) (Screener, error) {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "", ProviderLocal:
		if local == nil {
			return nil, fmt.Errorf("local screener required")
		}
		return local, nil
	case ProviderHTTP:
		client, err := provider.New(provider.Options{
			Name:          "screening_http",
			BaseURL:       cfg.ProviderURL,
			Timeout:       cfg.Timeout,
			RatePerMinute: cfg.RatePerMinute,
			Auth:          provider.Bearer(cfg.ProviderToken),
			Metrics:       providerMetrics,
		})
		if err != nil {
			return nil, fmt.Errorf("http screener: %w", err)
		}
		return NewHTTPScreener(client, cfg.MatchThreshold), nil
	case ProviderOpenSanctions:
		client, err := provider.New(provider.Options{
			Name:          "screening_opensanctions",
			BaseURL:       cfg.ProviderURL,
			Timeout:       cfg.Timeout,
			RatePerMinute: cfg.RatePerMinute,
			Auth:          provider.APIKey("ApiKey", cfg.ProviderToken),
			Metrics:       providerMetrics,
		})
		if err != nil {
			return nil, fmt.Errorf("opensanctions screener: %w", err)
		}
		return NewOpenSanctionsScreener(client, cfg.MatchThreshold), nil
	default:
		return nil, fmt.Errorf("unknown screening provider %q", key)
	}
}
