package fraud

import (
	"context"
	"fmt"
	"net/url"

	"github.com/angelmondragon/autoescrow-backend/pkg/config"
	"github.com/angelmondragon/autoescrow-backend/pkg/metrics"
	"github.com/angelmondragon/autoescrow-backend/pkg/provider"
)

// Registry names, in query order.
const (
	RegistryLocal    = "local"
	RegistryInterpol = "interpol"
	RegistryPolice   = "national_police"
)

// VINRegistry answers whether a VIN is reported stolen.
type VINRegistry interface {
	Name() string
	CheckVIN(ctx context.Context, vin string) (bool, error)
}

// LocalRegistry reads the stolen_vehicles table.
type LocalRegistry struct {
	repo Repository
}

func NewLocalRegistry(repo Repository) *LocalRegistry {
	return &LocalRegistry{repo: repo}
}

func (l *LocalRegistry) Name() string { return RegistryLocal }

func (l *LocalRegistry) CheckVIN(ctx context.Context, vin string) (bool, error) {
	return l.repo.IsVINStolen(ctx, vin)
}

type jsonGetter interface {
	GetJSON(ctx context.Context, path string, query url.Values, out any) error
}

// HTTPRegistry queries GET /vehicles/stolen?vin= and expects {"stolen": bool}.
type HTTPRegistry struct {
	name   string
	client jsonGetter
}

func NewHTTPRegistry(name string, client jsonGetter) *HTTPRegistry {
	return &HTTPRegistry{name: name, client: client}
}

func (h *HTTPRegistry) Name() string { return h.name }

func (h *HTTPRegistry) CheckVIN(ctx context.Context, vin string) (bool, error) {
	var raw struct {
		Stolen *bool `json:"stolen"`
	}
	if err := h.client.GetJSON(ctx, "vehicles/stolen", url.Values{"vin": {vin}}, &raw); err != nil {
		return false, err
	}
	if raw.Stolen == nil {
		return false, fmt.Errorf("%s registry response missing stolen flag", h.name)
	}
	return *raw.Stolen, nil
}

// NewRegistryChain returns the local registry followed by every configured
// external registry, in the fixed order local, interpol, national police.
func NewRegistryChain(cfg config.RegistriesConfig, local VINRegistry, providerMetrics *metrics.ProviderMetrics) ([]VINRegistry, error) {
	chain := []VINRegistry{local}
	externals := []struct {
		name, url, token string
	}{
		{RegistryInterpol, cfg.InterpolURL, cfg.InterpolToken},
		{RegistryPolice, cfg.PoliceURL, cfg.PoliceToken},
	}
	for _, ext := range externals {
		if ext.url == "" {
			continue
		}
		client, err := provider.New(provider.Options{
			Name:    "registry_" + ext.name,
			BaseURL: ext.url,
			Timeout: cfg.Timeout,
			Auth:    provider.Bearer(ext.token),
			Metrics: providerMetrics,
		})
		if err != nil {
			return nil, fmt.Errorf("%s registry: %w", ext.name, err)
		}
		chain = append(chain, NewHTTPRegistry(ext.name, client))
	}
	return chain, nil
}
