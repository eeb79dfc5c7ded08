package compliance

import (
	"context"
	"fmt"

	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
	"github.com/angelmondragon/autoescrow-backend/pkg/provider"
)

type jsonPoster interface {
	PostJSON(ctx context.Context, path string, body any, out any) error
	Name() string
}

// HTTPScreener talks to a generic JSON screening API:
// POST /screen {name, country, date_of_birth, list} -> {matches: [...]}.
type HTTPScreener struct {
	client    jsonPoster
	threshold float64
}

func NewHTTPScreener(client jsonPoster, threshold float64) *HTTPScreener {
	return &HTTPScreener{client: client, threshold: threshold}
}

func (s *HTTPScreener) Name() string {
	return s.client.Name()
}

func (s *HTTPScreener) Screen(ctx context.Context, req ScreenRequest) (ScreenResponse, error) {
	body := map[string]any{
		"name":    req.FullName,
		"country": req.Country,
		"list":    req.List,
	}
	if req.DateOfBirth != nil {
		body["date_of_birth"] = req.DateOfBirth.Format("2006-01-02")
	}
	var raw struct {
		Matches *[]Match `json:"matches"`
	}
	if err := s.client.PostJSON(ctx, "screen", body, &raw); err != nil {
		return ScreenResponse{}, err
	}
	if raw.Matches == nil {
		return ScreenResponse{}, fmt.Errorf("screening response missing matches")
	}
	var resp ScreenResponse
	for _, m := range *raw.Matches {
		if m.Score == 0 || m.Score >= s.threshold {
			if m.List == "" {
				m.List = req.List
			}
			resp.Matches = append(resp.Matches, m)
		}
	}
	return resp, nil
}

// openSanctionsDatasets maps our lists to OpenSanctions collections.
var openSanctionsDatasets = map[enums.WatchlistList]string{
	enums.WatchlistPEP:  "peps",
	enums.WatchlistOFAC: "us_ofac_sdn",
	enums.WatchlistEU:   "eu_fsf",
	enums.WatchlistUN:   "un_sc_sanctions",
}

// OpenSanctionsScreener uses the /match/{dataset} batch API.
type OpenSanctionsScreener struct {
	client    jsonPoster
	threshold float64
}

func NewOpenSanctionsScreener(client jsonPoster, threshold float64) *OpenSanctionsScreener {
	return &OpenSanctionsScreener{client: client, threshold: threshold}
}

func (s *OpenSanctionsScreener) Name() string {
	return s.client.Name()
}

func (s *OpenSanctionsScreener) Screen(ctx context.Context, req ScreenRequest) (ScreenResponse, error) {
	dataset, ok := openSanctionsDatasets[req.List]
	if !ok {
		return ScreenResponse{}, fmt.Errorf("no opensanctions dataset for list %s", req.List)
	}
	props := map[string][]string{"name": {req.FullName}}
	if req.Country != "" {
		props["nationality"] = []string{req.Country}
	}
	if req.DateOfBirth != nil {
		props["birthDate"] = []string{req.DateOfBirth.Format("2006-01-02")}
	}
	body := map[string]any{
		"queries": map[string]any{
			"q": map[string]any{"schema": "Person", "properties": props},
		},
	}
	var raw struct {
		Responses map[string]struct {
			Results []struct {
				Caption string  `json:"caption"`
				Score   float64 `json:"score"`
				Match   bool    `json:"match"`
			} `json:"results"`
		} `json:"responses"`
	}
	if err := s.client.PostJSON(ctx, "match/"+dataset, body, &raw); err != nil {
		return ScreenResponse{}, err
	}
	result, ok := raw.Responses["q"]
	if !ok {
		return ScreenResponse{}, fmt.Errorf("opensanctions response missing query result")
	}
	var resp ScreenResponse
	for _, r := range result.Results {
		if r.Match || r.Score >= s.threshold {
			resp.Matches = append(resp.Matches, Match{List: req.List, Name: r.Caption, Score: r.Score})
		}
	}
	return resp, nil
}

var _ jsonPoster = (*provider.Client)(nil)
