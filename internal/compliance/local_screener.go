package compliance

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
)

type watchlistReader interface {
	WatchlistEntries(ctx context.Context, req ScreenRequest) ([]models.WatchlistEntry, error)
}

// LocalScreener checks the mirrored watchlist tables.
type LocalScreener struct {
	repo watchlistReader
}

func NewLocalScreener(repo watchlistReader) *LocalScreener {
	return &LocalScreener{repo: repo}
}

func (s *LocalScreener) Name() string {
	return ProviderLocal
}

// Screen matches on the normalised full name. Entries that carry a country or
// birth date only match when the subject agrees on them.
func (s *LocalScreener) Screen(ctx context.Context, req ScreenRequest) (ScreenResponse, error) {
	entries, err := s.repo.WatchlistEntries(ctx, req)
	if err != nil {
		return ScreenResponse{}, err
	}
	var resp ScreenResponse
	for _, entry := range entries {
		if entry.Country != nil && req.Country != "" && !strings.EqualFold(*entry.Country, req.Country) {
			continue
		}
		if entry.DateOfBirth != nil && req.DateOfBirth != nil && !sameDay(*entry.DateOfBirth, *req.DateOfBirth) {
			continue
		}
		resp.Matches = append(resp.Matches, Match{List: entry.List, Name: entry.FullName, Score: 1})
	}
	return resp, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
