package domain

import (
	"context"
)

// CatalogRepository provides browsing data
type CatalogRepository interface {
	// ListItems returns one page of the catalog, filtered by query when non-empty
	ListItems(ctx context.Context, page int, query string) ([]Item, error)

	// SeasonSchedule returns the weekly schedule in server day order (Sunday first)
	SeasonSchedule(ctx context.Context, year int, season string) ([][]Item, error)

	// CoverByTitle looks up a poster URL; empty string when none exists
	CoverByTitle(ctx context.Context, title string) (string, error)
}

// FavoritesRepository manages the favorites list
type FavoritesRepository interface {
	FavoriteIDs(ctx context.Context) ([]string, error)
	FavoritesWithDetails(ctx context.Context) ([]Item, error)
	AddFavorite(ctx context.Context, animeID string) error
	RemoveFavorite(ctx context.Context, animeID string) error
}

// PlaybackRepository manages server-held playback records and play addresses
type PlaybackRepository interface {
	// PlaybackHistory returns every record, newest first
	PlaybackHistory(ctx context.Context) ([]HistoryEntry, error)

	// PlaybackRecord returns the record for animeID or ErrNotFound
	PlaybackRecord(ctx context.Context, animeID string) (*PlaybackRecord, error)

	SavePlayback(ctx context.Context, rec PlaybackRecord) error
	ClearPlayback(ctx context.Context, animeID string) error

	// Episodes returns the episode list, newest first
	Episodes(ctx context.Context, animeID string) ([]Episode, error)

	// ResolvePlayURL returns a playable address for an episode
	ResolvePlayURL(ctx context.Context, animeID string, ep Episode) (string, error)
}

// Backend combines every repository the session engine consumes
type Backend interface {
	CatalogRepository
	FavoritesRepository
	PlaybackRepository
}
