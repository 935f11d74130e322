// Package cover resolves missing posters for displayed cards.
package cover

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mmcdole/anikino/internal/domain"
	"golang.org/x/sync/singleflight"
)

// lookup abstracts the lazy cover endpoint (consumer-defined interface)
type lookup interface {
	CoverByTitle(ctx context.Context, title string) (string, error)
}

// posterCache is the slice of the metadata cache the loader needs
type posterCache interface {
	Poster(id string) (string, bool)
	Put(items ...domain.Item)
}

// Loader resolves posters lazily, at most once per card
type Loader struct {
	lookup lookup
	cache  posterCache
	logger *slog.Logger

	// Shares in-flight lookups between different cards of the same title
	group singleflight.Group
}

// NewLoader creates a cover loader
func NewLoader(lookup lookup, cache posterCache, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		lookup: lookup,
		cache:  cache,
		logger: logger,
	}
}

// Resolve fills in the card's poster. Repeat calls against a resolved,
// loading or failed card are no-ops.
func (l *Loader) Resolve(ctx context.Context, card *domain.Card) {
	if !card.NeedsCover() {
		return
	}

	id := card.ID()
	if poster, ok := l.cache.Poster(id); ok {
		card.SetPoster(poster)
		return
	}

	title, ok := card.BeginCoverLoad()
	if !ok {
		return
	}
	defer card.EndCoverLoad()

	v, err, _ := l.group.Do(title, func() (interface{}, error) {
		return l.lookup.CoverByTitle(ctx, title)
	})
	url, _ := v.(string)
	if err != nil || url == "" {
		l.logger.Debug("cover unavailable", "id", id, "title", title, "error", err)
		card.FailCover()
		return
	}

	card.SetPoster(url)
	l.cache.Put(domain.Item{ID: id, Poster: url})
}

// ResolveAll resolves every card concurrently and waits for all of them
func (l *Loader) ResolveAll(ctx context.Context, cards []*domain.Card) {
	var wg sync.WaitGroup
	for _, card := range cards {
		wg.Add(1)
		go func(c *domain.Card) {
			defer wg.Done()
			l.Resolve(ctx, c)
		}(card)
	}
	wg.Wait()
}
