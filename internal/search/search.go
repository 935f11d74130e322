// Package search ranks locally known shows against a typed query.
package search

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/mmcdole/anikino/internal/domain"
)

// ItemSource provides the items to search, typically the metadata cache
type ItemSource interface {
	Items() []domain.Item
}

// Result is a ranked match
type Result struct {
	Item  domain.Item
	Score int // Lower is better
}

// Index searches the items of its source. It holds no copy of its own,
// so results always reflect the source's current contents.
type Index struct {
	source ItemSource
	logger *slog.Logger
}

// NewIndex creates a search index over source
func NewIndex(source ItemSource, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{source: source, logger: logger}
}

// Search returns items whose title fuzzily matches query, best first.
// limit <= 0 returns every match.
func (ix *Index) Search(query string, limit int) []Result {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	items := ix.source.Items()
	titles := make([]string, len(items))
	for i, it := range items {
		titles[i] = strings.ToLower(it.Title)
	}

	matches := fuzzy.RankFindFold(query, titles)
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, Result{
			Item:  items[m.OriginalIndex],
			Score: matchScore(titles[m.OriginalIndex], query, m.Distance),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score < results[j].Score
		}
		return len(results[i].Item.Title) < len(results[j].Item.Title)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	ix.logger.Debug("local search", "query", query, "candidates", len(items), "results", len(results))
	return results
}

// matchScore ranks a title that already fuzzily contains query
func matchScore(title, query string, distance int) int {
	switch {
	case title == query:
		return 0
	case strings.HasPrefix(title, query):
		return 10
	case strings.Contains(title, query):
		return 50
	default:
		return 100 + distance
	}
}
