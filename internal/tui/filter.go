package tui

import (
	"strings"

	"github.com/mmcdole/anikino/internal/domain"
	"github.com/sahilm/fuzzy"
)

// row is one selectable line of the body
type row struct {
	title   string
	detail  string
	item    *domain.Item
	episode *domain.Episode
}

// filterRows keeps the rows whose title fuzzy-matches query, best match first
func filterRows(rows []row, query string) []row {
	if query == "" {
		return rows
	}

	lowerTitles := make([]string, len(rows))
	for i, r := range rows {
		lowerTitles[i] = strings.ToLower(r.title)
	}
	matches := fuzzy.Find(strings.ToLower(query), lowerTitles)

	out := make([]row, len(matches))
	for i, match := range matches {
		out[i] = rows[match.Index]
	}
	return out
}
