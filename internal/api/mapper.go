package api

import (
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/anikino/internal/domain"
)

// Timestamps are written by the server in local time without a zone
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// resolveRef makes server-relative paths such as /covers/x.jpg absolute
func resolveRef(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	return base.ResolveReference(u).String()
}

func mapItem(d itemDTO, base *url.URL) domain.Item {
	return domain.Item{
		ID:     strings.TrimSpace(string(d.ID)),
		Title:  strings.TrimSpace(d.Title),
		Year:   string(d.Year),
		Season: d.Season,
		Status: d.Status,
		Poster: resolveRef(base, d.Poster),
	}
}

func mapItems(dtos []itemDTO, base *url.URL) []domain.Item {
	items := make([]domain.Item, 0, len(dtos))
	for _, d := range dtos {
		items = append(items, mapItem(d, base))
	}
	return items
}

func mapSchedule(days [][]itemDTO, base *url.URL) [][]domain.Item {
	out := make([][]domain.Item, 0, len(days))
	for _, day := range days {
		out = append(out, mapItems(day, base))
	}
	return out
}

func mapHistory(rows []historyDTO, base *url.URL) []domain.HistoryEntry {
	entries := make([]domain.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		e := domain.HistoryEntry{
			Record: domain.PlaybackRecord{
				AnimeID:      string(r.AnimeID),
				EpisodeTitle: r.EpisodeTitle,
				Position:     int(math.Floor(r.PlaybackPosition)),
				Timestamp:    parseTimestamp(r.Timestamp),
			},
		}
		// Rows the server could not match to a show carry no title
		if strings.TrimSpace(r.Title) != "" {
			e.Item = &domain.Item{
				ID:     string(r.AnimeID),
				Title:  strings.TrimSpace(r.Title),
				Year:   string(r.Year),
				Season: r.Season,
				Status: r.Status,
				Poster: resolveRef(base, r.Poster),
			}
		}
		entries = append(entries, e)
	}
	return entries
}

func mapEpisodes(dtos []episodeDTO) []domain.Episode {
	eps := make([]domain.Episode, 0, len(dtos))
	for _, d := range dtos {
		eps = append(eps, domain.Episode{
			Title:     string(d.Title),
			FullTitle: d.FullTitle,
			Index:     d.Index,
			Token:     d.Token,
		})
	}
	return eps
}
