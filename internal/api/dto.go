package api

import (
	"encoding/json"

	"github.com/mmcdole/anikino/internal/domain"
)

// envelope is the common response wrapper. Most endpoints carry data,
// play_info carries url, and get_cover_lazy carries only url with no code.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
	URL  string          `json:"url,omitempty"`
}

// itemDTO is a show as returned by list, schedule and favorites endpoints
type itemDTO struct {
	ID     domain.FlexString `json:"id"`
	Title  string            `json:"title"`
	Year   domain.FlexString `json:"year"`
	Season string            `json:"season"`
	Status string            `json:"status"`
	Poster string            `json:"poster"`
}

// historyDTO is one row of /api/playback/list
type historyDTO struct {
	AnimeID          domain.FlexString `json:"anime_id"`
	EpisodeTitle     string            `json:"episode_title"`
	PlaybackPosition float64           `json:"playback_position"`
	Timestamp        string            `json:"timestamp"`
	Title            string            `json:"title,omitempty"`
	Status           string            `json:"status,omitempty"`
	Year             domain.FlexString `json:"year,omitempty"`
	Season           string            `json:"season,omitempty"`
	Poster           string            `json:"poster,omitempty"`
}

// recordDTO is the body of /api/playback/get/{id}; empty object when absent
type recordDTO struct {
	EpisodeTitle     string  `json:"episode_title"`
	PlaybackPosition float64 `json:"playback_position"`
	Timestamp        string  `json:"timestamp"`
}

type episodeDTO struct {
	Index     int               `json:"index"`
	Title     domain.FlexString `json:"title"`
	FullTitle string            `json:"full_title"`
	Token     string            `json:"token"`
}

type coverDTO struct {
	URL *string `json:"url"`
}

type animeRequest struct {
	AnimeID string `json:"anime_id"`
}

type saveRequest struct {
	AnimeID          string `json:"anime_id"`
	EpisodeTitle     string `json:"episode_title"`
	PlaybackPosition int    `json:"playback_position"`
}
