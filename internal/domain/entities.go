package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Mode is the mutually exclusive top-level view of a session
type Mode string

const (
	ModeSchedule  Mode = "schedule"
	ModeList      Mode = "list"
	ModeFavorites Mode = "favorites"
	ModeHistory   Mode = "history"
	ModePlayer    Mode = "player"
)

// Modes lists every mode in display order
var Modes = []Mode{ModeSchedule, ModeList, ModeFavorites, ModeHistory, ModePlayer}

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

// FlexString decodes a JSON string or number into its text form.
// The backend is inconsistent about ids and years.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

// Item is a browsable show with its display metadata
type Item struct {
	ID     string // Stable identifier, required for caching and favorites
	Title  string // Display title, also the cover lookup key
	Year   string // Broadcast year as reported by the server
	Season string // Broadcast season name
	Status string // Airing status text
	Poster string // Poster URL, empty when unknown

	// Transient per-view cover state, never cached
	PosterLoading bool
	CoverFailed   bool
}

// Merge returns a copy of m with every non-empty metadata field of other applied.
// Empty fields in other keep the value already in m.
func (m Item) Merge(other Item) Item {
	if other.ID != "" {
		m.ID = other.ID
	}
	if other.Title != "" {
		m.Title = other.Title
	}
	if other.Year != "" {
		m.Year = other.Year
	}
	if other.Season != "" {
		m.Season = other.Season
	}
	if other.Status != "" {
		m.Status = other.Status
	}
	if other.Poster != "" {
		m.Poster = other.Poster
	}
	return m
}

// Snapshot strips the transient cover flags
func (m Item) Snapshot() Item {
	m.PosterLoading = false
	m.CoverFailed = false
	return m
}

// Card holds one Item inside a displayed collection.
// Cover state is mutated concurrently by loaders, so all access goes through the lock.
type Card struct {
	mu   sync.Mutex
	item Item
}

// NewCard wraps item with fresh cover flags
func NewCard(item Item) *Card {
	item.PosterLoading = false
	item.CoverFailed = false
	return &Card{item: item}
}

// NewCards wraps every item in a fresh card
func NewCards(items []Item) []*Card {
	cards := make([]*Card, 0, len(items))
	for _, it := range items {
		cards = append(cards, NewCard(it))
	}
	return cards
}

// Item returns a copy of the card's item including cover flags
func (c *Card) Item() Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.item
}

func (c *Card) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.item.ID
}

// NeedsCover reports whether the card is neither resolved, loading nor failed
func (c *Card) NeedsCover() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.needsCover()
}

func (c *Card) needsCover() bool {
	return c.item.Poster == "" && !c.item.PosterLoading && !c.item.CoverFailed
}

// BeginCoverLoad marks the card as loading and returns its title.
// ok is false when another resolution owns the card or it reached a terminal state.
func (c *Card) BeginCoverLoad() (title string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.needsCover() {
		return "", false
	}
	c.item.PosterLoading = true
	return c.item.Title, true
}

// EndCoverLoad clears the loading flag
func (c *Card) EndCoverLoad() {
	c.mu.Lock()
	c.item.PosterLoading = false
	c.mu.Unlock()
}

// SetPoster records a resolved poster
func (c *Card) SetPoster(url string) {
	c.mu.Lock()
	c.item.Poster = url
	c.item.CoverFailed = false
	c.mu.Unlock()
}

// FailCover marks the card's cover as permanently unavailable.
// Also used by front ends when a poster URL fails to render.
func (c *Card) FailCover() {
	c.mu.Lock()
	c.item.Poster = ""
	c.item.PosterLoading = false
	c.item.CoverFailed = true
	c.mu.Unlock()
}

// Episode is one playable unit of an item. Lists are ordered newest-first.
type Episode struct {
	Title     string // Short display title, also the resume-matching key
	FullTitle string // Original article title
	Index     int    // Ordinal assigned by the server
	Token     string // Opaque play-address reference, optional
}

// SameTitle reports whether two episode titles match for resume purposes:
// exact and case-sensitive after trimming surrounding whitespace.
func SameTitle(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}

// FindEpisode returns the index of the episode titled title, or -1
func FindEpisode(episodes []Episode, title string) int {
	for i, ep := range episodes {
		if ep.Title == title {
			return i
		}
	}
	return -1
}

// PlaybackRecord is the server-held progress for one item
type PlaybackRecord struct {
	AnimeID      string
	EpisodeTitle string
	Position     int // Whole seconds
	Timestamp    time.Time
}

// ResumePoint is the client-side shadow of the last playback record
type ResumePoint struct {
	AnimeID      string    `json:"anime_id"`
	EpisodeTitle string    `json:"episode_title"`
	Position     float64   `json:"position"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HistoryEntry is one row of the watch history.
// Item is nil when the server could not match the record to a known show.
type HistoryEntry struct {
	Record PlaybackRecord
	Item   *Item
}

// NavState is the payload attached to a navigation history position
type NavState struct {
	Key     string // Unique per pushed entry
	Mode    Mode
	AnimeID string
}

// IsPlayer reports whether the state restores player mode
func (s *NavState) IsPlayer() bool {
	return s != nil && s.Mode == ModePlayer && s.AnimeID != ""
}

// FormatClock renders seconds as m:ss
func FormatClock(seconds float64) string {
	if seconds <= 0 {
		return "0:00"
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
