// Package session is the client session state engine: view modes and their
// collections, the navigation log and the bridge into playback.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/anikino/internal/cache"
	"github.com/mmcdole/anikino/internal/cover"
	"github.com/mmcdole/anikino/internal/domain"
	"github.com/mmcdole/anikino/internal/playback"
	"github.com/mmcdole/anikino/internal/search"
)

// DefaultPageSize is the list page size; a shorter page ends pagination
const DefaultPageSize = 24

// Player is the playback surface the engine drives in player mode
type Player interface {
	Open(ctx context.Context, item domain.Item) error
	Play(ctx context.Context, ep domain.Episode, start float64) error
	Resume(ctx context.Context) error
	Reset()
	Status() playback.Status
}

// Config tunes the engine
type Config struct {
	PageSize int
	Now      func() time.Time // Clock for the current season, defaults to time.Now
}

// View is a point-in-time copy of everything a front end renders
type View struct {
	Mode     domain.Mode
	LastMode domain.Mode
	Loading  bool

	// Collection shown in list, favorites and history modes
	Items   []domain.Item
	Query   string
	Page    int
	HasMore bool

	// Schedule, already rotated for display
	Year      int
	Season    string
	Day       int
	DayLabels []string
	Days      [][]domain.Item

	Favorites []string
	History   []domain.HistoryEntry
	Notices   []string
	Player    playback.Status

	CanBack    bool
	CanForward bool
}

// Engine owns the session state. All methods are safe for concurrent use;
// blocking methods perform their network calls without holding the lock.
type Engine struct {
	backend domain.Backend
	cache   *cache.Metadata
	covers  *cover.Loader
	player  Player
	index   *search.Index
	notices *NoticeBoard
	nav     *History
	cfg     Config
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup // cover loading

	mu        sync.Mutex
	mode      domain.Mode
	lastMode  domain.Mode
	gen       uint64 // bumped whenever the displayed collection is replaced
	loading   bool
	cards     []*domain.Card
	page      int
	hasMore   bool
	query     string
	year      int
	season    string
	day       int
	labels    []string
	days      [][]*domain.Card
	favorites []string
	history   []domain.HistoryEntry
}

// New creates an engine in schedule mode for the current season. Call Start to load it.
func New(backend domain.Backend, md *cache.Metadata, covers *cover.Loader, player Player, notices *NoticeBoard, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if notices == nil {
		notices = NewNoticeBoard(DefaultNoticeTTL)
	}
	year, season := SeasonOf(cfg.Now())
	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		backend:  backend,
		cache:    md,
		covers:   covers,
		player:   player,
		index:    search.NewIndex(md, logger),
		notices:  notices,
		nav:      NewHistory(),
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		mode:     domain.ModeSchedule,
		lastMode: domain.ModeSchedule,
		year:     year,
		season:   season,
		labels:   RotateLabels(0),
		days:     emptyDays(),
	}
}

func emptyDays() [][]*domain.Card {
	return make([][]*domain.Card, DaysPerWeek)
}

// Start loads favorite ids and history rows, then the initial schedule
func (e *Engine) Start(ctx context.Context) error {
	if ids, err := e.backend.FavoriteIDs(ctx); err != nil {
		e.logger.Debug("failed to load favorite ids", "error", err)
	} else {
		e.mu.Lock()
		e.favorites = ids
		e.mu.Unlock()
	}

	if rows, err := e.backend.PlaybackHistory(ctx); err != nil {
		e.logger.Debug("failed to load playback history", "error", err)
	} else {
		e.mu.Lock()
		e.history = rows
		e.mu.Unlock()
	}

	e.mu.Lock()
	fetch := e.resetLocked(domain.ModeSchedule, entryActions[domain.ModeSchedule])
	e.mu.Unlock()
	return fetch(ctx)
}

// Close stops background cover loading and waits for it
func (e *Engine) Close() {
	e.cancel()
	e.bg.Wait()
}

// Wait blocks until in-flight cover loading finishes
func (e *Engine) Wait() {
	e.bg.Wait()
}

// SwitchMode moves to target, running its entry action
func (e *Engine) SwitchMode(ctx context.Context, target domain.Mode) error {
	if !target.Valid() {
		return fmt.Errorf("unknown mode %q", target)
	}
	return e.transitionTo(ctx, target, false)
}

func (e *Engine) transitionTo(ctx context.Context, target domain.Mode, force bool) error {
	e.mu.Lock()
	tr := transitionFor(e.mode, target, force)
	switch tr.kind {
	case transitionNone:
		e.mu.Unlock()
		return nil
	case transitionEnterPlayer:
		e.lastMode = e.mode
		e.mode = domain.ModePlayer
		e.mu.Unlock()
		return nil
	}

	leavingPlayer := e.mode == domain.ModePlayer
	fetch := e.resetLocked(target, tr.enter)
	e.mu.Unlock()

	if leavingPlayer {
		e.player.Reset()
	}
	return fetch(ctx)
}

// resetLocked clears the displayed collection, invalidates in-flight fetches
// and prepares target's entry action
func (e *Engine) resetLocked(target domain.Mode, enter entryAction) func(context.Context) error {
	e.mode = target
	e.gen++
	e.cards = nil
	e.days = emptyDays()
	e.loading = true
	return enter(e)
}

func (e *Engine) enterList() func(context.Context) error {
	e.page = 1
	e.hasMore = true
	gen, query := e.gen, e.query
	return func(ctx context.Context) error {
		return e.fetchList(ctx, gen, 1, query)
	}
}

func (e *Engine) enterFavorites() func(context.Context) error {
	gen := e.gen
	return func(ctx context.Context) error {
		return e.fetchFavorites(ctx, gen)
	}
}

func (e *Engine) enterHistory() func(context.Context) error {
	gen := e.gen
	return func(ctx context.Context) error {
		return e.fetchHistory(ctx, gen)
	}
}

func (e *Engine) enterSchedule() func(context.Context) error {
	start := RotationStart(e.year, e.season, e.cfg.Now())
	e.labels = RotateLabels(start)
	e.day = 0
	gen, year, season := e.gen, e.year, e.season
	return func(ctx context.Context) error {
		return e.fetchSchedule(ctx, gen, year, season, start)
	}
}

// LoadMore appends the next list page when one may exist
func (e *Engine) LoadMore(ctx context.Context) error {
	e.mu.Lock()
	if e.mode != domain.ModeList || e.loading || !e.hasMore {
		e.mu.Unlock()
		return nil
	}
	e.loading = true
	gen, page, query := e.gen, e.page+1, e.query
	e.mu.Unlock()

	return e.fetchList(ctx, gen, page, query)
}

func (e *Engine) fetchList(ctx context.Context, gen uint64, page int, query string) error {
	items, err := e.backend.ListItems(ctx, page, query)
	if err == nil {
		e.cache.Put(items...)
	}

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		e.logger.Debug("discarding stale list page", "page", page)
		return nil
	}
	e.loading = false
	if err != nil {
		e.mu.Unlock()
		return e.fail(err, "Failed to load the catalog")
	}
	if len(items) < e.cfg.PageSize {
		e.hasMore = false
	}
	cards := domain.NewCards(items)
	if page == 1 {
		e.cards = cards
	} else {
		e.cards = append(e.cards, cards...)
	}
	e.page = page
	e.mu.Unlock()

	e.loadCovers(cards)
	return nil
}

func (e *Engine) fetchFavorites(ctx context.Context, gen uint64) error {
	items, err := e.backend.FavoritesWithDetails(ctx)
	if err == nil {
		e.cache.Put(items...)
	}

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		e.logger.Debug("discarding stale favorites")
		return nil
	}
	e.loading = false
	if err != nil {
		e.mu.Unlock()
		return e.fail(err, "Failed to load favorites")
	}
	cards := domain.NewCards(items)
	e.cards = cards
	e.mu.Unlock()

	e.loadCovers(cards)
	return nil
}

func (e *Engine) fetchHistory(ctx context.Context, gen uint64) error {
	rows, err := e.backend.PlaybackHistory(ctx)
	var items []domain.Item
	if err == nil {
		for _, row := range rows {
			if row.Item != nil {
				items = append(items, *row.Item)
			}
		}
		e.cache.Put(items...)
	}

	e.mu.Lock()
	if err == nil {
		e.history = rows
	}
	if e.gen != gen {
		e.mu.Unlock()
		e.logger.Debug("discarding stale history")
		return nil
	}
	e.loading = false
	if err != nil {
		e.mu.Unlock()
		return e.fail(err, "Failed to load watch history")
	}
	cards := domain.NewCards(items)
	e.cards = cards
	e.mu.Unlock()

	e.loadCovers(cards)
	return nil
}

func (e *Engine) fetchSchedule(ctx context.Context, gen uint64, year int, season string, start int) error {
	days, err := e.backend.SeasonSchedule(ctx, year, season)
	if err == nil {
		for _, day := range days {
			e.cache.Put(day...)
		}
	}

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		e.logger.Debug("discarding stale schedule", "year", year, "season", season)
		return nil
	}
	e.loading = false
	if err != nil {
		e.mu.Unlock()
		return e.fail(err, "Failed to load the schedule")
	}
	var all []*domain.Card
	buckets := emptyDays()
	for i, day := range RotateDays(days, start) {
		buckets[i] = domain.NewCards(day)
		all = append(all, buckets[i]...)
	}
	e.days = buckets
	e.mu.Unlock()

	e.loadCovers(all)
	return nil
}

// fail reports a fetch failure. Missing data is a normal empty state.
func (e *Engine) fail(err error, notice string) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil
	case errors.Is(err, context.Canceled):
		return err
	}
	e.logger.Warn(strings.ToLower(notice), "error", err)
	e.notices.Notify(notice)
	return err
}

// loadCovers resolves missing posters in the background
func (e *Engine) loadCovers(cards []*domain.Card) {
	if e.covers == nil || len(cards) == 0 {
		return
	}
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		e.covers.ResolveAll(e.ctx, cards)
	}()
}

// Search sets the query and reloads the list from page 1, whatever the current mode
func (e *Engine) Search(ctx context.Context, query string) error {
	e.mu.Lock()
	e.query = strings.TrimSpace(query)
	e.mu.Unlock()
	return e.transitionTo(ctx, domain.ModeList, true)
}

// ReloadHome clears the query and returns to the schedule
func (e *Engine) ReloadHome(ctx context.Context) error {
	e.mu.Lock()
	e.query = ""
	e.mu.Unlock()
	return e.transitionTo(ctx, domain.ModeSchedule, false)
}

// SelectSeason shows the schedule of another season
func (e *Engine) SelectSeason(ctx context.Context, year int, season string) error {
	if !slices.Contains(Seasons, season) {
		return fmt.Errorf("unknown season %q", season)
	}
	if year < FirstYear || year > e.cfg.Now().Year() {
		return fmt.Errorf("year %d out of range", year)
	}
	e.mu.Lock()
	e.year = year
	e.season = season
	e.mu.Unlock()
	return e.transitionTo(ctx, domain.ModeSchedule, true)
}

// SetDay selects a schedule tab, 0 being the first displayed day
func (e *Engine) SetDay(i int) {
	if i < 0 || i >= DaysPerWeek {
		return
	}
	e.mu.Lock()
	e.day = i
	e.mu.Unlock()
}

// IsFavorite reports whether id is in the favorites list
func (e *Engine) IsFavorite(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Contains(e.favorites, id)
}

// ToggleFavorite adds or removes id. Removing in favorites mode also drops its card.
func (e *Engine) ToggleFavorite(ctx context.Context, id string) error {
	fav := e.IsFavorite(id)

	var err error
	if fav {
		err = e.backend.RemoveFavorite(ctx, id)
	} else {
		err = e.backend.AddFavorite(ctx, id)
	}
	if err != nil {
		e.logger.Warn("failed to update favorite", "id", id, "error", err)
		e.notices.Notify("Could not update favorites")
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !fav {
		if !slices.Contains(e.favorites, id) {
			e.favorites = append(e.favorites, id)
		}
		return nil
	}
	e.favorites = slices.DeleteFunc(e.favorites, func(f string) bool { return f == id })
	if e.mode == domain.ModeFavorites {
		e.cards = slices.DeleteFunc(e.cards, func(c *domain.Card) bool { return c.ID() == id })
	}
	return nil
}

// SearchCached ranks every show seen this session against query without a network call
func (e *Engine) SearchCached(query string, limit int) []domain.Item {
	results := e.index.Search(query, limit)
	items := make([]domain.Item, len(results))
	for i, r := range results {
		items[i] = r.Item
	}
	return items
}

// Play starts an episode of the open item
func (e *Engine) Play(ctx context.Context, ep domain.Episode, start float64) error {
	return e.player.Play(ctx, ep, start)
}

// Resume continues the open item from its last saved position
func (e *Engine) Resume(ctx context.Context) error {
	return e.player.Resume(ctx)
}

// Snapshot returns a copy of the session state
func (e *Engine) Snapshot() View {
	player := e.player.Status()

	e.mu.Lock()
	v := View{
		Mode:      e.mode,
		LastMode:  e.lastMode,
		Loading:   e.loading,
		Items:     itemsOf(e.cards),
		Query:     e.query,
		Page:      e.page,
		HasMore:   e.hasMore,
		Year:      e.year,
		Season:    e.season,
		Day:       e.day,
		DayLabels: append([]string(nil), e.labels...),
		Days:      make([][]domain.Item, len(e.days)),
		Favorites: append([]string(nil), e.favorites...),
		History:   append([]domain.HistoryEntry(nil), e.history...),
	}
	for i, day := range e.days {
		v.Days[i] = itemsOf(day)
	}
	e.mu.Unlock()

	v.Notices = e.notices.Active()
	v.Player = player
	v.CanBack = e.nav.CanBack()
	v.CanForward = e.nav.CanForward()
	return v
}

func itemsOf(cards []*domain.Card) []domain.Item {
	items := make([]domain.Item, len(cards))
	for i, c := range cards {
		items[i] = c.Item()
	}
	return items
}
