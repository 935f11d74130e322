// Package playback owns the player widget lifecycle, playback progress
// persistence, resume matching and episode auto-advance.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/anikino/internal/domain"
)

// Notifier shows transient messages to the user
type Notifier interface {
	Notify(msg string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

// Config tunes the manager's timers
type Config struct {
	SaveInterval    time.Duration // Period of the progress persistence cycle
	AdvanceDelay    time.Duration // Pause before the next episode starts
	CompletionRatio float64       // Position/duration above which a record is cleared
}

// DefaultConfig returns the standard timings
func DefaultConfig() Config {
	return Config{
		SaveInterval:    5 * time.Second,
		AdvanceDelay:    time.Second,
		CompletionRatio: 0.95,
	}
}

// Status is a point-in-time copy of the manager's state for display
type Status struct {
	Item            *domain.Item
	Episodes        []domain.Episode
	EpisodesLoading bool
	EpisodesFailed  bool
	Resume          *domain.ResumePoint
	Episode         *domain.Episode // Episode of the active widget
	State           State
	Source          string
}

// session is one widget playing one episode. Every exit path goes through stop.
type session struct {
	animeID string
	episode domain.Episode
	start   float64
	source  string
	widget  Widget
	state   State

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup // event pump and persistence cycle
}

// stop cancels the session's goroutines, waits for them and releases the widget
func (s *session) stop() error {
	s.cancel()
	s.wg.Wait()
	return s.widget.Close()
}

// Manager drives playback for the item opened in player mode
type Manager struct {
	repo   domain.PlaybackRepository
	opener Opener
	resume domain.ResumeStore // optional local shadow persistence
	notify Notifier
	cfg    Config
	logger *slog.Logger

	ctx    context.Context // lifetime of the manager
	cancel context.CancelFunc
	bg     sync.WaitGroup // auto-advance

	mu              sync.Mutex
	item            *domain.Item
	shadow          *domain.ResumePoint
	episodes        []domain.Episode
	episodesLoading bool
	episodesFailed  bool
	current         *session
	openGen         uint64 // bumped by Open and Reset
	playGen         uint64 // bumped by every play request and teardown
}

// NewManager creates a playback manager. resume and notify may be nil.
func NewManager(repo domain.PlaybackRepository, opener Opener, resume domain.ResumeStore, notify Notifier, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if notify == nil {
		notify = nopNotifier{}
	}
	def := DefaultConfig()
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = def.SaveInterval
	}
	if cfg.AdvanceDelay < 0 {
		cfg.AdvanceDelay = def.AdvanceDelay
	}
	if cfg.CompletionRatio <= 0 || cfg.CompletionRatio > 1 {
		cfg.CompletionRatio = def.CompletionRatio
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		repo:   repo,
		opener: opener,
		resume: resume,
		notify: notify,
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Open resets playback state for item, loads its playback record into the
// resume shadow and then loads the episode list.
func (m *Manager) Open(ctx context.Context, item domain.Item) error {
	m.mu.Lock()
	old := m.detachLocked()
	m.openGen++
	gen := m.openGen
	it := item.Snapshot()
	m.item = &it
	m.shadow = nil
	m.episodes = nil
	m.episodesFailed = false
	m.episodesLoading = true
	m.mu.Unlock()

	m.stopSession(old)

	shadow := m.loadResume(ctx, item.ID)

	m.mu.Lock()
	if m.openGen != gen {
		m.mu.Unlock()
		return nil
	}
	m.shadow = shadow
	m.mu.Unlock()

	eps, err := m.repo.Episodes(ctx, item.ID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openGen != gen {
		return nil
	}
	m.episodesLoading = false
	if err != nil {
		m.episodesFailed = true
		return fmt.Errorf("load episodes for %s: %w", item.ID, err)
	}
	m.episodes = eps
	return nil
}

// loadResume fetches the server record, falling back to the local shadow
// only when the server could not be asked
func (m *Manager) loadResume(ctx context.Context, animeID string) *domain.ResumePoint {
	rec, err := m.repo.PlaybackRecord(ctx, animeID)
	switch {
	case err == nil && strings.TrimSpace(rec.EpisodeTitle) != "":
		p := domain.ResumePoint{
			AnimeID:      animeID,
			EpisodeTitle: rec.EpisodeTitle,
			Position:     float64(rec.Position),
			UpdatedAt:    rec.Timestamp,
		}
		m.persistResume(p)
		return &p
	case err == nil, errors.Is(err, domain.ErrNotFound):
		return nil
	}

	m.logger.Debug("playback record unavailable", "id", animeID, "error", err)
	if m.resume == nil {
		return nil
	}
	if p, ok := m.resume.GetResume(animeID); ok && p.EpisodeTitle != "" {
		return &p
	}
	return nil
}

// Play starts ep. A zero start resumes from the shadow when its episode
// title matches ep's after trimming.
func (m *Manager) Play(ctx context.Context, ep domain.Episode, start float64) error {
	return m.play(ctx, ep, start, true)
}

// Resume plays the shadow's episode from its saved position
func (m *Manager) Resume(ctx context.Context) error {
	m.mu.Lock()
	shadow := m.shadow
	eps := m.episodes
	m.mu.Unlock()

	if shadow == nil {
		return nil
	}
	for _, ep := range eps {
		if domain.SameTitle(ep.Title, shadow.EpisodeTitle) {
			return m.play(ctx, ep, shadow.Position, false)
		}
	}
	m.notify.Notify("Episode " + shadow.EpisodeTitle + " is not in the list")
	return fmt.Errorf("resume episode %q: %w", shadow.EpisodeTitle, domain.ErrNotFound)
}

func (m *Manager) play(ctx context.Context, ep domain.Episode, start float64, matchResume bool) error {
	m.mu.Lock()
	if m.item == nil {
		m.mu.Unlock()
		return fmt.Errorf("play %q: no item open", ep.Title)
	}
	if matchResume && start == 0 && m.shadow != nil && domain.SameTitle(m.shadow.EpisodeTitle, ep.Title) {
		start = m.shadow.Position
	}
	animeID := m.item.ID
	title := m.item.Title
	old := m.detachLocked()
	m.playGen++
	gen := m.playGen
	point := domain.ResumePoint{
		AnimeID:      animeID,
		EpisodeTitle: ep.Title,
		Position:     start,
		UpdatedAt:    time.Now(),
	}
	m.shadow = &point
	m.mu.Unlock()

	m.stopSession(old)
	m.persistResume(point)

	source, err := m.repo.ResolvePlayURL(ctx, animeID, ep)
	if err != nil {
		m.logger.Warn("failed to resolve play address", "id", animeID, "episode", ep.Title, "error", err)
		m.notify.Notify("Could not load episode " + ep.Title)
		return err
	}

	if m.stale(gen) {
		return nil
	}

	widget, err := m.opener.Open(ctx, source, fmt.Sprintf("%s - %s", title, ep.Title))
	if err != nil {
		m.logger.Warn("failed to open player", "source", source, "error", err)
		m.notify.Notify("Player failed to start")
		return fmt.Errorf("%w: %w", domain.ErrPlayback, err)
	}

	sctx, cancel := context.WithCancel(m.ctx)
	s := &session{
		animeID: animeID,
		episode: ep,
		start:   start,
		source:  source,
		widget:  widget,
		state:   StateLoading,
		ctx:     sctx,
		cancel:  cancel,
	}

	m.mu.Lock()
	if m.playGen != gen {
		m.mu.Unlock()
		cancel()
		_ = widget.Close()
		return nil
	}
	m.current = s
	s.wg.Add(2)
	go m.pump(s)
	go m.persistLoop(s)
	m.mu.Unlock()

	m.logger.Info("playback started", "id", animeID, "episode", ep.Title, "start", start)
	return nil
}

func (m *Manager) stale(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playGen != gen
}

// detachLocked removes the active session so the caller can stop it outside the lock
func (m *Manager) detachLocked() *session {
	s := m.current
	m.current = nil
	m.playGen++
	return s
}

// pump feeds widget events into the signal state machine
func (m *Manager) pump(s *session) {
	defer s.wg.Done()
	events := s.widget.Events()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				m.handleSignal(s, Event{Signal: SignalClosed})
				return
			}
			m.handleSignal(s, ev)
		}
	}
}

// handleSignal applies one widget signal: transition, then side effect
func (m *Manager) handleSignal(s *session, ev Event) {
	m.mu.Lock()
	if m.current != s {
		m.mu.Unlock()
		return
	}
	from := s.state
	next, ok := transition(from, ev.Signal)
	if !ok {
		m.mu.Unlock()
		m.logger.Debug("ignored player signal", "state", from, "signal", ev.Signal)
		return
	}
	s.state = next
	m.mu.Unlock()

	switch ev.Signal {
	case SignalMetadataLoaded:
		if s.start > 1 {
			m.seek(s, s.start)
		}
	case SignalReady:
		if s.start > 1 {
			// Fallback when the metadata-time seek did not take
			if s.widget.CurrentTime() < 1 {
				m.seek(s, s.start)
			}
			m.notify.Notify("Resuming at " + domain.FormatClock(s.start))
		}
		if err := s.widget.Play(); err != nil {
			m.logger.Debug("play command failed", "error", err)
		}
	case SignalEnded:
		m.bg.Add(1)
		go m.advance(s)
	case SignalError:
		m.logger.Warn("player error", "episode", s.episode.Title, "error", ev.Err)
		m.notify.Notify("Playback error")
	case SignalClosed:
		m.logger.Info("player closed", "episode", s.episode.Title)
		s.cancel()
	}
}

func (m *Manager) stopSession(s *session) {
	if s == nil {
		return
	}
	if err := s.stop(); err != nil {
		m.logger.Debug("failed to close widget", "error", err)
	}
}

func (m *Manager) seek(s *session, pos float64) {
	if err := s.widget.Seek(pos); err != nil {
		m.logger.Debug("seek failed", "position", pos, "error", err)
	}
}

// Reset tears down playback and forgets the opened item
func (m *Manager) Reset() {
	m.mu.Lock()
	s := m.detachLocked()
	m.openGen++
	m.item = nil
	m.shadow = nil
	m.episodes = nil
	m.episodesLoading = false
	m.episodesFailed = false
	m.mu.Unlock()
	m.stopSession(s)
}

// Close resets the manager and waits for background work
func (m *Manager) Close() {
	m.Reset()
	m.cancel()
	m.bg.Wait()
}

// Status returns a copy of the current playback state
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		EpisodesLoading: m.episodesLoading,
		EpisodesFailed:  m.episodesFailed,
		State:           StateIdle,
	}
	if m.item != nil {
		it := *m.item
		st.Item = &it
	}
	if m.shadow != nil {
		p := *m.shadow
		st.Resume = &p
	}
	st.Episodes = append([]domain.Episode(nil), m.episodes...)
	if s := m.current; s != nil {
		ep := s.episode
		st.Episode = &ep
		st.State = s.state
		st.Source = s.source
	}
	return st
}

func (m *Manager) persistResume(p domain.ResumePoint) {
	if m.resume == nil {
		return
	}
	if err := m.resume.SaveResume(p); err != nil {
		m.logger.Debug("failed to persist resume point", "id", p.AnimeID, "error", err)
	}
}

func (m *Manager) forgetResume(animeID string) {
	if m.resume == nil {
		return
	}
	if err := m.resume.DeleteResume(animeID); err != nil {
		m.logger.Debug("failed to delete resume point", "id", animeID, "error", err)
	}
}
