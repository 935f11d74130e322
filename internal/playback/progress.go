package playback

import (
	"math"
	"time"

	"github.com/mmcdole/anikino/internal/domain"
)

// persistLoop runs the periodic save until the session is stopped
func (m *Manager) persistLoop(s *session) {
	defer s.wg.Done()

	ticker := time.NewTicker(m.cfg.SaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			m.saveTick(s)
		}
	}
}

// saveTick persists the playhead of s, or clears the record once playback
// is near completion. Failures are logged and retried on the next tick.
func (m *Manager) saveTick(s *session) {
	m.mu.Lock()
	active := m.current == s && (s.state == StateReady || s.state == StatePlaying)
	m.mu.Unlock()
	if !active || s.ctx.Err() != nil {
		return
	}

	if s.widget.Paused() {
		return
	}
	pos := s.widget.CurrentTime()
	if pos <= 1 {
		return
	}

	if dur := s.widget.Duration(); dur > 0 && pos/dur > m.cfg.CompletionRatio {
		if err := m.repo.ClearPlayback(s.ctx, s.animeID); err != nil {
			m.logger.Debug("failed to clear playback record", "id", s.animeID, "error", err)
			return
		}
		m.mu.Lock()
		if m.current == s {
			m.shadow = nil
		}
		m.mu.Unlock()
		m.forgetResume(s.animeID)
		return
	}

	rec := domain.PlaybackRecord{
		AnimeID:      s.animeID,
		EpisodeTitle: s.episode.Title,
		Position:     int(math.Floor(pos)),
	}
	if err := m.repo.SavePlayback(s.ctx, rec); err != nil {
		m.logger.Debug("failed to save playback", "id", s.animeID, "error", err)
		return
	}

	point := domain.ResumePoint{
		AnimeID:      s.animeID,
		EpisodeTitle: s.episode.Title,
		Position:     float64(rec.Position),
		UpdatedAt:    time.Now(),
	}
	m.mu.Lock()
	current := m.current == s
	if current {
		m.shadow = &point
	}
	m.mu.Unlock()
	if current {
		m.persistResume(point)
	}
}
