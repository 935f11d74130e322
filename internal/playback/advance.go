package playback

import (
	"context"
	"time"

	"github.com/mmcdole/anikino/internal/domain"
)

// advance handles the end of s: clear its record, then start the next
// episode. Episode lists are newest first, so the next one sits at index-1.
func (m *Manager) advance(s *session) {
	defer m.bg.Done()

	if err := m.repo.ClearPlayback(context.WithoutCancel(s.ctx), s.animeID); err != nil {
		m.logger.Debug("failed to clear playback record", "id", s.animeID, "error", err)
	} else {
		m.forgetResume(s.animeID)
	}

	m.mu.Lock()
	if m.current != s {
		m.mu.Unlock()
		return
	}
	m.shadow = nil
	eps := m.episodes
	m.mu.Unlock()

	i := domain.FindEpisode(eps, s.episode.Title)
	switch {
	case i < 0:
		return
	case i == 0:
		m.notify.Notify("That was the latest episode")
		return
	}

	next := eps[i-1]
	m.notify.Notify("Up next: " + next.Title)

	timer := time.NewTimer(m.cfg.AdvanceDelay)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return
	case <-timer.C:
	}

	m.mu.Lock()
	current := m.current == s
	m.mu.Unlock()
	if !current {
		return
	}

	if err := m.play(m.ctx, next, 0, false); err != nil {
		m.logger.Warn("auto-advance failed", "episode", next.Title, "error", err)
	}
}
