package session

import (
	"context"
	"fmt"

	"github.com/mmcdole/anikino/internal/domain"
)

// OpenItem enters player mode for item and records a navigation entry
func (e *Engine) OpenItem(ctx context.Context, item domain.Item) error {
	return e.openItem(ctx, item, false)
}

func (e *Engine) openItem(ctx context.Context, item domain.Item, restoring bool) error {
	if item.ID == "" {
		return fmt.Errorf("open item: %w", domain.ErrNotFound)
	}
	if err := e.transitionTo(ctx, domain.ModePlayer, false); err != nil {
		return err
	}
	if !restoring {
		e.nav.Push(domain.NavState{Mode: domain.ModePlayer, AnimeID: item.ID})
	}
	e.cache.Put(item)

	if err := e.player.Open(ctx, item); err != nil {
		e.logger.Warn("failed to open item", "id", item.ID, "error", err)
		return err
	}
	return nil
}

// Back steps the navigation log backwards. It reports false at the start.
func (e *Engine) Back(ctx context.Context) (bool, error) {
	st, ok := e.nav.Back()
	if !ok {
		return false, nil
	}
	return true, e.handlePop(ctx, st)
}

// Forward steps the navigation log forwards. It reports false at the end.
func (e *Engine) Forward(ctx context.Context) (bool, error) {
	st, ok := e.nav.Forward()
	if !ok {
		return false, nil
	}
	return true, e.handlePop(ctx, st)
}

// handlePop applies the state of the navigation entry just moved to.
// Any pop while in player mode leaves the player, whatever the entry holds.
func (e *Engine) handlePop(ctx context.Context, st *domain.NavState) error {
	e.mu.Lock()
	if e.mode == domain.ModePlayer {
		e.mode = e.lastMode
		e.mu.Unlock()
		e.player.Reset()
		return nil
	}
	e.mu.Unlock()

	if !st.IsPlayer() {
		return nil
	}
	item, ok := e.resolve(st.AnimeID)
	if !ok {
		e.logger.Debug("cannot restore player, item unknown", "id", st.AnimeID)
		return nil
	}
	return e.openItem(ctx, item, true)
}

// ClosePlayer leaves player mode, through the navigation log when it holds the player entry
func (e *Engine) ClosePlayer(ctx context.Context) error {
	e.mu.Lock()
	inPlayer := e.mode == domain.ModePlayer
	target := e.lastMode
	e.mu.Unlock()
	if !inPlayer {
		return nil
	}

	e.player.Reset()
	if e.nav.Current().IsPlayer() {
		if st, ok := e.nav.Back(); ok {
			return e.handlePop(ctx, st)
		}
	}
	return e.transitionTo(ctx, target, false)
}

// resolve finds an item by id in the cache, then among the displayed cards
func (e *Engine) resolve(id string) (domain.Item, bool) {
	if item, ok := e.cache.Get(id); ok {
		return item, true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.cards {
		if c.ID() == id {
			return c.Item(), true
		}
	}
	for _, day := range e.days {
		for _, c := range day {
			if c.ID() == id {
				return c.Item(), true
			}
		}
	}
	return domain.Item{}, false
}
