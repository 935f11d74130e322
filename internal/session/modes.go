package session

import (
	"context"

	"github.com/mmcdole/anikino/internal/domain"
)

// transitionKind classifies a mode change
type transitionKind int

const (
	transitionNone        transitionKind = iota // Target is already active
	transitionEnterPlayer                       // Keep the collection, remember lastMode
	transitionReset                             // Clear the collection and run the entry action
)

// entryAction prepares a mode under the engine lock and returns the
// fetch to run once the lock is released
type entryAction func(e *Engine) func(ctx context.Context) error

// entryActions holds the fetch each browsable mode triggers on entry
var entryActions = map[domain.Mode]entryAction{
	domain.ModeList:      (*Engine).enterList,
	domain.ModeFavorites: (*Engine).enterFavorites,
	domain.ModeHistory:   (*Engine).enterHistory,
	domain.ModeSchedule:  (*Engine).enterSchedule,
}

type transition struct {
	kind  transitionKind
	enter entryAction
}

// transitionFor returns how the engine moves from one mode to another.
// force makes a same-mode request reload instead of being ignored.
func transitionFor(from, to domain.Mode, force bool) transition {
	switch {
	case to == domain.ModePlayer && from == domain.ModePlayer:
		return transition{kind: transitionNone}
	case to == domain.ModePlayer:
		return transition{kind: transitionEnterPlayer}
	case from == to && !force:
		return transition{kind: transitionNone}
	}
	enter, ok := entryActions[to]
	if !ok {
		return transition{kind: transitionNone}
	}
	return transition{kind: transitionReset, enter: enter}
}
