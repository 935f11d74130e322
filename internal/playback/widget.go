package playback

import (
	"context"
	"fmt"
)

// Signal is a lifecycle event emitted by a player widget
type Signal int

const (
	SignalMetadataLoaded Signal = iota + 1 // Duration is known, seeking is possible
	SignalReady                            // Source can start playing
	SignalPlaying
	SignalPaused
	SignalEnded
	SignalError
	SignalClosed // Player window closed by the user
)

func (s Signal) String() string {
	switch s {
	case SignalMetadataLoaded:
		return "metadata-loaded"
	case SignalReady:
		return "ready"
	case SignalPlaying:
		return "playing"
	case SignalPaused:
		return "paused"
	case SignalEnded:
		return "ended"
	case SignalError:
		return "error"
	case SignalClosed:
		return "closed"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// Event is delivered on a widget's event channel
type Event struct {
	Signal Signal
	Err    error // Set for SignalError
}

// Widget is a player bound to one source. It is a black box to the manager:
// the manager only reacts to its events and drives it through this surface.
type Widget interface {
	// Events is closed when the widget is closed
	Events() <-chan Event

	Seek(seconds float64) error
	Play() error

	CurrentTime() float64
	Duration() float64
	Paused() bool

	Close() error
}

// Opener creates a widget playing source
type Opener interface {
	Open(ctx context.Context, source, title string) (Widget, error)
}

// State is the manager's view of the active widget
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StatePlaying
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions maps each state to the signals it accepts. Anything else is ignored.
var transitions = map[State]map[Signal]State{
	StateLoading: {
		SignalMetadataLoaded: StateLoading,
		SignalReady:          StateReady,
		SignalPlaying:        StatePlaying,
		SignalError:          StateIdle,
		SignalClosed:         StateIdle,
	},
	StateReady: {
		SignalPlaying: StatePlaying,
		SignalPaused:  StateReady,
		SignalEnded:   StateEnded,
		SignalError:   StateIdle,
		SignalClosed:  StateIdle,
	},
	StatePlaying: {
		SignalPlaying: StatePlaying,
		SignalPaused:  StatePlaying,
		SignalEnded:   StateEnded,
		SignalError:   StateIdle,
		SignalClosed:  StateIdle,
	},
	StateEnded: {
		SignalPlaying: StatePlaying,
		SignalError:   StateIdle,
		SignalClosed:  StateIdle,
	},
}

// transition returns the state reached from s on sig, and whether sig applies
func transition(s State, sig Signal) (State, bool) {
	next, ok := transitions[s][sig]
	return next, ok
}
