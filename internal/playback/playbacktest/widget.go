// Package playbacktest provides a scriptable player widget for tests.
package playbacktest

import (
	"context"
	"errors"
	"sync"

	"github.com/mmcdole/anikino/internal/playback"
)

// Widget is an in-memory playback.Widget. Tests move the playhead with
// SetTime and drive the lifecycle with Emit.
type Widget struct {
	Source string
	Title  string

	mu       sync.Mutex
	events   chan playback.Event
	time     float64
	duration float64
	paused   bool
	closed   bool
	seeks    []float64
	plays    int
}

// NewWidget creates a widget for source
func NewWidget(source, title string) *Widget {
	return &Widget{
		Source: source,
		Title:  title,
		events: make(chan playback.Event, 32),
		paused: true,
	}
}

func (w *Widget) Events() <-chan playback.Event {
	return w.events
}

// Emit delivers a signal. Signals sent after Close are dropped.
func (w *Widget) Emit(sig playback.Signal) {
	w.EmitEvent(playback.Event{Signal: sig})
}

// EmitEvent delivers an event, e.g. an error with its cause
func (w *Widget) EmitEvent(ev playback.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.events <- ev
}

// Hangup simulates the player window being closed externally
func (w *Widget) Hangup() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.events)
}

func (w *Widget) Seek(seconds float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("widget closed")
	}
	w.seeks = append(w.seeks, seconds)
	w.time = seconds
	return nil
}

func (w *Widget) Play() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("widget closed")
	}
	w.plays++
	w.paused = false
	return nil
}

// SetTime moves the playhead
func (w *Widget) SetTime(current, duration float64) {
	w.mu.Lock()
	w.time = current
	w.duration = duration
	w.mu.Unlock()
}

func (w *Widget) SetPaused(paused bool) {
	w.mu.Lock()
	w.paused = paused
	w.mu.Unlock()
}

func (w *Widget) CurrentTime() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.time
}

func (w *Widget) Duration() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.duration
}

func (w *Widget) Paused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paused
}

func (w *Widget) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.events)
	}
	return nil
}

// Closed reports whether the widget was released
func (w *Widget) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Seeks returns every seek target in order
func (w *Widget) Seeks() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]float64(nil), w.seeks...)
}

// Plays returns how many times Play was called
func (w *Widget) Plays() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.plays
}

// Opener records every opened widget
type Opener struct {
	mu      sync.Mutex
	widgets []*Widget
	err     error
}

// Fail makes subsequent opens return err
func (o *Opener) Fail(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

func (o *Opener) Open(ctx context.Context, source, title string) (playback.Widget, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	w := NewWidget(source, title)
	o.widgets = append(o.widgets, w)
	return w, nil
}

// Widgets returns every widget opened so far
func (o *Opener) Widgets() []*Widget {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Widget(nil), o.widgets...)
}

// Last returns the most recently opened widget, or nil
func (o *Opener) Last() *Widget {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.widgets) == 0 {
		return nil
	}
	return o.widgets[len(o.widgets)-1]
}
