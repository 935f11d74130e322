package playback

import (
	"context"
	"errors"
	"sync"
)

// fakeWidget is a scriptable Widget. Tests move the playhead with SetTime
// and drive the lifecycle with Emit.
type fakeWidget struct {
	Source string
	Title  string

	mu       sync.Mutex
	events   chan Event
	time     float64
	duration float64
	paused   bool
	closed   bool
	seeks    []float64
	plays    int
}

func newFakeWidget(source, title string) *fakeWidget {
	return &fakeWidget{Source: source, Title: title, events: make(chan Event, 32), paused: true}
}

func (w *fakeWidget) Events() <-chan Event { return w.events }

func (w *fakeWidget) Emit(sig Signal) { w.EmitEvent(Event{Signal: sig}) }

// EmitEvent delivers ev unless the widget was closed
func (w *fakeWidget) EmitEvent(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.events <- ev
	}
}

// Hangup simulates the player window being closed externally
func (w *fakeWidget) Hangup() {
	w.Close()
}

func (w *fakeWidget) Seek(seconds float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("widget closed")
	}
	w.seeks = append(w.seeks, seconds)
	w.time = seconds
	return nil
}

func (w *fakeWidget) Play() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("widget closed")
	}
	w.plays++
	w.paused = false
	return nil
}

func (w *fakeWidget) SetTime(current, duration float64) {
	w.mu.Lock()
	w.time, w.duration = current, duration
	w.mu.Unlock()
}

func (w *fakeWidget) SetPaused(paused bool) {
	w.mu.Lock()
	w.paused = paused
	w.mu.Unlock()
}

func (w *fakeWidget) CurrentTime() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.time
}

func (w *fakeWidget) Duration() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.duration
}

func (w *fakeWidget) Paused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paused
}

func (w *fakeWidget) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.events)
	}
	return nil
}

func (w *fakeWidget) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *fakeWidget) Seeks() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]float64(nil), w.seeks...)
}

func (w *fakeWidget) Plays() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.plays
}

// fakeOpener records every opened widget
type fakeOpener struct {
	mu      sync.Mutex
	widgets []*fakeWidget
}

func (o *fakeOpener) Open(ctx context.Context, source, title string) (Widget, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	w := newFakeWidget(source, title)
	o.widgets = append(o.widgets, w)
	return w, nil
}

func (o *fakeOpener) Widgets() []*fakeWidget {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeWidget(nil), o.widgets...)
}

// Last returns the most recently opened widget, or nil
func (o *fakeOpener) Last() *fakeWidget {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.widgets) == 0 {
		return nil
	}
	return o.widgets[len(o.widgets)-1]
}
