package cover

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mmcdole/anikino/internal/cache"
	"github.com/mmcdole/anikino/internal/domain"
)

type fakeLookup struct {
	calls   atomic.Int32
	url     string
	err     error
	release chan struct{} // when set, lookups block until closed
}

func (f *fakeLookup) CoverByTitle(ctx context.Context, title string) (string, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return f.url, f.err
}

func TestResolve_CacheHitSkipsNetwork(t *testing.T) {
	md := cache.New(nil, nil)
	md.Put(domain.Item{ID: "1", Title: "a", Poster: "cached"})
	lk := &fakeLookup{url: "remote"}
	l := NewLoader(lk, md, nil)

	card := domain.NewCard(domain.Item{ID: "1", Title: "a"})
	l.Resolve(context.Background(), card)

	if got := card.Item().Poster; got != "cached" {
		t.Fatalf("expected cached poster, got %q", got)
	}
	if lk.calls.Load() != 0 {
		t.Fatalf("expected no lookups, got %d", lk.calls.Load())
	}
}

func TestResolve_SuccessWritesBackToCache(t *testing.T) {
	md := cache.New(nil, nil)
	md.Put(domain.Item{ID: "2", Title: "b"})
	l := NewLoader(&fakeLookup{url: "/covers/b.jpg"}, md, nil)

	card := domain.NewCard(domain.Item{ID: "2", Title: "b"})
	l.Resolve(context.Background(), card)

	it := card.Item()
	if it.Poster != "/covers/b.jpg" || it.PosterLoading || it.CoverFailed {
		t.Fatalf("unexpected card state %+v", it)
	}
	if p, ok := md.Poster("2"); !ok || p != "/covers/b.jpg" {
		t.Fatalf("expected poster written back, got %q", p)
	}
	if got, _ := md.Get("2"); got.Title != "b" {
		t.Fatalf("write-back dropped title: %+v", got)
	}
}

func TestResolve_FailureIsPermanentForCard(t *testing.T) {
	tests := []struct {
		name string
		url  string
		err  error
	}{
		{"empty result", "", nil},
		{"network error", "", errors.New("timeout")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lk := &fakeLookup{url: tt.url, err: tt.err}
			l := NewLoader(lk, cache.New(nil, nil), nil)

			card := domain.NewCard(domain.Item{ID: "3", Title: "c"})
			l.Resolve(context.Background(), card)
			l.Resolve(context.Background(), card)

			it := card.Item()
			if !it.CoverFailed || it.PosterLoading {
				t.Fatalf("expected failed, not loading: %+v", it)
			}
			if lk.calls.Load() != 1 {
				t.Fatalf("expected 1 lookup, got %d", lk.calls.Load())
			}

			// A fresh card for the same id may retry
			l.Resolve(context.Background(), domain.NewCard(domain.Item{ID: "3", Title: "c"}))
			if lk.calls.Load() != 2 {
				t.Fatalf("expected fresh card to retry, got %d lookups", lk.calls.Load())
			}
		})
	}
}

func TestResolve_ConcurrentCallsIssueOneLookup(t *testing.T) {
	lk := &fakeLookup{url: "u", release: make(chan struct{})}
	l := NewLoader(lk, cache.New(nil, nil), nil)
	card := domain.NewCard(domain.Item{ID: "4", Title: "d"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Resolve(context.Background(), card)
		}()
	}
	close(lk.release)
	wg.Wait()

	if lk.calls.Load() != 1 {
		t.Fatalf("expected at most 1 lookup, got %d", lk.calls.Load())
	}
	if card.Item().Poster != "u" {
		t.Fatalf("expected poster u, got %+v", card.Item())
	}
}

func TestResolveAll_RunsConcurrently(t *testing.T) {
	release := make(chan struct{})
	lk := &fakeLookup{url: "u", release: release}
	l := NewLoader(lk, cache.New(nil, nil), nil)

	cards := domain.NewCards([]domain.Item{
		{ID: "1", Title: "one"},
		{ID: "2", Title: "two"},
		{ID: "3", Title: "three"},
	})

	done := make(chan struct{})
	go func() {
		l.ResolveAll(context.Background(), cards)
		close(done)
	}()

	// Every lookup must be in flight at once before any is released
	for lk.calls.Load() < 3 {
		select {
		case <-done:
			t.Fatal("ResolveAll returned before lookups were released")
		default:
		}
	}
	close(release)
	<-done

	for _, c := range cards {
		if c.Item().Poster != "u" {
			t.Fatalf("expected all posters resolved, got %+v", c.Item())
		}
	}
}
