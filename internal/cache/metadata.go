// Package cache holds the session-wide metadata cache shared by every view.
package cache

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/mmcdole/anikino/internal/domain"
)

// Metadata maps item ids to their last known snapshot.
// Entries are merged field by field and never evicted.
type Metadata struct {
	mu    sync.RWMutex
	items map[string]domain.Item

	store  domain.ItemStore // optional write-through
	logger *slog.Logger
}

// New creates a cache. store may be nil for a memory-only cache.
func New(store domain.ItemStore, logger *slog.Logger) *Metadata {
	if logger == nil {
		logger = slog.Default()
	}
	return &Metadata{
		items:  make(map[string]domain.Item),
		store:  store,
		logger: logger,
	}
}

// Warm loads snapshots persisted by a previous run
func (m *Metadata) Warm() int {
	if m.store == nil {
		return 0
	}
	items, err := m.store.GetItems()
	if err != nil {
		m.logger.Warn("failed to warm metadata cache", "error", err)
		return 0
	}

	m.mu.Lock()
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		m.items[it.ID] = m.items[it.ID].Merge(it.Snapshot())
	}
	n := len(m.items)
	m.mu.Unlock()

	m.logger.Debug("warmed metadata cache", "count", n)
	return n
}

// Put merges each item into the cache by id.
// Non-empty fields overwrite, empty fields keep what is already known.
func (m *Metadata) Put(items ...domain.Item) {
	merged := make([]domain.Item, 0, len(items))

	m.mu.Lock()
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		next := m.items[it.ID].Merge(it.Snapshot())
		m.items[it.ID] = next
		merged = append(merged, next)
	}
	m.mu.Unlock()

	if m.store == nil {
		return
	}
	for _, it := range merged {
		if err := m.store.SaveItem(it); err != nil {
			m.logger.Debug("failed to persist item", "id", it.ID, "error", err)
		}
	}
}

// Get returns the cached snapshot for id
func (m *Metadata) Get(id string) (domain.Item, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	return it, ok
}

// Poster returns the cached poster for id when one was resolved
func (m *Metadata) Poster(id string) (string, bool) {
	it, ok := m.Get(id)
	if !ok || it.Poster == "" {
		return "", false
	}
	return it.Poster, true
}

func (m *Metadata) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Items returns every snapshot ordered by id
func (m *Metadata) Items() []domain.Item {
	m.mu.RLock()
	items := make([]domain.Item, 0, len(m.items))
	for _, it := range m.items {
		items = append(items, it)
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}
