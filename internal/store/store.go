package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/anikino/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketItems  = []byte("items")
	bucketResume = []byte("resume")
)

// SessionStore implements domain.Store using BoltDB.
type SessionStore struct {
	db *bolt.DB
	mu sync.RWMutex // Protects memory cache

	// In-memory cache for hot-path reads (promoted on access)
	cache map[string][]byte
}

// New opens the store below baseDir. An empty baseDir keeps everything in memory.
func New(baseDir, serverURL string) (*SessionStore, error) {
	if baseDir == "" {
		// Memory-only mode (no persistence)
		return &SessionStore{cache: make(map[string][]byte)}, nil
	}

	dir := baseDir
	if serverURL != "" {
		dir = filepath.Join(baseDir, hashServerURL(serverURL))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "anikino.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketItems, bucketResume} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SessionStore{db: db, cache: make(map[string][]byte)}, nil
}

func hashServerURL(serverURL string) string {
	normalized := strings.TrimRight(strings.ToLower(serverURL), "/")
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:6])
}

func (s *SessionStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// === Generic helpers ===

func (s *SessionStore) get(bucket []byte, key string, dest interface{}) bool {
	cacheKey := string(bucket) + ":" + key

	s.mu.RLock()
	if data, ok := s.cache[cacheKey]; ok {
		s.mu.RUnlock()
		return json.Unmarshal(data, dest) == nil
	}
	s.mu.RUnlock()

	if s.db == nil {
		return false
	}

	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})

	if data == nil {
		return false
	}

	// Promote to memory cache
	s.mu.Lock()
	s.cache[cacheKey] = data
	s.mu.Unlock()

	return json.Unmarshal(data, dest) == nil
}

func (s *SessionStore) set(bucket []byte, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	cacheKey := string(bucket) + ":" + key

	s.mu.Lock()
	s.cache[cacheKey] = data
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (s *SessionStore) delete(bucket []byte, key string) error {
	cacheKey := string(bucket) + ":" + key

	s.mu.Lock()
	delete(s.cache, cacheKey)
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucket); b != nil {
			return b.Delete([]byte(key))
		}
		return nil
	})
}

// scan decodes every value of a bucket. Memory-only mode scans the memory cache.
func (s *SessionStore) scan(bucket []byte, fn func(data []byte) error) error {
	if s.db == nil {
		prefix := string(bucket) + ":"
		s.mu.RLock()
		keys := make([]string, 0, len(s.cache))
		for k := range s.cache {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		values := make([][]byte, len(keys))
		for i, k := range keys {
			values[i] = s.cache[k]
		}
		s.mu.RUnlock()

		for _, v := range values {
			if err := fn(v); err != nil {
				return err
			}
		}
		return nil
	}

	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			return fn(v)
		})
	})
}

// === Items ===

// storedItem is the persisted form of an item snapshot
type storedItem struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Year   string `json:"year,omitempty"`
	Season string `json:"season,omitempty"`
	Status string `json:"status,omitempty"`
	Poster string `json:"poster,omitempty"`
}

func (s *SessionStore) GetItems() ([]domain.Item, error) {
	var items []domain.Item
	err := s.scan(bucketItems, func(data []byte) error {
		var si storedItem
		if err := json.Unmarshal(data, &si); err != nil {
			return fmt.Errorf("decode item: %w", err)
		}
		items = append(items, domain.Item{
			ID:     si.ID,
			Title:  si.Title,
			Year:   si.Year,
			Season: si.Season,
			Status: si.Status,
			Poster: si.Poster,
		})
		return nil
	})
	return items, err
}

func (s *SessionStore) SaveItem(item domain.Item) error {
	if item.ID == "" {
		return fmt.Errorf("item without id")
	}
	return s.set(bucketItems, item.ID, storedItem{
		ID:     item.ID,
		Title:  item.Title,
		Year:   item.Year,
		Season: item.Season,
		Status: item.Status,
		Poster: item.Poster,
	})
}

// === Resume shadows ===

func (s *SessionStore) GetResume(animeID string) (domain.ResumePoint, bool) {
	var p domain.ResumePoint
	ok := s.get(bucketResume, animeID, &p)
	return p, ok
}

func (s *SessionStore) SaveResume(point domain.ResumePoint) error {
	if point.AnimeID == "" {
		return fmt.Errorf("resume point without anime id")
	}
	return s.set(bucketResume, point.AnimeID, point)
}

func (s *SessionStore) DeleteResume(animeID string) error {
	return s.delete(bucketResume, animeID)
}
