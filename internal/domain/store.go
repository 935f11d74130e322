package domain

// ItemStore persists metadata snapshots across runs
type ItemStore interface {
	GetItems() ([]Item, error)
	SaveItem(item Item) error
}

// ResumeStore persists the client-side resume shadows
type ResumeStore interface {
	GetResume(animeID string) (ResumePoint, bool)
	SaveResume(point ResumePoint) error
	DeleteResume(animeID string) error
}

// Store handles local persistence (BoltDB + memory)
type Store interface {
	ItemStore
	ResumeStore
	Close() error
}
