package session

import (
	"sync"
	"time"
)

// DefaultNoticeTTL is how long a notice stays visible
const DefaultNoticeTTL = 3 * time.Second

// Notice is a transient message for the user
type Notice struct {
	Text    string
	Expires time.Time
}

// NoticeBoard collects notices that dismiss themselves after a fixed TTL
type NoticeBoard struct {
	mu      sync.Mutex
	ttl     time.Duration
	notices []Notice
	now     func() time.Time
}

// NewNoticeBoard creates a board. ttl <= 0 uses DefaultNoticeTTL.
func NewNoticeBoard(ttl time.Duration) *NoticeBoard {
	if ttl <= 0 {
		ttl = DefaultNoticeTTL
	}
	return &NoticeBoard{ttl: ttl, now: time.Now}
}

// Notify posts a notice
func (b *NoticeBoard) Notify(msg string) {
	if msg == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, Notice{Text: msg, Expires: b.now().Add(b.ttl)})
}

// Active returns the notices that have not expired, oldest first
func (b *NoticeBoard) Active() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	kept := b.notices[:0]
	for _, n := range b.notices {
		if now.Before(n.Expires) {
			kept = append(kept, n)
		}
	}
	b.notices = kept

	texts := make([]string, len(kept))
	for i, n := range kept {
		texts[i] = n.Text
	}
	return texts
}
