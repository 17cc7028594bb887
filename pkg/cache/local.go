package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/acacalc/acacalc/pkg/models"
)

// Local is the in-process tier: a bounded LRU whose entries are also
// dropped once past their expiry.
type Local struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // front is most recently used
	now      func() time.Time
}

type localItem struct {
	key       string
	entry     *models.CacheEntry
	expiresAt time.Time
}

// NewLocal creates a local tier holding at most capacity entries.
func NewLocal(capacity int, now func() time.Time) *Local {
	if capacity <= 0 {
		capacity = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Local{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		now:      now,
	}
}

// Get returns the entry for key if it is present and not past its expiry.
func (l *Local) Get(key string) (*models.CacheEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	el, ok := l.items[key]
	if !ok {
		return nil, false
	}
	item := el.Value.(*localItem)
	if l.now().After(item.expiresAt) {
		l.removeElement(el)
		return nil, false
	}
	l.order.MoveToFront(el)
	return item.entry, true
}

// Set replaces the entry for key. When full, expired entries are purged
// first and then the least recently used one is evicted.
func (l *Local) Set(key string, entry *models.CacheEntry, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	expiresAt := entry.StoredAt().Add(ttl)
	if el, ok := l.items[key]; ok {
		item := el.Value.(*localItem)
		item.entry = entry
		item.expiresAt = expiresAt
		l.order.MoveToFront(el)
		return
	}

	if len(l.items) >= l.capacity {
		l.purgeExpired()
	}
	for len(l.items) >= l.capacity {
		l.removeElement(l.order.Back())
	}
	l.items[key] = l.order.PushFront(&localItem{key: key, entry: entry, expiresAt: expiresAt})
}

// Delete removes key if present.
func (l *Local) Delete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.items[key]; ok {
		l.removeElement(el)
	}
}

// Len returns the number of stored entries, expired ones included.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func (l *Local) purgeExpired() {
	now := l.now()
	for el := l.order.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*localItem).expiresAt) {
			l.removeElement(el)
		}
		el = prev
	}
}

func (l *Local) removeElement(el *list.Element) {
	l.order.Remove(el)
	delete(l.items, el.Value.(*localItem).key)
}
