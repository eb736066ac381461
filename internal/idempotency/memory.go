package idempotency

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryStore keeps outcomes in process. Entries expire after the TTL and,
// once MaxEntries is reached, the oldest entry is evicted.
type MemoryStore struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	order   *list.List
	entries map[string]*list.Element
}

type memEntry struct {
	key     string
	outcome Outcome
	expires time.Time
}

func NewMemoryStore(ttl time.Duration, maxEntries int) *MemoryStore {
	return &MemoryStore{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	e := el.Value.(*memEntry)
	if !m.now().Before(e.expires) {
		m.remove(el)
		return nil, nil
	}
	o := Outcome{Status: e.outcome.Status, Body: append([]byte(nil), e.outcome.Body...)}
	return &o, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, o Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[key]; ok {
		m.remove(el)
	}
	e := &memEntry{
		key:     key,
		outcome: Outcome{Status: o.Status, Body: append([]byte(nil), o.Body...)},
		expires: m.now().Add(m.ttl),
	}
	m.entries[key] = m.order.PushBack(e)

	for m.maxEntries > 0 && m.order.Len() > m.maxEntries {
		m.remove(m.order.Front())
	}
	return nil
}

func (m *MemoryStore) Purge(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var n int64
	for el := m.order.Front(); el != nil; {
		next := el.Next()
		if !now.Before(el.Value.(*memEntry).expires) {
			m.remove(el)
			n++
		}
		el = next
	}
	return n, nil
}

// Len returns the number of entries, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

func (m *MemoryStore) remove(el *list.Element) {
	m.order.Remove(el)
	delete(m.entries, el.Value.(*memEntry).key)
}
