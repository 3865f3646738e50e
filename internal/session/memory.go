package session

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	id       string
	messages []Message
	lastSeen time.Time
}

// MemoryStore keeps sessions in process memory with an LRU bound, an idle TTL
// and a per-session sliding window. Expired sessions are dropped lazily.
type MemoryStore struct {
	mu        sync.Mutex
	retention Retention
	order     *list.List // front = most recently used
	entries   map[string]*list.Element
	now       func() time.Time
}

func NewMemoryStore(r Retention) *MemoryStore {
	return &MemoryStore{
		retention: r,
		order:     list.New(),
		entries:   make(map[string]*list.Element),
		now:       time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) ([]Message, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.lookup(id)
	if !ok {
		return []Message{}, nil
	}
	entry := el.Value.(*memoryEntry)
	entry.lastSeen = s.now()
	s.order.MoveToFront(el)
	return clone(entry.messages), nil
}

func (s *MemoryStore) Append(_ context.Context, id string, msgs ...Message) ([]Message, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.lookup(id)
	if !ok {
		el = s.order.PushFront(&memoryEntry{id: id})
		s.entries[id] = el
	}
	entry := el.Value.(*memoryEntry)
	entry.messages = trimWindow(append(entry.messages, msgs...), s.retention.MaxMessages)
	entry.lastSeen = s.now()
	s.order.MoveToFront(el)

	s.evictOverflow()
	return clone(entry.messages), nil
}

func (s *MemoryStore) Evict(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(id)
	return nil
}

// Len reports how many sessions are currently held, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) lookup(id string) (*list.Element, bool) {
	el, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	if ttl := s.retention.TTL; ttl > 0 && s.now().Sub(el.Value.(*memoryEntry).lastSeen) > ttl {
		s.remove(id)
		return nil, false
	}
	return el, true
}

func (s *MemoryStore) evictOverflow() {
	if s.retention.MaxSessions <= 0 {
		return
	}
	for len(s.entries) > s.retention.MaxSessions {
		oldest := s.order.Back()
		if oldest == nil {
			return
		}
		s.remove(oldest.Value.(*memoryEntry).id)
	}
}

func (s *MemoryStore) remove(id string) {
	if el, ok := s.entries[id]; ok {
		s.order.Remove(el)
		delete(s.entries, id)
	}
}

func clone(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
