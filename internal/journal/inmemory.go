package journal

import (
	"context"
	"sync"
)

const defaultPerSessionCap = 200

// InMemoryStore keeps a bounded per-session history in process.
type InMemoryStore struct {
	mu      sync.RWMutex
	cap     int
	records map[string][]CommandRecord
}

func NewInMemoryStore(perSessionCap int) *InMemoryStore {
	if perSessionCap <= 0 {
		perSessionCap = defaultPerSessionCap
	}
	return &InMemoryStore{cap: perSessionCap, records: make(map[string][]CommandRecord)}
}

func (s *InMemoryStore) SaveCommand(_ context.Context, record CommandRecord) error {
	record = prepare(record)
	s.mu.Lock()
	defer s.mu.Unlock()
	arr := append(s.records[record.SessionID], record)
	if len(arr) > s.cap {
		arr = append([]CommandRecord(nil), arr[len(arr)-s.cap:]...)
	}
	s.records[record.SessionID] = arr
	return nil
}

// RecentCommands returns up to limit records for sessionID, oldest first.
func (s *InMemoryStore) RecentCommands(_ context.Context, sessionID string, limit int) ([]CommandRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.records[sessionID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > len(arr) {
		limit = len(arr)
	}
	out := make([]CommandRecord, limit)
	copy(out, arr[len(arr)-limit:])
	return out, nil
}

func (s *InMemoryStore) Mode() string { return "in-memory" }

func (s *InMemoryStore) Close() error { return nil }
