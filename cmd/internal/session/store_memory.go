package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"authgate/cmd/internal/ids"
)

// MemoryDataStore is an in-process DataStore for development and tests.
// Sessions do not survive a restart.
type MemoryDataStore struct {
	now func() time.Time

	mu    sync.Mutex
	items map[string]memoryItem
}

type memoryItem struct {
	data    []byte
	expires time.Time
}

// NewMemoryDataStore returns an empty store. A nil clock means time.Now.
func NewMemoryDataStore(now func() time.Time) *MemoryDataStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryDataStore{now: now, items: make(map[string]memoryItem)}
}

func (m *MemoryDataStore) Create(_ context.Context, data map[string]json.RawMessage, expires time.Time) (string, error) {
	b, err := encodeData(data)
	if err != nil {
		return "", err
	}
	id, err := ids.NewULID(m.now())
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.items[id] = memoryItem{data: b, expires: expires}
	m.mu.Unlock()
	return id, nil
}

func (m *MemoryDataStore) Read(_ context.Context, id string) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	it, ok := m.items[id]
	if ok && !it.expires.After(m.now()) {
		delete(m.items, id)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return nil, nil
	}
	return decodeData(it.data)
}

func (m *MemoryDataStore) Update(_ context.Context, id string, data map[string]json.RawMessage, expires time.Time) error {
	b, err := encodeData(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.items[id] = memoryItem{data: b, expires: expires}
	m.mu.Unlock()
	return nil
}

func (m *MemoryDataStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryDataStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, it := range m.items {
		if !it.expires.After(now) {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions, expired or not.
func (m *MemoryDataStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
