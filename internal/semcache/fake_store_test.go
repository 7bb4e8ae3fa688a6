package semcache

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errStoreDown = errors.New("store down")

// memStore is an in-memory RecordStore that records calls and can be told to fail.
type memStore struct {
	mu      sync.Mutex
	hashes  map[string]map[string]string
	expires map[string]time.Duration

	writes     int
	failHSet   bool
	failHMGet  bool
	failHGet   bool
	failExpire bool
}

func newMemStore() *memStore {
	return &memStore{
		hashes:  make(map[string]map[string]string),
		expires: make(map[string]time.Duration),
	}
}

func (m *memStore) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failHSet {
		return errStoreDown
	}
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	h[field] = value
	m.writes++
	return nil
}

func (m *memStore) HMGet(_ context.Context, key string, fields ...string) ([]*string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failHMGet {
		return nil, errStoreDown
	}
	out := make([]*string, len(fields))
	for i, f := range fields {
		if v, ok := m.hashes[key][f]; ok {
			out[i] = &v
		}
	}
	return out, nil
}

func (m *memStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failHGet {
		return nil, errStoreDown
	}
	out := make(map[string]string, len(m.hashes[key]))
	for f, v := range m.hashes[key] {
		out[f] = v
	}
	return out, nil
}

func (m *memStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hashes, key)
	delete(m.expires, key)
	return nil
}

func (m *memStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failExpire {
		return errStoreDown
	}
	m.expires[key] = ttl
	return nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close() error               { return nil }

func (m *memStore) set(key, field, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hashes[key] == nil {
		m.hashes[key] = make(map[string]string)
	}
	m.hashes[key][field] = value
}

func (m *memStore) remove(key, field string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hashes[key], field)
}

func (m *memStore) len(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hashes[key])
}
