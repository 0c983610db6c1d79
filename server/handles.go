package server

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chazu/weft/advice"
)

// handle is a server-side reference to a resolved donor.
type handle struct {
	id       string
	key      string
	advice   *advice.Advice
	created  time.Time
	lastUsed time.Time
}

// HandleStore maps opaque string IDs to resolved advice. Resolving the
// same donor bytes with the same markers twice returns the same handle.
type HandleStore struct {
	mu      sync.RWMutex
	handles map[string]*handle
	byKey   map[string]string
	nextID  atomic.Uint64
}

// NewHandleStore creates a new handle store.
func NewHandleStore() *HandleStore {
	return &HandleStore{
		handles: make(map[string]*handle),
		byKey:   make(map[string]string),
	}
}

// DonorKey identifies a donor resolution.
func DonorKey(donor []byte, markers advice.Markers) string {
	h := sha256.New()
	h.Write(donor)
	h.Write([]byte{0})
	h.Write([]byte(markers.WithDefaults().String()))
	return hex.EncodeToString(h.Sum(nil))
}

// Find returns the handle already registered under key.
func (s *HandleStore) Find(key string) (string, *advice.Advice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key]
	if !ok {
		return "", nil, false
	}
	h := s.handles[id]
	h.lastUsed = time.Now()
	return id, h.advice, true
}

// Create registers advice under key and returns an opaque handle ID. If the
// key is already registered, the existing handle is returned.
func (s *HandleStore) Create(key string, a *advice.Advice) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[key]; ok {
		s.handles[id].lastUsed = time.Now()
		return id
	}
	id := fmt.Sprintf("a-%d", s.nextID.Add(1))
	now := time.Now()
	s.handles[id] = &handle{
		id:       id,
		key:      key,
		advice:   a,
		created:  now,
		lastUsed: now,
	}
	s.byKey[key] = id
	return id
}

// Lookup retrieves the advice for a handle.
func (s *HandleStore) Lookup(id string) (*advice.Advice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[id]
	if !ok {
		return nil, false
	}
	h.lastUsed = time.Now()
	return h.advice, true
}

// Release removes a handle. It reports whether the handle existed.
func (s *HandleStore) Release(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[id]
	if !ok {
		return false
	}
	delete(s.byKey, h.key)
	delete(s.handles, id)
	return true
}

// Len returns the number of live handles.
func (s *HandleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

// Sweep removes handles that haven't been accessed within the TTL.
func (s *HandleStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, h := range s.handles {
		if h.lastUsed.Before(cutoff) {
			delete(s.byKey, h.key)
			delete(s.handles, id)
			removed++
		}
	}
	if removed > 0 {
		log.Debugf("swept %d idle donor handles", removed)
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *HandleStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
