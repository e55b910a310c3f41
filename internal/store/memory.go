package store

import (
	"context"
	"sync"
	"time"

	"github.com/i474232898/dam-monitoring/internal/dam"
)

// entry holds one dam. write serializes mutations for the whole of Mutate,
// including fn; mu only guards the committed entity, so readers never wait
// on a mutation in progress.
type entry struct {
	write  sync.Mutex
	mu     sync.RWMutex
	entity dam.Entity
}

func (en *entry) snapshot() dam.Entity {
	en.mu.RLock()
	defer en.mu.RUnlock()
	return en.entity.Clone()
}

func (en *entry) commit(e dam.Entity) {
	en.mu.Lock()
	en.entity = e
	en.mu.Unlock()
}

// MemoryStore is a concurrency-safe in-memory implementation of dam.Store.
// The store lock guards the map only; each dam has its own lock so writers
// to different dams never contend.
type MemoryStore struct {
	mu sync.RWMutex

	// key: dam id
	data  map[string]*entry
	order []string

	// retention configuration
	maxReadings int // max number of readings per dam (0 = unlimited)

	now func() time.Time
}

var _ dam.Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new MemoryStore.
// If maxReadings is <= 0, reading history is unbounded.
func NewMemoryStore(maxReadings int) *MemoryStore {
	return &MemoryStore{
		data:        make(map[string]*entry),
		maxReadings: maxReadings,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Insert adds a new dam. Ids are unique for the lifetime of the store.
func (s *MemoryStore) Insert(_ context.Context, e dam.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[e.ID]; ok {
		return dam.ErrDuplicateID
	}
	s.data[e.ID] = &entry{entity: e.Clone()}
	s.order = append(s.order, e.ID)
	return nil
}

// Count returns the number of stored dams.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

// FindByID returns a copy of the dam with the given id.
func (s *MemoryStore) FindByID(_ context.Context, id string) (dam.Entity, error) {
	en, ok := s.lookup(id)
	if !ok {
		return dam.Entity{}, dam.ErrNotFound
	}

	return en.snapshot(), nil
}

// ListAll returns copies of every dam in insertion order.
func (s *MemoryStore) ListAll(_ context.Context) ([]dam.Entity, error) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.data[id])
	}
	s.mu.RUnlock()

	result := make([]dam.Entity, 0, len(entries))
	for _, en := range entries {
		result = append(result, en.snapshot())
	}
	return result, nil
}

// AppendReading appends r, mirrors its water level into currentLevel and
// stamps lastUpdated. It does not reclassify.
func (s *MemoryStore) AppendReading(ctx context.Context, id string, r dam.Reading) (dam.Entity, error) {
	return s.Mutate(ctx, id, func(e *dam.Entity) error {
		e.Append(r, s.now())
		return nil
	})
}

// UpdateThresholds replaces both thresholds without cross-validation.
func (s *MemoryStore) UpdateThresholds(ctx context.Context, id string, safetyThreshold, criticalLevel float64) (dam.Entity, error) {
	return s.Mutate(ctx, id, func(e *dam.Entity) error {
		e.SafetyThreshold = safetyThreshold
		e.CriticalLevel = criticalLevel
		return nil
	})
}

// Mutate applies fn to a copy of the dam under the dam's write lock and
// stores the copy if fn succeeds. fn's error is returned unchanged. Readers
// see the previous committed state until then.
func (s *MemoryStore) Mutate(ctx context.Context, id string, fn func(*dam.Entity) error) (dam.Entity, error) {
	en, ok := s.lookup(id)
	if !ok {
		return dam.Entity{}, dam.ErrNotFound
	}

	en.write.Lock()
	defer en.write.Unlock()

	if err := ctx.Err(); err != nil {
		return dam.Entity{}, err
	}

	working := en.snapshot()
	if err := fn(&working); err != nil {
		return dam.Entity{}, err
	}

	// Enforce retention by count.
	if s.maxReadings > 0 && len(working.Readings) > s.maxReadings {
		over := len(working.Readings) - s.maxReadings
		working.Readings = append([]dam.Reading(nil), working.Readings[over:]...)
	}

	en.commit(working.Clone())
	return working, nil
}

func (s *MemoryStore) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	en, ok := s.data[id]
	return en, ok
}
