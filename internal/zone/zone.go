// Package zone tracks energy and water readings per service zone.
package zone

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("zone not found")
	ErrInvalidReading = errors.New("invalid zone reading")
)

// Reading is one energy/water sample for a zone.
type Reading struct {
	Timestamp   time.Time `json:"timestamp"`
	EnergyValue float64   `json:"energyValue"`
	WaterValue  float64   `json:"waterValue"`
}

// Current is the latest value and its percentage change against the previous one.
type Current struct {
	Value float64 `json:"value"`
	Trend float64 `json:"trend"`
}

// Zone is a monitored area with its latest values and history.
type Zone struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Readings      []Reading `json:"readings"`
	CurrentEnergy Current   `json:"currentEnergy"`
	CurrentWater  Current   `json:"currentWater"`
}

func (z Zone) clone() Zone {
	out := z
	out.Readings = append([]Reading(nil), z.Readings...)
	if out.Readings == nil {
		out.Readings = []Reading{}
	}
	return out
}

// ReadingInput is the body of a zone reading request.
type ReadingInput struct {
	EnergyValue *float64 `json:"energyValue" validate:"required"`
	WaterValue  *float64 `json:"waterValue" validate:"required"`
}

// trend is the change from prev to next in percent; 0 when prev is 0.
func trend(prev, next float64) float64 {
	if prev == 0 {
		return 0
	}
	return (next - prev) / prev * 100
}

type entry struct {
	mu   sync.Mutex
	zone Zone
}

// Service keeps zones in memory with one lock per zone.
type Service struct {
	mu       sync.RWMutex
	zones    map[string]*entry
	order    []string
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates an empty zone service.
func NewService() *Service {
	return &Service{
		zones:    make(map[string]*entry),
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Add registers a zone and returns it with a generated id when it has none.
func (s *Service) Add(z Zone) Zone {
	if z.ID == "" {
		z.ID = uuid.NewString()
	}
	z = z.clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[z.ID]; !ok {
		s.order = append(s.order, z.ID)
	}
	s.zones[z.ID] = &entry{zone: z}
	return z.clone()
}

// Seed adds the default zones when none exist.
func (s *Service) Seed() {
	s.mu.RLock()
	empty := len(s.zones) == 0
	s.mu.RUnlock()
	if !empty {
		return
	}

	s.Add(Zone{
		Name:          "North Zone",
		Description:   "Residential and agricultural supply downstream of Highland Reservoir",
		CurrentEnergy: Current{Value: 1200},
		CurrentWater:  Current{Value: 850},
	})
	s.Add(Zone{
		Name:          "South Zone",
		Description:   "Industrial supply fed by Valley Dam",
		CurrentEnergy: Current{Value: 2100},
		CurrentWater:  Current{Value: 640},
	})
}

// List returns copies of every zone in insertion order.
func (s *Service) List(_ context.Context) []Zone {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.zones[id])
	}
	s.mu.RUnlock()

	out := make([]Zone, 0, len(entries))
	for _, en := range entries {
		en.mu.Lock()
		out = append(out, en.zone.clone())
		en.mu.Unlock()
	}
	return out
}

// Get returns the zone with the given id or ErrNotFound.
func (s *Service) Get(_ context.Context, id string) (Zone, error) {
	en, ok := s.lookup(id)
	if !ok {
		return Zone{}, ErrNotFound
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.zone.clone(), nil
}

// AddReading appends a reading and updates current values and trends.
func (s *Service) AddReading(_ context.Context, id string, in ReadingInput) (Zone, error) {
	en, ok := s.lookup(id)
	if !ok {
		return Zone{}, ErrNotFound
	}
	if err := s.validate.Struct(in); err != nil {
		return Zone{}, fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}

	energy, water := *in.EnergyValue, *in.WaterValue

	en.mu.Lock()
	defer en.mu.Unlock()

	z := &en.zone
	z.Readings = append(z.Readings, Reading{Timestamp: s.now(), EnergyValue: energy, WaterValue: water})
	z.CurrentEnergy = Current{Value: energy, Trend: trend(z.CurrentEnergy.Value, energy)}
	z.CurrentWater = Current{Value: water, Trend: trend(z.CurrentWater.Value, water)}
	return z.clone(), nil
}

func (s *Service) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	en, ok := s.zones[id]
	return en, ok
}
