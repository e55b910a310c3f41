package store

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/dam-monitoring/internal/dam"
)

// DefaultDams returns the dams seeded into an empty store, each with
// readingCount hourly synthetic readings ending at now.
func DefaultDams(readingCount int, now time.Time, rng *rand.Rand) []dam.Entity {
	return []dam.Entity{
		{
			ID:              "1",
			Name:            "Highland Reservoir",
			Location:        dam.NewPoint(-122.4194, 37.7749),
			Capacity:        1000000,
			CurrentLevel:    800000,
			SafetyThreshold: 850000,
			CriticalLevel:   950000,
			Readings:        syntheticReadings(readingCount, now, rng),
			Status:          dam.StatusNormal,
			LastUpdated:     now,
		},
		{
			ID:              "2",
			Name:            "Valley Dam",
			Location:        dam.NewPoint(-122.2711, 37.8044),
			Capacity:        750000,
			CurrentLevel:    600000,
			SafetyThreshold: 650000,
			CriticalLevel:   700000,
			Readings:        syntheticReadings(readingCount, now, rng),
			Status:          dam.StatusNormal,
			LastUpdated:     now,
		},
	}
}

// SeedIfEmpty inserts DefaultDams when the store holds no dams yet.
func SeedIfEmpty(ctx context.Context, s dam.Store, readingCount int) error {
	count, err := s.Count(ctx)
	if err != nil {
		return fmt.Errorf("count dams: %w", err)
	}
	if count > 0 {
		log.Printf("INFO: store already holds %d dams; skipping seed", count)
		return nil
	}

	now := time.Now().UTC()
	rng := rand.New(rand.NewSource(now.UnixNano()))
	for _, d := range DefaultDams(readingCount, now, rng) {
		if err := s.Insert(ctx, d); err != nil {
			return fmt.Errorf("seed dam %s: %w", d.ID, err)
		}
	}
	log.Printf("INFO: sample dam data seeded successfully")
	return nil
}

func syntheticReadings(count int, now time.Time, rng *rand.Rand) []dam.Reading {
	readings := make([]dam.Reading, 0, count)
	for i := 0; i < count; i++ {
		readings = append(readings, dam.Reading{
			ID:            uuid.NewString(),
			Timestamp:     now.Add(-time.Duration(count-i) * time.Hour),
			WaterLevel:    75 + rng.Float64()*10,
			FlowRate:      100 + rng.Float64()*20,
			ReleaseRate:   90 + rng.Float64()*15,
			Precipitation: rng.Float64() * 5,
		})
	}
	return readings
}
