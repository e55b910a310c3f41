package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/dam-monitoring/internal/dam"
)

func seededStore(t *testing.T, maxReadings int) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(maxReadings)
	if err := SeedIfEmpty(context.Background(), s, 24); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func TestSeedIfEmpty(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t, 0)

	dams, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(dams) != 2 {
		t.Fatalf("expected 2 seeded dams, got %d", len(dams))
	}
	if dams[0].Name != "Highland Reservoir" || dams[1].Name != "Valley Dam" {
		t.Fatalf("unexpected seed order: %q, %q", dams[0].Name, dams[1].Name)
	}
	for _, d := range dams {
		if len(d.Readings) != 24 {
			t.Fatalf("dam %s: expected 24 readings, got %d", d.ID, len(d.Readings))
		}
		for i := 1; i < len(d.Readings); i++ {
			if !d.Readings[i].Timestamp.After(d.Readings[i-1].Timestamp) {
				t.Fatalf("dam %s: readings not in chronological order", d.ID)
			}
		}
	}

	// Second seed is a no-op.
	if err := SeedIfEmpty(ctx, s, 24); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Fatalf("expected 2 dams after reseed, got %d", n)
	}
}

func TestInsertDuplicateID(t *testing.T) {
	s := seededStore(t, 0)
	err := s.Insert(context.Background(), dam.Entity{ID: "1"})
	if !errors.Is(err, dam.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestFindByIDNotFound(t *testing.T) {
	s := seededStore(t, 0)
	if _, err := s.FindByID(context.Background(), "missing"); !errors.Is(err, dam.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReturnedEntitiesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t, 0)

	got, _ := s.FindByID(ctx, "1")
	got.Readings[0].WaterLevel = -1
	got.Readings = append(got.Readings, dam.Reading{ID: "x"})
	got.Name = "changed"

	again, _ := s.FindByID(ctx, "1")
	if again.Name != "Highland Reservoir" || len(again.Readings) != 24 || again.Readings[0].WaterLevel == -1 {
		t.Fatal("mutating a returned entity changed stored state")
	}
}

func TestAppendReading(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t, 0)
	fixed := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	got, err := s.AppendReading(ctx, "2", dam.Reading{ID: "r1", WaterLevel: 680000})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if got.CurrentLevel != 680000 {
		t.Fatalf("expected currentLevel 680000, got %v", got.CurrentLevel)
	}
	if !got.LastUpdated.Equal(fixed) {
		t.Fatalf("expected lastUpdated %v, got %v", fixed, got.LastUpdated)
	}
	last := got.Readings[len(got.Readings)-1]
	if last.ID != "r1" || !last.Timestamp.Equal(fixed) {
		t.Fatalf("unexpected last reading: %+v", last)
	}
	// AppendReading alone does not reclassify.
	if got.Status != dam.StatusNormal {
		t.Fatalf("expected status untouched, got %q", got.Status)
	}
}

func TestUpdateThresholds(t *testing.T) {
	s := seededStore(t, 0)
	got, err := s.UpdateThresholds(context.Background(), "1", 10, 5)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.SafetyThreshold != 10 || got.CriticalLevel != 5 {
		t.Fatalf("thresholds not replaced: %+v", got)
	}
}

func TestMutateErrorLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t, 0)
	boom := errors.New("boom")

	_, err := s.Mutate(ctx, "1", func(e *dam.Entity) error {
		e.Append(dam.Reading{ID: "discard", WaterLevel: 1}, time.Now())
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error returned, got %v", err)
	}

	got, _ := s.FindByID(ctx, "1")
	if len(got.Readings) != 24 || got.CurrentLevel != 800000 {
		t.Fatalf("failed mutation leaked into store: %d readings, level %v", len(got.Readings), got.CurrentLevel)
	}
}

func TestRetentionByCount(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t, 10)

	got, err := s.AppendReading(ctx, "1", dam.Reading{ID: "newest", WaterLevel: 1})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(got.Readings) != 10 {
		t.Fatalf("expected 10 readings after trim, got %d", len(got.Readings))
	}
	if got.Readings[9].ID != "newest" {
		t.Fatalf("expected newest reading kept last, got %q", got.Readings[9].ID)
	}
}

func TestConcurrentAppendsAreSerialized(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t, 0)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.AppendReading(ctx, "1", dam.Reading{WaterLevel: 1})
		}()
		go func() {
			defer wg.Done()
			_, _ = s.AppendReading(ctx, "2", dam.Reading{WaterLevel: 2})
		}()
	}
	wg.Wait()

	for _, id := range []string{"1", "2"} {
		got, _ := s.FindByID(ctx, id)
		if len(got.Readings) != 24+n {
			t.Fatalf("dam %s: expected %d readings, got %d", id, 24+n, len(got.Readings))
		}
	}
}
