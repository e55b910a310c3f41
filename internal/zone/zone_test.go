package zone

import (
	"context"
	"errors"
	"math"
	"testing"
)

func val(v float64) *float64 { return &v }

func TestSeed(t *testing.T) {
	s := NewService()
	s.Seed()
	s.Seed()

	zones := s.List(context.Background())
	if len(zones) != 2 {
		t.Fatalf("expected 2 zones, got %d", len(zones))
	}
	if zones[0].ID == "" || zones[0].ID == zones[1].ID {
		t.Fatalf("expected distinct generated ids, got %q and %q", zones[0].ID, zones[1].ID)
	}
}

func TestAddReadingTrend(t *testing.T) {
	ctx := context.Background()
	s := NewService()
	z := s.Add(Zone{Name: "Test", CurrentEnergy: Current{Value: 100}})

	got, err := s.AddReading(ctx, z.ID, ReadingInput{EnergyValue: val(150), WaterValue: val(40)})
	if err != nil {
		t.Fatalf("add reading: %v", err)
	}
	if got.CurrentEnergy.Value != 150 || math.Abs(got.CurrentEnergy.Trend-50) > 1e-9 {
		t.Fatalf("unexpected energy: %+v", got.CurrentEnergy)
	}
	// Previous water value was 0, so no trend.
	if got.CurrentWater.Value != 40 || got.CurrentWater.Trend != 0 {
		t.Fatalf("unexpected water: %+v", got.CurrentWater)
	}

	got, err = s.AddReading(ctx, z.ID, ReadingInput{EnergyValue: val(75), WaterValue: val(50)})
	if err != nil {
		t.Fatalf("add reading: %v", err)
	}
	if math.Abs(got.CurrentEnergy.Trend-(-50)) > 1e-9 || math.Abs(got.CurrentWater.Trend-25) > 1e-9 {
		t.Fatalf("unexpected trends: energy %v water %v", got.CurrentEnergy.Trend, got.CurrentWater.Trend)
	}
	if len(got.Readings) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(got.Readings))
	}
}

func TestAddReadingErrors(t *testing.T) {
	ctx := context.Background()
	s := NewService()
	z := s.Add(Zone{Name: "Test"})

	if _, err := s.AddReading(ctx, "missing", ReadingInput{EnergyValue: val(1), WaterValue: val(1)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.AddReading(ctx, z.ID, ReadingInput{EnergyValue: val(1)}); !errors.Is(err, ErrInvalidReading) {
		t.Fatalf("expected ErrInvalidReading, got %v", err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
