package geo

import (
	"context"
	"errors"
	"testing"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/dam-monitoring/internal/dam"
	"github.com/i474232898/dam-monitoring/internal/store"
)

type nopPredictor struct{}

func (nopPredictor) RequestPrediction(context.Context, *dam.PredictionInput) (dam.Prediction, error) {
	return dam.Prediction{}, nil
}

func TestBackfill(t *testing.T) {
	orig := reverse
	defer func() { reverse = orig }()

	reverse = func(lat, lon float64) ([]geocoder.Address, error) {
		if lat > 37.8 {
			return nil, errors.New("quota exceeded")
		}
		return []geocoder.Address{{City: "San Francisco", State: "CA", Country: "United States"}}, nil
	}

	ctx := context.Background()
	s := store.NewMemoryStore(0)
	if err := store.SeedIfEmpty(ctx, s, 1); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := dam.NewService(s, nopPredictor{}, dam.Options{})

	if err := Backfill(ctx, NewResolver("test-key"), svc); err != nil {
		t.Fatalf("backfill: %v", err)
	}

	highland, _ := svc.Get(ctx, "1")
	if highland.Address == "" {
		t.Fatal("expected address for Highland Reservoir")
	}
	valley, _ := svc.Get(ctx, "2")
	if valley.Address != "" {
		t.Fatalf("failed lookup must leave address empty, got %q", valley.Address)
	}
}

func TestReverseNoResults(t *testing.T) {
	orig := reverse
	defer func() { reverse = orig }()
	reverse = func(float64, float64) ([]geocoder.Address, error) { return nil, nil }

	if _, err := NewResolver("k").Reverse(1, 2); !errors.Is(err, errNoAddress) {
		t.Fatalf("expected errNoAddress, got %v", err)
	}
}
