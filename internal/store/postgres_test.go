package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/i474232898/dam-monitoring/internal/dam"
)

// These tests need a disposable PostgreSQL database.
func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set; skipping PostgreSQL store tests")
	}
	s, err := NewPostgresStore(context.Background(), url, 0)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestPostgresMutateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestPostgres(t)

	id := "test-" + uuid.NewString()
	e := dam.Entity{
		ID:              id,
		Name:            "Test Dam",
		Location:        dam.NewPoint(1, 2),
		Capacity:        100,
		CurrentLevel:    10,
		SafetyThreshold: 50,
		CriticalLevel:   80,
		Status:          dam.StatusNormal,
	}
	if err := s.Insert(ctx, e); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Insert(ctx, e); !errors.Is(err, dam.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	got, err := s.AppendReading(ctx, id, dam.Reading{ID: uuid.NewString(), WaterLevel: 60})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if got.CurrentLevel != 60 || len(got.Readings) != 1 {
		t.Fatalf("unexpected entity after append: %+v", got)
	}

	boom := errors.New("boom")
	_, err = s.Mutate(ctx, id, func(e *dam.Entity) error {
		e.Append(dam.Reading{ID: uuid.NewString(), WaterLevel: 99}, e.LastUpdated)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	stored, err := s.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(stored.Readings) != 1 || stored.CurrentLevel != 60 {
		t.Fatalf("rolled-back mutation persisted: %+v", stored)
	}

	if _, err := s.FindByID(ctx, "missing-"+uuid.NewString()); !errors.Is(err, dam.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
