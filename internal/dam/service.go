package dam

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// CommitMode decides what happens to an appended reading when the
// prediction call fails.
type CommitMode string

const (
	// CommitAlways persists the reading before the prediction call; a
	// failed prediction fails the request but the reading stays.
	CommitAlways CommitMode = "commit"
	// CommitTransaction runs the prediction inside the entity mutation; a
	// failed prediction discards the appended reading.
	CommitTransaction CommitMode = "transaction"
)

// DefaultWindow is the number of trailing readings sent for prediction.
const DefaultWindow = 24

// unknownDam labels outcomes for ids that were never resolved against the
// store. Client supplied ids are not used as metric labels.
const unknownDam = "unknown"

// Options configures a Service. Zero values give the permissive,
// commit-always behavior.
type Options struct {
	Mode             CommitMode
	Window           int
	StrictReadings   bool
	StrictThresholds bool

	Alerts   AlertSink
	Archive  ReadingArchive
	Recorder Recorder

	Now   func() time.Time
	NewID func() string
}

// IngestResult is the combined reply of a successful ingestion.
type IngestResult struct {
	Dam        Entity     `json:"dam"`
	Prediction Prediction `json:"prediction"`
}

// Service orchestrates the reading store, the classifier and the prediction gateway.
type Service struct {
	store     Store
	predictor Predictor
	opts      Options
	validate  *validator.Validate
}

// NewService creates a new Service.
func NewService(store Store, predictor Predictor, opts Options) *Service {
	if opts.Mode == "" {
		opts.Mode = CommitAlways
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Service{
		store:     store,
		predictor: predictor,
		opts:      opts,
		validate:  validator.New(),
	}
}

// List delegates to the underlying store.
func (s *Service) List(ctx context.Context) ([]Entity, error) {
	return s.store.ListAll(ctx)
}

// Get delegates to the underlying store.
func (s *Service) Get(ctx context.Context, id string) (Entity, error) {
	return s.store.FindByID(ctx, id)
}

// Summary aggregates every dam into a dashboard view.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	all, err := s.store.ListAll(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(all, s.opts.Now()), nil
}

// Ingest appends a reading to dam id, reclassifies it and asks the
// prediction service for a forecast based on the trailing window.
func (s *Service) Ingest(ctx context.Context, id string, in ReadingInput) (IngestResult, error) {
	if s.opts.StrictReadings {
		if err := s.validate.Struct(in); err != nil {
			s.record(unknownDam, "", "invalid")
			return IngestResult{}, fmt.Errorf("%w: %v", ErrInvalidReading, err)
		}
	}

	reading := in.Reading(s.opts.NewID())

	var (
		before     Status
		prediction Prediction
		predErr    error
		known      = unknownDam
	)
	apply := func(e *Entity) error {
		known = e.ID
		before = e.Status
		e.Append(reading, s.opts.Now())
		e.Reclassify()
		if s.opts.Mode != CommitTransaction {
			return nil
		}
		prediction, predErr = s.predictor.RequestPrediction(ctx, s.predictionInput(*e, in))
		return predErr
	}

	updated, err := s.store.Mutate(ctx, id, apply)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			s.record(unknownDam, "", "not_found")
		case predErr != nil:
			log.Printf("ERROR: prediction failed for dam %s, reading discarded: %v", id, err)
			s.record(known, "", "prediction_failed")
		default:
			s.record(known, "", "store_failed")
		}
		return IngestResult{}, err
	}

	s.afterCommit(ctx, before, updated)

	if s.opts.Mode != CommitTransaction {
		prediction, err = s.predictor.RequestPrediction(ctx, s.predictionInput(updated, in))
		if err != nil {
			// The reading is already committed at this point.
			log.Printf("ERROR: prediction failed for dam %s after reading was stored: %v", id, err)
			s.record(updated.ID, string(updated.Status), "prediction_failed")
			return IngestResult{}, err
		}
	}

	s.record(updated.ID, string(updated.Status), "ok")
	return IngestResult{Dam: updated, Prediction: prediction}, nil
}

// UpdateThresholds replaces both thresholds and reclassifies the dam in the
// same mutation.
func (s *Service) UpdateThresholds(ctx context.Context, id string, in ThresholdInput) (Entity, error) {
	if s.opts.StrictThresholds {
		if err := s.validate.Struct(in); err != nil {
			return Entity{}, fmt.Errorf("%w: %v", ErrInvalidThresholds, err)
		}
	}

	var before Status
	updated, err := s.store.Mutate(ctx, id, func(e *Entity) error {
		before = e.Status
		e.SafetyThreshold = in.SafetyThreshold
		e.CriticalLevel = in.CriticalLevel
		e.Reclassify()
		return nil
	})
	if err != nil {
		return Entity{}, err
	}

	if s.opts.Recorder != nil {
		s.opts.Recorder.SetDamStatus(updated.ID, updated.Status)
	}
	if before != updated.Status {
		s.publish(ctx, before, updated)
	}
	return updated, nil
}

// SetAddress records a resolved postal address for a dam.
func (s *Service) SetAddress(ctx context.Context, id, address string) (Entity, error) {
	return s.store.Mutate(ctx, id, func(e *Entity) error {
		e.Address = address
		return nil
	})
}

func (s *Service) predictionInput(e Entity, in ReadingInput) *PredictionInput {
	return &PredictionInput{
		Readings:        e.Window(s.opts.Window),
		CurrentLevel:    in.WaterLevel,
		FlowRate:        in.FlowRate,
		Precipitation:   in.Precipitation,
		SafetyThreshold: e.SafetyThreshold,
		CriticalLevel:   e.CriticalLevel,
	}
}

func (s *Service) afterCommit(ctx context.Context, before Status, e Entity) {
	if before != e.Status {
		s.publish(ctx, before, e)
	}
	if s.opts.Archive != nil && len(e.Readings) > 0 {
		last := e.Readings[len(e.Readings)-1]
		if err := s.opts.Archive.Archive(ctx, e, last); err != nil {
			log.Printf("ERROR: archive reading %s for dam %s: %v", last.ID, e.ID, err)
		}
	}
}

func (s *Service) publish(ctx context.Context, from Status, e Entity) {
	log.Printf("INFO: dam %s status %s -> %s (level %.2f)", e.ID, from, e.Status, e.CurrentLevel)
	if s.opts.Alerts == nil {
		return
	}
	change := StatusChange{
		ID:              s.opts.NewID(),
		DamID:           e.ID,
		DamName:         e.Name,
		From:            from,
		To:              e.Status,
		Level:           e.CurrentLevel,
		SafetyThreshold: e.SafetyThreshold,
		CriticalLevel:   e.CriticalLevel,
		At:              s.opts.Now(),
	}
	if err := s.opts.Alerts.Publish(ctx, change); err != nil {
		log.Printf("ERROR: publish status change for dam %s: %v", e.ID, err)
	}
}

func (s *Service) record(id, status, outcome string) {
	if s.opts.Recorder != nil {
		s.opts.Recorder.ObserveIngest(id, status, outcome)
	}
}
