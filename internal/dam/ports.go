package dam

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrNotFound is returned when no dam exists for the requested id.
	ErrNotFound = errors.New("dam not found")
	// ErrDuplicateID is returned when inserting a dam whose id is taken.
	ErrDuplicateID = errors.New("dam id already exists")
	// ErrStore wraps failures of the persistence layer.
	ErrStore = errors.New("store failure")
	// ErrInvalidThresholds is returned by strict threshold validation.
	ErrInvalidThresholds = errors.New("invalid thresholds")
	// ErrInvalidReading is returned by strict reading validation.
	ErrInvalidReading = errors.New("invalid reading")
)

// Store is the contract for the Reading Store. Implementations must return
// copies: mutating a returned Entity never affects stored state.
type Store interface {
	FindByID(ctx context.Context, id string) (Entity, error)
	ListAll(ctx context.Context) ([]Entity, error)
	AppendReading(ctx context.Context, id string, r Reading) (Entity, error)
	UpdateThresholds(ctx context.Context, id string, safetyThreshold, criticalLevel float64) (Entity, error)

	// Mutate runs fn on a private copy of the entity while holding that
	// entity's lock. The copy replaces stored state only if fn returns nil.
	Mutate(ctx context.Context, id string, fn func(*Entity) error) (Entity, error)

	Count(ctx context.Context) (int, error)
	Insert(ctx context.Context, e Entity) error
}

// PredictionInput is what the ingestion flow hands to the prediction gateway.
// A nil Readings slice or a nil CurrentLevel are rejected by the gateway.
type PredictionInput struct {
	Readings        []Reading
	CurrentLevel    *float64
	FlowRate        *float64
	Precipitation   *float64
	SafetyThreshold float64
	CriticalLevel   float64
}

// Prediction is the validated reply of the prediction service.
type Prediction struct {
	Predictions     []json.RawMessage `json:"predictions"`
	Recommendations json.RawMessage   `json:"recommendations"`

	// Body is the complete upstream reply. When set it is what gets
	// serialized, so fields beyond the two above reach the client.
	Body json.RawMessage `json:"-"`
}

// MarshalJSON writes Body when present, otherwise the validated fields.
func (p Prediction) MarshalJSON() ([]byte, error) {
	if len(p.Body) > 0 {
		return p.Body, nil
	}
	type fields Prediction
	return json.Marshal(fields(p))
}

// Predictor abstracts the external prediction service.
type Predictor interface {
	RequestPrediction(ctx context.Context, in *PredictionInput) (Prediction, error)
}

// AlertSink receives status changes after they are committed.
type AlertSink interface {
	Publish(ctx context.Context, change StatusChange) error
}

// ReadingArchive receives every committed reading.
type ReadingArchive interface {
	Archive(ctx context.Context, e Entity, r Reading) error
}

// Recorder observes ingestion outcomes and status changes. It is satisfied by
// the metrics package.
type Recorder interface {
	ObserveIngest(damID string, status string, outcome string)
	SetDamStatus(damID string, status Status)
}
