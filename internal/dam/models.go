package dam

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Status is the severity derived from a dam's current level.
type Status string

const (
	StatusNormal   Status = "normal"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Severity orders statuses from least (0) to most (2) severe.
func (s Status) Severity() int {
	switch s {
	case StatusCritical:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// Point is a GeoJSON point; Coordinates are [longitude, latitude].
type Point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// NewPoint builds a GeoJSON point from longitude and latitude.
func NewPoint(lon, lat float64) Point {
	return Point{Type: "Point", Coordinates: [2]float64{lon, lat}}
}

func (p Point) Lon() float64 { return p.Coordinates[0] }
func (p Point) Lat() float64 { return p.Coordinates[1] }

// Reading is one measurement appended to a dam's history.
// Readings are kept in append order and never modified after append.
type Reading struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	WaterLevel    float64   `json:"waterLevel"`
	FlowRate      float64   `json:"flowRate"`
	ReleaseRate   float64   `json:"releaseRate"`
	Precipitation float64   `json:"precipitation"`
}

// Entity is a monitored dam.
type Entity struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Location        Point     `json:"location"`
	Address         string    `json:"address,omitempty"`
	Capacity        float64   `json:"capacity"`
	CurrentLevel    float64   `json:"currentLevel"`
	SafetyThreshold float64   `json:"safetyThreshold"`
	CriticalLevel   float64   `json:"criticalLevel"`
	Readings        []Reading `json:"readings"`
	Status          Status    `json:"status"`
	LastUpdated     time.Time `json:"lastUpdated"`
}

// Clone returns a deep copy so callers never share the readings slice.
func (e Entity) Clone() Entity {
	out := e
	out.Readings = make([]Reading, len(e.Readings))
	copy(out.Readings, e.Readings)
	return out
}

// Append adds r to the history and mirrors its water level into CurrentLevel.
func (e *Entity) Append(r Reading, now time.Time) {
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	e.Readings = append(e.Readings, r)
	e.CurrentLevel = r.WaterLevel
	e.LastUpdated = now
}

// Reclassify recomputes Status from CurrentLevel and the thresholds.
func (e *Entity) Reclassify() {
	e.Status = Classify(e.CurrentLevel, e.SafetyThreshold, e.CriticalLevel)
}

// Window returns a copy of the trailing n readings (all of them if n <= 0).
func (e Entity) Window(n int) []Reading {
	start := 0
	if n > 0 && len(e.Readings) > n {
		start = len(e.Readings) - n
	}
	out := make([]Reading, len(e.Readings)-start)
	copy(out, e.Readings[start:])
	return out
}

// ReadingInput is the permissive body of an ingestion request.
// Pointer fields distinguish "missing" from zero; the validate tags are only
// applied when strict reading validation is enabled.
type ReadingInput struct {
	WaterLevel    *float64 `json:"waterLevel" validate:"required,gte=0"`
	FlowRate      *float64 `json:"flowRate" validate:"required,gte=0"`
	ReleaseRate   *float64 `json:"releaseRate" validate:"required,gte=0"`
	Precipitation *float64 `json:"precipitation" validate:"omitempty,gte=0"`
}

// UnmarshalJSON accepts numbers and numeric strings. Any other value,
// null included, leaves the field missing instead of failing the decode.
func (in *ReadingInput) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*in = ReadingInput{
		WaterLevel:    looseNumber(raw["waterLevel"]),
		FlowRate:      looseNumber(raw["flowRate"]),
		ReleaseRate:   looseNumber(raw["releaseRate"]),
		Precipitation: looseNumber(raw["precipitation"]),
	}
	return nil
}

func looseNumber(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return &f
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Reading converts the input, storing missing numbers as zero.
func (in ReadingInput) Reading(id string) Reading {
	return Reading{
		ID:            id,
		WaterLevel:    deref(in.WaterLevel),
		FlowRate:      deref(in.FlowRate),
		ReleaseRate:   deref(in.ReleaseRate),
		Precipitation: deref(in.Precipitation),
	}
}

// ThresholdInput is the body of an administrative threshold update.
type ThresholdInput struct {
	SafetyThreshold float64 `json:"safetyThreshold" validate:"gt=0"`
	CriticalLevel   float64 `json:"criticalLevel" validate:"gt=0,gtefield=SafetyThreshold"`
}

// StatusChange is emitted when a classification moves a dam to a new status.
type StatusChange struct {
	ID              string    `json:"id"`
	DamID           string    `json:"damId"`
	DamName         string    `json:"damName"`
	From            Status    `json:"from"`
	To              Status    `json:"to"`
	Level           float64   `json:"level"`
	SafetyThreshold float64   `json:"safetyThreshold"`
	CriticalLevel   float64   `json:"criticalLevel"`
	At              time.Time `json:"at"`
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
