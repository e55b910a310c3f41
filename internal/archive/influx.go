// Package archive writes committed readings to InfluxDB for long-term analysis.
package archive

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/i474232898/dam-monitoring/internal/dam"
)

const measurement = "dam_reading"

// InfluxConfig holds the InfluxDB connection settings.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Influx implements dam.ReadingArchive.
type Influx struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

var _ dam.ReadingArchive = (*Influx)(nil)

// NewInflux creates an archive writing to the configured bucket.
func NewInflux(cfg InfluxConfig) (*Influx, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx config incomplete")
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Influx{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

// Archive writes r as one dam_reading point.
func (a *Influx) Archive(ctx context.Context, e dam.Entity, r dam.Reading) error {
	if err := a.writeAPI.WritePoint(ctx, point(e, r)); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Close releases the client.
func (a *Influx) Close() {
	a.client.Close()
}

func point(e dam.Entity, r dam.Reading) *write.Point {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	tags := map[string]string{
		"dam_id": e.ID,
		"status": string(e.Status),
	}
	fields := map[string]interface{}{
		"water_level":   r.WaterLevel,
		"flow_rate":     r.FlowRate,
		"release_rate":  r.ReleaseRate,
		"precipitation": r.Precipitation,
	}
	return influxdb2.NewPoint(measurement, tags, fields, ts)
}
