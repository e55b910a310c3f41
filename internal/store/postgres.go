package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/i474232898/dam-monitoring/internal/dam"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS dams (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL,
    lon              DOUBLE PRECISION NOT NULL,
    lat              DOUBLE PRECISION NOT NULL,
    address          TEXT NOT NULL DEFAULT '',
    capacity         DOUBLE PRECISION NOT NULL,
    current_level    DOUBLE PRECISION NOT NULL,
    safety_threshold DOUBLE PRECISION NOT NULL,
    critical_level   DOUBLE PRECISION NOT NULL,
    status           TEXT NOT NULL,
    last_updated     TIMESTAMPTZ NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS dam_readings (
    seq            BIGSERIAL PRIMARY KEY,
    id             TEXT NOT NULL UNIQUE,
    dam_id         TEXT NOT NULL REFERENCES dams(id) ON DELETE CASCADE,
    ts             TIMESTAMPTZ NOT NULL,
    water_level    DOUBLE PRECISION NOT NULL,
    flow_rate      DOUBLE PRECISION NOT NULL,
    release_rate   DOUBLE PRECISION NOT NULL,
    precipitation  DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS dam_readings_dam_seq_idx ON dam_readings (dam_id, seq);
`

const selectDamSQL = `
    SELECT id, name, lon, lat, address, capacity, current_level, safety_threshold, critical_level, status, last_updated
    FROM dams
`

const selectReadingsSQL = `
    SELECT id, ts, water_level, flow_rate, release_rate, precipitation
    FROM dam_readings
    WHERE dam_id = $1
    ORDER BY seq
`

const insertReadingSQL = `
INSERT INTO dam_readings (id, dam_id, ts, water_level, flow_rate, release_rate, precipitation)
VALUES ($1,$2,$3,$4,$5,$6,$7)`

// PostgresStore persists dams in PostgreSQL. Per-dam serialization uses a
// row lock (SELECT ... FOR UPDATE) held for the duration of Mutate.
type PostgresStore struct {
	pool        *pgxpool.Pool
	maxReadings int
	now         func() time.Time
}

var _ dam.Store = (*PostgresStore)(nil)

// NewPostgresStore connects to databaseURL and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string, maxReadings int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", dam.ErrStore, err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: migrate: %v", dam.ErrStore, err)
	}
	return &PostgresStore{
		pool:        pool,
		maxReadings: maxReadings,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close releases the pool resources.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Insert adds a dam with its readings in one transaction.
func (s *PostgresStore) Insert(ctx context.Context, e dam.Entity) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storeErr("begin", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
INSERT INTO dams (id, name, lon, lat, address, capacity, current_level, safety_threshold, critical_level, status, last_updated)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.ID, e.Name, e.Location.Lon(), e.Location.Lat(), e.Address, e.Capacity,
		e.CurrentLevel, e.SafetyThreshold, e.CriticalLevel, string(e.Status), e.LastUpdated)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return dam.ErrDuplicateID
		}
		return storeErr("insert dam", err)
	}

	if err := insertReadings(ctx, tx, e.ID, e.Readings); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

// Count returns the number of stored dams.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dams`).Scan(&n); err != nil {
		return 0, storeErr("count", err)
	}
	return n, nil
}

// FindByID returns the dam with its full reading history.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (dam.Entity, error) {
	return loadDam(ctx, s.pool, id, false)
}

// ListAll returns every dam ordered by creation time.
func (s *PostgresStore) ListAll(ctx context.Context) ([]dam.Entity, error) {
	rows, err := s.pool.Query(ctx, selectDamSQL+` ORDER BY created_at, id`)
	if err != nil {
		return nil, storeErr("list dams", err)
	}
	dams := make([]dam.Entity, 0)
	for rows.Next() {
		e, err := scanDam(rows)
		if err != nil {
			rows.Close()
			return nil, storeErr("scan dam", err)
		}
		dams = append(dams, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storeErr("list dams", err)
	}

	for i := range dams {
		readings, err := loadReadings(ctx, s.pool, dams[i].ID)
		if err != nil {
			return nil, err
		}
		dams[i].Readings = readings
	}
	return dams, nil
}

// AppendReading appends r without reclassifying.
func (s *PostgresStore) AppendReading(ctx context.Context, id string, r dam.Reading) (dam.Entity, error) {
	return s.Mutate(ctx, id, func(e *dam.Entity) error {
		e.Append(r, s.now())
		return nil
	})
}

// UpdateThresholds replaces both thresholds without cross-validation.
func (s *PostgresStore) UpdateThresholds(ctx context.Context, id string, safetyThreshold, criticalLevel float64) (dam.Entity, error) {
	return s.Mutate(ctx, id, func(e *dam.Entity) error {
		e.SafetyThreshold = safetyThreshold
		e.CriticalLevel = criticalLevel
		return nil
	})
}

// Mutate locks the dam row, applies fn to the loaded entity and writes the
// result back in the same transaction. fn may only append readings. fn's
// error is returned unchanged and rolls the transaction back.
func (s *PostgresStore) Mutate(ctx context.Context, id string, fn func(*dam.Entity) error) (dam.Entity, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return dam.Entity{}, storeErr("begin", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	current, err := loadDam(ctx, tx, id, true)
	if err != nil {
		return dam.Entity{}, err
	}

	working := current.Clone()
	if err := fn(&working); err != nil {
		return dam.Entity{}, err
	}

	_, err = tx.Exec(ctx, `
UPDATE dams
SET name = $2, address = $3, capacity = $4, current_level = $5, safety_threshold = $6,
    critical_level = $7, status = $8, last_updated = $9
WHERE id = $1`,
		id, working.Name, working.Address, working.Capacity, working.CurrentLevel,
		working.SafetyThreshold, working.CriticalLevel, string(working.Status), working.LastUpdated)
	if err != nil {
		return dam.Entity{}, storeErr("update dam", err)
	}

	if len(working.Readings) > len(current.Readings) {
		if err := insertReadings(ctx, tx, id, working.Readings[len(current.Readings):]); err != nil {
			return dam.Entity{}, err
		}
	}

	if s.maxReadings > 0 && len(working.Readings) > s.maxReadings {
		_, err = tx.Exec(ctx, `
DELETE FROM dam_readings
WHERE dam_id = $1 AND seq NOT IN (
    SELECT seq FROM dam_readings WHERE dam_id = $1 ORDER BY seq DESC LIMIT $2
)`, id, s.maxReadings)
		if err != nil {
			return dam.Entity{}, storeErr("trim readings", err)
		}
		over := len(working.Readings) - s.maxReadings
		working.Readings = append([]dam.Reading(nil), working.Readings[over:]...)
	}

	if err := tx.Commit(ctx); err != nil {
		return dam.Entity{}, storeErr("commit", err)
	}
	return working, nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadDam(ctx context.Context, q querier, id string, forUpdate bool) (dam.Entity, error) {
	sql := selectDamSQL + ` WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	e, err := scanDam(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return dam.Entity{}, dam.ErrNotFound
	}
	if err != nil {
		return dam.Entity{}, storeErr("load dam", err)
	}

	readings, err := loadReadings(ctx, q, id)
	if err != nil {
		return dam.Entity{}, err
	}
	e.Readings = readings
	return e, nil
}

func scanDam(row pgx.Row) (dam.Entity, error) {
	var (
		e        dam.Entity
		lon, lat float64
		status   string
	)
	err := row.Scan(&e.ID, &e.Name, &lon, &lat, &e.Address, &e.Capacity, &e.CurrentLevel,
		&e.SafetyThreshold, &e.CriticalLevel, &status, &e.LastUpdated)
	if err != nil {
		return dam.Entity{}, err
	}
	e.Location = dam.NewPoint(lon, lat)
	e.Status = dam.Status(status)
	e.LastUpdated = e.LastUpdated.UTC()
	return e, nil
}

func loadReadings(ctx context.Context, q querier, damID string) ([]dam.Reading, error) {
	rows, err := q.Query(ctx, selectReadingsSQL, damID)
	if err != nil {
		return nil, storeErr("load readings", err)
	}
	defer rows.Close()

	readings := make([]dam.Reading, 0)
	for rows.Next() {
		var r dam.Reading
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.WaterLevel, &r.FlowRate, &r.ReleaseRate, &r.Precipitation); err != nil {
			return nil, storeErr("scan reading", err)
		}
		r.Timestamp = r.Timestamp.UTC()
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("load readings", err)
	}
	return readings, nil
}

func insertReadings(ctx context.Context, tx pgx.Tx, damID string, readings []dam.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range readings {
		batch.Queue(insertReadingSQL, r.ID, damID, r.Timestamp, r.WaterLevel, r.FlowRate, r.ReleaseRate, r.Precipitation)
	}

	res := tx.SendBatch(ctx, batch)
	defer res.Close()

	for range readings {
		if _, err := res.Exec(); err != nil {
			return storeErr("insert reading", err)
		}
	}
	return nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", dam.ErrStore, op, err)
}
