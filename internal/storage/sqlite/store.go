// Package sqlite persists simulation runs: the setup, every vessel's state
// log, the radar tracks and predictions of a replay, and the reported
// collision and grounding events.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/vessel.report/internal/autopilot"
	"github.com/banshee-data/vessel.report/internal/monitoring"
	"github.com/banshee-data/vessel.report/internal/predict"
	"github.com/banshee-data/vessel.report/internal/sim"
	"github.com/banshee-data/vessel.report/internal/track"
	"github.com/banshee-data/vessel.report/internal/vessel"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// Event kinds.
const (
	EventCollision = "collision"
	EventGrounding = "grounding"
)

// Store is a run database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and migrates it to the latest
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations: %w", err)
	}
	driver, err := msqlite.WithInstance(s.db, &msqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// The migrate instance is not closed because that would close s.db.
func (s *Store) migrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrationVersion returns the applied schema version.
func (s *Store) MigrationVersion() (version uint, dirty bool, err error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("migrate: "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// VesselInfo is the persisted description of one vessel.
type VesselInfo struct {
	Name      string
	Type      string
	Mode      autopilot.Mode
	Hull      vessel.Hull
	Waypoints []autopilot.Waypoint
}

// Run is the header of a saved run.
type Run struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Setup     sim.Setup
	Bounds    sim.Bounds
	Vessels   []VesselInfo

	// Scenario is the source document, stored verbatim.
	Scenario []byte
}

// Event is a reported collision or grounding.
type Event struct {
	Kind     string
	Vessel   string
	Time     float64
	Position vessel.Position
	Heading  float64 // rad; own yaw for groundings
}

// RunData is everything saved for a run.
type RunData struct {
	Run    Run
	Log    *sim.Log
	Tracks track.State
	Events []Event
}

// SaveRun writes a run in one transaction and returns its id. A run without
// an id receives a new one.
func (s *Store) SaveRun(ctx context.Context, data RunData) (string, error) {
	run := data.Run
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if data.Log != nil {
		if b, ok := data.Log.Bounds(); ok {
			run.Bounds = b
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, name, created_at, step_time, sim_time, min_north, max_north, min_east, max_east, scenario)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.CreatedAt, run.Setup.StepTime, run.Setup.SimTime,
		run.Bounds.MinNorth, run.Bounds.MaxNorth, run.Bounds.MinEast, run.Bounds.MaxEast, string(run.Scenario),
	); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for i, v := range run.Vessels {
		h := v.Hull
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_vessels (run_id, seq, name, type, mode, length, beam, draft, block_coefficient, rudder_max, rudder_rate_max, rudder_time_constant)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, v.Name, v.Type, string(v.Mode), h.Length, h.Beam, h.Draft,
			h.BlockCoefficient, h.RudderMax, h.RudderRateMax, h.RudderTimeConstant,
		); err != nil {
			return "", fmt.Errorf("failed to insert vessel %q: %w", v.Name, err)
		}
		for j, wp := range v.Waypoints {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO waypoints (run_id, vessel, seq, north, east) VALUES (?, ?, ?, ?, ?)`,
				run.ID, v.Name, j, wp.North, wp.East,
			); err != nil {
				return "", fmt.Errorf("failed to insert waypoint: %w", err)
			}
		}
	}

	if data.Log != nil {
		if err := insertBundles(ctx, tx, run.ID, data.Log); err != nil {
			return "", err
		}
	}
	if err := insertTracks(ctx, tx, run.ID, data.Tracks); err != nil {
		return "", err
	}
	for i, e := range data.Events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (run_id, seq, kind, vessel, t, north, east, heading)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, e.Kind, e.Vessel, e.Time, e.Position.North, e.Position.East, e.Heading,
		); err != nil {
			return "", fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return run.ID, nil
}

func insertBundles(ctx context.Context, tx *sql.Tx, runID string, log *sim.Log) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO state_bundles (run_id, vessel, t, north, east, down, roll, pitch, yaw, u, v, w, p, q, r, rudder, rudder_cmd)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare bundle insert: %w", err)
	}
	defer stmt.Close()

	for _, name := range log.Names() {
		for _, b := range log.Bundles(name) {
			e, lv, av := b.Eta, b.LinearVelocity, b.AngularVelocity
			if _, err := stmt.ExecContext(ctx, runID, name, b.Time,
				e.North, e.East, e.Down, e.Roll, e.Pitch, e.Yaw,
				lv[0], lv[1], lv[2], av[0], av[1], av[2],
				b.RudderAngle, b.RudderCommand,
			); err != nil {
				return fmt.Errorf("failed to insert bundle for %q at %.3f: %w", name, b.Time, err)
			}
		}
	}
	return nil
}

func insertTracks(ctx context.Context, tx *sql.Tx, runID string, st track.State) error {
	for name, hist := range st.Histories {
		for i, smp := range hist {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO track_samples (run_id, vessel, seq, t, north, east, down) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				runID, name, i, smp.Time, smp.Position.North, smp.Position.East, smp.Position.Down,
			); err != nil {
				return fmt.Errorf("failed to insert track sample: %w", err)
			}
		}
	}
	for name, p := range st.Predictions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO predictions (run_id, vessel, anchored, fallback) VALUES (?, ?, ?, ?)`,
			runID, name, p.Anchored, p.Fallback,
		); err != nil {
			return fmt.Errorf("failed to insert prediction: %w", err)
		}
		for i, smp := range p.Path {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO prediction_points (run_id, vessel, seq, t, north, east, down) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				runID, name, i, smp.Time, smp.Position.North, smp.Position.East, smp.Position.Down,
			); err != nil {
				return fmt.Errorf("failed to insert prediction point: %w", err)
			}
		}
	}
	return nil
}

// ListRuns returns every run header, newest first. Vessels and the scenario
// document are not loaded.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, name, created_at, step_time, sim_time, min_north, max_north, min_east, max_east
		FROM runs ORDER BY created_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Name, &r.CreatedAt, &r.Setup.StepTime, &r.Setup.SimTime,
			&r.Bounds.MinNorth, &r.Bounds.MaxNorth, &r.Bounds.MinEast, &r.Bounds.MaxEast); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadRun reads a complete run. Nothing is returned unless every part loads,
// so callers can swap the result in wholesale.
func (s *Store) LoadRun(ctx context.Context, id string) (RunData, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RunData{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		run      Run
		scenario sql.NullString
	)
	err = tx.QueryRowContext(ctx, `
		SELECT run_id, name, created_at, step_time, sim_time, min_north, max_north, min_east, max_east, scenario
		FROM runs WHERE run_id = ?`, id,
	).Scan(&run.ID, &run.Name, &run.CreatedAt, &run.Setup.StepTime, &run.Setup.SimTime,
		&run.Bounds.MinNorth, &run.Bounds.MaxNorth, &run.Bounds.MinEast, &run.Bounds.MaxEast, &scenario)
	if errors.Is(err, sql.ErrNoRows) {
		return RunData{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return RunData{}, fmt.Errorf("failed to load run: %w", err)
	}
	if scenario.Valid && scenario.String != "" {
		run.Scenario = []byte(scenario.String)
	}

	if run.Vessels, err = loadVessels(ctx, tx, id); err != nil {
		return RunData{}, err
	}
	log, err := loadLog(ctx, tx, id)
	if err != nil {
		return RunData{}, err
	}
	tracks, err := loadTracks(ctx, tx, id)
	if err != nil {
		return RunData{}, err
	}
	events, err := loadEvents(ctx, tx, id)
	if err != nil {
		return RunData{}, err
	}
	return RunData{Run: run, Log: log, Tracks: tracks, Events: events}, nil
}

func loadVessels(ctx context.Context, tx *sql.Tx, id string) ([]VesselInfo, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT name, type, mode, length, beam, draft, block_coefficient, rudder_max, rudder_rate_max, rudder_time_constant
		FROM run_vessels WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load vessels: %w", err)
	}
	var vessels []VesselInfo
	for rows.Next() {
		var v VesselInfo
		var mode string
		h := &v.Hull
		if err := rows.Scan(&v.Name, &v.Type, &mode, &h.Length, &h.Beam, &h.Draft,
			&h.BlockCoefficient, &h.RudderMax, &h.RudderRateMax, &h.RudderTimeConstant); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan vessel: %w", err)
		}
		v.Mode = autopilot.Mode(mode)
		vessels = append(vessels, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range vessels {
		wps, err := tx.QueryContext(ctx,
			`SELECT north, east FROM waypoints WHERE run_id = ? AND vessel = ? ORDER BY seq`, id, vessels[i].Name)
		if err != nil {
			return nil, fmt.Errorf("failed to load waypoints: %w", err)
		}
		for wps.Next() {
			var wp autopilot.Waypoint
			if err := wps.Scan(&wp.North, &wp.East); err != nil {
				wps.Close()
				return nil, fmt.Errorf("failed to scan waypoint: %w", err)
			}
			vessels[i].Waypoints = append(vessels[i].Waypoints, wp)
		}
		wps.Close()
		if err := wps.Err(); err != nil {
			return nil, err
		}
	}
	return vessels, nil
}

func loadLog(ctx context.Context, tx *sql.Tx, id string) (*sim.Log, error) {
	// rowid keeps each vessel's first-append order across vessels.
	rows, err := tx.QueryContext(ctx, `
		SELECT vessel, t, north, east, down, roll, pitch, yaw, u, v, w, p, q, r, rudder, rudder_cmd
		FROM state_bundles WHERE run_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load state bundles: %w", err)
	}
	defer rows.Close()

	log := sim.NewLog()
	for rows.Next() {
		var (
			name string
			b    vessel.StateBundle
		)
		e, lv, av := &b.Eta, &b.LinearVelocity, &b.AngularVelocity
		if err := rows.Scan(&name, &b.Time, &e.North, &e.East, &e.Down, &e.Roll, &e.Pitch, &e.Yaw,
			&lv[0], &lv[1], &lv[2], &av[0], &av[1], &av[2], &b.RudderAngle, &b.RudderCommand); err != nil {
			return nil, fmt.Errorf("failed to scan state bundle: %w", err)
		}
		if !log.Append(name, b) {
			return nil, fmt.Errorf("state bundles for %q out of order at %.3f", name, b.Time)
		}
	}
	return log, rows.Err()
}

func loadSamples(ctx context.Context, tx *sql.Tx, table, id string) (map[string][]predict.Sample, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT vessel, t, north, east, down FROM `+table+` WHERE run_id = ? ORDER BY vessel, seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string][]predict.Sample)
	for rows.Next() {
		var (
			name string
			smp  predict.Sample
		)
		if err := rows.Scan(&name, &smp.Time, &smp.Position.North, &smp.Position.East, &smp.Position.Down); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		out[name] = append(out[name], smp)
	}
	return out, rows.Err()
}

func loadTracks(ctx context.Context, tx *sql.Tx, id string) (track.State, error) {
	histories, err := loadSamples(ctx, tx, "track_samples", id)
	if err != nil {
		return track.State{}, err
	}
	paths, err := loadSamples(ctx, tx, "prediction_points", id)
	if err != nil {
		return track.State{}, err
	}

	rows, err := tx.QueryContext(ctx, `SELECT vessel, anchored, fallback FROM predictions WHERE run_id = ?`, id)
	if err != nil {
		return track.State{}, fmt.Errorf("failed to load predictions: %w", err)
	}
	defer rows.Close()

	st := track.State{Histories: histories, Predictions: make(map[string]predict.Prediction)}
	for rows.Next() {
		var (
			name string
			p    predict.Prediction
		)
		if err := rows.Scan(&name, &p.Anchored, &p.Fallback); err != nil {
			return track.State{}, fmt.Errorf("failed to scan prediction: %w", err)
		}
		p.Path = paths[name]
		st.Predictions[name] = p
	}
	return st, rows.Err()
}

func loadEvents(ctx context.Context, tx *sql.Tx, id string) ([]Event, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT kind, vessel, t, north, east, heading FROM events WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Kind, &e.Vessel, &e.Time, &e.Position.North, &e.Position.East, &e.Heading); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and everything saved with it.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	for _, table := range []string{"run_vessels", "waypoints", "state_bundles", "track_samples", "predictions", "prediction_points", "events"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	return tx.Commit()
}
