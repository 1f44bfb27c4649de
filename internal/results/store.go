package results

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	job        TEXT NOT NULL,
	axis_label TEXT NOT NULL,
	variables  TEXT NOT NULL,
	phases     TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS points (
	run_id      INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	idx         INTEGER NOT NULL,
	temperature REAL NOT NULL,
	axis        REAL,
	phase_mask  INTEGER NOT NULL,
	error       TEXT NOT NULL,
	PRIMARY KEY (run_id, idx)
);

CREATE TABLE IF NOT EXISTS point_values (
	run_id INTEGER NOT NULL,
	idx    INTEGER NOT NULL,
	col    INTEGER NOT NULL,
	name   TEXT NOT NULL,
	value  REAL,
	PRIMARY KEY (run_id, idx, col),
	FOREIGN KEY (run_id, idx) REFERENCES points(run_id, idx) ON DELETE CASCADE
);
`

// listSep joins variable and phase names in the runs table. Engine
// variable names never contain it.
const listSep = "\x1f"

// Store persists result sets in a SQLite database.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// Save stores set as a new run and returns its id.
func (s *Store) Save(ctx context.Context, set *Set) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (job, axis_label, variables, phases, created_at) VALUES (?, ?, ?, ?, ?)`,
		set.Job, set.AxisLabel,
		strings.Join(set.Variables, listSep), strings.Join(set.Phases, listSep),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	pointStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO points (run_id, idx, temperature, axis, phase_mask, error) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer pointStmt.Close()
	valueStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO point_values (run_id, idx, col, name, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer valueStmt.Close()

	for i, r := range set.Rows {
		axis := sql.NullFloat64{}
		if set.AxisLabel != "" {
			axis = nullable(r.Axis)
		}
		if _, err := pointStmt.ExecContext(ctx, runID, i, r.Temperature, axis, int64(r.PhaseMask), r.Err); err != nil {
			return 0, fmt.Errorf("insert point %d: %w", i, err)
		}
		for j, name := range set.Variables {
			v := math.NaN()
			if j < len(r.Values) {
				v = r.Values[j]
			}
			if _, err := valueStmt.ExecContext(ctx, runID, i, j, name, nullable(v)); err != nil {
				return 0, fmt.Errorf("insert value %s at point %d: %w", name, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, listSep)
}

// Load reads back the run with id runID.
func (s *Store) Load(ctx context.Context, runID int64) (*Set, error) {
	set := &Set{}
	var variables, phases string
	err := s.db.QueryRowContext(ctx,
		`SELECT job, axis_label, variables, phases FROM runs WHERE id = ?`, runID,
	).Scan(&set.Job, &set.AxisLabel, &variables, &phases)
	if err != nil {
		return nil, fmt.Errorf("load run %d: %w", runID, err)
	}
	set.Variables = splitList(variables)
	set.Phases = splitList(phases)

	rows, err := s.db.QueryContext(ctx,
		`SELECT temperature, axis, phase_mask, error FROM points WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r    Row
			axis sql.NullFloat64
			mask int64
		)
		if err := rows.Scan(&r.Temperature, &axis, &mask, &r.Err); err != nil {
			return nil, err
		}
		r.Axis = math.NaN()
		if axis.Valid {
			r.Axis = axis.Float64
		}
		r.PhaseMask = uint64(mask)
		r.Values = make([]float64, len(set.Variables))
		for i := range r.Values {
			r.Values[i] = math.NaN()
		}
		set.Rows = append(set.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	vals, err := s.db.QueryContext(ctx,
		`SELECT idx, col, value FROM point_values WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer vals.Close()
	for vals.Next() {
		var (
			idx   int
			col   int
			value sql.NullFloat64
		)
		if err := vals.Scan(&idx, &col, &value); err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(set.Rows) || col < 0 || col >= len(set.Variables) || !value.Valid {
			continue
		}
		set.Rows[idx].Values[col] = value.Float64
	}
	return set, vals.Err()
}
