package weights

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrRunNotFound is returned when no run matches a lookup.
var ErrRunNotFound = errors.New("run not found")

// RunRepository stores completed runs in runs.db. The weight matrix and the
// reports travel as one msgpack payload next to the summary columns.
type RunRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, log zerolog.Logger) *RunRepository {
	return &RunRepository{
		db:  db,
		log: log.With().Str("repo", "weight_runs").Logger(),
	}
}

// Save inserts a run. Runs are immutable once stored.
func (r *RunRepository) Save(run *Run) error {
	payload, err := msgpack.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", run.ID, err)
	}

	_, err = r.db.Exec(`
		INSERT INTO weight_runs (id, created_at, epsilon, solver, relatives, steps, assets, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.CreatedAt.Unix(), run.Epsilon, run.Solver, run.Relatives, run.Steps(), run.Assets(), payload)
	if err != nil {
		return fmt.Errorf("failed to store run %s: %w", run.ID, err)
	}

	r.log.Debug().Str("run_id", run.ID).Int("bytes", len(payload)).Msg("Stored weight run")
	return nil
}

// Get returns the run with the given id.
func (r *RunRepository) Get(id string) (*Run, error) {
	row := r.db.QueryRow(`
		SELECT id, created_at, epsilon, solver, relatives, payload
		FROM weight_runs WHERE id = ?
	`, id)
	return scanRun(row)
}

// Latest returns the most recent run.
func (r *RunRepository) Latest() (*Run, error) {
	row := r.db.QueryRow(`
		SELECT id, created_at, epsilon, solver, relatives, payload
		FROM weight_runs ORDER BY created_at DESC, rowid DESC LIMIT 1
	`)
	return scanRun(row)
}

// List returns summaries of the most recent runs, newest first.
func (r *RunRepository) List(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`
		SELECT id, created_at, epsilon, solver, relatives, steps, assets
		FROM weight_runs ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	summaries := []RunSummary{}
	for rows.Next() {
		var s RunSummary
		var createdAt int64
		if err := rows.Scan(&s.ID, &createdAt, &s.Epsilon, &s.Solver, &s.Relatives, &s.Steps, &s.Assets); err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		s.CreatedAt = time.Unix(createdAt, 0).UTC()
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return summaries, nil
}

func scanRun(row *sql.Row) (*Run, error) {
	var run Run
	var createdAt int64
	var payload []byte
	err := row.Scan(&run.ID, &createdAt, &run.Epsilon, &run.Solver, &run.Relatives, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if err := msgpack.Unmarshal(payload, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", run.ID, err)
	}
	run.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &run, nil
}
