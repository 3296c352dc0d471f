package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    status TEXT NOT NULL DEFAULT 'draft',
    exp_type TEXT,
    variants TEXT NOT NULL,
    targeting TEXT,
    metrics TEXT NOT NULL,
    traffic_allocation REAL NOT NULL DEFAULT 100,
    min_sample_size INTEGER NOT NULL DEFAULT 0,
    start_at INTEGER,
    end_at INTEGER,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status);

CREATE TABLE IF NOT EXISTS assignments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    experiment_id TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    session_id TEXT,
    attributes TEXT,
    assigned_at INTEGER NOT NULL DEFAULT (unixepoch()),
    FOREIGN KEY (experiment_id) REFERENCES experiments(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_user_experiment ON assignments(user_id, experiment_id);

CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    experiment_id TEXT NOT NULL,
    variant_id TEXT NOT NULL DEFAULT '',
    user_id TEXT NOT NULL,
    session_id TEXT,
    event_type TEXT NOT NULL,
    payload TEXT,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    FOREIGN KEY (experiment_id) REFERENCES experiments(id)
);

CREATE INDEX IF NOT EXISTS idx_events_experiment ON events(experiment_id);
CREATE INDEX IF NOT EXISTS idx_events_agg ON events(experiment_id, variant_id, event_type);

CREATE TABLE IF NOT EXISTS user_profiles (
    user_id TEXT PRIMARY KEY,
    attributes TEXT NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, exp *Experiment) error {
	variantsJSON, err := json.Marshal(exp.Variants)
	if err != nil {
		return fmt.Errorf("failed to marshal variants: %w", err)
	}

	metricsJSON, err := json.Marshal(exp.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	var targetingJSON []byte
	if exp.Targeting != nil {
		targetingJSON, err = json.Marshal(exp.Targeting)
		if err != nil {
			return fmt.Errorf("failed to marshal targeting: %w", err)
		}
	}

	now := time.Now().Unix()
	exp.CreatedAt = time.Unix(now, 0)
	exp.UpdatedAt = time.Unix(now, 0)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experiments (id, name, description, status, exp_type, variants, targeting, metrics,
		                          traffic_allocation, min_sample_size, start_at, end_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.Name, exp.Description, string(exp.Status), exp.Type,
		string(variantsJSON), nullableString(targetingJSON), string(metricsJSON),
		exp.TrafficAllocation, exp.MinSampleSize,
		nullableUnix(exp.StartAt), nullableUnix(exp.EndAt), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert experiment: %w", err)
	}

	return nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, status, exp_type, variants, targeting, metrics,
		        traffic_allocation, min_sample_size, start_at, end_at, created_at, updated_at
		 FROM experiments WHERE id = ?`, id,
	)

	exp, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}

	return exp, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, status, exp_type, variants, targeting, metrics,
		        traffic_allocation, min_sample_size, start_at, end_at, created_at, updated_at
		 FROM experiments ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var exps []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		exps = append(exps, exp)
	}

	return exps, rows.Err()
}

func (s *SQLiteStore) UpdateExperimentStatus(ctx context.Context, id string, status ExperimentStatus) error {
	now := time.Now().Unix()

	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update experiment status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *SQLiteStore) GetAssignment(ctx context.Context, userID, experimentID string) (*Assignment, error) {
	var a Assignment
	var sessionID, attrsJSON sql.NullString
	var assignedAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, experiment_id, variant_id, session_id, attributes, assigned_at
		 FROM assignments WHERE user_id = ? AND experiment_id = ?`,
		userID, experimentID,
	).Scan(&a.ID, &a.UserID, &a.ExperimentID, &a.VariantID, &sessionID, &attrsJSON, &assignedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	a.SessionID = sessionID.String
	if attrsJSON.Valid && attrsJSON.String != "" {
		if err := json.Unmarshal([]byte(attrsJSON.String), &a.Attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
		}
	}
	a.AssignedAt = time.Unix(assignedAt, 0)

	return &a, nil
}

// PutAssignment inserts the assignment unless one already exists for the
// (user, experiment) pair. The unique index makes concurrent first-time
// writers converge without error; the stored row is read back so every
// caller sees the same record.
func (s *SQLiteStore) PutAssignment(ctx context.Context, a *Assignment) (*Assignment, bool, error) {
	var attrsJSON []byte
	var err error
	if len(a.Attributes) > 0 {
		attrsJSON, err = json.Marshal(a.Attributes)
		if err != nil {
			return nil, false, fmt.Errorf("failed to marshal attributes: %w", err)
		}
	}

	now := time.Now().Unix()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments (user_id, experiment_id, variant_id, session_id, attributes, assigned_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, experiment_id) DO NOTHING`,
		a.UserID, a.ExperimentID, a.VariantID, a.SessionID, nullableString(attrsJSON), now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to put assignment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	stored, err := s.GetAssignment(ctx, a.UserID, a.ExperimentID)
	if err != nil {
		return nil, false, err
	}

	return stored, rowsAffected > 0, nil
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, e *Event) error {
	var payloadJSON []byte
	var err error
	if len(e.Payload) > 0 {
		payloadJSON, err = json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (experiment_id, variant_id, user_id, session_id, event_type, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ExperimentID, e.VariantID, e.UserID, e.SessionID, e.EventType, nullableString(payloadJSON), now,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

func (s *SQLiteStore) GetEvents(ctx context.Context, experimentID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, experiment_id, variant_id, user_id, session_id, event_type, payload, created_at
		 FROM events WHERE experiment_id = ? ORDER BY created_at DESC, id DESC`,
		experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var sessionID, payloadJSON sql.NullString
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.ExperimentID, &e.VariantID, &e.UserID, &sessionID, &e.EventType, &payloadJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.SessionID = sessionID.String
		if payloadJSON.Valid && payloadJSON.String != "" {
			if err := json.Unmarshal([]byte(payloadJSON.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		events = append(events, &e)
	}

	return events, rows.Err()
}

func (s *SQLiteStore) CountEvents(ctx context.Context, experimentID, variantID, eventType string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE experiment_id = ? AND variant_id = ? AND event_type = ?`,
		experimentID, variantID, eventType,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) CountEventsByVariant(ctx context.Context, experimentID, eventType string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT variant_id, COUNT(*) FROM events
		 WHERE experiment_id = ? AND event_type = ? AND variant_id != ''
		 GROUP BY variant_id`,
		experimentID, eventType,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count events by variant: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var variantID string
		var count int
		if err := rows.Scan(&variantID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[variantID] = count
	}

	return counts, rows.Err()
}

func (s *SQLiteStore) GetUserProfile(ctx context.Context, userID string) (map[string]string, error) {
	var attrsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT attributes FROM user_profiles WHERE user_id = ?`, userID,
	).Scan(&attrsJSON)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}

	var attrs map[string]string
	if err := json.Unmarshal([]byte(attrsJSON), &attrs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile attributes: %w", err)
	}

	return attrs, nil
}

func (s *SQLiteStore) PutUserProfile(ctx context.Context, userID string, attrs map[string]string) error {
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to marshal profile attributes: %w", err)
	}

	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, attributes, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET attributes = excluded.attributes, updated_at = excluded.updated_at`,
		userID, string(attrsJSON), now,
	)
	if err != nil {
		return fmt.Errorf("failed to put user profile: %w", err)
	}

	return nil
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*Experiment, error) {
	var exp Experiment
	var description, expType, targetingJSON sql.NullString
	var variantsJSON, metricsJSON string
	var startAt, endAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&exp.ID, &exp.Name, &description, &exp.Status, &expType,
		&variantsJSON, &targetingJSON, &metricsJSON,
		&exp.TrafficAllocation, &exp.MinSampleSize, &startAt, &endAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	exp.Description = description.String
	exp.Type = expType.String

	if err := json.Unmarshal([]byte(variantsJSON), &exp.Variants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &exp.Metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	if targetingJSON.Valid && targetingJSON.String != "" {
		if err := json.Unmarshal([]byte(targetingJSON.String), &exp.Targeting); err != nil {
			return nil, fmt.Errorf("failed to unmarshal targeting: %w", err)
		}
	}

	if startAt.Valid {
		t := time.Unix(startAt.Int64, 0)
		exp.StartAt = &t
	}
	if endAt.Valid {
		t := time.Unix(endAt.Int64, 0)
		exp.EndAt = &t
	}

	exp.CreatedAt = time.Unix(createdAt, 0)
	exp.UpdatedAt = time.Unix(updatedAt, 0)

	return &exp, nil
}

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullableUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}
