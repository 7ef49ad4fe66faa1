package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/contractlens/extractor/constants"
)

// ErrNotFound is returned for unknown job IDs.
var ErrNotFound = errors.New("job not found")

// ErrBadTransition is returned when a status change violates the job
// lifecycle (PENDING -> PROCESSING -> COMPLETED | FAILED).
var ErrBadTransition = errors.New("invalid status transition")

// Job is one extraction request and its lifecycle state.
type Job struct {
	ID        string              `json:"id"`
	Filename  string              `json:"filename"`
	Status    constants.JobStatus `json:"status"`
	Method    string              `json:"extraction_method"`
	Mode      string              `json:"processing_mode"`
	Error     string              `json:"error,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// LogEntry is one processing log line for a job.
type LogEntry struct {
	JobID     string    `json:"job_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists jobs, results, and logs.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

const jobsSchema = `
CREATE TABLE IF NOT EXISTS extractions (
	id         TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	status     TEXT NOT NULL,
	method     TEXT NOT NULL,
	mode       TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	result     TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_extractions_status  ON extractions(status);
CREATE INDEX IF NOT EXISTS idx_extractions_created ON extractions(created_at);
`

// Open opens (or creates) the job store at path.
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(jobsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobs: schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

const timeLayout = time.RFC3339Nano

// Create inserts a new PENDING job.
func (s *Store) Create(ctx context.Context, id, filename, method, mode string) (*Job, error) {
	now := s.now().UTC()
	job := &Job{
		ID:        id,
		Filename:  filename,
		Status:    constants.StatusPending,
		Method:    method,
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := execRetry(ctx, s.db,
		`INSERT INTO extractions (id, filename, status, method, mode, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Filename, string(job.Status), job.Method, job.Mode,
		now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("jobs: create: %w", err)
	}
	return job, nil
}

// Get returns one job by ID.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, status, method, mode, error, created_at, updated_at
		 FROM extractions WHERE id = ?`, id)
	return scanJob(row)
}

// List returns jobs newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, status, method, mode, error, created_at, updated_at
		 FROM extractions ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("jobs: list: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var status, created, updated string
	err := row.Scan(&job.ID, &job.Filename, &status, &job.Method, &job.Mode, &job.Error, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: scan: %w", err)
	}
	job.Status = constants.JobStatus(status)
	if job.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("jobs: created_at: %w", err)
	}
	if job.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("jobs: updated_at: %w", err)
	}
	return &job, nil
}

// MarkProcessing transitions a PENDING job to PROCESSING.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	return s.transition(ctx, id, constants.StatusPending, constants.StatusProcessing,
		`UPDATE extractions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`)
}

// MarkCompleted transitions a PROCESSING job to COMPLETED with its result
// JSON.
func (s *Store) MarkCompleted(ctx context.Context, id string, result []byte) error {
	now := s.now().UTC().Format(timeLayout)
	res, err := execRetry(ctx, s.db,
		`UPDATE extractions SET status = ?, result = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(constants.StatusCompleted), string(result), now, id, string(constants.StatusProcessing))
	if err != nil {
		return fmt.Errorf("jobs: complete: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// MarkFailed transitions a PENDING or PROCESSING job to FAILED with the error
// message.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	now := s.now().UTC().Format(timeLayout)
	res, err := execRetry(ctx, s.db,
		`UPDATE extractions SET status = ?, error = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(constants.StatusFailed), message, now, id,
		string(constants.StatusPending), string(constants.StatusProcessing))
	if err != nil {
		return fmt.Errorf("jobs: fail: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

func (s *Store) transition(ctx context.Context, id string, from, to constants.JobStatus, query string) error {
	now := s.now().UTC().Format(timeLayout)
	res, err := execRetry(ctx, s.db, query, string(to), now, id, string(from))
	if err != nil {
		return fmt.Errorf("jobs: transition: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

func (s *Store) checkTransition(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("jobs: rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.Get(ctx, id); errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return ErrBadTransition
}

// Result returns the stored result JSON of a completed job.
func (s *Store) Result(ctx context.Context, id string) ([]byte, error) {
	var result sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT result FROM extractions WHERE id = ?`, id).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: result: %w", err)
	}
	if !result.Valid {
		return nil, nil
	}
	return []byte(result.String), nil
}

// logTableRe guards table names built from timestamps.
var logTableRe = regexp.MustCompile(`^logs_\d{4}_\d{2}$`)

func logTableName(t time.Time) string {
	return fmt.Sprintf("logs_%04d_%02d", t.Year(), int(t.Month()))
}

// AppendLog writes one log line into the current month's log table, creating
// the table on first use.
func (s *Store) AppendLog(ctx context.Context, jobID, level, message string) error {
	now := s.now().UTC()
	table := logTableName(now)
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id  TEXT NOT NULL,
		level   TEXT NOT NULL,
		message TEXT NOT NULL,
		ts      TEXT NOT NULL
	)`, table)
	if _, err := execRetry(ctx, s.db, create); err != nil {
		return fmt.Errorf("jobs: log table: %w", err)
	}
	insert := fmt.Sprintf(`INSERT INTO %s (job_id, level, message, ts) VALUES (?, ?, ?, ?)`, table)
	if _, err := execRetry(ctx, s.db, insert, jobID, level, message, now.Format(timeLayout)); err != nil {
		return fmt.Errorf("jobs: log insert: %w", err)
	}
	return nil
}

// Logs returns all log lines for a job across every monthly table, oldest
// first.
func (s *Store) Logs(ctx context.Context, jobID string) ([]LogEntry, error) {
	tables, err := s.logTables(ctx)
	if err != nil {
		return nil, err
	}

	var out []LogEntry
	for _, table := range tables {
		query := fmt.Sprintf(`SELECT job_id, level, message, ts FROM %s WHERE job_id = ? ORDER BY id`, table)
		rows, err := s.db.QueryContext(ctx, query, jobID)
		if err != nil {
			return nil, fmt.Errorf("jobs: logs: %w", err)
		}
		for rows.Next() {
			var e LogEntry
			var ts string
			if err := rows.Scan(&e.JobID, &e.Level, &e.Message, &ts); err != nil {
				rows.Close()
				return nil, fmt.Errorf("jobs: log scan: %w", err)
			}
			if e.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
				rows.Close()
				return nil, fmt.Errorf("jobs: log ts: %w", err)
			}
			out = append(out, e)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// logTables lists existing monthly log tables, oldest first.
func (s *Store) logTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'logs_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("jobs: log tables: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if logTableRe.MatchString(name) {
			out = append(out, name)
		}
	}
	return out, rows.Err()
}

// Cleanup deletes terminal jobs older than retentionDays and drops monthly
// log tables entirely outside the retention window. Returns the number of
// deleted jobs.
func (s *Store) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)

	res, err := execRetry(ctx, s.db,
		`DELETE FROM extractions WHERE status IN (?, ?) AND created_at < ?`,
		string(constants.StatusCompleted), string(constants.StatusFailed), cutoff.Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("jobs: cleanup: %w", err)
	}
	deleted, _ := res.RowsAffected()

	tables, err := s.logTables(ctx)
	if err != nil {
		return deleted, err
	}
	cutoffTable := logTableName(cutoff)
	for _, table := range tables {
		// Lexicographic compare works for zero-padded logs_YYYY_MM names.
		if table < cutoffTable {
			if _, err := execRetry(ctx, s.db, "DROP TABLE "+table); err != nil {
				return deleted, fmt.Errorf("jobs: drop %s: %w", table, err)
			}
		}
	}
	return deleted, nil
}
