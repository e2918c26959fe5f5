// Package history keeps a local log of finished sync passes.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/bucketsync/internal/db"
	bsync "github.com/openmined/bucketsync/internal/sync"
)

const FileName = "history.db"

const DefaultListLimit = 50

// fixed width so TEXT ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS sync_history (
    id TEXT PRIMARY KEY,
    session_id TEXT,
    profile_id TEXT NOT NULL,
    bucket TEXT NOT NULL,
    prefix TEXT NOT NULL,
    local_path TEXT NOT NULL,
    direction TEXT NOT NULL,
    uploaded INTEGER NOT NULL,
    downloaded INTEGER NOT NULL,
    skipped INTEGER NOT NULL,
    error TEXT,
    started_at TEXT NOT NULL, -- UTC, see timeLayout
    finished_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_finished_at ON sync_history(finished_at);
CREATE INDEX IF NOT EXISTS idx_history_session ON sync_history(session_id);
`

var ErrNotOpen = errors.New("history store not open")

// Entry is one recorded pass.
type Entry struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"sessionId,omitempty"`
	ProfileID  string          `json:"profileId"`
	Bucket     string          `json:"bucket"`
	Prefix     string          `json:"prefix"`
	LocalPath  string          `json:"localPath"`
	Direction  bsync.Direction `json:"direction"`
	Uploaded   uint64          `json:"uploaded"`
	Downloaded uint64          `json:"downloaded"`
	Skipped    uint64          `json:"skipped"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
}

func (e *Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

func (e *Entry) Failed() bool {
	return e.Error != ""
}

// dbEntry mirrors a row, times are stored as TEXT.
type dbEntry struct {
	ID         string         `db:"id"`
	SessionID  sql.NullString `db:"session_id"`
	ProfileID  string         `db:"profile_id"`
	Bucket     string         `db:"bucket"`
	Prefix     string         `db:"prefix"`
	LocalPath  string         `db:"local_path"`
	Direction  string         `db:"direction"`
	Uploaded   int64          `db:"uploaded"`
	Downloaded int64          `db:"downloaded"`
	Skipped    int64          `db:"skipped"`
	Error      sql.NullString `db:"error"`
	StartedAt  string         `db:"started_at"`
	FinishedAt string         `db:"finished_at"`
}

// Store persists pass reports in sqlite.
type Store struct {
	db     *sqlx.DB
	dbPath string
}

// NewStore returns a closed store. An empty path keeps history in memory.
func NewStore(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

func (s *Store) Open() error {
	if s.db != nil {
		return fmt.Errorf("history store already open")
	}

	opts := []db.SqliteOption{db.WithMaxOpenConns(1)}
	if s.dbPath != "" {
		opts = append(opts, db.WithPath(s.dbPath))
	}
	conn, err := db.NewSqliteDB(opts...)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return fmt.Errorf("init history schema: %w", err)
	}

	s.db = conn
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return ErrNotOpen
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		slog.Error("history close", "error", err)
		return err
	}
	return nil
}

// RecordPass stores a finished pass. It satisfies sync.PassRecorder.
func (s *Store) RecordPass(ctx context.Context, report *bsync.PassReport) error {
	if s.db == nil {
		return ErrNotOpen
	}
	if report == nil {
		return fmt.Errorf("cannot record nil report")
	}

	row := dbEntry{
		ID:         uuid.NewString(),
		SessionID:  nullString(report.SessionID),
		ProfileID:  report.Locator.ProfileID,
		Bucket:     report.Locator.Bucket,
		Prefix:     report.Locator.Prefix,
		LocalPath:  report.LocalPath,
		Direction:  string(report.Direction),
		Uploaded:   int64(report.Result.Uploaded),
		Downloaded: int64(report.Result.Downloaded),
		Skipped:    int64(report.Result.Skipped),
		StartedAt:  report.StartedAt.UTC().Format(timeLayout),
		FinishedAt: report.FinishedAt.UTC().Format(timeLayout),
	}
	if report.Err != nil {
		row.Error = nullString(report.Err.Error())
	}

	query := `INSERT INTO sync_history (id, session_id, profile_id, bucket, prefix, local_path, direction,
	          uploaded, downloaded, skipped, error, started_at, finished_at)
	          VALUES (:id, :session_id, :profile_id, :bucket, :prefix, :local_path, :direction,
	          :uploaded, :downloaded, :skipped, :error, :started_at, :finished_at)`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("record pass: %w", err)
	}
	slog.Debug("history recorded", "id", row.ID, "direction", row.Direction, "bucket", row.Bucket)
	return nil
}

// List returns the most recent passes first. limit <= 0 uses DefaultListLimit.
func (s *Store) List(ctx context.Context, limit int) ([]*Entry, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var rows []dbEntry
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM sync_history ORDER BY finished_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	entries := make([]*Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toEntry()
		if err != nil {
			slog.Error("history row corrupt", "id", row.ID, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, ErrNotOpen
	}
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM sync_history"); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return count, nil
}

// Prune drops everything but the newest keep entries.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if s.db == nil {
		return 0, ErrNotOpen
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM sync_history WHERE id NOT IN (
		SELECT id FROM sync_history ORDER BY finished_at DESC, id LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

func (row *dbEntry) toEntry() (*Entry, error) {
	started, err := time.Parse(timeLayout, row.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	finished, err := time.Parse(timeLayout, row.FinishedAt)
	if err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	return &Entry{
		ID:         row.ID,
		SessionID:  row.SessionID.String,
		ProfileID:  row.ProfileID,
		Bucket:     row.Bucket,
		Prefix:     row.Prefix,
		LocalPath:  row.LocalPath,
		Direction:  bsync.Direction(row.Direction),
		Uploaded:   uint64(row.Uploaded),
		Downloaded: uint64(row.Downloaded),
		Skipped:    uint64(row.Skipped),
		Error:      row.Error.String,
		StartedAt:  started,
		FinishedAt: finished,
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ bsync.PassRecorder = (*Store)(nil)
