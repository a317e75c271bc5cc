// Package store keeps a SQLite audit trail of analyses.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Retention modes.
const (
	RetentionEphemeral  = "ephemeral"
	RetentionSession    = "session"
	RetentionPersistent = "persistent"
)

// Analysis statuses.
const (
	StatusDone   = "done"
	StatusFailed = "failed"
)

// ErrNotFound is returned by Get for unknown analysis IDs.
var ErrNotFound = errors.New("analysis not found")

// Config holds store settings.
type Config struct {
	Path          string
	RetentionMode string
	RetentionDays int
	MaxRecords    int
}

// Record is one stored analysis.
type Record struct {
	AnalysisID   string
	Source       string
	STTProvider  string
	SampleRate   int
	AudioSeconds float64
	Status       string
	ErrorKind    string
	Result       []byte // encoded dialog result, empty on failure
	CreatedAt    time.Time
}

// Store wraps a SQLite-backed analysis store. In ephemeral mode it has no
// database and every operation is a no-op.
type Store struct {
	db    *sql.DB
	cfg   Config
	clock func() time.Time
}

// Open initializes the store according to cfg and applies retention.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.RetentionMode == RetentionEphemeral {
		return &Store{cfg: cfg, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn().Err(err).Msg("Analysis store prune on start failed")
	}

	log.Info().
		Str("path", cfg.Path).
		Str("retentionMode", cfg.RetentionMode).
		Msg("Analysis store opened")
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS analyses (
    analysis_id TEXT PRIMARY KEY,
    source TEXT,
    stt_provider TEXT,
    sample_rate INTEGER,
    audio_seconds REAL,
    status TEXT NOT NULL,
    error_kind TEXT,
    result BLOB,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// RetentionMode returns the configured mode.
func (s *Store) RetentionMode() string {
	return s.cfg.RetentionMode
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save inserts or replaces rec.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if s.db == nil {
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses(analysis_id, source, stt_provider, sample_rate, audio_seconds, status, error_kind, result, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(analysis_id) DO UPDATE SET
		   source=excluded.source, stt_provider=excluded.stt_provider, sample_rate=excluded.sample_rate,
		   audio_seconds=excluded.audio_seconds, status=excluded.status, error_kind=excluded.error_kind,
		   result=excluded.result`,
		rec.AnalysisID, rec.Source, rec.STTProvider, rec.SampleRate, rec.AudioSeconds,
		rec.Status, rec.ErrorKind, rec.Result, rec.CreatedAt.UTC().UnixMilli())
	return err
}

// Get returns the record for analysisID.
func (s *Store) Get(ctx context.Context, analysisID string) (Record, error) {
	if s.db == nil {
		return Record{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT analysis_id, source, stt_provider, sample_rate, audio_seconds, status, error_kind, result, created_at
		 FROM analyses WHERE analysis_id = ?`, analysisID)
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT analysis_id, source, stt_provider, sample_rate, audio_seconds, status, error_kind, result, created_at
		 FROM analyses ORDER BY created_at DESC, analysis_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (Record, error) {
	var rec Record
	var created int64
	var errorKind sql.NullString
	if err := row.Scan(&rec.AnalysisID, &rec.Source, &rec.STTProvider, &rec.SampleRate,
		&rec.AudioSeconds, &rec.Status, &errorKind, &rec.Result, &created); err != nil {
		return Record{}, err
	}
	rec.ErrorKind = errorKind.String
	rec.CreatedAt = time.UnixMilli(created).UTC()
	return rec, nil
}

// Prune applies retention. Session mode drops records older than
// RetentionDays and keeps at most MaxRecords; persistent mode keeps all.
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.db == nil || s.cfg.RetentionMode != RetentionSession {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM analyses WHERE created_at < ?`, cutoff.UTC().UnixMilli()); err != nil {
			return err
		}
	}
	if s.cfg.MaxRecords > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM analyses WHERE analysis_id IN (
			SELECT analysis_id FROM analyses ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxRecords)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
