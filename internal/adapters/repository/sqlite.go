package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/okian/livewatch/internal/domain/model"
	"github.com/okian/livewatch/pkg/logger"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

const createDecisions = `CREATE TABLE IF NOT EXISTS decisions (
	session_id         TEXT PRIMARY KEY,
	decision           TEXT NOT NULL,
	candidate_name     TEXT NOT NULL DEFAULT '',
	candidate_email    TEXT NOT NULL DEFAULT '',
	candidate_position TEXT NOT NULL DEFAULT '',
	score              REAL NOT NULL DEFAULT 0,
	decided_at         TEXT NOT NULL
)`

const upsertDecision = `INSERT INTO decisions
	(session_id, decision, candidate_name, candidate_email, candidate_position, score, decided_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
	decision = excluded.decision,
	candidate_name = excluded.candidate_name,
	candidate_email = excluded.candidate_email,
	candidate_position = excluded.candidate_position,
	score = excluded.score,
	decided_at = excluded.decided_at`

const selectDecisions = `SELECT session_id, decision, candidate_name, candidate_email, candidate_position, score, decided_at
FROM decisions`

// SQLiteStore persists decisions in a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	closed atomic.Bool
	log    logger.Logger
}

// OpenSQLite opens (creating if needed) the database at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := newOptions("decision-store", opts)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer; also keeps ":memory:" to a single database
	db.SetMaxOpenConns(1)

	if err := applyPragmas(ctx, db, o.busyTimeout); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.ExecContext(ctx, createDecisions); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	o.log.Info(ctx, "decision store opened", logger.String("backend", "sqlite"), logger.String("path", path))
	return &SQLiteStore{db: db, log: o.log}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB, busy time.Duration) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec model.DecisionRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}
	_, err := s.db.ExecContext(ctx, upsertDecision,
		rec.SessionID,
		string(rec.Decision),
		rec.CandidateName,
		rec.CandidateEmail,
		rec.CandidatePosition,
		rec.Score,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert decision %s: %w", rec.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (model.DecisionRecord, error) {
	if s.closed.Load() {
		return model.DecisionRecord{}, ErrStoreClosed
	}
	row := s.db.QueryRowContext(ctx, selectDecisions+" WHERE session_id = ?", sessionID)
	rec, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DecisionRecord{}, ErrNotFound
	}
	if err != nil {
		return model.DecisionRecord{}, fmt.Errorf("get decision %s: %w", sessionID, err)
	}
	return rec, nil
}

func (s *SQLiteStore) All(ctx context.Context) ([]model.DecisionRecord, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.QueryContext(ctx, selectDecisions+" ORDER BY session_id")
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []model.DecisionRecord
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDecision(sc scanner) (model.DecisionRecord, error) {
	var (
		rec       model.DecisionRecord
		decision  string
		decidedAt string
	)
	if err := sc.Scan(&rec.SessionID, &decision, &rec.CandidateName, &rec.CandidateEmail,
		&rec.CandidatePosition, &rec.Score, &decidedAt); err != nil {
		return model.DecisionRecord{}, err
	}
	rec.Decision = model.Decision(decision)
	ts, err := time.Parse(time.RFC3339Nano, decidedAt)
	if err != nil {
		return model.DecisionRecord{}, fmt.Errorf("decided_at %q: %w", decidedAt, err)
	}
	rec.Timestamp = ts
	return rec, nil
}
