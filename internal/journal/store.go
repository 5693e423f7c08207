// Package journal keeps a durable history of batch runs in SQLite: one row
// per run, one row per item, pruned to a configurable number of runs.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ambiware-labs/voxbatch/internal/batch"
	"github.com/ambiware-labs/voxbatch/internal/config"
	_ "modernc.org/sqlite"
)

// Run is a recorded batch run.
type Run struct {
	ID         int64
	Model      string
	StartedAt  time.Time
	FinishedAt time.Time
	GateReady  bool
	Succeeded  int
	Failed     int
	Skipped    int
	OK         bool
}

// ItemRecord is a recorded per-item result.
type ItemRecord struct {
	RunID    int64
	Seq      int
	State    string
	Status   int
	Bytes    int64
	Artifact string
	Reason   string
}

// Store wraps the SQLite-backed run journal. A disabled journal yields a
// Store with a nil handle whose methods are no-ops.
type Store struct {
	db    *sql.DB
	cfg   config.JournalConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the journal according to config.
func Open(ctx context.Context, cfg config.JournalConfig, log *slog.Logger) (*Store, error) {
	if !cfg.Enabled {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Prune(ctx); err != nil {
		log.Warn("journal prune on open failed", slog.String("error", err.Error()))
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    model TEXT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    gate_ready INTEGER NOT NULL DEFAULT 0,
    succeeded INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    ok INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS run_items (
    run_id INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    state TEXT NOT NULL,
    status INTEGER,
    bytes INTEGER,
    artifact TEXT,
    reason TEXT,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY(run_id, seq),
    FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_run_items_run ON run_items(run_id, seq);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun records the start of a run and returns its id; 0 when disabled.
func (s *Store) BeginRun(ctx context.Context, model string) (int64, error) {
	if s.db == nil {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(model, started_at) VALUES(?, ?)`,
		model, s.clock().UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecordItem appends one per-item result to the run.
func (s *Store) RecordItem(ctx context.Context, runID int64, res batch.Result) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_items(run_id, seq, state, status, bytes, artifact, reason, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, res.Seq, string(res.State), res.Status, res.Bytes, res.Path, res.Reason, s.clock().UTC())
	return err
}

// FinishRun stamps the run with its aggregate outcome.
func (s *Store) FinishRun(ctx context.Context, runID int64, gateReady bool, outcome batch.Outcome) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, gate_ready = ?, succeeded = ?, failed = ?, skipped = ?, ok = ?
		 WHERE id = ?`,
		s.clock().UTC(), boolInt(gateReady), outcome.Succeeded, outcome.Failed, outcome.Skipped,
		boolInt(outcome.OK()), runID)
	return err
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model, started_at, COALESCE(finished_at, ''), gate_ready, succeeded, failed, skipped, ok
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		var gateReady, ok int
		if err := rows.Scan(&r.ID, &r.Model, &started, &finished, &gateReady, &r.Succeeded, &r.Failed, &r.Skipped, &ok); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, started); err == nil {
			r.StartedAt = ts
		}
		if ts, err := time.Parse(time.RFC3339Nano, finished); err == nil {
			r.FinishedAt = ts
		}
		r.GateReady = gateReady != 0
		r.OK = ok != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListRunItems returns the per-item records of a run in sequence order.
func (s *Store) ListRunItems(ctx context.Context, runID int64) ([]ItemRecord, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, state, status, bytes, artifact, reason
		 FROM run_items WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ItemRecord
	for rows.Next() {
		var it ItemRecord
		if err := rows.Scan(&it.RunID, &it.Seq, &it.State, &it.Status, &it.Bytes, &it.Artifact, &it.Reason); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Prune keeps only the newest MaxRuns runs.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil || s.cfg.MaxRuns <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id IN (
		SELECT id FROM runs ORDER BY id DESC LIMIT -1 OFFSET ?
	)`, s.cfg.MaxRuns)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
