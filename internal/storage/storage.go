// Package storage provides SQLite-backed persistence for confirmed spread snapshots.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/spreadwatch/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database holding the append-only snapshot log.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/spreadwatch/data.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "spreadwatch", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id              TEXT PRIMARY KEY,
			timestamp       INTEGER NOT NULL,
			spread_name     TEXT NOT NULL,
			prompt1         TEXT NOT NULL,
			prompt2         TEXT NOT NULL,
			kind            TEXT NOT NULL CHECK (kind IN ('NEW', 'CHG')),
			spread_type     TEXT NOT NULL CHECK (spread_type IN ('PRIMARY', 'DERIVED')),
			old_midpoint    REAL NOT NULL DEFAULT 0,
			new_midpoint    REAL NOT NULL DEFAULT 0,
			old_bid         REAL NOT NULL DEFAULT 0,
			new_bid         REAL NOT NULL DEFAULT 0,
			old_ask         REAL NOT NULL DEFAULT 0,
			new_ask         REAL NOT NULL DEFAULT 0,
			bid_volume      REAL NOT NULL DEFAULT 0,
			ask_volume      REAL NOT NULL DEFAULT 0,
			dependency      TEXT,
			days_between    INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON snapshots(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_spread ON snapshots(spread_name, timestamp)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AppendSnapshots writes the batch in a single transaction.
// Either every snapshot is committed or none is.
func (s *Storage) AppendSnapshots(ctx context.Context, snapshots []models.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	for i := range snapshots {
		if err := snapshots[i].Validate(); err != nil {
			return fmt.Errorf("invalid snapshot %s: %w", snapshots[i].SpreadName, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshots
			(id, timestamp, spread_name, prompt1, prompt2, kind, spread_type,
			 old_midpoint, new_midpoint, old_bid, new_bid, old_ask, new_ask,
			 bid_volume, ask_volume, dependency, days_between)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, snap := range snapshots {
		_, err := stmt.ExecContext(ctx,
			snap.ID, snap.Timestamp.UnixNano(), snap.SpreadName, snap.Prompt1, snap.Prompt2,
			string(snap.Kind), string(snap.SpreadType),
			snap.OldMidpoint, snap.NewMidpoint, snap.OldBid, snap.NewBid, snap.OldAsk, snap.NewAsk,
			snap.BidVolume, snap.AskVolume, nullString(snap.Dependency), nullInt(snap.DaysBetween),
		)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot %s: %w", snap.SpreadName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshots: %w", err)
	}
	return nil
}

// RecentSnapshots returns snapshots taken at or after since, oldest first.
// With changesOnly, rows whose midpoint did not move (first sightings) are skipped.
func (s *Storage) RecentSnapshots(ctx context.Context, since time.Time, changesOnly bool) ([]models.Snapshot, error) {
	query := `SELECT ` + snapshotCols + ` FROM snapshots WHERE timestamp >= ?`
	if changesOnly {
		query += ` AND old_midpoint != new_midpoint`
	}
	query += ` ORDER BY timestamp ASC, spread_name ASC`
	return s.querySnapshots(ctx, query, since.UnixNano())
}

// SpreadHistory returns the snapshots for one spread since the given time, oldest first.
func (s *Storage) SpreadHistory(ctx context.Context, spreadName string, since time.Time) ([]models.Snapshot, error) {
	return s.querySnapshots(ctx,
		`SELECT `+snapshotCols+` FROM snapshots WHERE spread_name = ? AND timestamp >= ? ORDER BY timestamp ASC`,
		spreadName, since.UnixNano())
}

// LargestMoves returns the n snapshots with the largest absolute midpoint change.
func (s *Storage) LargestMoves(ctx context.Context, n int) ([]models.Snapshot, error) {
	return s.querySnapshots(ctx,
		`SELECT `+snapshotCols+` FROM snapshots
		 WHERE kind = 'CHG'
		 ORDER BY ABS(new_midpoint - old_midpoint) DESC, timestamp DESC LIMIT ?`, n)
}

// Stats summarizes the snapshot table.
type Stats struct {
	TotalSnapshots int
	UniqueSpreads  int
	OldestRecord   *time.Time
	NewestRecord   *time.Time
}

// Stats returns whole-table counts and the time range covered.
func (s *Storage) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var oldest, newest sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT spread_name), MIN(timestamp), MAX(timestamp)
		FROM snapshots`).Scan(&st.TotalSnapshots, &st.UniqueSpreads, &oldest, &newest)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query stats: %w", err)
	}
	if oldest.Valid {
		t := time.Unix(0, oldest.Int64)
		st.OldestRecord = &t
	}
	if newest.Valid {
		t := time.Unix(0, newest.Int64)
		st.NewestRecord = &t
	}
	return st, nil
}

// SpreadSummary aggregates activity for one spread.
type SpreadSummary struct {
	SpreadName string
	Updates    int
	AvgChange  float64
	MinPrice   float64
	MaxPrice   float64
	LastUpdate time.Time
}

// Summary aggregates snapshots since the given time per spread, ordered by name.
func (s *Storage) Summary(ctx context.Context, since time.Time) ([]SpreadSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT spread_name, COUNT(*), AVG(new_midpoint - old_midpoint),
		       MIN(new_midpoint), MAX(new_midpoint), MAX(timestamp)
		FROM snapshots WHERE timestamp >= ?
		GROUP BY spread_name ORDER BY spread_name`, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}
	defer rows.Close()

	var out []SpreadSummary
	for rows.Next() {
		var sum SpreadSummary
		var last int64
		if err := rows.Scan(&sum.SpreadName, &sum.Updates, &sum.AvgChange, &sum.MinPrice, &sum.MaxPrice, &last); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		sum.LastUpdate = time.Unix(0, last)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// PruneSnapshots deletes snapshots older than before and returns how many were removed.
func (s *Storage) PruneSnapshots(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE timestamp < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

const snapshotCols = `id, timestamp, spread_name, prompt1, prompt2, kind, spread_type,
	old_midpoint, new_midpoint, old_bid, new_bid, old_ask, new_ask,
	bid_volume, ask_volume, dependency, days_between`

func (s *Storage) querySnapshots(ctx context.Context, query string, args ...any) ([]models.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []models.Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, rows.Err()
}

func scanSnapshot(scan func(...any) error) (*models.Snapshot, error) {
	var snap models.Snapshot
	var ts int64
	var kind, spreadType string
	var dependency sql.NullString
	var days sql.NullInt64
	err := scan(
		&snap.ID, &ts, &snap.SpreadName, &snap.Prompt1, &snap.Prompt2, &kind, &spreadType,
		&snap.OldMidpoint, &snap.NewMidpoint, &snap.OldBid, &snap.NewBid, &snap.OldAsk, &snap.NewAsk,
		&snap.BidVolume, &snap.AskVolume, &dependency, &days,
	)
	if err != nil {
		return nil, err
	}
	snap.Timestamp = time.Unix(0, ts)
	snap.Kind = models.EventKind(kind)
	snap.SpreadType = models.SpreadType(spreadType)
	snap.Dependency = dependency.String
	if days.Valid {
		d := int(days.Int64)
		snap.DaysBetween = &d
	}
	return &snap, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
