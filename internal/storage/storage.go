// Package storage provides SQLite-backed archival of metric snapshots and anomalies.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/betpulse/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db           *sql.DB
	maxSnapshots int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/betpulse/data.db.
func New(maxSnapshots int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "betpulse", "data.db")
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
		_ = db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxSnapshots: maxSnapshots}
	if err := s.createTables(); err != nil {
		_ = db.Close()
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
		`CREATE TABLE IF NOT EXISTS time_series (
			ts          INTEGER PRIMARY KEY,
			bets        INTEGER NOT NULL,
			stake       REAL NOT NULL,
			profit_loss REAL NOT NULL,
			roi         REAL NOT NULL,
			win_rate    REAL NOT NULL,
			clv         REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS anomalies (
			id          TEXT PRIMARY KEY,
			market_id   TEXT NOT NULL,
			type        TEXT NOT NULL,
			severity    TEXT NOT NULL,
			value       REAL NOT NULL,
			baseline    REAL NOT NULL,
			threshold   REAL NOT NULL,
			deviations  REAL NOT NULL,
			detected_at INTEGER NOT NULL,
			notified    INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_detected_at ON anomalies(detected_at)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_market ON anomalies(market_id, detected_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveTimeSeries stores a snapshot point, replacing any point with the same
// timestamp, and keeps at most maxSnapshots newest points.
func (s *Storage) SaveTimeSeries(p models.TimeSeriesData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO time_series
			(ts, bets, stake, profit_loss, roi, win_rate, clv)
		VALUES (?,?,?,?,?,?,?)`,
		p.Timestamp.UnixNano(), p.Bets, p.Stake, p.ProfitLoss, p.ROI, p.WinRate, p.CLV,
	)
	if err != nil {
		return fmt.Errorf("failed to insert time series point: %w", err)
	}

	if s.maxSnapshots > 0 {
		if _, err = tx.Exec(`
			DELETE FROM time_series WHERE ts NOT IN (
				SELECT ts FROM time_series ORDER BY ts DESC LIMIT ?
			)`, s.maxSnapshots); err != nil {
			return fmt.Errorf("failed to enforce snapshot cap: %w", err)
		}
	}

	return tx.Commit()
}

// LoadTimeSeries returns points at or after since, oldest first.
func (s *Storage) LoadTimeSeries(since time.Time) ([]models.TimeSeriesData, error) {
	rows, err := s.db.Query(`
		SELECT ts, bets, stake, profit_loss, roi, win_rate, clv
		FROM time_series WHERE ts >= ? ORDER BY ts ASC`, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query time series: %w", err)
	}
	defer rows.Close()

	points := []models.TimeSeriesData{}
	for rows.Next() {
		var p models.TimeSeriesData
		var tsNano int64
		if err := rows.Scan(&tsNano, &p.Bets, &p.Stake, &p.ProfitLoss, &p.ROI, &p.WinRate, &p.CLV); err != nil {
			return nil, fmt.Errorf("failed to scan time series point: %w", err)
		}
		p.Timestamp = time.Unix(0, tsNano).UTC()
		points = append(points, p)
	}
	return points, rows.Err()
}

// AddAnomaly archives an anomaly. Re-adding an id is a no-op.
func (s *Storage) AddAnomaly(a models.Anomaly) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO anomalies
			(id, market_id, type, severity, value, baseline, threshold, deviations, detected_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.MarketID, string(a.Type), string(a.Severity),
		a.Value, a.Baseline, a.Threshold, a.Deviations, a.DetectedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert anomaly: %w", err)
	}
	return nil
}

// MarkNotified flags an archived anomaly as delivered.
func (s *Storage) MarkNotified(id string) error {
	res, err := s.db.Exec(`UPDATE anomalies SET notified = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark anomaly notified: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("anomaly not found: %s", id)
	}
	return nil
}

// RecentAnomalies returns up to k anomalies, newest first. An empty marketID
// matches every market.
func (s *Storage) RecentAnomalies(marketID string, k int) ([]models.Anomaly, error) {
	rows, err := s.db.Query(`
		SELECT id, market_id, type, severity, value, baseline, threshold, deviations, detected_at
		FROM anomalies
		WHERE (? = '' OR market_id = ?)
		ORDER BY detected_at DESC, id ASC LIMIT ?`, marketID, marketID, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	anomalies := []models.Anomaly{}
	for rows.Next() {
		var a models.Anomaly
		var typ, severity string
		var detectedAtNano int64
		err := rows.Scan(
			&a.ID, &a.MarketID, &typ, &severity,
			&a.Value, &a.Baseline, &a.Threshold, &a.Deviations, &detectedAtNano,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		a.Type = models.AnomalyType(typ)
		a.Severity = models.Severity(severity)
		a.DetectedAt = time.Unix(0, detectedAtNano).UTC()
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}

// Prune deletes archived points and anomalies older than cutoff and returns
// the number of rows removed.
func (s *Storage) Prune(cutoff time.Time) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var total int64
	for _, stmt := range []string{
		`DELETE FROM time_series WHERE ts < ?`,
		`DELETE FROM anomalies WHERE detected_at < ?`,
	} {
		res, err := tx.Exec(stmt, cutoff.UnixNano())
		if err != nil {
			return 0, fmt.Errorf("failed to prune archive: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, tx.Commit()
}
