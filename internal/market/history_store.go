package market

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"quantsignal/internal/pkg/symbol"
)

var ErrInvalidInstrument = errors.New("invalid instrument")

// HistoryManifest summarises one instrument's persisted history.
type HistoryManifest struct {
	Instrument string    `json:"instrument"`
	FirstDay   time.Time `json:"first_day"`
	LastDay    time.Time `json:"last_day"`
	Rows       int64     `json:"rows"`
	Path       string    `json:"path"`
}

// SQLiteHistoryStore 每个标的一个 sqlite 文件，日线按 day 主键 upsert。
type SQLiteHistoryStore struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func NewSQLiteHistoryStore(root string) (*SQLiteHistoryStore, error) {
	if root == "" {
		return nil, fmt.Errorf("history root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &SQLiteHistoryStore{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (s *SQLiteHistoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for k, db := range s.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, k)
	}
	return firstErr
}

// path 拒绝任何不是纯字母数字的标的名，文件永远落在 root 之内。
func (s *SQLiteHistoryStore) path(instrument string) (string, error) {
	if !symbol.ValidInstrument(instrument) {
		return "", fmt.Errorf("%w: %q", ErrInvalidInstrument, instrument)
	}
	return filepath.Join(s.root, instrument+".db"), nil
}

// Has reports whether a history file exists without creating one.
func (s *SQLiteHistoryStore) Has(instrument string) bool {
	path, err := s.path(normalizeInstrument(instrument))
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (s *SQLiteHistoryStore) db(instrument string) (*sql.DB, error) {
	instrument = normalizeInstrument(instrument)
	path, err := s.path(instrument)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[instrument]; ok {
		return db, nil
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS bars (
		day    TEXT PRIMARY KEY,
		open   REAL NOT NULL,
		high   REAL NOT NULL,
		low    REAL NOT NULL,
		close  REAL NOT NULL,
		volume REAL NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema %s: %w", instrument, err)
	}
	s.dbs[instrument] = db
	return db, nil
}

// SaveHistory upserts bars; an existing day is overwritten.
func (s *SQLiteHistoryStore) SaveHistory(ctx context.Context, instrument string, bars Series) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	db, err := s.db(instrument)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (day, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume,
		    updated_at=strftime('%s','now')`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.DayString(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("upsert %s %s: %w", instrument, b.DayString(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(bars), nil
}

// LoadHistory returns bars with day in [start, end]; zero times leave that side open.
func (s *SQLiteHistoryStore) LoadHistory(ctx context.Context, instrument string, start, end time.Time) (Series, error) {
	if _, err := s.path(normalizeInstrument(instrument)); err != nil {
		return nil, err
	}
	if !s.Has(instrument) {
		return nil, nil
	}
	db, err := s.db(instrument)
	if err != nil {
		return nil, err
	}
	from, to := "0000-01-01", "9999-12-31"
	if !start.IsZero() {
		from = DayOf(start).Format(dayLayout)
	}
	if !end.IsZero() {
		to = DayOf(end).Format(dayLayout)
	}
	rows, err := db.QueryContext(ctx,
		`SELECT day, open, high, low, close, volume FROM bars WHERE day BETWEEN ? AND ? ORDER BY day`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out Series
	for rows.Next() {
		var (
			day string
			b   Bar
		)
		if err := rows.Scan(&day, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		if b.Date, err = ParseDay(day); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// LoadTail returns the last n persisted bars in date order.
func (s *SQLiteHistoryStore) LoadTail(ctx context.Context, instrument string, n int) (Series, error) {
	all, err := s.LoadHistory(ctx, instrument, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	return all.Tail(n), nil
}

func (s *SQLiteHistoryStore) Manifest(ctx context.Context, instrument string) (HistoryManifest, error) {
	instrument = normalizeInstrument(instrument)
	m := HistoryManifest{Instrument: instrument}
	path, err := s.path(instrument)
	if err != nil {
		return m, err
	}
	m.Path = path
	if !s.Has(instrument) {
		return m, nil
	}
	db, err := s.db(instrument)
	if err != nil {
		return m, err
	}
	var first, last sql.NullString
	row := db.QueryRowContext(ctx, `SELECT MIN(day), MAX(day), COUNT(1) FROM bars`)
	if err := row.Scan(&first, &last, &m.Rows); err != nil {
		return m, err
	}
	if first.Valid {
		m.FirstDay, _ = ParseDay(first.String)
	}
	if last.Valid {
		m.LastDay, _ = ParseDay(last.String)
	}
	return m, nil
}
