package backtest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// RunRecord is the persisted summary of one backtest.
type RunRecord struct {
	ID           string    `json:"id"`
	Instrument   string    `json:"instrument"`
	StrategyID   string    `json:"strategy_id,omitempty"`
	StrategyName string    `json:"strategy_name"`
	Days         int       `json:"days"`
	Options      Options   `json:"options"`
	Stats        Stats     `json:"stats"`
	CreatedAt    time.Time `json:"created_at"`
}

var ErrRunNotFound = errors.New("backtest run not found")

// ResultStore 记录回测摘要（runs.db）。
type ResultStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewResultStore opens path as the sqlite file when it ends in .db, otherwise
// runs.db inside the directory path.
func NewResultStore(path string) (*ResultStore, error) {
	if path == "" {
		return nil, fmt.Errorf("result store path 不能为空")
	}
	root := path
	if strings.EqualFold(filepath.Ext(path), ".db") {
		root = filepath.Dir(path)
	} else {
		path = filepath.Join(root, "runs.db")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS backtest_runs (
		id            TEXT PRIMARY KEY,
		instrument    TEXT NOT NULL,
		strategy_id   TEXT,
		strategy_name TEXT NOT NULL,
		days          INTEGER NOT NULL,
		total_return  REAL NOT NULL,
		sharpe        REAL NOT NULL,
		max_drawdown  REAL NOT NULL,
		last_signal   INTEGER NOT NULL,
		options_json  TEXT NOT NULL,
		stats_json    TEXT NOT NULL,
		created_at    INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &ResultStore{db: db, path: path}, nil
}

func (s *ResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Record stores a summary of res and returns the saved record.
func (s *ResultStore) Record(ctx context.Context, instrument, strategyID, strategyName string, days int, res *Result) (RunRecord, error) {
	if res == nil {
		return RunRecord{}, fmt.Errorf("nil backtest result")
	}
	rec := RunRecord{
		ID:           strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Instrument:   instrument,
		StrategyID:   strategyID,
		StrategyName: strategyName,
		Days:         days,
		Options:      res.Options,
		Stats:        res.Stats,
		CreatedAt:    time.Now().UTC(),
	}
	optsJSON, err := json.Marshal(rec.Options)
	if err != nil {
		return RunRecord{}, err
	}
	statsJSON, err := json.Marshal(rec.Stats)
	if err != nil {
		return RunRecord{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backtest_runs
			(id, instrument, strategy_id, strategy_name, days, total_return, sharpe, max_drawdown,
			 last_signal, options_json, stats_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Instrument, rec.StrategyID, rec.StrategyName, rec.Days, rec.Stats.TotalReturn,
		rec.Stats.SharpeRatio, rec.Stats.MaxDrawdown, int(rec.Stats.LastSignal), string(optsJSON),
		string(statsJSON), rec.CreatedAt.UnixMilli())
	if err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (RunRecord, error) {
	var (
		rec                 RunRecord
		strategyID          sql.NullString
		optsJSON, statsJSON string
		created             int64
	)
	if err := row.Scan(&rec.ID, &rec.Instrument, &strategyID, &rec.StrategyName, &rec.Days,
		&optsJSON, &statsJSON, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, ErrRunNotFound
		}
		return RunRecord{}, err
	}
	rec.StrategyID = strategyID.String
	if err := json.Unmarshal([]byte(optsJSON), &rec.Options); err != nil {
		return RunRecord{}, err
	}
	if err := json.Unmarshal([]byte(statsJSON), &rec.Stats); err != nil {
		return RunRecord{}, err
	}
	rec.CreatedAt = time.UnixMilli(created).UTC()
	return rec, nil
}

// ListRuns returns the newest runs first.
func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instrument, strategy_id, strategy_name, days, options_json, stats_json, created_at
		FROM backtest_runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []RunRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

func (s *ResultStore) GetRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, instrument, strategy_id, strategy_name, days, options_json, stats_json, created_at
		FROM backtest_runs WHERE id=?`, id)
	return scanRecord(row)
}
