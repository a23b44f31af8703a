package strategystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"quantsignal/internal/logger"
)

const idLength = 8

// Store 是策略的 sqlite 持久化（gorm），按插入顺序返回记录。
type Store struct {
	db   *gorm.DB
	path string
	now  func() time.Time
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("strategy db path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, persistErr("open", "", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, persistErr("open", "", err)
	}
	s, err := newStore(db)
	if err != nil {
		return nil, err
	}
	s.path = path
	return s, nil
}

func newStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&strategyModel{}); err != nil {
		return nil, persistErr("migrate", "", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Path is the database file, empty when the store wraps an external *gorm.DB.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) List(ctx context.Context) ([]Strategy, error) {
	return s.find(ctx, "list", "")
}

// Active returns the strategies with status active, in insertion order.
func (s *Store) Active(ctx context.Context) ([]Strategy, error) {
	return s.find(ctx, "active", StatusActive)
}

func (s *Store) find(ctx context.Context, op string, status Status) ([]Strategy, error) {
	q := s.db.WithContext(ctx).Order("seq ASC")
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var rows []strategyModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, persistErr(op, "", err)
	}
	out := make([]Strategy, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toStrategy())
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (Strategy, bool, error) {
	var row strategyModel
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Strategy{}, false, nil
	}
	if err != nil {
		return Strategy{}, false, persistErr("get", id, err)
	}
	return row.toStrategy(), true, nil
}

// Add stores a new active strategy and returns its generated id.
func (s *Store) Add(ctx context.Context, name, description, code string) (string, error) {
	return s.add(ctx, name, description, code, StatusActive)
}

func (s *Store) add(ctx context.Context, name, description, code string, status Status) (string, error) {
	code = strings.TrimSpace(code)
	if !json.Valid([]byte(code)) {
		return "", ErrInvalidCode
	}
	if !status.Valid() {
		return "", ErrInvalidStatus
	}
	row := strategyModel{
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Code:        datatypes.JSON(code),
		Status:      string(status),
		CreatedAt:   s.now().UTC(),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := freeID(tx)
		if err != nil {
			return err
		}
		row.ID = id
		return tx.Create(&row).Error
	})
	if err != nil {
		return "", persistErr("add", row.ID, err)
	}
	logger.Infof("strategy %s (%s) added", row.ID, row.Name)
	return row.ID, nil
}

func freeID(tx *gorm.DB) (string, error) {
	for i := 0; i < 5; i++ {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")[:idLength]
		var n int64
		if err := tx.Model(&strategyModel{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique id")
}

// Delete removes the strategy; false when the id is unknown.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).Delete(&strategyModel{})
	if res.Error != nil {
		return false, persistErr("delete", id, res.Error)
	}
	if res.RowsAffected > 0 {
		logger.Infof("strategy %s deleted", id)
	}
	return res.RowsAffected > 0, nil
}

// SetStatus toggles a strategy; false when the id is unknown.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) (bool, error) {
	if !status.Valid() {
		return false, ErrInvalidStatus
	}
	res := s.db.WithContext(ctx).Model(&strategyModel{}).
		Where("id = ?", strings.TrimSpace(id)).
		Update("status", string(status))
	if res.Error != nil {
		return false, persistErr("set_status", id, res.Error)
	}
	if res.RowsAffected > 0 {
		logger.Infof("strategy %s -> %s", id, status)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&strategyModel{}).Count(&n).Error; err != nil {
		return 0, persistErr("count", "", err)
	}
	return n, nil
}
