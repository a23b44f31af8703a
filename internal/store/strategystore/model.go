package strategystore

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func (s Status) Valid() bool { return s == StatusActive || s == StatusInactive }

// Strategy 是持久化的策略记录；Code 为 JSON 策略文档。
type Strategy struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Code        string    `json:"code"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s Strategy) Active() bool { return s.Status == StatusActive }

type strategyModel struct {
	Seq         int64          `gorm:"column:seq;primaryKey;autoIncrement"`
	ID          string         `gorm:"column:id;size:16;uniqueIndex"`
	Name        string         `gorm:"column:name"`
	Description string         `gorm:"column:description"`
	Code        datatypes.JSON `gorm:"column:code"`
	Status      string         `gorm:"column:status;index"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
}

func (strategyModel) TableName() string { return "strategies" }

func (m strategyModel) toStrategy() Strategy {
	return Strategy{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Code:        string(m.Code),
		Status:      Status(m.Status),
		CreatedAt:   m.CreatedAt.UTC(),
	}
}
