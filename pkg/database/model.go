package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// PhaseStatusEnum is the lifecycle state of a phase row
type PhaseStatusEnum string

const (
	PhaseRunning     PhaseStatusEnum = "running"
	PhaseCompleted   PhaseStatusEnum = "completed"
	PhaseExitedEarly PhaseStatusEnum = "exited_early"
	PhaseFailed      PhaseStatusEnum = "failed"
	PhaseInterrupted PhaseStatusEnum = "interrupted"
)

// PhaseRecord is one row of the phases table
type PhaseRecord struct {
	ID        int             `gorm:"primaryKey;column:id"`
	Session   string          `gorm:"column:session;not null;uniqueIndex:idx_session_phase"`
	Phase     int             `gorm:"column:phase;not null;uniqueIndex:idx_session_phase"`
	Engine    string          `gorm:"column:engine;not null"`
	Status    PhaseStatusEnum `gorm:"column:status;not null"`
	InputDir  string          `gorm:"column:input_dir"`
	OutputDir string          `gorm:"column:output_dir"`
	StartedAt time.Time       `gorm:"column:started_at;default:now()"`
	EndedAt   *time.Time      `gorm:"column:ended_at"`
	Metric    Metric          `gorm:"column:metric;type:jsonb"`
}

func (PhaseRecord) TableName() string {
	return "phases"
}

// Crash is one deduplicated crash input found during a phase
type Crash struct {
	ID        int       `gorm:"primaryKey;column:id"`
	Session   string    `gorm:"column:session;not null;uniqueIndex:idx_session_hash"`
	Hash      string    `gorm:"column:hash;not null;uniqueIndex:idx_session_hash"`
	Phase     int       `gorm:"column:phase;not null"`
	Engine    string    `gorm:"column:engine;not null"`
	Path      string    `gorm:"column:path;not null"`
	CreatedAt time.Time `gorm:"column:created_at;default:now()"`
}

// Metric is a free-form jsonb column
type Metric map[string]any

func (m Metric) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Metric) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}

	*m = nil
	return json.Unmarshal(bytes, m)
}
