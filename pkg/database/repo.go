package database

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NewPhaseRecord creates a running phase row
func NewPhaseRecord(session string, phase int, engine, inputDir, outputDir string) *PhaseRecord {
	return &PhaseRecord{
		Session:   session,
		Phase:     phase,
		Engine:    engine,
		Status:    PhaseRunning,
		InputDir:  inputDir,
		OutputDir: outputDir,
		StartedAt: time.Now(),
	}
}

// UpsertPhase inserts a phase row, replacing the one of an interrupted run
func UpsertPhase(ctx context.Context, db *gorm.DB, record *PhaseRecord) error {
	if record == nil {
		return nil
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session"}, {Name: "phase"}},
		DoUpdates: clause.AssignmentColumns([]string{"engine", "status", "input_dir", "output_dir", "started_at", "ended_at", "metric"}),
	}).Create(record).Error
}

// FinishPhase sets the final status and stats of a phase row
func FinishPhase(ctx context.Context, db *gorm.DB, session string, phase int, status PhaseStatusEnum, metric Metric) error {
	now := time.Now()
	return db.WithContext(ctx).
		Model(&PhaseRecord{}).
		Where("session = ? AND phase = ?", session, phase).
		Updates(map[string]any{
			"status":   status,
			"ended_at": &now,
			"metric":   metric,
		}).Error
}

// NewCrash creates a crash row
func NewCrash(session string, phase int, engine, hash, path string) *Crash {
	return &Crash{
		Session:   session,
		Hash:      hash,
		Phase:     phase,
		Engine:    engine,
		Path:      path,
		CreatedAt: time.Now(),
	}
}

// AddCrash inserts a crash row; a hash already known for the session is ignored
func AddCrash(ctx context.Context, db *gorm.DB, crash *Crash) error {
	if crash == nil {
		return nil
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(crash).Error
}
