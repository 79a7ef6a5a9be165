package events

import (
	"context"
	"fmt"

	"switchfuzz/internal/types"
	"switchfuzz/pkg/database"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

// DBNotifier keeps one row per phase in the phases table.
type DBNotifier struct {
	db *gorm.DB
}

type DBNotifierParams struct {
	fx.In

	DB *gorm.DB `optional:"true"`
}

// NewDBNotifier returns nil without a database.
func NewDBNotifier(p DBNotifierParams) *DBNotifier {
	if p.DB == nil {
		return nil
	}
	return &DBNotifier{db: p.DB}
}

// PhaseStatus maps an event to the status its phase row ends up in.
func PhaseStatus(kind types.PhaseEventKind) database.PhaseStatusEnum {
	switch kind {
	case types.PhaseRotated:
		return database.PhaseCompleted
	case types.PhaseExitedEarly:
		return database.PhaseExitedEarly
	case types.PhaseFailed:
		return database.PhaseFailed
	case types.PhaseInterrupted:
		return database.PhaseInterrupted
	default:
		return database.PhaseRunning
	}
}

func (n *DBNotifier) Notify(ctx context.Context, event types.PhaseEvent) error {
	p := event.Phase
	if event.Kind == types.PhaseStarted {
		record := database.NewPhaseRecord(p.Session, p.Index, p.Engine, p.InputDir, p.OutputDir)
		if err := database.UpsertPhase(ctx, n.db, record); err != nil {
			return fmt.Errorf("failed to record phase %d: %w", p.Index, err)
		}
		return nil
	}

	metric := database.Metric(event.Stats)
	if event.Error != "" {
		if metric == nil {
			metric = database.Metric{}
		}
		metric["error"] = event.Error
	}
	if err := database.FinishPhase(ctx, n.db, p.Session, p.Index, PhaseStatus(event.Kind), metric); err != nil {
		return fmt.Errorf("failed to finish phase %d: %w", p.Index, err)
	}
	return nil
}
