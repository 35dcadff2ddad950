package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"cronlens/internal/colors"
	"cronlens/internal/engine"
	"cronlens/internal/storage"
	logx "cronlens/pkg/logx"
)

// seedDemoSchedules populates an empty store with a small set of overlapping
// schedules so the calendar has something to show on first start.
func seedDemoSchedules(ctx context.Context, store storage.Store, alloc *colors.Allocator, log logx.Logger) error {
	demo := []engine.Schedule{
		{Name: "Daily Backup", Expression: "0 1 * * *", DurationMinutes: 60, IsActive: true, Color: "#4682B4"},
		{Name: "Data Processing", Expression: "30 1 * * *", DurationMinutes: 45, IsActive: true, Color: "#98FB98"},
		{Name: "Long Running Task", Expression: "0 2 * * *", DurationMinutes: 180, IsActive: true, Color: "#FFD700"},
	}
	for _, sc := range demo {
		sc.ID = uuid.NewString()
		if err := store.PutSchedule(ctx, sc); err != nil {
			return err
		}
		alloc.Reserve(sc.Color)
		if err := store.AppendAudit(ctx, storage.AuditEntry{
			At:         time.Now(),
			Action:     "seed",
			ScheduleID: sc.ID,
			Detail:     sc.Name,
		}); err != nil {
			log.Warn("seed audit append failed", logx.String("schedule", sc.Name), logx.Err(err))
		}
	}
	log.Info("seeded demo schedules", logx.Int("count", len(demo)))
	return nil
}
