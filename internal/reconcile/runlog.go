package reconcile

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// AutoProcessLog is the append-only audit trail of sweep runs: one row per
// job invocation, including zero-work runs.
type AutoProcessLog struct {
	ID         snowflake.ID   `gorm:"column:id;primaryKey" json:"id"`
	Source     string         `gorm:"column:source" json:"source"`
	Job        string         `gorm:"column:job" json:"job"`
	Processed  int            `gorm:"column:processed" json:"processed"`
	Total      int            `gorm:"column:total" json:"total"`
	Errors     datatypes.JSON `gorm:"column:errors" json:"errors"`
	StartedAt  time.Time      `gorm:"column:started_at" json:"started_at"`
	DurationMs int64          `gorm:"column:duration_ms" json:"duration_ms"`
}

func (AutoProcessLog) TableName() string { return "auto_process_logs" }

func (s *Scheduler) writeRunLog(ctx context.Context, source, job string, processed, total int, errs []string, startedAt time.Time) {
	encoded, err := json.Marshal(errs)
	if err != nil {
		encoded = []byte("[]")
	}
	row := AutoProcessLog{
		ID:         s.genID.Generate(),
		Source:     source,
		Job:        job,
		Processed:  processed,
		Total:      total,
		Errors:     datatypes.JSON(encoded),
		StartedAt:  startedAt,
		DurationMs: s.clock.Now().Sub(startedAt).Milliseconds(),
	}
	insertErr := s.db.WithContext(ctx).Exec(
		`INSERT INTO auto_process_logs (
			id, source, job, processed, total, errors, started_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID,
		row.Source,
		row.Job,
		row.Processed,
		row.Total,
		row.Errors,
		row.StartedAt,
		row.DurationMs,
	).Error
	if insertErr != nil {
		s.log.Error("write sweep run log failed", zap.Error(insertErr))
	}
}
