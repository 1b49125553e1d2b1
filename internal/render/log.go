package render

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-tracker/internal/progress"
)

// Log reports snapshots as structured log entries.
type Log struct {
	logger *zap.Logger
}

// NewLog returns a Log renderer. A nil logger discards output.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger.Named("render")}
}

// Render logs the current step, percentage and per-slot status.
func (l *Log) Render(s progress.Snapshot) {
	v := BuildView(s)
	statuses := make([]string, 0, len(v.Slots))
	for _, slot := range v.Slots {
		statuses = append(statuses, string(slot.Status))
	}
	l.logger.Info("progress",
		zap.Int("current_step", v.CurrentStep),
		zap.Float64("percent", v.Percent),
		zap.Strings("steps", statuses),
	)
}

// ShowError logs message at error level.
func (l *Log) ShowError(message string) {
	l.logger.Error("progress tracking failed", zap.String("message", message))
}
