package emit

import (
	"context"
	"log/slog"
)

// LogEmitter writes events through a structured slog.Logger.
//
// run_error events are logged at error level, node_start at debug level and
// everything else at info level. Output format (text or JSON) is whatever
// the logger's handler produces:
//
//	level=INFO msg=node_end run_id=3f2c... step=1 node=router duration_ms=412 channels=[generationStyle]
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates a LogEmitter. A nil logger means slog.Default().
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit logs the event.
func (l *LogEmitter) Emit(event Event) {
	level := slog.LevelInfo
	switch event.Msg {
	case RunError:
		level = slog.LevelError
	case NodeStart:
		level = slog.LevelDebug
	}

	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}

	attrs := make([]slog.Attr, 0, 3+len(event.Meta))
	attrs = append(attrs,
		slog.String("run_id", event.RunID),
		slog.Int("step", event.Step),
		slog.String("node", event.NodeID),
	)
	for _, k := range sortedMetaKeys(event.Meta) {
		attrs = append(attrs, slog.Any(k, event.Meta[k]))
	}
	l.logger.LogAttrs(ctx, level, event.Msg, attrs...)
}
