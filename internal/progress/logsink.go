package progress

import (
	"go.uber.org/zap"
)

// LogSink writes events as structured log lines. Page events log at debug,
// failed pages at warn.
type LogSink struct {
	Logger *zap.Logger
}

// NewLogSink returns a LogSink writing to l, or a no-op logger when l is nil.
func NewLogSink(l *zap.Logger) *LogSink {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogSink{Logger: l}
}

func (s *LogSink) Emit(e Event) {
	log := s.Logger.With(zap.String("job", e.JobID))

	switch e.Kind {
	case JobStarted:
		log.Info("job started", zap.Int("start", e.Start), zap.Int("end", e.End))
	case SegmentStarted:
		log.Info("segment started", zap.Int("start", e.Start), zap.Int("end", e.End))
	case PageDone:
		if e.OK {
			log.Debug("page done", zap.Int("page", e.Page))
		} else {
			log.Warn("page missing", zap.Int("page", e.Page))
		}
	case SegmentDone:
		log.Info("segment done",
			zap.Int("start", e.Start),
			zap.Int("end", e.End),
			zap.Int("ok", e.Succeeded),
			zap.Int("failed", e.Failed),
		)
	case Merging:
		log.Info("merging", zap.Int("segments", e.Segments))
	case JobDone:
		log.Info("job done",
			zap.String("output", e.Output),
			zap.Int64("size", e.Size),
			zap.Int("ok", e.Succeeded),
			zap.Int("failed", e.Failed),
		)
	case JobFailed:
		log.Error("job failed", zap.Error(e.Err))
	case JobCancelled:
		log.Warn("job cancelled", zap.Int("ok", e.Succeeded), zap.Int("failed", e.Failed))
	case Retry:
		log.Debug("retry scheduled",
			zap.Int("attempt", e.Attempt),
			zap.Duration("delay", e.Delay),
			zap.Error(e.Err),
		)
	}
}
