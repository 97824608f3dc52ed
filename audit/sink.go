package audit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ledgerdocs/procflow/log"
)

// LogSink writes audit entries to a structured logger.
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

var _ Sink = (*LogSink)(nil)

func NewLogSink(logger *slog.Logger, level slog.Level) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}

	return &LogSink{logger: logger, level: level}
}

func (s *LogSink) AppendAudit(ctx context.Context, e *Entry) error {
	s.logger.Log(ctx, s.level, "audit",
		log.AuditActionKey, string(e.Action),
		log.InstanceIDKey, e.EntityID,
		log.StepNameKey, e.StepName,
		log.ActorIDKey, e.ActorID,
		log.TenantIDKey, e.TenantID,
		"details", e.Details,
	)

	return nil
}

// MultiSink fans entries out to all sinks and joins their errors.
type MultiSink []Sink

var _ Sink = MultiSink(nil)

func (ms MultiSink) AppendAudit(ctx context.Context, e *Entry) error {
	var errs []error
	for _, s := range ms {
		if err := s.AppendAudit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
