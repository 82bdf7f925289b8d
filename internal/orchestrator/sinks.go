package orchestrator

import (
	"context"
	"log/slog"

	"tracecollapse/internal/report"
)

// ReportSaver persists reports; satisfied by *db.DB.
type ReportSaver interface {
	SaveReport(ctx context.Context, source string, r *report.Report) (string, error)
}

// StoreSink writes every report to a ReportSaver.
type StoreSink struct {
	saver  ReportSaver
	logger *slog.Logger
}

// NewStoreSink wraps saver as a Sink.
func NewStoreSink(saver ReportSaver, logger *slog.Logger) *StoreSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSink{saver: saver, logger: logger}
}

// Name implements Sink.
func (s *StoreSink) Name() string {
	return "store"
}

// Publish implements Sink.
func (s *StoreSink) Publish(ctx context.Context, sourceName string, r *report.Report) error {
	runID, err := s.saver.SaveReport(ctx, sourceName, r)
	if err != nil {
		return err
	}
	s.logger.Info("Stored report", "run_id", runID, "source", sourceName)
	return nil
}
