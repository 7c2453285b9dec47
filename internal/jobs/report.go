package jobs

import (
	"context"
	"fmt"

	"github.com/dvloznov/budgetsync/internal/analytics"
	"github.com/dvloznov/budgetsync/internal/report"
	"github.com/rs/zerolog"
)

// Analyzer is the part of report.Service a report job needs.
type Analyzer interface {
	Analyze(ctx context.Context, userID string, consent bool, in analytics.Input) (report.Report, error)
}

// InputSource supplies the user's current data, usually a dataaccess.Session.
type InputSource interface {
	Snapshot(ctx context.Context) (analytics.Input, error)
}

// NewReportHandler returns a JobHandler that generates a report from the
// source's current snapshot. Consent and malformed-model errors are permanent.
func NewReportHandler(an Analyzer, src InputSource, log zerolog.Logger) JobHandler {
	return func(ctx context.Context, job Job) error {
		rj, ok := job.(*ReportJob)
		if !ok {
			return Permanent(fmt.Errorf("unexpected job type: %T", job))
		}
		jlog := log.With().Str("job_id", rj.JobID).Str("user_id", rj.UserID).Logger()

		in, err := src.Snapshot(ctx)
		if err != nil {
			jlog.Error().Err(err).Msg("Failed to read local data")
			return fmt.Errorf("reading snapshot: %w", err)
		}

		r, err := an.Analyze(ctx, rj.UserID, rj.Consent, in)
		if err != nil {
			if report.IsPermanent(err) {
				jlog.Warn().Err(err).Msg("Report job failed permanently")
				return Permanent(err)
			}
			jlog.Error().Err(err).Int("retry_count", rj.RetryCount).Msg("Report job failed")
			return err
		}

		rj.ReportID = r.ID
		jlog.Info().Str("report_id", r.ID).Msg("Report job completed")
		return nil
	}
}
