package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/budgetsync/internal/analytics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultHistoryLimit caps History results.
const DefaultHistoryLimit = 10

// Service runs analyses and records them.
type Service struct {
	gen     Generator
	history HistoryStore
	limit   int
	now     func() time.Time
	log     zerolog.Logger
}

func NewService(gen Generator, history HistoryStore, limit int, log zerolog.Logger) *Service {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Service{gen: gen, history: history, limit: limit, now: time.Now, log: log}
}

// Analyze builds the monthly payload, asks the generator for a report and
// stores it. Without consent it fails before anything leaves the device.
func (s *Service) Analyze(ctx context.Context, userID string, consent bool, in analytics.Input) (Report, error) {
	if !consent {
		return Report{}, ErrConsentRequired
	}
	if strings.TrimSpace(userID) == "" {
		return Report{}, errors.New("Analyze: user id is required")
	}

	now := s.now()
	payload := BuildPayload(in, now)
	log := s.log.With().Str("user_id", userID).Str("month", payload.Month).Logger()

	r, err := s.gen.Generate(ctx, payload)
	if err != nil {
		log.Error().Err(err).Msg("report generation failed")
		return Report{}, fmt.Errorf("Analyze: %w", err)
	}
	r.ID = uuid.NewString()
	r.Timestamp = now

	if err := s.history.Save(ctx, userID, r); err != nil {
		return Report{}, fmt.Errorf("Analyze: save report: %w", err)
	}
	log.Info().Str("report_id", r.ID).Int("score", r.Score).Int("transactions", len(payload.Transactions)).Msg("report generated")
	return r, nil
}

// History returns the most recent reports, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]Report, error) {
	reports, err := s.history.List(ctx, userID, s.limit)
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}
	return reports, nil
}

// IsPermanent reports whether retrying an Analyze call cannot help.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrConsentRequired) || errors.Is(err, ErrInvalidReport)
}
