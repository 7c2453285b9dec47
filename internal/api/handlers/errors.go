package handlers

import (
	"errors"
	"net/http"

	"github.com/dvloznov/budgetsync/internal/api/middleware"
	"github.com/dvloznov/budgetsync/internal/domain"
	"github.com/dvloznov/budgetsync/internal/jobs"
	"github.com/dvloznov/budgetsync/internal/pending"
	"github.com/dvloznov/budgetsync/internal/remote"
	"github.com/dvloznov/budgetsync/internal/report"
	"github.com/dvloznov/budgetsync/internal/syncer"
	"github.com/rs/zerolog"
)

var badRequest = []error{
	domain.ErrMissingID,
	domain.ErrMissingDate,
	domain.ErrInvalidAmount,
	domain.ErrInvalidKind,
	domain.ErrInvalidLimit,
	domain.ErrInvalidTarget,
	domain.ErrInvalidContribution,
	domain.ErrEmptyName,
	pending.ErrMalformed,
}

var notFound = []error{
	domain.ErrTransactionNotFound,
	domain.ErrGoalNotFound,
	domain.ErrCategoryNotFound,
	pending.ErrNotFound,
	pending.ErrEmpty,
	jobs.ErrJobNotFound,
}

func statusFor(err error) int {
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	for _, target := range notFound {
		if errors.Is(err, target) {
			return http.StatusNotFound
		}
	}
	var rejected *syncer.RejectedError
	switch {
	case errors.Is(err, domain.ErrDuplicateCategory), errors.As(err, &rejected):
		return http.StatusConflict
	case errors.Is(err, remote.ErrRejected), errors.Is(err, remote.ErrPermissionDenied), errors.Is(err, remote.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, report.ErrConsentRequired):
		return http.StatusForbidden
	case remote.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeErr maps err to a status code. Client errors carry the error text;
// server errors are logged and answered with msg.
func writeErr(w http.ResponseWriter, log zerolog.Logger, err error, msg string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg(msg)
		middleware.WriteError(w, status, msg)
		return
	}
	middleware.WriteError(w, status, err.Error())
}
