// Package api exposes a Session over a local HTTP interface.
package api

import (
	"net/http"
	"time"

	"github.com/dvloznov/budgetsync/internal/api/handlers"
	"github.com/dvloznov/budgetsync/internal/api/middleware"
	"github.com/dvloznov/budgetsync/internal/jobs"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Deps are the collaborators behind the routes.
type Deps struct {
	UserID    string
	Ledger    handlers.Ledger
	Sync      handlers.SyncControl
	Reports   handlers.ReportHistory
	Publisher jobs.Publisher
	Jobs      jobs.JobStore

	// Token enables bearer authentication when set.
	Token  string
	Now    func() time.Time
	Logger zerolog.Logger
}

// NewRouter registers every route and wraps the router in middleware.
func NewRouter(d Deps) http.Handler {
	log := d.Logger
	transactions := handlers.NewTransactionsHandler(d.Ledger, log)
	budgets := handlers.NewBudgetsHandler(d.Ledger, log)
	goals := handlers.NewGoalsHandler(d.Ledger, log)
	categories := handlers.NewCategoriesHandler(d.Ledger, log)
	dashboard := handlers.NewDashboardHandler(d.Ledger, d.Now, log)
	syncH := handlers.NewSyncHandler(d.Sync, log)
	reports := handlers.NewReportsHandler(d.Reports, d.Publisher, d.UserID, log)
	jobsH := handlers.NewJobsHandler(d.Jobs, log)

	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/transactions", transactions.List).Methods(http.MethodGet)
	api.HandleFunc("/transactions", transactions.Create).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}", transactions.Update).Methods(http.MethodPut)
	api.HandleFunc("/transactions/{id}", transactions.Delete).Methods(http.MethodDelete)

	api.HandleFunc("/budgets", budgets.List).Methods(http.MethodGet)
	api.HandleFunc("/budgets/{category}", budgets.Put).Methods(http.MethodPut)
	api.HandleFunc("/budgets/{category}", budgets.Delete).Methods(http.MethodDelete)

	api.HandleFunc("/goals", goals.List).Methods(http.MethodGet)
	api.HandleFunc("/goals", goals.Create).Methods(http.MethodPost)
	api.HandleFunc("/goals/{id}/contributions", goals.Contribute).Methods(http.MethodPost)
	api.HandleFunc("/goals/{id}", goals.Delete).Methods(http.MethodDelete)

	api.HandleFunc("/categories", categories.List).Methods(http.MethodGet)
	api.HandleFunc("/categories", categories.Create).Methods(http.MethodPost)
	api.HandleFunc("/categories/{id}", categories.Delete).Methods(http.MethodDelete)

	api.HandleFunc("/dashboard", dashboard.Get).Methods(http.MethodGet)

	api.HandleFunc("/sync/status", syncH.Status).Methods(http.MethodGet)
	api.HandleFunc("/sync/drain", syncH.Drain).Methods(http.MethodPost)
	api.HandleFunc("/sync/drop-head", syncH.DropHead).Methods(http.MethodPost)
	api.HandleFunc("/sync/dead-letters", syncH.DeadLetters).Methods(http.MethodGet)
	api.HandleFunc("/sync/dead-letters/{id}/requeue", syncH.Requeue).Methods(http.MethodPost)

	api.HandleFunc("/reports", reports.List).Methods(http.MethodGet)
	api.HandleFunc("/reports", reports.Create).Methods(http.MethodPost)

	api.HandleFunc("/jobs", jobsH.ListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", jobsH.GetJob).Methods(http.MethodGet)

	return middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Auth(d.Token)(r),
				),
			),
		),
	)
}
