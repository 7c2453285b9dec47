package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dvloznov/budgetsync/internal/analytics"
	"github.com/dvloznov/budgetsync/internal/api/middleware"
	"github.com/dvloznov/budgetsync/internal/domain"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Ledger is the read/write surface of a dataaccess.Session.
type Ledger interface {
	Transactions(ctx context.Context) ([]domain.Transaction, error)
	Budgets(ctx context.Context) ([]domain.Budget, error)
	Goals(ctx context.Context) ([]domain.SavingsGoal, error)
	Categories(ctx context.Context) ([]domain.Category, error)
	Dashboard(ctx context.Context, now time.Time) (analytics.Derived, error)

	AddTransaction(ctx context.Context, t domain.Transaction) (domain.Transaction, error)
	UpdateTransaction(ctx context.Context, t domain.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	AddSavingsGoal(ctx context.Context, g domain.SavingsGoal) (domain.SavingsGoal, error)
	AddToSavings(ctx context.Context, id string, amount decimal.Decimal) (domain.SavingsGoal, error)
	DeleteSavingsGoal(ctx context.Context, id string) error
	UpdateBudget(ctx context.Context, category string, limit decimal.Decimal) error
	DeleteBudget(ctx context.Context, category string) error
	AddCategory(ctx context.Context, name, icon, color string) (domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// TransactionsHandler handles /api/transactions.
type TransactionsHandler struct {
	ledger Ledger
	log    zerolog.Logger
}

func NewTransactionsHandler(ledger Ledger, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{ledger: ledger, log: log}
}

// List handles GET /api/transactions. Optional start_date and end_date
// (YYYY-MM-DD, inclusive) narrow the result.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	var from, to time.Time
	query := r.URL.Query()
	if s := query.Get("start_date"); s != "" {
		d, err := time.Parse(time.DateOnly, s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid start_date format")
			return
		}
		from = d
	}
	if s := query.Get("end_date"); s != "" {
		d, err := time.Parse(time.DateOnly, s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid end_date format")
			return
		}
		to = d.AddDate(0, 0, 1)
	}

	txns, err := h.ledger.Transactions(r.Context())
	if err != nil {
		writeErr(w, h.log, err, "Failed to list transactions")
		return
	}
	out := make([]domain.Transaction, 0, len(txns))
	for _, t := range txns {
		if !from.IsZero() && t.Date.Before(from) {
			continue
		}
		if !to.IsZero() && !t.Date.Before(to) {
			continue
		}
		out = append(out, t)
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

// Create handles POST /api/transactions.
func (h *TransactionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var t domain.Transaction
	if !decode(w, r, &t) {
		return
	}
	created, err := h.ledger.AddTransaction(r.Context(), t)
	if err != nil {
		writeErr(w, h.log, err, "Failed to add transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, created)
}

// Update handles PUT /api/transactions/{id}.
func (h *TransactionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var t domain.Transaction
	if !decode(w, r, &t) {
		return
	}
	t.ID = mux.Vars(r)["id"]
	if err := h.ledger.UpdateTransaction(r.Context(), t); err != nil {
		writeErr(w, h.log, err, "Failed to update transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, t)
}

// Delete handles DELETE /api/transactions/{id}.
func (h *TransactionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.DeleteTransaction(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeErr(w, h.log, err, "Failed to delete transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BudgetsHandler handles /api/budgets.
type BudgetsHandler struct {
	ledger Ledger
	log    zerolog.Logger
}

func NewBudgetsHandler(ledger Ledger, log zerolog.Logger) *BudgetsHandler {
	return &BudgetsHandler{ledger: ledger, log: log}
}

func (h *BudgetsHandler) List(w http.ResponseWriter, r *http.Request) {
	budgets, err := h.ledger.Budgets(r.Context())
	if err != nil {
		writeErr(w, h.log, err, "Failed to list budgets")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, budgets)
}

// Put handles PUT /api/budgets/{category}. A limit of -1 deletes the budget.
func (h *BudgetsHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Limit decimal.Decimal `json:"limit"`
	}
	if !decode(w, r, &req) {
		return
	}
	category := mux.Vars(r)["category"]
	if err := h.ledger.UpdateBudget(r.Context(), category, req.Limit); err != nil {
		writeErr(w, h.log, err, "Failed to update budget")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, domain.Budget{Category: category, Limit: req.Limit})
}

func (h *BudgetsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.DeleteBudget(r.Context(), mux.Vars(r)["category"]); err != nil {
		writeErr(w, h.log, err, "Failed to delete budget")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GoalsHandler handles /api/goals.
type GoalsHandler struct {
	ledger Ledger
	log    zerolog.Logger
}

func NewGoalsHandler(ledger Ledger, log zerolog.Logger) *GoalsHandler {
	return &GoalsHandler{ledger: ledger, log: log}
}

func (h *GoalsHandler) List(w http.ResponseWriter, r *http.Request) {
	goals, err := h.ledger.Goals(r.Context())
	if err != nil {
		writeErr(w, h.log, err, "Failed to list savings goals")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, goals)
}

func (h *GoalsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var g domain.SavingsGoal
	if !decode(w, r, &g) {
		return
	}
	created, err := h.ledger.AddSavingsGoal(r.Context(), g)
	if err != nil {
		writeErr(w, h.log, err, "Failed to add savings goal")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, created)
}

// Contribute handles POST /api/goals/{id}/contributions.
func (h *GoalsHandler) Contribute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	g, err := h.ledger.AddToSavings(r.Context(), mux.Vars(r)["id"], req.Amount)
	if err != nil {
		writeErr(w, h.log, err, "Failed to add to savings goal")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, g)
}

func (h *GoalsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.DeleteSavingsGoal(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeErr(w, h.log, err, "Failed to delete savings goal")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CategoriesHandler handles /api/categories.
type CategoriesHandler struct {
	ledger Ledger
	log    zerolog.Logger
}

func NewCategoriesHandler(ledger Ledger, log zerolog.Logger) *CategoriesHandler {
	return &CategoriesHandler{ledger: ledger, log: log}
}

func (h *CategoriesHandler) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.ledger.Categories(r.Context())
	if err != nil {
		writeErr(w, h.log, err, "Failed to list categories")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

func (h *CategoriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Icon  string `json:"icon"`
		Color string `json:"color"`
	}
	if !decode(w, r, &req) {
		return
	}
	c, err := h.ledger.AddCategory(r.Context(), req.Name, req.Icon, req.Color)
	if err != nil {
		writeErr(w, h.log, err, "Failed to add category")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, c)
}

// Delete handles DELETE /api/categories/{id}. Transactions and budgets that
// name the category are left untouched.
func (h *CategoriesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.DeleteCategory(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeErr(w, h.log, err, "Failed to delete category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DashboardHandler serves derived state.
type DashboardHandler struct {
	ledger Ledger
	now    func() time.Time
	log    zerolog.Logger
}

func NewDashboardHandler(ledger Ledger, now func() time.Time, log zerolog.Logger) *DashboardHandler {
	if now == nil {
		now = time.Now
	}
	return &DashboardHandler{ledger: ledger, now: now, log: log}
}

// Get handles GET /api/dashboard.
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.ledger.Dashboard(r.Context(), h.now())
	if err != nil {
		writeErr(w, h.log, err, "Failed to compute dashboard")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, d)
}
