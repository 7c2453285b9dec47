package localstore

import "github.com/dvloznov/budgetsync/internal/domain"

// Entities groups the typed entity collections with their keying scheme:
// transactions and goals by id, budgets by category name, categories by id.
type Entities struct {
	Transactions *Collection[domain.Transaction]
	Budgets      *Collection[domain.Budget]
	Goals        *Collection[domain.SavingsGoal]
	Categories   *Collection[domain.Category]
}

// NewEntities binds the entity collections to store.
func NewEntities(store Store) *Entities {
	return &Entities{
		Transactions: NewCollection(store, Transactions, func(t domain.Transaction) string { return t.ID }),
		Budgets:      NewCollection(store, Budgets, func(b domain.Budget) string { return b.Category }),
		Goals:        NewCollection(store, SavingsGoals, func(g domain.SavingsGoal) string { return g.ID }),
		Categories:   NewCollection(store, Categories, func(c domain.Category) string { return c.ID }),
	}
}
