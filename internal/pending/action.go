package pending

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dvloznov/budgetsync/internal/domain"
	"github.com/dvloznov/budgetsync/internal/localstore"
)

// Kind identifies the mutation an action replays against the remote store.
type Kind string

const (
	AddTransaction    Kind = "ADD_TRANSACTION"
	UpdateTransaction Kind = "UPDATE_TRANSACTION"
	DeleteTransaction Kind = "DELETE_TRANSACTION"
	AddGoal           Kind = "ADD_GOAL"
	UpdateGoal        Kind = "UPDATE_GOAL"
	DeleteGoal        Kind = "DELETE_GOAL"
	UpdateBudget      Kind = "UPDATE_BUDGET"
	ReplaceCategories Kind = "UPDATE_CATEGORIES"
)

// Action is one not-yet-acknowledged mutation. Payload is a full snapshot of
// the target entity (or the full category list), never a diff.
type Action struct {
	ID        int64           `json:"id"`
	Kind      Kind            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	UserID    string          `json:"userId"`
	CreatedAt time.Time       `json:"createdAt"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"lastError,omitempty"`
}

// NewAction encodes payload into a new action owned by userID.
func NewAction(kind Kind, userID string, payload any) (*Action, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("NewAction: encode %s payload: %w", kind, err)
	}
	return &Action{Kind: kind, Payload: data, UserID: userID}, nil
}

// Decode unmarshals the payload into v. Failures wrap ErrMalformed.
func (a Action) Decode(v any) error {
	if err := json.Unmarshal(a.Payload, v); err != nil {
		return fmt.Errorf("%w: action %d (%s): %v", ErrMalformed, a.ID, a.Kind, err)
	}
	return nil
}

// Target names the local collection and entity key the action affects. An
// empty key means the action replaces the whole collection.
func (a Action) Target() (collection, key string, err error) {
	switch a.Kind {
	case AddTransaction, UpdateTransaction, DeleteTransaction:
		var t domain.Transaction
		if err := a.Decode(&t); err != nil {
			return "", "", err
		}
		return localstore.Transactions, t.ID, nil
	case AddGoal, UpdateGoal, DeleteGoal:
		var g domain.SavingsGoal
		if err := a.Decode(&g); err != nil {
			return "", "", err
		}
		return localstore.SavingsGoals, g.ID, nil
	case UpdateBudget:
		var b domain.Budget
		if err := a.Decode(&b); err != nil {
			return "", "", err
		}
		return localstore.Budgets, b.Category, nil
	case ReplaceCategories:
		return localstore.Categories, "", nil
	default:
		return "", "", fmt.Errorf("%w: unknown action type %q", ErrMalformed, a.Kind)
	}
}

// IsDelete reports whether applying the action removes its target.
func (a Action) IsDelete() bool {
	switch a.Kind {
	case DeleteTransaction, DeleteGoal:
		return true
	case UpdateBudget:
		var b domain.Budget
		if err := a.Decode(&b); err != nil {
			return false
		}
		return b.IsDeleteRequest()
	}
	return false
}

// DeadLetter is an action removed from the queue because it could not be
// applied. It can be requeued at the tail or purged.
type DeadLetter struct {
	DeadID string    `json:"deadId"`
	Action Action    `json:"action"`
	Reason string    `json:"reason"`
	DeadAt time.Time `json:"deadAt"`
}
