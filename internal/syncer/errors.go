package syncer

import (
	"fmt"

	"github.com/dvloznov/budgetsync/internal/pending"
)

// RejectedError reports that the remote store refused an action for a
// reason other than connectivity, such as a permission failure.
type RejectedError struct {
	Action pending.Action
	Err    error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("action %d (%s) rejected: %v", e.Action.ID, e.Action.Kind, e.Err)
}

func (e *RejectedError) Unwrap() error { return e.Err }
