package distribution

import (
	"fmt"
	"time"
)

// CompletionHandler retires positions whose full duration has elapsed.
type CompletionHandler struct {
	db       *Database
	executor *Executor
}

func NewCompletionHandler(db *Database, executor *Executor) *CompletionHandler {
	return &CompletionHandler{db: db, executor: executor}
}

// Finalize makes sure every period of an expired position has been paid,
// then transitions it to completed and returns the principal. The executor
// pass runs first because a position can reach its duration boundary in the
// same invocation that distributes its final period. Safe to call any
// number of times: the completion transaction's optimistic status check
// turns a repeat call into a no-op.
func (h *CompletionHandler) Finalize(pos *PositionView, now time.Time) (ExecutionResult, bool, error) {
	result, err := h.executor.Execute(pos, now)
	if err != nil {
		return result, false, err
	}

	distributed, err := h.db.CountFor(pos.PositionID)
	if err != nil {
		return result, false, fmt.Errorf("failed to count distributions: %w", err)
	}
	if distributed < pos.TotalPeriods {
		// The final period must exist before principal is returned.
		return result, false, fmt.Errorf("position %s has %d of %d periods recorded, refusing to complete",
			pos.PositionID, distributed, pos.TotalPeriods)
	}

	completed, err := h.db.CompletePosition(pos, now)
	if err != nil {
		return result, false, fmt.Errorf("failed to complete position: %w", err)
	}
	return result, completed, nil
}
