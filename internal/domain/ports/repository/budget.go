package repository

import "context"

type BudgetDecision struct {
	Allowed   bool
	Remaining int
}

// BudgetLimiter is a fixed-window daily counter. Implementations must fail closed:
// an unreachable counter store is an error, never an implicit allow.
type BudgetLimiter interface {
	Consume(ctx context.Context, key string, dailyLimit int) (BudgetDecision, error)
}
