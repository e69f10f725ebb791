package ledger

import (
	"context"
	"time"
)

// BalanceEvent is broadcast after every balance mutation.
type BalanceEvent struct {
	BalanceID   int64       `json:"balance_id"`
	Beneficiary Beneficiary `json:"beneficiary"`
	Amount      int64       `json:"amount"`
	Status      Status      `json:"status"`
	Delta       int64       `json:"delta"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// Notifier delivers balance-change events to connected clients. Delivery is
// fire-and-forget; the ledger never fails a mutation over a notify error.
type Notifier interface {
	Notify(ctx context.Context, event BalanceEvent) error
}
