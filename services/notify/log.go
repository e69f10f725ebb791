package notify

import (
	"context"

	"meeple-backoffice/services/ledger"

	"go.uber.org/zap"
)

// LogNotifier records every balance event in the structured log. Used as a
// fanout sink so mutations stay observable even without a pub/sub consumer.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(_ context.Context, event ledger.BalanceEvent) error {
	zap.L().Info("balance changed",
		zap.Int64("balance_id", event.BalanceID),
		zap.String("beneficiary_kind", string(event.Beneficiary.Kind)),
		zap.Int64("beneficiary_id", event.Beneficiary.ID),
		zap.String("status", string(event.Status)),
		zap.Int64("delta", event.Delta),
		zap.Int64("amount", event.Amount),
	)
	return nil
}
