package notify

import (
	"context"

	"meeple-backoffice/services/ledger"

	"golang.org/x/sync/errgroup"
)

// Fanout delivers an event to every sink. Sinks are independent: one failing
// does not stop the others, and the joined error is reported once.
type Fanout struct {
	sinks []ledger.Notifier
}

func NewFanout(sinks ...ledger.Notifier) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Notify(ctx context.Context, event ledger.BalanceEvent) error {
	// Plain group, no derived context: a failing sink must not cancel the
	// deliveries still running in its siblings.
	var g errgroup.Group
	for _, sink := range f.sinks {
		g.Go(func() error {
			return sink.Notify(ctx, event)
		})
	}
	return g.Wait()
}
