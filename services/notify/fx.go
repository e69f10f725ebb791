package notify

import (
	"meeple-backoffice/pkg/config"
	"meeple-backoffice/services/ledger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("notify",
	fx.Provide(provideNotifier),
)

func provideNotifier(cfg *config.Config, rdb *redis.Client) ledger.Notifier {
	return NewFanout(
		NewRedisNotifier(rdb, cfg.Notify.Channel),
		NewLogNotifier(),
	)
}
