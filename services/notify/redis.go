package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"meeple-backoffice/services/ledger"

	"github.com/redis/go-redis/v9"
)

const defaultChannel = "points.balance.changed"

// RedisNotifier broadcasts balance events on a redis pub/sub channel.
// Connected POS and dashboard clients subscribe through the socket gateway.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
}

func NewRedisNotifier(rdb *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = defaultChannel
	}
	return &RedisNotifier{rdb: rdb, channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, event ledger.BalanceEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal balance event: %w", err)
	}

	if err := n.rdb.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish balance event: %w", err)
	}

	return nil
}
