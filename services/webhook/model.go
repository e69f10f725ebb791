package webhook

import (
	"time"

	"meeple-backoffice/pkg/errutil"

	"gorm.io/datatypes"
)

// Provider is a marketplace that pushes order events at us.
type Provider string

const (
	ProviderHepsiburada Provider = "hepsiburada"
	ProviderTrendyol    Provider = "trendyol"
)

func ParseProvider(raw string) (Provider, error) {
	switch Provider(raw) {
	case ProviderHepsiburada, ProviderTrendyol:
		return Provider(raw), nil
	}
	return "", errutil.BadRequest("unknown marketplace provider")
}

const EventOrderCancelled = "order_cancelled"

// WebhookLog records every received marketplace event. The unique index over
// (provider, order_number, event_type) is the idempotency guard: redelivered
// webhooks find their existing row and are dropped before any side effect.
type WebhookLog struct {
	ID          int64          `gorm:"column:id;primaryKey" json:"id"`
	Provider    Provider       `gorm:"column:provider;uniqueIndex:idx_webhook_event,priority:1" json:"provider"`
	OrderNumber string         `gorm:"column:order_number;uniqueIndex:idx_webhook_event,priority:2" json:"order_number"`
	EventType   string         `gorm:"column:event_type;uniqueIndex:idx_webhook_event,priority:3" json:"event_type"`
	Payload     datatypes.JSON `gorm:"column:payload" json:"payload,omitempty"`
	ProcessedAt *time.Time     `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"created_at"`
}

// TypeOrderCancelled is the asynq task type for deferred cancellation work.
const TypeOrderCancelled = "webhook:order_cancelled"

// OrderCancelledTask is the asynq task payload; the heavy data stays on the
// webhook log row.
type OrderCancelledTask struct {
	WebhookLogID int64 `json:"webhook_log_id"`
}

// OrderCancelledPayload is what the marketplace integration layer extracts
// from the provider-specific webhook body before handing it to us.
type OrderCancelledPayload struct {
	OrderNumber string `json:"order_number"`
	OrderID     *int64 `json:"order_id"`
	UserID      *int64 `json:"user_id"`
	ConsumerID  *int64 `json:"consumer_id"`
	PointsSpent int64  `json:"points_spent"`
}
