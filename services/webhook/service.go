package webhook

import (
	"context"
	"encoding/json"
	"time"

	"meeple-backoffice/pkg/errutil"
	"meeple-backoffice/pkg/repository"
	"meeple-backoffice/pkg/task"
	"meeple-backoffice/services/ledger"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	logs     repository.Repository[WebhookLog]
	ledger   *ledger.Service
	enqueuer task.Enqueuer
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Ledger   *ledger.Service
	Enqueuer task.Enqueuer `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		logs:     repository.ProvideStore[WebhookLog](p.DB),
		ledger:   p.Ledger,
		enqueuer: p.Enqueuer,
	}
}

// ReceiveOrderCancelled records a cancellation webhook and queues the refund
// work. A redelivery of an already-seen (provider, order, event) tuple is a
// no-op and returns the original log.
func (s *Service) ReceiveOrderCancelled(ctx context.Context, provider Provider, payload OrderCancelledPayload) (*WebhookLog, bool, error) {
	if payload.OrderNumber == "" {
		return nil, false, errutil.BadRequest("order_number is required")
	}

	existing, err := s.logs.FindOne(ctx, &WebhookLog{
		Provider:    provider,
		OrderNumber: payload.OrderNumber,
		EventType:   EventOrderCancelled,
	})
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		zap.L().Info("duplicate webhook dropped",
			zap.String("provider", string(provider)),
			zap.String("order_number", payload.OrderNumber))
		return existing, false, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, false, errutil.BadRequest("invalid webhook payload", errutil.WithErr(err))
	}

	log := &WebhookLog{
		ID:          s.node.Generate().Int64(),
		Provider:    provider,
		OrderNumber: payload.OrderNumber,
		EventType:   EventOrderCancelled,
		Payload:     body,
		CreatedAt:   time.Now(),
	}
	if err := s.logs.Create(ctx, log); err != nil {
		return nil, false, err
	}

	if err := s.enqueueProcessing(ctx, log.ID); err != nil {
		// The log row is durable; a lost task is recovered by re-enqueueing,
		// not by failing the webhook response.
		zap.L().Error("failed to enqueue cancellation task",
			zap.Int64("webhook_log_id", log.ID), zap.Error(err))
	}

	return log, true, nil
}

func (s *Service) enqueueProcessing(ctx context.Context, logID int64) error {
	if s.enqueuer == nil {
		return s.ProcessOrderCancelled(ctx, logID)
	}

	body, err := json.Marshal(OrderCancelledTask{WebhookLogID: logID})
	if err != nil {
		return err
	}

	_, err = s.enqueuer.Enqueue(ctx, asynq.NewTask(TypeOrderCancelled, body), asynq.Queue("critical"))
	return err
}

// ProcessOrderCancelled refunds the points the cancelled order spent and
// stamps the log processed. The stamp and the refund share one transaction:
// a redelivered task either sees the stamp or retries a change that never
// committed, so no order is refunded twice.
func (s *Service) ProcessOrderCancelled(ctx context.Context, logID int64) error {
	log, err := s.logs.FindOne(ctx, &WebhookLog{ID: logID})
	if err != nil {
		return err
	}
	if log == nil {
		return errutil.NotFound("webhook log not found")
	}
	if log.ProcessedAt != nil {
		return nil
	}

	var payload OrderCancelledPayload
	if err := json.Unmarshal(log.Payload, &payload); err != nil {
		return errutil.Internal("corrupt webhook payload", errutil.WithErr(err))
	}

	var refunded *ledger.Balance
	err = s.db.Transaction(func(tx *gorm.DB) error {
		claim := tx.Model(&WebhookLog{}).
			Where("id = ? AND processed_at IS NULL", log.ID).
			Update("processed_at", time.Now())
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			// A concurrent delivery already claimed the row.
			return nil
		}

		if payload.PointsSpent > 0 {
			b, err := ledger.BeneficiaryFrom(payload.UserID, payload.ConsumerID)
			if err != nil {
				return err
			}

			refs := ledger.ContextRefs{OrderID: payload.OrderID, Metadata: log.Payload}
			refunded, err = s.ledger.RefundInTx(ctx, tx, b, payload.PointsSpent, refs, nil)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	if refunded != nil {
		s.ledger.NotifyRefund(ctx, refunded, payload.PointsSpent)
	}
	return nil
}

// HandleOrderCancelledTask is the asynq handler for TypeOrderCancelled.
func (s *Service) HandleOrderCancelledTask(ctx context.Context, t *asynq.Task) error {
	var payload OrderCancelledTask
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}

	zap.L().Info("processing cancellation webhook",
		zap.String("task_type", t.Type()),
		zap.Int64("webhook_log_id", payload.WebhookLogID))

	return s.ProcessOrderCancelled(ctx, payload.WebhookLogID)
}
