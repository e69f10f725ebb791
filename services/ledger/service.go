package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"meeple-backoffice/pkg/db/option"
	"meeple-backoffice/pkg/db/pagination"
	"meeple-backoffice/pkg/errutil"
	"meeple-backoffice/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service owns the invariant that a Balance and its HistoryEntry are written
// together: every mutation runs in one transaction with the balance row
// locked, and no other component writes either table.
type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	notifier Notifier

	balances repository.Repository[Balance]
	history  repository.Repository[HistoryEntry]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Notifier Notifier `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		notifier: p.Notifier,

		balances: repository.ProvideStore[Balance](p.DB),
		history:  repository.ProvideStore[HistoryEntry](p.DB),
	}
}

func logFields(ctx context.Context) []zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

func balanceQuery(b Beneficiary) *Balance {
	q := &Balance{}
	if b.Kind == KindUser {
		q.UserID = &b.ID
	} else {
		q.ConsumerID = &b.ID
	}
	return q
}

// Grant adds amount to the beneficiary's balance, creating the balance on
// first grant. Non-positive amounts are accepted; callers use them as
// corrections.
func (s *Service) Grant(ctx context.Context, b Beneficiary, amount int64, actorID *int64) (*Balance, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	var out *Balance
	err := s.db.Transaction(func(tx *gorm.DB) error {
		balanceTx := s.balances.WithTrx(tx)

		bal, err := balanceTx.FindOne(ctx, balanceQuery(b), option.WithLockingUpdate())
		if err != nil {
			return err
		}

		now := time.Now()
		if bal == nil {
			bal = s.newBalance(b, amount, now)
			if err := balanceTx.Create(ctx, bal); err != nil {
				return err
			}
		} else {
			bal.Amount += amount
			bal.UpdatedAt = now
			if err := balanceTx.Update(ctx, bal.ID, map[string]any{
				"amount":     bal.Amount,
				"updated_at": now,
			}); err != nil {
				return err
			}
		}

		out = bal
		return s.appendHistory(ctx, tx, bal, StatusGrant, amount, actorID, ContextRefs{})
	})
	if err != nil {
		zap.L().With(logFields(ctx)...).Error("grant failed", zap.Error(err))
		return nil, err
	}

	s.notifyBalanceChanged(ctx, out, StatusGrant, amount)
	return out, nil
}

// Consume redeems points against a purchase. It fails with NotFound when the
// beneficiary has no balance and with InsufficientFunds when amount exceeds
// the current balance, leaving the balance untouched in both cases.
func (s *Service) Consume(ctx context.Context, b Beneficiary, amount int64, refs ContextRefs, actorID *int64) (*Balance, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	var out *Balance
	err := s.db.Transaction(func(tx *gorm.DB) error {
		balanceTx := s.balances.WithTrx(tx)

		bal, err := balanceTx.FindOne(ctx, balanceQuery(b), option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if bal == nil {
			return errutil.NotFound("balance not found")
		}
		if amount > bal.Amount {
			return errutil.InsufficientFunds(
				fmt.Sprintf("insufficient points: need=%d available=%d", amount, bal.Amount))
		}

		now := time.Now()
		bal.Amount -= amount
		bal.UpdatedAt = now
		if err := balanceTx.Update(ctx, bal.ID, map[string]any{
			"amount":     bal.Amount,
			"updated_at": now,
		}); err != nil {
			return err
		}

		out = bal
		return s.appendHistory(ctx, tx, bal, StatusCollectionCreated, -amount, actorID, refs)
	})
	if err != nil {
		zap.L().With(logFields(ctx)...).Warn("consume failed", zap.Error(err))
		return nil, err
	}

	s.notifyBalanceChanged(ctx, out, StatusCollectionCreated, -amount)
	return out, nil
}

// Refund restores points spent on a cancelled purchase. There is no upper
// bound check; a refund always succeeds, creating the balance if it is gone.
func (s *Service) Refund(ctx context.Context, b Beneficiary, amount int64, refs ContextRefs, actorID *int64) (*Balance, error) {
	var out *Balance
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = s.RefundInTx(ctx, tx, b, amount, refs, actorID)
		return err
	})
	if err != nil {
		zap.L().With(logFields(ctx)...).Error("refund failed", zap.Error(err))
		return nil, err
	}

	s.NotifyRefund(ctx, out, amount)
	return out, nil
}

// RefundInTx applies a refund inside the caller's transaction so the refund
// commits atomically with the caller's own writes. No event is published;
// call NotifyRefund once the transaction has committed.
func (s *Service) RefundInTx(ctx context.Context, tx *gorm.DB, b Beneficiary, amount int64, refs ContextRefs, actorID *int64) (*Balance, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	balanceTx := s.balances.WithTrx(tx)

	bal, err := balanceTx.FindOne(ctx, balanceQuery(b), option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if bal == nil {
		bal = s.newBalance(b, amount, now)
		if err := balanceTx.Create(ctx, bal); err != nil {
			return nil, err
		}
	} else {
		bal.Amount += amount
		bal.UpdatedAt = now
		if err := balanceTx.Update(ctx, bal.ID, map[string]any{
			"amount":     bal.Amount,
			"updated_at": now,
		}); err != nil {
			return nil, err
		}
	}

	if err := s.appendHistory(ctx, tx, bal, StatusCollectionCancelled, amount, actorID, refs); err != nil {
		return nil, err
	}
	return bal, nil
}

// NotifyRefund publishes the balance event for a refund applied through
// RefundInTx after the caller's transaction commits.
func (s *Service) NotifyRefund(ctx context.Context, bal *Balance, amount int64) {
	s.notifyBalanceChanged(ctx, bal, StatusCollectionCancelled, amount)
}

type UpdateParams struct {
	Amount *int64
}

// Update applies an administrative correction to a balance. A history entry
// is written only when the amount actually changes.
func (s *Service) Update(ctx context.Context, balanceID int64, params UpdateParams, actorID *int64) (*Balance, error) {
	var out *Balance
	var changed bool
	var delta int64

	err := s.db.Transaction(func(tx *gorm.DB) error {
		balanceTx := s.balances.WithTrx(tx)

		bal, err := balanceTx.FindOne(ctx, &Balance{ID: balanceID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if bal == nil {
			return errutil.NotFound("balance not found")
		}

		out = bal
		if params.Amount == nil || *params.Amount == bal.Amount {
			return nil
		}

		now := time.Now()
		delta = *params.Amount - bal.Amount
		bal.Amount = *params.Amount
		bal.UpdatedAt = now
		changed = true
		if err := balanceTx.Update(ctx, bal.ID, map[string]any{
			"amount":     bal.Amount,
			"updated_at": now,
		}); err != nil {
			return err
		}

		return s.appendHistory(ctx, tx, bal, StatusUpdate, delta, actorID, ContextRefs{})
	})
	if err != nil {
		zap.L().With(logFields(ctx)...).Error("update failed", zap.Error(err))
		return nil, err
	}

	if changed {
		s.notifyBalanceChanged(ctx, out, StatusUpdate, delta)
	}
	return out, nil
}

// Remove zeroes a balance instead of deleting it, so history rows keep their
// reference. The written entry's delta is the negation of the old amount.
func (s *Service) Remove(ctx context.Context, balanceID int64, actorID *int64) (*Balance, error) {
	var out *Balance
	var delta int64

	err := s.db.Transaction(func(tx *gorm.DB) error {
		balanceTx := s.balances.WithTrx(tx)

		bal, err := balanceTx.FindOne(ctx, &Balance{ID: balanceID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if bal == nil {
			return errutil.NotFound("balance not found")
		}

		now := time.Now()
		delta = -bal.Amount
		bal.Amount = 0
		bal.UpdatedAt = now
		if err := balanceTx.Update(ctx, bal.ID, map[string]any{
			"amount":     int64(0),
			"updated_at": now,
		}); err != nil {
			return err
		}

		out = bal
		return s.appendHistory(ctx, tx, bal, StatusDelete, delta, actorID, ContextRefs{})
	})
	if err != nil {
		zap.L().With(logFields(ctx)...).Error("remove failed", zap.Error(err))
		return nil, err
	}

	s.notifyBalanceChanged(ctx, out, StatusDelete, delta)
	return out, nil
}

func (s *Service) GetBalance(ctx context.Context, b Beneficiary) (*Balance, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	bal, err := s.balances.FindOne(ctx, balanceQuery(b))
	if err != nil {
		zap.L().With(logFields(ctx)...).Error("failed to query balance", zap.Error(err))
		return nil, err
	}
	if bal == nil {
		return nil, errutil.NotFound("balance not found")
	}

	return bal, nil
}

func (s *Service) newBalance(b Beneficiary, amount int64, now time.Time) *Balance {
	bal := &Balance{
		ID:        s.node.Generate().Int64(),
		Amount:    amount,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if b.Kind == KindUser {
		bal.UserID = &b.ID
	} else {
		bal.ConsumerID = &b.ID
	}
	return bal
}

func (s *Service) appendHistory(ctx context.Context, tx *gorm.DB, bal *Balance, status Status, delta int64, actorID *int64, refs ContextRefs) error {
	entry := &HistoryEntry{
		ID:           s.node.Generate().Int64(),
		BalanceID:    bal.ID,
		UserID:       bal.UserID,
		ConsumerID:   bal.ConsumerID,
		ActorID:      actorID,
		OrderID:      refs.OrderID,
		CollectionID: refs.CollectionID,
		TableID:      refs.TableID,
		Status:       status,
		Amount:       bal.Amount,
		Delta:        delta,
		Metadata:     refs.Metadata,
		CreatedAt:    time.Now(),
	}
	return s.history.WithTrx(tx).Create(ctx, entry)
}

func (s *Service) notifyBalanceChanged(ctx context.Context, bal *Balance, status Status, delta int64) {
	if s.notifier == nil || bal == nil {
		return
	}

	event := BalanceEvent{
		BalanceID:   bal.ID,
		Beneficiary: bal.Beneficiary(),
		Amount:      bal.Amount,
		Status:      status,
		Delta:       delta,
		OccurredAt:  time.Now(),
	}

	// Best effort: the mutation is already durable, delivery failures are
	// logged and never surfaced to the caller.
	if err := s.notifier.Notify(ctx, event); err != nil {
		zap.L().With(logFields(ctx)...).Warn("failed to publish balance change",
			zap.Int64("balance_id", bal.ID), zap.Error(err))
	}
}

// HistoryQuery is the filter/sort/page shape of the history listing.
type HistoryQuery struct {
	Beneficiary *Beneficiary
	Statuses    []Status
	After       *time.Time
	Before      *time.Time
	Search      string
	SortBy      string
	OrderBy     string
	Page        pagination.Pagination
}

var historySortColumns = map[string]bool{
	"id":         true,
	"created_at": true,
	"status":     true,
	"amount":     true,
	"delta":      true,
}

// QueryHistory returns one page of history entries joined with beneficiary
// and actor display names, plus the total count across all pages.
func (s *Service) QueryHistory(ctx context.Context, q HistoryQuery) ([]*HistoryView, pagination.PageInfo, error) {
	page := q.Page.Normalize()

	filter := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Table("history_entries AS h").
			Joins("LEFT JOIN users AS u ON u.id = h.user_id").
			Joins("LEFT JOIN consumers AS c ON c.id = h.consumer_id").
			Joins("LEFT JOIN users AS a ON a.id = h.actor_id")

		if q.Beneficiary != nil {
			if q.Beneficiary.Kind == KindUser {
				tx = tx.Where("h.user_id = ?", q.Beneficiary.ID)
			} else {
				tx = tx.Where("h.consumer_id = ?", q.Beneficiary.ID)
			}
		}
		if len(q.Statuses) > 0 {
			tx = tx.Where("h.status IN ?", q.Statuses)
		}
		if q.After != nil {
			tx = option.Apply(tx, option.ApplyOperator(option.Condition{
				Field: "h.created_at", Operator: option.GTE, Value: *q.After,
			}))
		}
		if q.Before != nil {
			tx = option.Apply(tx, option.ApplyOperator(option.Condition{
				Field: "h.created_at", Operator: option.LTE, Value: *q.Before,
			}))
		}
		if q.Search != "" {
			needle := "%" + strings.ToLower(q.Search) + "%"
			tx = tx.Where(
				"LOWER(u.display_name) LIKE ? OR LOWER(c.display_name) LIKE ? OR LOWER(a.display_name) LIKE ? OR LOWER(h.status) LIKE ?",
				needle, needle, needle, needle,
			)
		}
		return tx
	}

	var total int64
	if err := filter(s.db.WithContext(ctx)).Count(&total).Error; err != nil {
		zap.L().With(logFields(ctx)...).Error("failed to count history", zap.Error(err))
		return nil, pagination.PageInfo{}, err
	}

	column := q.SortBy
	if column == "" || !historySortColumns[column] {
		column = "created_at"
	}
	order := "DESC"
	if strings.EqualFold(q.OrderBy, "asc") {
		order = "ASC"
	}

	var entries []*HistoryView
	err := filter(s.db.WithContext(ctx)).
		Select("h.*, COALESCE(u.display_name, c.display_name, '') AS beneficiary_name, COALESCE(a.display_name, '') AS actor_name").
		Order(fmt.Sprintf("h.%s %s", column, order)).
		Offset(page.Offset()).
		Limit(page.Limit).
		Scan(&entries).Error
	if err != nil {
		zap.L().With(logFields(ctx)...).Error("failed to query history", zap.Error(err))
		return nil, pagination.PageInfo{}, err
	}

	return entries, pagination.BuildPageInfo(page, total), nil
}
