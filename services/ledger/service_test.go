package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"meeple-backoffice/pkg/db/pagination"
	"meeple-backoffice/pkg/errutil"
	"meeple-backoffice/services/consumer"
	"meeple-backoffice/services/testutil"
	"meeple-backoffice/services/user"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type recordingNotifier struct {
	events []BalanceEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event BalanceEvent) error {
	n.events = append(n.events, event)
	return n.err
}

func newTestService(t *testing.T, notifier Notifier) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t,
		&user.User{},
		&consumer.Consumer{},
		&Balance{},
		&HistoryEntry{},
	)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node, Notifier: notifier}), db
}

func historyFor(t *testing.T, db *gorm.DB, balanceID int64) []HistoryEntry {
	t.Helper()

	var entries []HistoryEntry
	require.NoError(t, db.Where("balance_id = ?", balanceID).Order("created_at asc, id asc").Find(&entries).Error)
	return entries
}

func TestGrantCreatesBalanceAndHistory(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx := context.Background()

	bal, err := svc.Grant(ctx, ForUser(42), 100, nil)
	require.NoError(t, err)
	require.Equal(t, int64(100), bal.Amount)
	require.NotNil(t, bal.UserID)
	require.Equal(t, int64(42), *bal.UserID)
	require.Nil(t, bal.ConsumerID)

	entries := historyFor(t, db, bal.ID)
	require.Len(t, entries, 1)
	require.Equal(t, StatusGrant, entries[0].Status)
	require.Equal(t, int64(100), entries[0].Delta)
	require.Equal(t, int64(100), entries[0].Amount)
}

func TestGrantAccumulatesOnSingleBalance(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx := context.Background()

	first, err := svc.Grant(ctx, ForConsumer(7), 50, nil)
	require.NoError(t, err)

	second, err := svc.Grant(ctx, ForConsumer(7), 25, nil)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, int64(75), second.Amount)

	var count int64
	require.NoError(t, db.Model(&Balance{}).Where("consumer_id = ?", 7).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestGrantPermitsNonPositiveAmounts(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Grant(ctx, ForUser(1), 100, nil)
	require.NoError(t, err)

	bal, err := svc.Grant(ctx, ForUser(1), -40, nil)
	require.NoError(t, err)
	require.Equal(t, int64(60), bal.Amount)
}

func TestConsumeRefundScenario(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx := context.Background()
	orderID := int64(9001)

	bal, err := svc.Grant(ctx, ForUser(42), 100, nil)
	require.NoError(t, err)
	require.Equal(t, int64(100), bal.Amount)

	bal, err = svc.Consume(ctx, ForUser(42), 30, ContextRefs{OrderID: &orderID}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(70), bal.Amount)

	_, err = svc.Consume(ctx, ForUser(42), 1000, ContextRefs{}, nil)
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusInsufficientFunds, be.Status())

	unchanged, err := svc.GetBalance(ctx, ForUser(42))
	require.NoError(t, err)
	require.Equal(t, int64(70), unchanged.Amount)

	bal, err = svc.Refund(ctx, ForUser(42), 30, ContextRefs{OrderID: &orderID}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(100), bal.Amount)

	entries := historyFor(t, db, bal.ID)
	require.Len(t, entries, 3)

	require.Equal(t, StatusGrant, entries[0].Status)
	require.Equal(t, int64(100), entries[0].Delta)
	require.Equal(t, int64(100), entries[0].Amount)

	require.Equal(t, StatusCollectionCreated, entries[1].Status)
	require.Equal(t, int64(-30), entries[1].Delta)
	require.Equal(t, int64(70), entries[1].Amount)
	require.NotNil(t, entries[1].OrderID)
	require.Equal(t, orderID, *entries[1].OrderID)

	require.Equal(t, StatusCollectionCancelled, entries[2].Status)
	require.Equal(t, int64(30), entries[2].Delta)
	require.Equal(t, int64(100), entries[2].Amount)
}

func TestConsumeWithoutBalance(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.Consume(context.Background(), ForUser(404), 10, ContextRefs{}, nil)
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotFound, be.Status())
}

func TestUpdateWritesHistoryOnlyWhenAmountChanges(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx := context.Background()
	actor := int64(5)

	bal, err := svc.Grant(ctx, ForUser(8), 100, nil)
	require.NoError(t, err)

	newAmount := int64(130)
	updated, err := svc.Update(ctx, bal.ID, UpdateParams{Amount: &newAmount}, &actor)
	require.NoError(t, err)
	require.Equal(t, int64(130), updated.Amount)

	entries := historyFor(t, db, bal.ID)
	require.Len(t, entries, 2)
	require.Equal(t, StatusUpdate, entries[1].Status)
	require.Equal(t, int64(30), entries[1].Delta)
	require.Equal(t, int64(130), entries[1].Amount)
	require.NotNil(t, entries[1].ActorID)
	require.Equal(t, actor, *entries[1].ActorID)

	// Same amount again: no new history entry.
	_, err = svc.Update(ctx, bal.ID, UpdateParams{Amount: &newAmount}, &actor)
	require.NoError(t, err)
	require.Len(t, historyFor(t, db, bal.ID), 2)
}

func TestUpdateMissingBalance(t *testing.T) {
	svc, _ := newTestService(t, nil)

	amount := int64(1)
	_, err := svc.Update(context.Background(), 12345, UpdateParams{Amount: &amount}, nil)
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotFound, be.Status())
}

func TestRemoveZeroesBalance(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx := context.Background()

	bal, err := svc.Grant(ctx, ForUser(3), 250, nil)
	require.NoError(t, err)

	removed, err := svc.Remove(ctx, bal.ID, nil)
	require.NoError(t, err)
	require.Equal(t, int64(0), removed.Amount)

	// The record survives removal so history keeps a valid reference.
	var stored Balance
	require.NoError(t, db.First(&stored, "id = ?", bal.ID).Error)
	require.Equal(t, int64(0), stored.Amount)

	entries := historyFor(t, db, bal.ID)
	require.Len(t, entries, 2)
	require.Equal(t, StatusDelete, entries[1].Status)
	require.Equal(t, int64(-250), entries[1].Delta)
	require.Equal(t, int64(0), entries[1].Amount)
}

func TestReconciliationInvariant(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx := context.Background()
	b := ForConsumer(99)

	_, err := svc.Grant(ctx, b, 100, nil)
	require.NoError(t, err)
	_, err = svc.Consume(ctx, b, 40, ContextRefs{}, nil)
	require.NoError(t, err)
	_, err = svc.Refund(ctx, b, 15, ContextRefs{}, nil)
	require.NoError(t, err)
	_, err = svc.Grant(ctx, b, -5, nil)
	require.NoError(t, err)

	bal, err := svc.GetBalance(ctx, b)
	require.NoError(t, err)

	var sum int64
	require.NoError(t, db.Model(&HistoryEntry{}).
		Where("balance_id = ?", bal.ID).
		Select("COALESCE(SUM(delta), 0)").Scan(&sum).Error)

	require.Equal(t, bal.Amount, sum)
}

func TestRefundWithoutBalanceCreatesOne(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx := context.Background()

	bal, err := svc.Refund(ctx, ForUser(77), 20, ContextRefs{}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(20), bal.Amount)

	entries := historyFor(t, db, bal.ID)
	require.Len(t, entries, 1)
	require.Equal(t, StatusCollectionCancelled, entries[0].Status)
}

func TestNotifierFailureDoesNotFailMutation(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("socket gone")}
	svc, _ := newTestService(t, notifier)

	bal, err := svc.Grant(context.Background(), ForUser(11), 10, nil)
	require.NoError(t, err)
	require.Equal(t, int64(10), bal.Amount)
	require.Len(t, notifier.events, 1)
}

func TestNotifierReceivesEvents(t *testing.T) {
	notifier := &recordingNotifier{}
	svc, _ := newTestService(t, notifier)
	ctx := context.Background()

	_, err := svc.Grant(ctx, ForUser(11), 100, nil)
	require.NoError(t, err)
	_, err = svc.Consume(ctx, ForUser(11), 10, ContextRefs{}, nil)
	require.NoError(t, err)

	require.Len(t, notifier.events, 2)
	require.Equal(t, StatusGrant, notifier.events[0].Status)
	require.Equal(t, int64(100), notifier.events[0].Delta)
	require.Equal(t, StatusCollectionCreated, notifier.events[1].Status)
	require.Equal(t, int64(-10), notifier.events[1].Delta)
	require.Equal(t, int64(90), notifier.events[1].Amount)
	require.Equal(t, ForUser(11), notifier.events[1].Beneficiary)
}

func TestFailedConsumeEmitsNoEvent(t *testing.T) {
	notifier := &recordingNotifier{}
	svc, _ := newTestService(t, notifier)

	_, err := svc.Consume(context.Background(), ForUser(1), 10, ContextRefs{}, nil)
	require.Error(t, err)
	require.Empty(t, notifier.events)
}

func TestQueryHistoryPagination(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := svc.Grant(ctx, ForUser(42), int64(i+1), nil)
		require.NoError(t, err)
	}

	b := ForUser(42)
	entries, pageInfo, err := svc.QueryHistory(ctx, HistoryQuery{
		Beneficiary: &b,
		Page:        pagination.Pagination{Page: 2, Limit: 10},
	})
	require.NoError(t, err)
	require.Len(t, entries, 10)
	require.Equal(t, int64(25), pageInfo.TotalNumber)
	require.Equal(t, 3, pageInfo.TotalPages)
	require.Equal(t, 2, pageInfo.Page)
}

func TestQueryHistoryFilters(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx := context.Background()

	alice := &user.User{ID: 42, DisplayName: "Alice Meyer", Email: "alice@example.com", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, db.Create(alice).Error)
	walkIn := &consumer.Consumer{ID: 7, DisplayName: "Walk-in Bob", Phone: "555-0001", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, db.Create(walkIn).Error)

	_, err := svc.Grant(ctx, ForUser(42), 100, nil)
	require.NoError(t, err)
	_, err = svc.Consume(ctx, ForUser(42), 30, ContextRefs{}, nil)
	require.NoError(t, err)
	_, err = svc.Grant(ctx, ForConsumer(7), 50, nil)
	require.NoError(t, err)

	// Status filter.
	entries, pageInfo, err := svc.QueryHistory(ctx, HistoryQuery{
		Statuses: []Status{StatusCollectionCreated},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(1), pageInfo.TotalNumber)
	require.Equal(t, StatusCollectionCreated, entries[0].Status)
	require.Equal(t, "Alice Meyer", entries[0].BeneficiaryName)

	// Free-text search over display names, case-insensitive.
	entries, _, err = svc.QueryHistory(ctx, HistoryQuery{Search: "walk-in"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "Walk-in Bob", entries[0].BeneficiaryName)

	// Beneficiary filter.
	b := ForUser(42)
	entries, _, err = svc.QueryHistory(ctx, HistoryQuery{Beneficiary: &b})
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestQueryHistoryDateRange(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Grant(ctx, ForUser(1), 10, nil)
	require.NoError(t, err)

	// Age the first entry so the range filter can exclude it.
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, db.Model(&HistoryEntry{}).Where("1 = 1").Update("created_at", old).Error)

	_, err = svc.Grant(ctx, ForUser(1), 20, nil)
	require.NoError(t, err)

	after := time.Now().Add(-time.Hour)
	entries, _, err := svc.QueryHistory(ctx, HistoryQuery{After: &after})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(20), entries[0].Delta)

	before := time.Now().Add(-time.Hour)
	entries, _, err = svc.QueryHistory(ctx, HistoryQuery{Before: &before})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(10), entries[0].Delta)
}

func TestQueryHistorySortAscending(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := svc.Grant(ctx, ForUser(1), int64(i*10), nil)
		require.NoError(t, err)
	}

	entries, _, err := svc.QueryHistory(ctx, HistoryQuery{SortBy: "delta", OrderBy: "asc"})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		require.LessOrEqual(t, entries[i-1].Delta, entries[i].Delta)
	}
}

func TestGetBalanceMissing(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.GetBalance(context.Background(), ForConsumer(1))
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotFound, be.Status())
}

func TestConcurrentConsumesNeverOverspend(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Grant(ctx, ForUser(1), 100, nil)
	require.NoError(t, err)

	// More attempted spend than the balance holds; some calls must fail.
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			_, err := svc.Consume(ctx, ForUser(1), 20, ContextRefs{}, nil)
			results <- err
		}()
	}

	var failures int
	for i := 0; i < 10; i++ {
		if err := <-results; err != nil {
			var be errutil.BaseError
			require.True(t, errors.As(err, &be), fmt.Sprintf("unexpected error: %v", err))
			require.Equal(t, errutil.StatusInsufficientFunds, be.Status())
			failures++
		}
	}
	require.Equal(t, 5, failures)

	bal, err := svc.GetBalance(ctx, ForUser(1))
	require.NoError(t, err)
	require.Equal(t, int64(0), bal.Amount)

	var sum int64
	require.NoError(t, db.Model(&HistoryEntry{}).
		Where("balance_id = ?", bal.ID).
		Select("COALESCE(SUM(delta), 0)").Scan(&sum).Error)
	require.Equal(t, int64(0), sum)
}
