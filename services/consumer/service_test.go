package consumer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"meeple-backoffice/pkg/db/pagination"
	"meeple-backoffice/pkg/errutil"
	"meeple-backoffice/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &Consumer{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node})
}

func TestCreateAndGet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cons, err := svc.Create(ctx, CreateParams{DisplayName: "Walk-in Friday"})
	require.NoError(t, err)
	require.NotZero(t, cons.ID)

	got, err := svc.Get(ctx, cons.ID)
	require.NoError(t, err)
	require.Equal(t, "Walk-in Friday", got.DisplayName)
}

func TestCreateRequiresDisplayName(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Create(context.Background(), CreateParams{Phone: "+90 555 000 0000"})
	require.Error(t, err)
}

func TestCreateDuplicatePhone(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateParams{DisplayName: "First", Phone: "+90 555 111 2233"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateParams{DisplayName: "Second", Phone: "+90 555 111 2233"})
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusConflict, be.Status())
}

func TestPhonelessConsumersMayRepeat(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateParams{DisplayName: "Table 4"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateParams{DisplayName: "Table 5"})
	require.NoError(t, err)
}

func TestUpdateAndDelete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cons, err := svc.Create(ctx, CreateParams{DisplayName: "Regular"})
	require.NoError(t, err)

	phone := "+90 555 999 8877"
	updated, err := svc.Update(ctx, cons.ID, UpdateParams{Phone: &phone})
	require.NoError(t, err)
	require.Equal(t, phone, updated.Phone)

	require.NoError(t, svc.Delete(ctx, cons.ID))

	_, err = svc.Get(ctx, cons.ID)
	require.Error(t, err)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotFound, be.Status())
}

func TestListPagination(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := svc.Create(ctx, CreateParams{DisplayName: fmt.Sprintf("Guest %d", i)})
		require.NoError(t, err)
	}

	consumers, pageInfo, err := svc.List(ctx, pagination.Pagination{Page: 1, Limit: 5})
	require.NoError(t, err)
	require.Len(t, consumers, 5)
	require.Equal(t, int64(7), pageInfo.TotalNumber)
	require.Equal(t, 2, pageInfo.TotalPages)
}
