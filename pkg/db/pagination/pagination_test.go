package pagination

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	p := Pagination{}.Normalize()
	require.Equal(t, 1, p.Page)
	require.Equal(t, 10, p.Limit)

	p = Pagination{Page: -3, Limit: 9999}.Normalize()
	require.Equal(t, 1, p.Page)
	require.Equal(t, 250, p.Limit)
}

func TestOffset(t *testing.T) {
	require.Equal(t, 0, Pagination{Page: 1, Limit: 10}.Offset())
	require.Equal(t, 10, Pagination{Page: 2, Limit: 10}.Offset())
	require.Equal(t, 50, Pagination{Page: 6, Limit: 10}.Offset())
}

func TestBuildPageInfo(t *testing.T) {
	info := BuildPageInfo(Pagination{Page: 2, Limit: 10}, 25)
	require.Equal(t, int64(25), info.TotalNumber)
	require.Equal(t, 3, info.TotalPages)
	require.Equal(t, 2, info.Page)

	info = BuildPageInfo(Pagination{Page: 1, Limit: 10}, 30)
	require.Equal(t, 3, info.TotalPages)

	info = BuildPageInfo(Pagination{Page: 1, Limit: 10}, 0)
	require.Equal(t, 0, info.TotalPages)
	require.Equal(t, int64(0), info.TotalNumber)
}
