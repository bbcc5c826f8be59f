package resultcache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdxgrid/evaluator/internal/domain"
	"mdxgrid/evaluator/internal/resultcache"
)

func TestNewKeyDeterministic(t *testing.T) {
	k1 := resultcache.NewKey(domain.Gid(500000000000001), "alice", "SELECT {[Measures].[Sales]} ON 0 FROM [Sales]")
	k2 := resultcache.NewKey(domain.Gid(500000000000001), "alice", "SELECT {[Measures].[Sales]} ON 0 FROM [Sales]")
	k3 := resultcache.NewKey(domain.Gid(500000000000001), "bob", "SELECT {[Measures].[Sales]} ON 0 FROM [Sales]")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestNewEntryProjectsAxesAndCells(t *testing.T) {
	dimRole := domain.DimensionRole{Gid: domain.Gid(600000000000001), Name: "Measures", IsMeasure: true}
	member := domain.Member{Gid: domain.Gid(300000000000001), Name: "Sales", LevelOrdinal: 1}
	tuple := domain.NewTuple(domain.NewBaseMemberRole(dimRole, member))

	axes := []resultcache.AxisSnapshot{{Number: 0, Tuples: []domain.Tuple{tuple}}}
	cells := []domain.CellValue{domain.DoubleVal(42)}

	entry := resultcache.NewEntry(1700000000, axes, cells)

	require.Len(t, entry.Axes, 1)
	require.Len(t, entry.Axes[0].Tuples, 1)
	require.Len(t, entry.Axes[0].Tuples[0], 1)
	assert.Equal(t, "Sales", entry.Axes[0].Tuples[0][0].Name)
	assert.Equal(t, member.Gid, entry.Axes[0].Tuples[0][0].MemberGid)

	require.Len(t, entry.Cells, 1)
	assert.Equal(t, domain.CellDouble, entry.Cells[0].Kind)
	assert.Equal(t, 42.0, entry.Cells[0].Num)
}
