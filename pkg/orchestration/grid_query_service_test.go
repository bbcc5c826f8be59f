package orchestration_test

import (
	"context"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdxgrid/evaluator/internal/ast"
	"mdxgrid/evaluator/internal/domain"
	"mdxgrid/evaluator/internal/metaclient"
	"mdxgrid/evaluator/internal/query"
	"mdxgrid/evaluator/internal/resultcache"
	"mdxgrid/evaluator/pkg/orchestration"
)

const (
	cubeGid        domain.Gid = 5_00000000000001
	dimMeasuresGid domain.Gid = 1_00000000000001
	dimRoleMeasGid domain.Gid = 6_00000000000001
	levelMeasGid   domain.Gid = 4_00000000000001
	memberSales    domain.Gid = 3_00000000000001
	memberMeasAll  domain.Gid = 3_00000000000002
)

type fakeMetaCache struct {
	members  map[domain.Gid]domain.Member
	children map[domain.Gid][]domain.Member
}

func (f *fakeMetaCache) GetMember(gid domain.Gid) (domain.Member, error) { return f.members[gid], nil }
func (f *fakeMetaCache) GetLevel(gid domain.Gid) (domain.Level, error) {
	return domain.Level{Gid: gid, DimensionGid: dimMeasuresGid}, nil
}
func (f *fakeMetaCache) GetHierarchyLevel(domain.Gid, int) (domain.Level, error) {
	return domain.Level{}, nil
}
func (f *fakeMetaCache) MembersAtLevel(domain.Gid) ([]domain.Member, error) { return nil, nil }
func (f *fakeMetaCache) AncestorOnLevel(domain.Gid, domain.Gid) (domain.Member, error) {
	return domain.Member{}, nil
}
func (f *fakeMetaCache) ShiftAncestorAndFind(domain.Gid, domain.Gid, int) (domain.Member, error) {
	return domain.Member{}, nil
}
func (f *fakeMetaCache) ChildMembers(gid domain.Gid) ([]domain.Member, error) {
	return f.children[gid], nil
}

type fakeMetaClient struct {
	cube domain.Cube
	meas domain.Member
}

func (f *fakeMetaClient) CubeByGid(context.Context, domain.Gid) (domain.Cube, error) { return f.cube, nil }
func (f *fakeMetaClient) CubeByName(context.Context, string) (domain.Cube, error)    { return f.cube, nil }
func (f *fakeMetaClient) DimensionRolesOfCube(context.Context, domain.Gid) ([]domain.DimensionRole, error) {
	return []domain.DimensionRole{{Gid: dimRoleMeasGid, Name: "Measures", DimensionGid: dimMeasuresGid, IsMeasure: true}}, nil
}
func (f *fakeMetaClient) DimensionRoleByGid(context.Context, domain.Gid) (domain.DimensionRole, error) {
	return domain.DimensionRole{}, nil
}
func (f *fakeMetaClient) DimensionRoleByName(context.Context, domain.Gid, string) (domain.DimensionRole, error) {
	return domain.DimensionRole{}, nil
}
func (f *fakeMetaClient) DefaultMemberOfDimension(context.Context, domain.Gid) (domain.Member, error) {
	return f.meas, nil
}
func (f *fakeMetaClient) MemberByGid(context.Context, domain.Gid) (domain.Member, error) {
	return domain.Member{}, nil
}
func (f *fakeMetaClient) MemberByName(context.Context, domain.Gid, string) (domain.Member, error) {
	return domain.Member{}, nil
}
func (f *fakeMetaClient) AllMembers(context.Context) ([]domain.Member, error) { return nil, nil }
func (f *fakeMetaClient) AllLevels(context.Context) ([]domain.Level, error)   { return nil, nil }
func (f *fakeMetaClient) UserAccessRules(context.Context, string) ([]metaclient.AccessRuleRow, error) {
	return nil, nil
}

type fakeAggregator struct{ calls int }

func (f *fakeAggregator) Aggregate(context.Context, domain.Gid, []domain.Tuple) ([]float64, []bool, error) {
	f.calls++
	return []float64{42}, []bool{false}, nil
}

func buildHandler(t *testing.T, agg *fakeAggregator) (*orchestration.GridQueryServiceHandler, query.Statement) {
	t.Helper()

	all := domain.Member{Gid: memberMeasAll, Name: "All", LevelGid: levelMeasGid, LevelOrdinal: 0, FullPath: []domain.Gid{memberMeasAll}}
	meas := domain.Member{Gid: memberSales, Name: "Sales", LevelGid: levelMeasGid, LevelOrdinal: 1, ParentGid: memberMeasAll, FullPath: []domain.Gid{memberMeasAll, memberSales}}
	client := &fakeMetaClient{cube: domain.Cube{Gid: cubeGid, Name: "Sales"}, meas: meas}
	cache := &fakeMetaCache{
		members:  map[domain.Gid]domain.Member{memberMeasAll: all, memberSales: meas},
		children: map[domain.Gid][]domain.Member{memberMeasAll: {meas}},
	}

	driver := query.New(client, cache, agg, query.DefaultConfig())

	l2 := resultcache.NewL2(nil, time.Minute)
	rc, err := resultcache.New(l2, nil, 64, "", "test-node")
	require.NoError(t, err)

	handler := orchestration.NewGridQueryServiceHandler(driver, rc, time.Minute)

	stmt := query.Statement{
		Cube: ast.Segment{Kind: ast.SegGid, Gid: uint64(cubeGid)},
		Axes: []query.AxisSpec{
			// An axis must resolve to a Set: the Measures root's children, {Sales}.
			{Number: 0, Set: ast.NewSegChain(
				ast.Segment{Kind: ast.SegGid, Gid: uint64(memberMeasAll)},
				ast.Segment{Kind: ast.SegSetFunc, SetFunc: &ast.SetFunc{Kind: ast.FnChildren}},
			)},
		},
	}
	return handler, stmt
}

func TestExecute_EvaluatesAndCaches(t *testing.T) {
	agg := &fakeAggregator{}
	handler, stmt := buildHandler(t, agg)

	req := connect.NewRequest(&orchestration.QueryRequest{
		UserName:  "alice",
		MDXText:   "SELECT {[Measures].[Sales]} ON 0 FROM [Sales]",
		Statement: stmt,
	})

	resp, err := handler.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.Msg.FromCache)
	require.Len(t, resp.Msg.Entry.Cells, 1)
	assert.Equal(t, domain.CellDouble, resp.Msg.Entry.Cells[0].Kind)
	assert.Equal(t, 42.0, resp.Msg.Entry.Cells[0].Num)
	assert.Equal(t, 1, agg.calls)

	// Second call with the same request is served from cache; the
	// aggregator must not be invoked again.
	resp2, err := handler.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp2.Msg.FromCache)
	assert.Equal(t, 1, agg.calls)
}
