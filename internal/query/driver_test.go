package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdxgrid/evaluator/internal/ast"
	"mdxgrid/evaluator/internal/domain"
	"mdxgrid/evaluator/internal/metaclient"
	"mdxgrid/evaluator/internal/query"
)

const (
	cubeGid          domain.Gid = 5_00000000000001
	dimAGid          domain.Gid = 1_00000000000001
	dimBGid          domain.Gid = 1_00000000000002
	dimTimeGid       domain.Gid = 1_00000000000003
	dimMeasuresGid   domain.Gid = 1_00000000000004
	dimRoleAGid      domain.Gid = 6_00000000000001
	dimRoleBGid      domain.Gid = 6_00000000000002
	dimRoleTimeGid   domain.Gid = 6_00000000000003
	dimRoleMeasGid   domain.Gid = 6_00000000000004
	levelAGid        domain.Gid = 4_00000000000001
	levelBGid        domain.Gid = 4_00000000000002
	levelTimeGid     domain.Gid = 4_00000000000003
	levelMeasGid     domain.Gid = 4_00000000000004
	memberParentA    domain.Gid = 3_00000000000001
	memberM1         domain.Gid = 3_00000000000002
	memberM2         domain.Gid = 3_00000000000003
	memberParentB    domain.Gid = 3_00000000000004
	memberN1         domain.Gid = 3_00000000000005
	memberN2         domain.Gid = 3_00000000000006
	memberTime2024   domain.Gid = 3_00000000000007
	memberTimeQ1     domain.Gid = 3_00000000000008
	memberMeasureDft domain.Gid = 3_00000000000009
)

type fakeMetaCache struct {
	members  map[domain.Gid]domain.Member
	levels   map[domain.Gid]domain.Level
	children map[domain.Gid][]domain.Member
}

func (f *fakeMetaCache) GetMember(gid domain.Gid) (domain.Member, error) { return f.members[gid], nil }
func (f *fakeMetaCache) GetLevel(gid domain.Gid) (domain.Level, error)   { return f.levels[gid], nil }
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
	cube         domain.Cube
	dimRoles     []domain.DimensionRole
	defaultByDim map[domain.Gid]domain.Member
	rules        []metaclient.AccessRuleRow
}

func (f *fakeMetaClient) CubeByGid(context.Context, domain.Gid) (domain.Cube, error) { return f.cube, nil }
func (f *fakeMetaClient) CubeByName(context.Context, string) (domain.Cube, error)    { return f.cube, nil }
func (f *fakeMetaClient) DimensionRolesOfCube(context.Context, domain.Gid) ([]domain.DimensionRole, error) {
	return f.dimRoles, nil
}
func (f *fakeMetaClient) DimensionRoleByGid(context.Context, domain.Gid) (domain.DimensionRole, error) {
	return domain.DimensionRole{}, nil
}
func (f *fakeMetaClient) DimensionRoleByName(context.Context, domain.Gid, string) (domain.DimensionRole, error) {
	return domain.DimensionRole{}, nil
}
func (f *fakeMetaClient) DefaultMemberOfDimension(_ context.Context, dimGid domain.Gid) (domain.Member, error) {
	return f.defaultByDim[dimGid], nil
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
	return f.rules, nil
}

// fakeAggregator records every coordinate it was asked to aggregate
// and returns a distinct value per call index.
type fakeAggregator struct {
	calls [][]domain.Tuple
}

func (f *fakeAggregator) Aggregate(_ context.Context, _ domain.Gid, tuples []domain.Tuple) ([]float64, []bool, error) {
	f.calls = append(f.calls, tuples)
	values := make([]float64, len(tuples))
	nulls := make([]bool, len(tuples))
	for i := range tuples {
		values[i] = float64(i + 1)
	}
	return values, nulls, nil
}

func childrenChain(parent domain.Gid) ast.SegChain {
	return ast.NewSegChain(
		ast.Segment{Kind: ast.SegGid, Gid: uint64(parent)},
		ast.Segment{Kind: ast.SegSetFunc, SetFunc: &ast.SetFunc{Kind: ast.FnChildren}},
	)
}

func buildFixture() (*fakeMetaClient, *fakeMetaCache) {
	dimRoleA := domain.DimensionRole{Gid: dimRoleAGid, Name: "A", DimensionGid: dimAGid}
	dimRoleB := domain.DimensionRole{Gid: dimRoleBGid, Name: "B", DimensionGid: dimBGid}
	dimRoleTime := domain.DimensionRole{Gid: dimRoleTimeGid, Name: "Time", DimensionGid: dimTimeGid}
	dimRoleMeas := domain.DimensionRole{Gid: dimRoleMeasGid, Name: "Measures", DimensionGid: dimMeasuresGid, IsMeasure: true}

	parentA := domain.Member{Gid: memberParentA, LevelGid: levelAGid, LevelOrdinal: 0, FullPath: []domain.Gid{memberParentA}}
	m1 := domain.Member{Gid: memberM1, Name: "m1", LevelGid: levelAGid, LevelOrdinal: 1, ParentGid: memberParentA, FullPath: []domain.Gid{memberParentA, memberM1}}
	m2 := domain.Member{Gid: memberM2, Name: "m2", LevelGid: levelAGid, LevelOrdinal: 1, ParentGid: memberParentA, FullPath: []domain.Gid{memberParentA, memberM2}}
	parentB := domain.Member{Gid: memberParentB, LevelGid: levelBGid, LevelOrdinal: 0, FullPath: []domain.Gid{memberParentB}}
	n1 := domain.Member{Gid: memberN1, Name: "n1", LevelGid: levelBGid, LevelOrdinal: 1, ParentGid: memberParentB, FullPath: []domain.Gid{memberParentB, memberN1}}
	n2 := domain.Member{Gid: memberN2, Name: "n2", LevelGid: levelBGid, LevelOrdinal: 1, ParentGid: memberParentB, FullPath: []domain.Gid{memberParentB, memberN2}}
	// time2024 is the dimension's "All" default member, level 0, so an
	// unqualified access grant on it covers every period beneath it.
	time2024 := domain.Member{Gid: memberTime2024, Name: "2024", LevelGid: levelTimeGid, LevelOrdinal: 0, FullPath: []domain.Gid{memberTime2024}}
	timeQ1 := domain.Member{Gid: memberTimeQ1, Name: "2024-Q1", LevelGid: levelTimeGid, LevelOrdinal: 1, ParentGid: memberTime2024, FullPath: []domain.Gid{memberTime2024, memberTimeQ1}}
	measureDefault := domain.Member{Gid: memberMeasureDft, Name: "Sales", LevelGid: levelMeasGid, LevelOrdinal: 1, FullPath: []domain.Gid{memberMeasureDft}}

	cache := &fakeMetaCache{
		members: map[domain.Gid]domain.Member{
			memberParentA: parentA, memberM1: m1, memberM2: m2,
			memberParentB: parentB, memberN1: n1, memberN2: n2,
			memberTime2024: time2024, memberTimeQ1: timeQ1,
			memberMeasureDft: measureDefault,
		},
		levels: map[domain.Gid]domain.Level{
			levelAGid:    {Gid: levelAGid, DimensionGid: dimAGid},
			levelBGid:    {Gid: levelBGid, DimensionGid: dimBGid},
			levelTimeGid: {Gid: levelTimeGid, DimensionGid: dimTimeGid},
			levelMeasGid: {Gid: levelMeasGid, DimensionGid: dimMeasuresGid},
		},
		children: map[domain.Gid][]domain.Member{
			memberParentA: {m1, m2},
			memberParentB: {n1, n2},
		},
	}

	client := &fakeMetaClient{
		cube:     domain.Cube{Gid: cubeGid, Name: "Sales"},
		dimRoles: []domain.DimensionRole{dimRoleA, dimRoleB, dimRoleTime, dimRoleMeas},
		defaultByDim: map[domain.Gid]domain.Member{
			dimAGid:        parentA,
			dimBGid:        parentB,
			dimTimeGid:     time2024,
			dimMeasuresGid: measureDefault,
		},
		rules: []metaclient.AccessRuleRow{
			{DimensionRoleGid: dimRoleAGid, OlapEntityGid: memberParentA, HasAccess: true},
			{DimensionRoleGid: dimRoleBGid, OlapEntityGid: memberParentB, HasAccess: true},
			{DimensionRoleGid: dimRoleTimeGid, OlapEntityGid: memberTime2024, HasAccess: true},
		},
	}

	return client, cache
}

func TestDriver_Execute_BaseGridCartesianOrder(t *testing.T) {
	client, cache := buildFixture()
	agg := &fakeAggregator{}
	driver := query.New(client, cache, agg, query.DefaultConfig())

	stmt := query.Statement{
		Cube: ast.Segment{Kind: ast.SegGid, Gid: uint64(cubeGid)},
		Axes: []query.AxisSpec{
			{Number: 0, Set: childrenChain(memberParentA)},
			{Number: 1, Set: childrenChain(memberParentB)},
		},
	}

	result, err := driver.Execute(context.Background(), "alice", stmt)
	require.NoError(t, err)
	require.Len(t, result.Cells, 4)
	require.Len(t, agg.calls, 1)
	assert.Len(t, agg.calls[0], 4)

	// Row-major Cartesian order: (m1,n1) (m1,n2) (m2,n1) (m2,n2).
	expectOrder := []domain.Gid{memberM1, memberM1, memberM2, memberM2}
	for i, t := range agg.calls[0] {
		role, ok := t.Find(dimRoleAGid)
		require.True(t, ok)
		assert.Equal(t, expectOrder[i], role.Member.Gid)
	}
}

func TestDriver_Execute_WhereOverridesDefault(t *testing.T) {
	client, cache := buildFixture()
	// Pin Time to Q1 via WHERE even though DefaultMemberOfDimension
	// would otherwise supply 2024.
	client.rules = append(client.rules, metaclient.AccessRuleRow{
		DimensionRoleGid: dimRoleTimeGid, OlapEntityGid: memberTimeQ1, HasAccess: true,
	})
	agg := &fakeAggregator{}
	driver := query.New(client, cache, agg, query.DefaultConfig())

	stmt := query.Statement{
		Cube: ast.Segment{Kind: ast.SegGid, Gid: uint64(cubeGid)},
		Axes: []query.AxisSpec{
			{Number: 0, Set: childrenChain(memberParentA)},
		},
		Where: []ast.SegChain{
			ast.NewSegChain(ast.Segment{Kind: ast.SegGid, Gid: uint64(memberTimeQ1)}),
		},
	}

	_, err := driver.Execute(context.Background(), "alice", stmt)
	require.NoError(t, err)
	require.Len(t, agg.calls, 1)
	for _, t := range agg.calls[0] {
		role, ok := t.Find(dimRoleTimeGid)
		require.True(t, ok)
		assert.Equal(t, memberTimeQ1, role.Member.Gid)
	}
}
