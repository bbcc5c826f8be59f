package resolver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdxgrid/evaluator/internal/ast"
	"mdxgrid/evaluator/internal/domain"
	"mdxgrid/evaluator/internal/evalctx"
	"mdxgrid/evaluator/internal/resolver"
)

const (
	cubeGid       domain.Gid = 5_00000000000001
	budgetCubeGid domain.Gid = 5_00000000000002
	dimAGid       domain.Gid = 1_00000000000001
	dimMeasGid    domain.Gid = 1_00000000000002
	dimXGid       domain.Gid = 1_00000000000003
	levelAGid     domain.Gid = 4_00000000000001
	levelMeasGid  domain.Gid = 4_00000000000002
	levelXGid     domain.Gid = 4_00000000000003
	dimRoleAGid   domain.Gid = 6_00000000000001
	dimRoleMeas   domain.Gid = 6_00000000000002
	dimRoleXGid   domain.Gid = 6_00000000000003
	memberParentA domain.Gid = 3_00000000000001
	memberChildA  domain.Gid = 3_00000000000002
	memberSales   domain.Gid = 3_00000000000003
	memberBudgetX domain.Gid = 3_00000000000004
	memberPlan    domain.Gid = 3_00000000000005
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
	cubes        map[domain.Gid]domain.Cube
	dimRoles     map[domain.Gid][]domain.DimensionRole
	defaultByDim map[domain.Gid]domain.Member
}

func (f *fakeMetaClient) CubeByGid(_ context.Context, gid domain.Gid) (domain.Cube, error) {
	return f.cubes[gid], nil
}
func (f *fakeMetaClient) CubeByName(context.Context, string) (domain.Cube, error) {
	return domain.Cube{}, nil
}
func (f *fakeMetaClient) DimensionRolesOfCube(_ context.Context, cubeGid domain.Gid) ([]domain.DimensionRole, error) {
	return f.dimRoles[cubeGid], nil
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

type fakeValuer struct {
	values map[domain.Gid]float64
}

func (f *fakeValuer) Value(_ context.Context, t domain.Tuple) (domain.CellValue, error) {
	for _, r := range t.Roles {
		if !r.IsFormula {
			if v, ok := f.values[r.Member.Gid]; ok {
				return domain.DoubleVal(v), nil
			}
		}
	}
	return domain.NullVal(), nil
}

func buildCtx() evalctx.Context {
	dimRoleA := domain.DimensionRole{Gid: dimRoleAGid, Name: "A", DimensionGid: dimAGid}
	dimRoleMeasures := domain.DimensionRole{Gid: dimRoleMeas, Name: "Measures", DimensionGid: dimMeasGid, IsMeasure: true}
	dimRoleX := domain.DimensionRole{Gid: dimRoleXGid, Name: "X", DimensionGid: dimXGid}

	parentA := domain.Member{Gid: memberParentA, LevelGid: levelAGid, LevelOrdinal: 0}
	childA := domain.Member{Gid: memberChildA, Name: "child", LevelGid: levelAGid, LevelOrdinal: 1, ParentGid: memberParentA}
	sales := domain.Member{Gid: memberSales, Name: "Sales", LevelGid: levelMeasGid, LevelOrdinal: 1}
	budgetX := domain.Member{Gid: memberBudgetX, LevelGid: levelXGid, LevelOrdinal: 0}
	plan := domain.Member{Gid: memberPlan, Name: "Plan", LevelGid: levelMeasGid, LevelOrdinal: 1}

	cache := &fakeMetaCache{
		members: map[domain.Gid]domain.Member{
			memberParentA: parentA, memberChildA: childA, memberSales: sales,
			memberBudgetX: budgetX, memberPlan: plan,
		},
		levels: map[domain.Gid]domain.Level{
			levelAGid:    {Gid: levelAGid, DimensionGid: dimAGid},
			levelMeasGid: {Gid: levelMeasGid, DimensionGid: dimMeasGid},
			levelXGid:    {Gid: levelXGid, DimensionGid: dimXGid},
		},
		children: map[domain.Gid][]domain.Member{
			memberParentA: {childA},
		},
	}

	client := &fakeMetaClient{
		cubes: map[domain.Gid]domain.Cube{
			cubeGid:       {Gid: cubeGid, Name: "Sales"},
			budgetCubeGid: {Gid: budgetCubeGid, Name: "Budget"},
		},
		dimRoles: map[domain.Gid][]domain.DimensionRole{
			cubeGid:       {dimRoleA, dimRoleMeasures},
			budgetCubeGid: {dimRoleX, dimRoleMeasures},
		},
		defaultByDim: map[domain.Gid]domain.Member{
			dimAGid:    parentA,
			dimMeasGid: sales,
			dimXGid:    budgetX,
		},
	}

	return evalctx.Context{
		Ctx:       context.Background(),
		Cube:      domain.Cube{Gid: cubeGid, Name: "Sales"},
		DimRoles:  []domain.DimensionRole{dimRoleA, dimRoleMeasures},
		MetaCache: cache,
		MetaClnt:  client,
		Calc:      &fakeValuer{values: map[domain.Gid]float64{memberPlan: 42}},
	}
}

func TestMaterialize_Children(t *testing.T) {
	ctx := buildCtx()
	chain := ast.NewSegChain(
		ast.Segment{Kind: ast.SegGid, Gid: uint64(memberParentA)},
		ast.Segment{Kind: ast.SegSetFunc, SetFunc: &ast.SetFunc{Kind: ast.FnChildren}},
	)

	entity, err := resolver.Materialize(chain, ctx)
	require.NoError(t, err)
	set, err := entity.AsSet()
	require.NoError(t, err)
	require.Len(t, set.Tuples, 1)
	role, ok := set.Tuples[0].Find(dimRoleAGid)
	require.True(t, ok)
	assert.Equal(t, memberChildA, role.Member.Gid)
}

func TestApplyDimFunc_DimensionAndHierarchy(t *testing.T) {
	ctx := buildCtx()
	for _, kind := range []ast.DimFuncKind{ast.FnDimension, ast.FnHierarchy} {
		chain := ast.NewSegChain(
			ast.Segment{Kind: ast.SegGid, Gid: uint64(memberChildA)},
			ast.Segment{Kind: ast.SegDimFunc, DimFunc: &ast.DimFunc{Kind: kind}},
		)
		entity, err := resolver.Materialize(chain, ctx)
		require.NoError(t, err)
		dr, err := entity.AsDimRole()
		require.NoError(t, err)
		assert.Equal(t, dimRoleAGid, dr.Gid)
	}
}

func TestApplyDimFunc_Dimensions(t *testing.T) {
	ctx := buildCtx()
	chain := ast.NewSegChain(
		ast.Segment{Kind: ast.SegDimFunc, DimFunc: &ast.DimFunc{Kind: ast.FnDimensions, Index: 1}},
	)
	entity, err := resolver.Materialize(chain, ctx)
	require.NoError(t, err)
	dr, err := entity.AsDimRole()
	require.NoError(t, err)
	assert.Equal(t, dimRoleMeas, dr.Gid)
}

func TestApplyDimFunc_DimensionsOutOfRange(t *testing.T) {
	ctx := buildCtx()
	chain := ast.NewSegChain(
		ast.Segment{Kind: ast.SegDimFunc, DimFunc: &ast.DimFunc{Kind: ast.FnDimensions, Index: 5}},
	)
	_, err := resolver.Materialize(chain, ctx)
	assert.Error(t, err)
}

func TestLookupCube_EvaluatesAgainstForeignCubeDefaults(t *testing.T) {
	ctx := buildCtx()
	expr := ast.Expression{
		First: ast.Term{
			First: ast.Factor{
				Kind: ast.FactorSegChain,
				Chain: ast.NewSegChain(
					ast.Segment{
						Kind: ast.SegExpFunc,
						ExpFunc: &ast.ExpFunc{
							Kind:    ast.FnLookupCube,
							CubeSeg: &ast.Segment{Kind: ast.SegGid, Gid: uint64(budgetCubeGid)},
							Numeric: &ast.Expression{
								First: ast.Term{
									First: ast.Factor{
										Kind:  ast.FactorSegChain,
										Chain: ast.NewSegChain(ast.Segment{Kind: ast.SegGid, Gid: uint64(memberPlan)}),
									},
								},
							},
						},
					},
				),
			},
		},
	}

	v, err := resolver.EvalExpression(expr, domain.Tuple{}, ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DoubleVal(42), v)
}
