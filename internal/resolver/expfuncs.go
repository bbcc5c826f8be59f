package resolver

import (
	"fmt"

	"mdxgrid/evaluator/internal/ast"
	"mdxgrid/evaluator/internal/domain"
	"mdxgrid/evaluator/internal/evalctx"
)

// applyExpFunc evaluates an aggregator function: resolve fn.Set to a
// Set of tuples, fold fn.Numeric over each member of the set (merged
// against the ambient slice tuple), and reduce. Null and Invalid
// members are skipped from the fold, matching the original's
// treatment of missing data as identity rather than poison for
// aggregation (as opposed to arithmetic, where Invalid is
// contagious).
func applyExpFunc(fn *ast.ExpFunc, ctx evalctx.Context) (domain.Entity, error) {
	if fn.Kind == ast.FnLookupCube {
		return applyLookupCube(fn, ctx)
	}

	setEntity, err := Materialize(fn.Set, ctx)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("resolver: aggregator set argument: %w", err)
	}
	set, err := setEntity.AsSet()
	if err != nil {
		return domain.Entity{}, fmt.Errorf("resolver: aggregator set argument: %w", err)
	}

	if fn.Kind == ast.FnCount {
		return domain.EntityFromCell(domain.DoubleVal(float64(len(set.Tuples)))), nil
	}

	if fn.Numeric == nil {
		return domain.Entity{}, fmt.Errorf("resolver: aggregator requires a numeric expression argument")
	}

	var (
		sum      float64
		count    int
		min, max float64
		haveMinMax bool
	)
	for _, t := range set.Tuples {
		merged := ctx.SliceTuple.Merge(t)
		v, err := EvalExpression(*fn.Numeric, merged, ctx)
		if err != nil {
			return domain.Entity{}, err
		}
		if v.Kind != domain.CellDouble {
			continue
		}
		sum += v.Num
		count++
		if !haveMinMax || v.Num < min {
			min = v.Num
		}
		if !haveMinMax || v.Num > max {
			max = v.Num
		}
		haveMinMax = true
	}

	switch fn.Kind {
	case ast.FnSum:
		if count == 0 {
			return domain.EntityFromCell(domain.NullVal()), nil
		}
		return domain.EntityFromCell(domain.DoubleVal(sum)), nil
	case ast.FnAvg:
		if count == 0 {
			return domain.EntityFromCell(domain.NullVal()), nil
		}
		return domain.EntityFromCell(domain.DoubleVal(sum / float64(count))), nil
	case ast.FnMin:
		if !haveMinMax {
			return domain.EntityFromCell(domain.NullVal()), nil
		}
		return domain.EntityFromCell(domain.DoubleVal(min)), nil
	case ast.FnMax:
		if !haveMinMax {
			return domain.EntityFromCell(domain.NullVal()), nil
		}
		return domain.EntityFromCell(domain.DoubleVal(max)), nil
	default:
		return domain.Entity{}, fmt.Errorf("resolver: unsupported aggregator %d", fn.Kind)
	}
}

// applyLookupCube resolves fn.CubeSeg to a foreign Cube, builds that
// cube's own default-member context (mirroring the query driver's
// buildDefaultTuple), and evaluates fn.Numeric against it. The foreign
// cube's own calculated members are not visible here: LookupCube
// crosses into base metadata, not into another query's WITH MEMBER
// declarations.
func applyLookupCube(fn *ast.ExpFunc, ctx evalctx.Context) (domain.Entity, error) {
	if fn.CubeSeg == nil {
		return domain.Entity{}, fmt.Errorf("resolver: LookupCube() requires a cube argument")
	}
	if fn.Numeric == nil {
		return domain.Entity{}, fmt.Errorf("resolver: LookupCube() requires an expression argument")
	}

	var (
		cube domain.Cube
		err  error
	)
	switch fn.CubeSeg.Kind {
	case ast.SegGid:
		cube, err = ctx.MetaClnt.CubeByGid(ctx.Ctx, domain.Gid(fn.CubeSeg.Gid))
	case ast.SegStr:
		cube, err = ctx.MetaClnt.CubeByName(ctx.Ctx, fn.CubeSeg.Str)
	default:
		return domain.Entity{}, fmt.Errorf("resolver: LookupCube() cube argument must be a gid or a name, got kind %d", fn.CubeSeg.Kind)
	}
	if err != nil {
		return domain.Entity{}, fmt.Errorf("resolver: LookupCube(): %w", err)
	}

	dimRoles, err := ctx.MetaClnt.DimensionRolesOfCube(ctx.Ctx, cube.Gid)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("resolver: LookupCube(%s): dimension roles: %w", cube.Name, err)
	}

	roles := make([]domain.MemberRole, 0, len(dimRoles))
	for _, dr := range dimRoles {
		member, err := ctx.MetaClnt.DefaultMemberOfDimension(ctx.Ctx, dr.DimensionGid)
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: LookupCube(%s): default member of %s: %w", cube.Name, dr.Name, err)
		}
		roles = append(roles, domain.NewBaseMemberRole(dr, member))
	}
	defaultTuple := domain.NewTuple(roles...)

	foreign := ctx
	foreign.Cube = cube
	foreign.DimRoles = dimRoles
	foreign.SliceTuple = defaultTuple
	foreign.Formulas = map[domain.Gid]domain.MemberRole{}

	v, err := EvalExpression(*fn.Numeric, defaultTuple, foreign)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("resolver: LookupCube(%s): %w", cube.Name, err)
	}
	return domain.EntityFromCell(v), nil
}
