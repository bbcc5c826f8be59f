// Package resolver materializes an ast.SegChain against an
// evalctx.Context into a concrete domain.Entity, and implements the
// member/level/set/aggregate function library that chain segments
// invoke along the way.
package resolver

import (
	"fmt"

	"mdxgrid/evaluator/internal/ast"
	"mdxgrid/evaluator/internal/domain"
	"mdxgrid/evaluator/internal/evalctx"
)

// Materialize walks chain segment by segment, starting from whatever
// the first segment resolves to and threading the running Entity
// through Locate for every remaining segment. A FormulaMember gid as
// the first segment short-circuits straight to its bound expression's
// MemberRole, exactly as the original resolver does: calculated
// members never touch the cube's base metadata.
func Materialize(chain ast.SegChain, ctx evalctx.Context) (domain.Entity, error) {
	first := chain.First()
	entity, err := resolveFirst(first, ctx)
	if err != nil {
		return domain.Entity{}, err
	}

	rest := chain.Rest()
	for rest.Segments != nil && len(rest.Segments) > 0 {
		seg := rest.First()
		entity, err = locate(entity, seg, ctx)
		if err != nil {
			return domain.Entity{}, err
		}
		rest = rest.Rest()
	}
	return entity, nil
}

func resolveFirst(seg ast.Segment, ctx evalctx.Context) (domain.Entity, error) {
	switch seg.Kind {
	case ast.SegGid:
		return resolveGid(domain.Gid(seg.Gid), ctx)
	case ast.SegGidStr:
		var g uint64
		if _, err := fmt.Sscanf(seg.GidStr, "%d", &g); err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: malformed gid string %q: %w", seg.GidStr, err)
		}
		return resolveGid(domain.Gid(g), ctx)
	case ast.SegStr:
		return resolveName(seg.Str, ctx)
	case ast.SegMemberFunc, ast.SegLevelFunc, ast.SegSetFunc, ast.SegExpFunc, ast.SegDimFunc:
		// As a first segment there is no "outer", so apply against
		// Nothing. Functions that need a preceding entity reject it
		// with a clear error instead of a nil-pointer panic; those that
		// take everything from their own arguments (Dimensions, the
		// aggregators, LookupCube, free-form ParallelPeriod) run as is.
		return locate(domain.Nothing(), seg, ctx)
	default:
		return domain.Entity{}, fmt.Errorf("resolver: unknown segment kind %d", seg.Kind)
	}
}

func resolveGid(gid domain.Gid, ctx evalctx.Context) (domain.Entity, error) {
	kind, err := gid.Kind()
	if err != nil {
		return domain.Entity{}, fmt.Errorf("resolver: %w", err)
	}

	switch kind {
	case domain.GidKindFormulaMember:
		role, ok := ctx.LookupFormula(gid)
		if !ok {
			return domain.Entity{}, fmt.Errorf("resolver: no formula bound to gid %s", gid)
		}
		return domain.EntityFromMemberRole(role), nil

	case domain.GidKindCube:
		cube, err := ctx.MetaClnt.CubeByGid(ctx.Ctx, gid)
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: cube %s: %w", gid, err)
		}
		return domain.EntityFromCube(cube), nil

	case domain.GidKindDimensionRole:
		role, ok := ctx.DimRoleByGid(gid)
		if !ok {
			return domain.Entity{}, fmt.Errorf("resolver: dimension role %s not in cube %s", gid, ctx.Cube.Name)
		}
		return domain.EntityFromDimRole(role), nil

	case domain.GidKindMember:
		member, err := ctx.MetaCache.GetMember(gid)
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: member %s: %w", gid, err)
		}
		return wrapBaseMember(member, ctx)

	case domain.GidKindLevel:
		level, err := ctx.MetaCache.GetLevel(gid)
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: level %s: %w", gid, err)
		}
		dimRole, ok := ctx.DimRoleForDimension(level.DimensionGid)
		if !ok {
			return domain.Entity{}, fmt.Errorf("resolver: no dimension role for level %s's dimension in cube %s", gid, ctx.Cube.Name)
		}
		return domain.EntityFromLevelRole(domain.LevelRole{DimRole: dimRole, Level: level}), nil

	default:
		return domain.Entity{}, fmt.Errorf("resolver: gid %s kind %d cannot be a chain head", gid, kind)
	}
}

// wrapBaseMember finds the member's owning dimension role in the
// current cube so it can be placed in a Tuple slot.
func wrapBaseMember(member domain.Member, ctx evalctx.Context) (domain.Entity, error) {
	level, err := ctx.MetaCache.GetLevel(member.LevelGid)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("resolver: level of member %s: %w", member.Gid, err)
	}
	dimRole, ok := ctx.DimRoleForDimension(level.DimensionGid)
	if !ok {
		return domain.Entity{}, fmt.Errorf("resolver: no dimension role for member %s's dimension in cube %s", member.Gid, ctx.Cube.Name)
	}
	return domain.EntityFromMemberRole(domain.NewBaseMemberRole(dimRole, member)), nil
}

func resolveName(name string, ctx evalctx.Context) (domain.Entity, error) {
	if role, ok := ctx.DimRoleByName(name); ok {
		return domain.EntityFromDimRole(role), nil
	}
	cube, err := ctx.MetaClnt.CubeByName(ctx.Ctx, name)
	if err == nil {
		return domain.EntityFromCube(cube), nil
	}
	return domain.Entity{}, fmt.Errorf("resolver: no dimension role or cube named %q in cube %s", name, ctx.Cube.Name)
}

// locate dispatches a remaining segment against outer, the entity the
// chain has resolved to so far. This mirrors the original resolver's
// per-entity-kind locate implementations.
func locate(outer domain.Entity, seg ast.Segment, ctx evalctx.Context) (domain.Entity, error) {
	switch seg.Kind {
	case ast.SegStr:
		return locateByName(outer, seg.Str, ctx)
	case ast.SegGid, ast.SegGidStr:
		entity, err := resolveFirst(seg, ctx)
		if err != nil || outer.DimRole == nil {
			return entity, err
		}
		// Under an explicit DimensionRole segment, a member or level gid
		// is bound to that role rather than to the first role of its
		// dimension.
		if entity.MemberRl != nil && !entity.MemberRl.IsFormula {
			entity.MemberRl.DimRole = *outer.DimRole
		}
		if entity.LevelRl != nil {
			entity.LevelRl.DimRole = *outer.DimRole
		}
		return entity, nil
	case ast.SegMemberFunc:
		return applyMemberFunc(outer, seg.MemberFunc, ctx)
	case ast.SegLevelFunc:
		return applyLevelFunc(outer, seg.LevelFunc, ctx)
	case ast.SegSetFunc:
		return applySetFunc(outer, seg.SetFunc, ctx)
	case ast.SegExpFunc:
		return applyExpFunc(seg.ExpFunc, ctx)
	case ast.SegDimFunc:
		return applyDimFunc(outer, seg.DimFunc, ctx)
	default:
		return domain.Entity{}, fmt.Errorf("resolver: unknown segment kind %d", seg.Kind)
	}
}

// locateByName resolves a bare name segment against outer: a member
// name under a DimensionRole, or a dimension role name under a Cube.
func locateByName(outer domain.Entity, name string, ctx evalctx.Context) (domain.Entity, error) {
	switch {
	case outer.DimRole != nil:
		member, err := ctx.MetaClnt.MemberByName(ctx.Ctx, outer.DimRole.Gid, name)
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: member %q under dimension role %s: %w", name, outer.DimRole.Name, err)
		}
		return domain.EntityFromMemberRole(domain.NewBaseMemberRole(*outer.DimRole, member)), nil
	case outer.Cube != nil:
		role, ok := ctx.DimRoleByName(name)
		if !ok {
			return domain.Entity{}, fmt.Errorf("resolver: no dimension role named %q in cube %s", name, outer.Cube.Name)
		}
		return domain.EntityFromDimRole(role), nil
	default:
		return domain.Entity{}, fmt.Errorf("resolver: cannot resolve name %q after a %s", name, outer.Describe())
	}
}
