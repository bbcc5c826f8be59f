package resolver

import (
	"fmt"

	"mdxgrid/evaluator/internal/ast"
	"mdxgrid/evaluator/internal/domain"
	"mdxgrid/evaluator/internal/evalctx"
)

func applyLevelFunc(outer domain.Entity, fn *ast.LevelFunc, ctx evalctx.Context) (domain.Entity, error) {
	switch fn.Kind {
	case ast.FnLevel:
		role, err := outer.AsMemberRole()
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: Level(): %w", err)
		}
		if role.IsFormula {
			return domain.Entity{}, fmt.Errorf("resolver: Level() cannot be applied to a calculated member")
		}
		level, err := ctx.MetaCache.GetLevel(role.Member.LevelGid)
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: Level(): %w", err)
		}
		return domain.EntityFromLevelRole(domain.LevelRole{DimRole: role.DimRole, Level: level}), nil

	case ast.FnLevels:
		dimRole, err := outer.AsDimRole()
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: Levels(): %w", err)
		}
		level, err := ctx.MetaCache.GetHierarchyLevel(dimRole.DefaultHierarchyGid, fn.Index)
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: Levels(%d): %w", fn.Index, err)
		}
		return domain.EntityFromLevelRole(domain.LevelRole{DimRole: dimRole, Level: level}), nil

	default:
		return domain.Entity{}, fmt.Errorf("resolver: unsupported level function %d", fn.Kind)
	}
}
