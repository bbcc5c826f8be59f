package resolver

import (
	"fmt"

	"mdxgrid/evaluator/internal/ast"
	"mdxgrid/evaluator/internal/domain"
	"mdxgrid/evaluator/internal/evalctx"
)

// applyDimFunc implements the hierarchy-introspection functions:
// Dimension(member), Dimensions(index) and Hierarchy(member). None of
// these needed a dedicated external interface beyond MetaCache/the
// cube's own DimRoles, unlike most of the function library.
func applyDimFunc(outer domain.Entity, fn *ast.DimFunc, ctx evalctx.Context) (domain.Entity, error) {
	switch fn.Kind {
	case ast.FnDimension, ast.FnHierarchy:
		role, err := outer.AsMemberRole()
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: Dimension()/Hierarchy(): %w", err)
		}
		return domain.EntityFromDimRole(role.DimRole), nil

	case ast.FnDimensions:
		if fn.Index < 0 || fn.Index >= len(ctx.DimRoles) {
			return domain.Entity{}, fmt.Errorf("resolver: Dimensions(%d): out of range for cube %s with %d dimension roles", fn.Index, ctx.Cube.Name, len(ctx.DimRoles))
		}
		return domain.EntityFromDimRole(ctx.DimRoles[fn.Index]), nil

	default:
		return domain.Entity{}, fmt.Errorf("resolver: unsupported dimension function %d", fn.Kind)
	}
}
