package resolver

import (
	"fmt"
	"sort"

	"mdxgrid/evaluator/internal/ast"
	"mdxgrid/evaluator/internal/domain"
	"mdxgrid/evaluator/internal/evalctx"
)

func applySetFunc(outer domain.Entity, fn *ast.SetFunc, ctx evalctx.Context) (domain.Entity, error) {
	switch fn.Kind {
	case ast.FnChildren:
		role, err := outer.AsMemberRole()
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: Children(): %w", err)
		}
		if role.IsFormula {
			return domain.Entity{}, fmt.Errorf("resolver: Children() cannot be applied to a calculated member")
		}
		children, err := ctx.MetaCache.ChildMembers(role.Member.Gid)
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: Children(%s): %w", role.Member.Name, err)
		}
		sort.Slice(children, func(i, j int) bool { return children[i].Gid < children[j].Gid })

		tuples := make([]domain.Tuple, len(children))
		for i, c := range children {
			tuples[i] = domain.NewTuple(domain.NewBaseMemberRole(role.DimRole, c))
		}
		return domain.EntityFromSet(domain.Set{Tuples: tuples}), nil

	default:
		return domain.Entity{}, fmt.Errorf("resolver: unsupported set function %d", fn.Kind)
	}
}
