package resolver

import (
	"fmt"
	"sort"

	"mdxgrid/evaluator/internal/ast"
	"mdxgrid/evaluator/internal/domain"
	"mdxgrid/evaluator/internal/evalctx"
)

func applyMemberFunc(outer domain.Entity, fn *ast.MemberFunc, ctx evalctx.Context) (domain.Entity, error) {
	switch fn.Kind {
	case ast.FnCurrentMember:
		dimRole, err := outer.AsDimRole()
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: CurrentMember: %w", err)
		}
		for _, mr := range ctx.SliceTuple.Roles {
			if mr.IsFormula || mr.DimRole.Gid != dimRole.Gid || mr.Member.LevelOrdinal <= 0 {
				continue
			}
			member, err := ctx.MetaCache.GetMember(mr.Member.Gid)
			if err != nil {
				return domain.Entity{}, fmt.Errorf("resolver: CurrentMember(%s): %w", dimRole.Name, err)
			}
			return domain.EntityFromMemberRole(domain.NewBaseMemberRole(dimRole, member)), nil
		}
		return domain.Entity{}, fmt.Errorf("resolver: CurrentMember(%s): no base member above the root in the slice tuple", dimRole.Name)

	case ast.FnDefaultMember:
		dimRole, err := outer.AsDimRole()
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: DefaultMember: %w", err)
		}
		member, err := ctx.MetaClnt.DefaultMemberOfDimension(ctx.Ctx, dimRole.DimensionGid)
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: DefaultMember(%s): %w", dimRole.Name, err)
		}
		return domain.EntityFromMemberRole(domain.NewBaseMemberRole(dimRole, member)), nil
	}

	// Free form ParallelPeriod(Level, NumPeriods, Member) heads a chain
	// with no outer entity; its member argument stands in for one.
	if outer.MemberRl == nil && fn.Kind == ast.FnParallelPeriod && fn.Member != nil {
		entity, err := Materialize(*fn.Member, ctx)
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: ParallelPeriod member argument: %w", err)
		}
		outer = entity
	}

	role, err := outer.AsMemberRole()
	if err != nil {
		return domain.Entity{}, fmt.Errorf("resolver: member function applied to non-member: %w", err)
	}
	if role.IsFormula {
		return domain.Entity{}, fmt.Errorf("resolver: member function cannot be applied to a calculated member")
	}
	m := role.Member

	switch fn.Kind {
	case ast.FnParent:
		if m.LevelOrdinal < 1 {
			return domain.EntityFromMemberRole(domain.NewBaseMemberRole(role.DimRole, m)), nil
		}
		parent, err := ctx.MetaCache.GetMember(m.ParentGid)
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: Parent(%s): %w", m.Name, err)
		}
		return domain.EntityFromMemberRole(domain.NewBaseMemberRole(role.DimRole, parent)), nil

	case ast.FnClosingPeriod, ast.FnOpeningPeriod:
		level, err := resolveTargetLevel(fn.Level, m, ctx)
		if err != nil {
			return domain.Entity{}, err
		}
		var targetGid domain.Gid
		if fn.Kind == ast.FnClosingPeriod {
			targetGid = level.ClosingPeriodGid
		} else {
			targetGid = level.OpeningPeriodGid
		}
		if targetGid == 0 {
			return domain.Entity{}, fmt.Errorf("resolver: level %s has no opening/closing period member configured", level.Name)
		}
		member, err := ctx.MetaCache.GetMember(targetGid)
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: ClosingPeriod/OpeningPeriod: %w", err)
		}
		return domain.EntityFromMemberRole(domain.NewBaseMemberRole(role.DimRole, member)), nil

	case ast.FnPrevMember, ast.FnNextMember, ast.FnLag, ast.FnLead:
		n, err := levelMateOffset(fn, m, ctx)
		if err != nil {
			return domain.Entity{}, err
		}
		return domain.EntityFromMemberRole(domain.NewBaseMemberRole(role.DimRole, n)), nil

	case ast.FnFirstChild, ast.FnLastChild:
		children, err := ctx.MetaCache.ChildMembers(m.Gid)
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: children of %s: %w", m.Name, err)
		}
		if len(children) == 0 {
			return domain.Entity{}, fmt.Errorf("resolver: %s has no children", m.Name)
		}
		child := children[0]
		if fn.Kind == ast.FnLastChild {
			child = children[len(children)-1]
		}
		return domain.EntityFromMemberRole(domain.NewBaseMemberRole(role.DimRole, child)), nil

	case ast.FnFirstSibling, ast.FnLastSibling:
		siblings, err := levelMates(m, ctx)
		if err != nil {
			return domain.Entity{}, err
		}
		if len(siblings) == 0 {
			return domain.Entity{}, fmt.Errorf("resolver: %s has no siblings", m.Name)
		}
		sib := siblings[0]
		if fn.Kind == ast.FnLastSibling {
			sib = siblings[len(siblings)-1]
		}
		return domain.EntityFromMemberRole(domain.NewBaseMemberRole(role.DimRole, sib)), nil

	case ast.FnAncestor:
		level, err := resolveTargetLevel(fn.Level, m, ctx)
		if err != nil {
			return domain.Entity{}, err
		}
		ancestor, err := ctx.MetaCache.AncestorOnLevel(m.Gid, level.Gid)
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: Ancestor(%s, %s): %w", m.Name, level.Name, err)
		}
		return domain.EntityFromMemberRole(domain.NewBaseMemberRole(role.DimRole, ancestor)), nil

	case ast.FnCousin:
		if fn.Ancestor == nil {
			return domain.Entity{}, fmt.Errorf("resolver: Cousin requires an ancestor member argument")
		}
		ancestorEntity, err := Materialize(*fn.Ancestor, ctx)
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: Cousin ancestor argument: %w", err)
		}
		ancestorRole, err := ancestorEntity.AsMemberRole()
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: Cousin ancestor argument: %w", err)
		}
		cousin, err := cousinOf(m, ancestorRole.Member, ctx)
		if err != nil {
			return domain.Entity{}, err
		}
		return domain.EntityFromMemberRole(domain.NewBaseMemberRole(role.DimRole, cousin)), nil

	case ast.FnParallelPeriod:
		return parallelPeriod(role, m, fn, ctx)

	default:
		return domain.Entity{}, fmt.Errorf("resolver: unsupported member function %d", fn.Kind)
	}
}

func resolveTargetLevel(levelChain *ast.SegChain, m domain.Member, ctx evalctx.Context) (domain.Level, error) {
	if levelChain == nil {
		return ctx.MetaCache.GetLevel(m.LevelGid)
	}
	entity, err := Materialize(*levelChain, ctx)
	if err != nil {
		return domain.Level{}, fmt.Errorf("resolver: level argument: %w", err)
	}
	lr, err := entity.AsLevelRole()
	if err != nil {
		return domain.Level{}, fmt.Errorf("resolver: level argument: %w", err)
	}
	return lr.Level, nil
}

// levelMates returns every member at m's level sharing m's parent,
// in gid order (the sibling ordering used by FirstSibling/LastSibling
// and by the Lag/Lead/PrevMember/NextMember family).
func levelMates(m domain.Member, ctx evalctx.Context) ([]domain.Member, error) {
	all, err := ctx.MetaCache.MembersAtLevel(m.LevelGid)
	if err != nil {
		return nil, fmt.Errorf("resolver: members at level of %s: %w", m.Name, err)
	}
	out := make([]domain.Member, 0, len(all))
	for _, c := range all {
		if c.ParentGid == m.ParentGid {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Gid < out[j].Gid })
	return out, nil
}

// levelMateOffset implements PrevMember (Lag 1), NextMember (Lag -1),
// and the general Lag(n)/Lead(n) by locating m among its level mates
// and stepping n positions.
func levelMateOffset(fn *ast.MemberFunc, m domain.Member, ctx evalctx.Context) (domain.Member, error) {
	mates, err := levelMates(m, ctx)
	if err != nil {
		return domain.Member{}, err
	}
	idx := -1
	for i, c := range mates {
		if c.Gid == m.Gid {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Member{}, fmt.Errorf("resolver: member %s not found among its own level mates", m.Name)
	}

	step := 0
	switch fn.Kind {
	case ast.FnPrevMember:
		step = -1
	case ast.FnNextMember:
		step = 1
	case ast.FnLag:
		step = -fn.NumPeriods
	case ast.FnLead:
		step = fn.NumPeriods
	}

	target := idx + step
	if target < 0 || target >= len(mates) {
		return domain.Member{}, fmt.Errorf("resolver: offset from %s out of range among level mates", m.Name)
	}
	return mates[target], nil
}

// cousinOf re-descends m's child-index path under a different
// ancestor member of the same level as m's current ancestor at
// ancestor's level, generalizing the ShiftAncestorAndFind machinery
// with a direct substitution instead of a level-count shift.
func cousinOf(m domain.Member, ancestor domain.Member, ctx evalctx.Context) (domain.Member, error) {
	ancestorLevel, err := ctx.MetaCache.GetLevel(ancestor.LevelGid)
	if err != nil {
		return domain.Member{}, fmt.Errorf("resolver: Cousin: %w", err)
	}
	origAncestor, err := ctx.MetaCache.AncestorOnLevel(m.Gid, ancestorLevel.Gid)
	if err != nil {
		return domain.Member{}, fmt.Errorf("resolver: Cousin: %w", err)
	}

	path, err := childIndexPath(m, origAncestor, ctx)
	if err != nil {
		return domain.Member{}, fmt.Errorf("resolver: Cousin: %w", err)
	}
	return descendPath(ancestor, path, ctx)
}

// childIndexPath returns, from ancestor down to m, the gid-order child
// index chosen at each level.
func childIndexPath(m domain.Member, ancestor domain.Member, ctx evalctx.Context) ([]int, error) {
	chain := []domain.Member{m}
	cur := m
	for cur.Gid != ancestor.Gid {
		parent, err := ctx.MetaCache.GetMember(cur.ParentGid)
		if err != nil {
			return nil, fmt.Errorf("walking up from %s: %w", cur.Name, err)
		}
		chain = append(chain, parent)
		cur = parent
		if cur.ParentGid == 0 && cur.Gid != ancestor.Gid {
			return nil, fmt.Errorf("member %s is not a descendant of %s", m.Name, ancestor.Name)
		}
	}
	// chain is m..ancestor, reverse to ancestor..m and compute indices.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	indices := make([]int, 0, len(chain)-1)
	for i := 0; i < len(chain)-1; i++ {
		siblings, err := ctx.MetaCache.ChildMembers(chain[i].Gid)
		if err != nil {
			return nil, err
		}
		sort.Slice(siblings, func(a, b int) bool { return siblings[a].Gid < siblings[b].Gid })
		idx := -1
		for k, s := range siblings {
			if s.Gid == chain[i+1].Gid {
				idx = k
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("member %s not found among children of %s", chain[i+1].Name, chain[i].Name)
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

func descendPath(start domain.Member, path []int, ctx evalctx.Context) (domain.Member, error) {
	cur := start
	for _, idx := range path {
		children, err := ctx.MetaCache.ChildMembers(cur.Gid)
		if err != nil {
			return domain.Member{}, err
		}
		sort.Slice(children, func(a, b int) bool { return children[a].Gid < children[b].Gid })
		if idx >= len(children) {
			return domain.Member{}, fmt.Errorf("no matching descendant under %s (index %d out of range)", cur.Name, idx)
		}
		cur = children[idx]
	}
	return cur, nil
}

// parallelPeriod resolves ParallelPeriod(Level, NumPeriods, Member):
// find the source member's ancestor at Level, shift that ancestor
// NumPeriods steps among its own level mates, then re-descend the
// same child-index path to land on the parallel member.
func parallelPeriod(role domain.MemberRole, m domain.Member, fn *ast.MemberFunc, ctx evalctx.Context) (domain.Entity, error) {
	source := m
	if fn.Member != nil {
		entity, err := Materialize(*fn.Member, ctx)
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: ParallelPeriod member argument: %w", err)
		}
		sr, err := entity.AsMemberRole()
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: ParallelPeriod member argument: %w", err)
		}
		source = sr.Member
	}

	level, err := resolveTargetLevel(fn.Level, source, ctx)
	if err != nil {
		return domain.Entity{}, err
	}

	periods := 1
	if fn.HasNumPeriods {
		periods = fn.NumPeriods
	}

	if periods == 0 {
		ancestor, err := ctx.MetaCache.AncestorOnLevel(source.Gid, level.Gid)
		if err != nil {
			return domain.Entity{}, fmt.Errorf("resolver: ParallelPeriod: %w", err)
		}
		return domain.EntityFromMemberRole(domain.NewBaseMemberRole(role.DimRole, ancestor)), nil
	}

	result, err := ctx.MetaCache.ShiftAncestorAndFind(source.Gid, level.Gid, periods)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("resolver: ParallelPeriod: %w", err)
	}
	return domain.EntityFromMemberRole(domain.NewBaseMemberRole(role.DimRole, result)), nil
}
