// Package evalctx holds the per-query evaluation context threaded
// through the resolver and function library: the cube snapshot, the
// WHERE slice tuple, the formula map, and handles onto the MetaCache /
// MetaClient / AccessControl collaborators. It lives in its own
// package (rather than domain or resolver) purely to break the import
// cycle between resolver, metacache and access.
package evalctx

import (
	"context"

	"mdxgrid/evaluator/internal/domain"
)

// MetaCache is the read-mostly metadata lookup surface the resolver
// and function library need. internal/metacache.Cache implements it.
type MetaCache interface {
	GetMember(gid domain.Gid) (domain.Member, error)
	GetLevel(gid domain.Gid) (domain.Level, error)
	GetHierarchyLevel(hierarchyGid domain.Gid, ordinal int) (domain.Level, error)
	MembersAtLevel(levelGid domain.Gid) ([]domain.Member, error)
	AncestorOnLevel(memberGid domain.Gid, levelGid domain.Gid) (domain.Member, error)
	ShiftAncestorAndFind(memberGid domain.Gid, levelGid domain.Gid, periods int) (domain.Member, error)
	ChildMembers(memberGid domain.Gid) ([]domain.Member, error)
}

// MetaClient is the subset of the metadata RPC facade the resolver
// calls directly (the rest is consumed by MetaCache.Init/Reload).
type MetaClient interface {
	CubeByGid(ctx context.Context, gid domain.Gid) (domain.Cube, error)
	CubeByName(ctx context.Context, name string) (domain.Cube, error)
	DimensionRolesOfCube(ctx context.Context, cubeGid domain.Gid) ([]domain.DimensionRole, error)
	DimensionRoleByGid(ctx context.Context, gid domain.Gid) (domain.DimensionRole, error)
	DimensionRoleByName(ctx context.Context, cubeGid domain.Gid, name string) (domain.DimensionRole, error)
	DefaultMemberOfDimension(ctx context.Context, dimensionGid domain.Gid) (domain.Member, error)
	MemberByGid(ctx context.Context, gid domain.Gid) (domain.Member, error)
	MemberByName(ctx context.Context, dimRoleGid domain.Gid, name string) (domain.Member, error)
}

// AccessControl gates tuple access, implemented by internal/access.
type AccessControl interface {
	Check(tuples []domain.Tuple) []bool
}

// Valuer computes the actual numeric/string value of one fully
// resolved tuple, implemented by internal/calculator.Calculator. The
// resolver depends on this interface (never the calculator package
// directly) so that aggregator functions and formula expressions can
// recurse into calculation without an import cycle.
type Valuer interface {
	Value(ctx context.Context, tuple domain.Tuple) (domain.CellValue, error)
}

// Context is the MDX evaluation context threaded through one query's
// resolution and calculation. Not safe for concurrent mutation; each
// goroutine evaluating a distinct axis/coordinate gets its own copy
// via Fork.
type Context struct {
	Ctx context.Context

	Cube       domain.Cube
	DimRoles   []domain.DimensionRole
	SliceTuple domain.Tuple
	// Formulas maps a FormulaMember gid to its precomputed MemberRole
	// (IsFormula=true, carrying the dimension role it occupies and the
	// expression that computes its value).
	Formulas map[domain.Gid]domain.MemberRole

	MetaCache MetaCache
	MetaClnt  MetaClient
	Access    AccessControl
	Calc      Valuer
}

// Fork returns a shallow copy of c for use against a different
// standard (ctx, cube, slice) triple while sharing the read-only
// collaborators.
func (c Context) Fork(ctx context.Context) Context {
	out := c
	out.Ctx = ctx
	return out
}

// DimRoleByGid finds the cube's dimension role by gid.
func (c Context) DimRoleByGid(gid domain.Gid) (domain.DimensionRole, bool) {
	for _, r := range c.DimRoles {
		if r.Gid == gid {
			return r, true
		}
	}
	return domain.DimensionRole{}, false
}

// DimRoleByName finds the cube's dimension role by name.
func (c Context) DimRoleByName(name string) (domain.DimensionRole, bool) {
	for _, r := range c.DimRoles {
		if r.Name == name {
			return r, true
		}
	}
	return domain.DimensionRole{}, false
}

// DimRoleForDimension finds the (first) dimension role wired to
// dimensionGid, used when a bare Member gid is resolved without an
// explicit preceding DimensionRole segment.
func (c Context) DimRoleForDimension(dimensionGid domain.Gid) (domain.DimensionRole, bool) {
	for _, r := range c.DimRoles {
		if r.DimensionGid == dimensionGid {
			return r, true
		}
	}
	return domain.DimensionRole{}, false
}

// LookupFormula returns the formula MemberRole bound to gid, if gid
// names a calculated member.
func (c Context) LookupFormula(gid domain.Gid) (domain.MemberRole, bool) {
	e, ok := c.Formulas[gid]
	return e, ok
}
