package domain

import "mdxgrid/evaluator/internal/ast"

// Cube is the top-level queryable schema: a name, a gid, and the set
// of dimension roles it exposes.
type Cube struct {
	Gid  Gid
	Name string
}

// DimensionRole is a dimension as it participates in one cube (the
// same dimension, e.g. Time, can play more than one role in a cube,
// e.g. "Order Date" and "Ship Date").
type DimensionRole struct {
	Gid                 Gid
	Name                string
	CubeGid             Gid
	DimensionGid        Gid
	DefaultHierarchyGid Gid
	IsMeasure           bool
}

// Level is one rank within a hierarchy (e.g. Year > Quarter > Month).
type Level struct {
	Gid              Gid
	Name             string
	Ordinal          int
	DimensionGid     Gid
	HierarchyGid     Gid
	OpeningPeriodGid Gid
	ClosingPeriodGid Gid
}

// LevelRole pairs a Level with the DimensionRole it is being viewed
// through, the unit Level() and Levels() AST functions resolve to.
type LevelRole struct {
	DimRole DimensionRole
	Level   Level
}

// Member is one concrete coordinate on a hierarchy: a "2024" or an
// "EMEA". Leaf marks members with no children; level 0 is the root
// ("all") member of a hierarchy.
type Member struct {
	Gid          Gid
	Name         string
	LevelGid     Gid
	LevelOrdinal int
	ParentGid    Gid
	MeasureIndex int // only meaningful when the owning dim-role IsMeasure
	Leaf         bool
	// FullPath is root-to-self, used by AccessControl's longest-path
	// matching. Cousin does not read it; it walks ParentGid instead.
	FullPath []Gid
}

// MemberRole is a tagged union: a concrete cube member (BaseMember) or
// a calculated member whose value is an AST expression evaluated on
// demand (FormulaMember). Both wear a DimensionRole gid so tuples can
// merge/replace members slot-by-slot.
type MemberRole struct {
	IsFormula bool

	// BaseMember fields
	DimRole DimensionRole
	Member  Member

	// FormulaMember fields
	FormulaDimRoleGid Gid
	FormulaGid        Gid
	Expr              ast.Expression
}

func NewBaseMemberRole(dimRole DimensionRole, member Member) MemberRole {
	return MemberRole{DimRole: dimRole, Member: member}
}

func NewFormulaMemberRole(dimRoleGid, formulaGid Gid, expr ast.Expression) MemberRole {
	return MemberRole{IsFormula: true, FormulaDimRoleGid: dimRoleGid, FormulaGid: formulaGid, Expr: expr}
}

// DimRoleGid returns the dimension-role gid this role occupies in a
// tuple, regardless of base/formula variant.
func (m MemberRole) DimRoleGid() Gid {
	if m.IsFormula {
		return m.FormulaDimRoleGid
	}
	return m.DimRole.Gid
}

// Tuple is an ordered coordinate: one MemberRole per dimension role
// that participates in the query.
type Tuple struct {
	Roles []MemberRole
}

func NewTuple(roles ...MemberRole) Tuple {
	return Tuple{Roles: append([]MemberRole(nil), roles...)}
}

// Merge combines t with other, with other's role winning whenever both
// tuples supply a MemberRole for the same dimension role. This is the
// operation used to fold an axis tuple against the query's WHERE slice
// and to compose a default tuple with axis overrides.
func (t Tuple) Merge(other Tuple) Tuple {
	out := make([]MemberRole, 0, len(t.Roles)+len(other.Roles))
	seen := make(map[Gid]int, len(t.Roles))
	for _, r := range t.Roles {
		seen[r.DimRoleGid()] = len(out)
		out = append(out, r)
	}
	for _, r := range other.Roles {
		if idx, ok := seen[r.DimRoleGid()]; ok {
			out[idx] = r
			continue
		}
		seen[r.DimRoleGid()] = len(out)
		out = append(out, r)
	}
	return Tuple{Roles: out}
}

// Find returns the MemberRole occupying dimRoleGid, if any.
func (t Tuple) Find(dimRoleGid Gid) (MemberRole, bool) {
	for _, r := range t.Roles {
		if r.DimRoleGid() == dimRoleGid {
			return r, true
		}
	}
	return MemberRole{}, false
}

// Set is an ordered collection of tuples, the result type of every
// set-valued AST function (Children, crossjoins, etc).
type Set struct {
	Tuples []Tuple
}
