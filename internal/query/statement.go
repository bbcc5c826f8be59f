// Package query implements the top-level query driver: slicer merge,
// fiducial axis resolution, Cartesian product construction, and
// dispatch into the Calculator. Statement is the parsed-MDX input the
// driver consumes; producing one from MDX text is outside this
// module's scope (spec.md §1), so Statement is built directly by
// whatever front end owns the grammar.
package query

import (
	"mdxgrid/evaluator/internal/ast"
	"mdxgrid/evaluator/internal/domain"
)

// Statement is one parsed MDX SELECT: a cube reference, an ordered
// list of axes, an optional WHERE slicer tuple, and zero or more
// WITH MEMBER calculated-member declarations.
type Statement struct {
	// Cube is the statement's first segment: SegGid/SegGidStr resolve
	// by gid, SegStr resolves by name.
	Cube ast.Segment

	Axes []AxisSpec

	// Where is the slicer tuple: one segment chain per dimension role
	// being pinned, each resolving to a single MemberRole. Nil or
	// empty means no WHERE clause.
	Where []ast.SegChain

	Formulas []FormulaDecl
}

// AxisSpec is one axis declaration: its ordinal position (0 = rows in
// the conventional 2-axis case, but the driver is axis-count-agnostic)
// and the set expression that, once materialized, supplies that
// axis's tuples.
type AxisSpec struct {
	Number int
	Set    ast.SegChain
}

// FormulaDecl is one WITH MEMBER declaration: a calculated member's
// gid (a GidKindFormulaMember gid minted by the front end), the
// dimension role it occupies, and the expression that computes its
// value.
type FormulaDecl struct {
	Gid        domain.Gid
	DimRoleGid domain.Gid
	Expr       ast.Expression
}

// Axis is one materialized axis: its ordinal position paired with the
// concrete Set its expression resolved to.
type Axis struct {
	Number int
	Set    domain.Set
}

// Result is the evaluated multidimensional grid: one Axis per
// declared axis (in declaration order) plus the Cartesian coordinate
// grid's cell values, row-major over the axes in declaration order.
type Result struct {
	Axes  []Axis
	Cells []domain.CellValue
}
