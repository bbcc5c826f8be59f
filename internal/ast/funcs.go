package ast

// MemberFuncKind enumerates every member-valued function reachable
// from a segment chain. A MemberFunc always applies to whatever
// entity the preceding segment resolved to ("the outer member"); the
// fields below only hold the function's own explicit arguments, used
// for the function's free call form (e.g. ParallelPeriod(Level,
// NumPeriods, Member) instead of Member.ParallelPeriod(Level,
// NumPeriods)).
type MemberFuncKind int

const (
	FnParent MemberFuncKind = iota
	FnCurrentMember
	FnClosingPeriod
	FnOpeningPeriod
	FnPrevMember
	FnNextMember
	FnParallelPeriod
	FnFirstChild
	FnLastChild
	FnFirstSibling
	FnLastSibling
	FnLag
	FnLead
	FnAncestor
	FnCousin
	FnDefaultMember
)

type MemberFunc struct {
	Kind MemberFuncKind

	// ClosingPeriod/OpeningPeriod/ParallelPeriod/Ancestor: which level
	// to resolve against. Nil means "the outer member's own level".
	Level *SegChain

	// ParallelPeriod: explicit member argument in free call form.
	// Nil means "the outer member".
	Member *SegChain

	// ParallelPeriod/Lag/Lead: period offset. For ParallelPeriod this
	// argument is optional (bare ParallelPeriod()/ParallelPeriod(Level)
	// defaults to 1); HasNumPeriods distinguishes "argument omitted"
	// from "argument explicitly 0", since offset 0 has its own meaning
	// (return the ancestor directly) instead of falling back to 1.
	NumPeriods    int
	HasNumPeriods bool

	// Cousin: the ancestor member to re-descend under.
	Ancestor *SegChain
}

// LevelFuncKind enumerates level-valued functions.
type LevelFuncKind int

const (
	FnLevel LevelFuncKind = iota
	FnLevels
)

type LevelFunc struct {
	Kind LevelFuncKind

	// Levels: 0-based ordinal into the owning dimension/hierarchy's
	// level list, in chained call form Levels(N).
	Index int
}

// SetFuncKind enumerates set-valued functions.
type SetFuncKind int

const (
	FnChildren SetFuncKind = iota
)

type SetFunc struct {
	Kind SetFuncKind
}

// ExpFuncKind enumerates the numeric aggregator functions.
type ExpFuncKind int

const (
	FnSum ExpFuncKind = iota
	FnAvg
	FnCount
	FnMax
	FnMin
	// FnLookupCube evaluates Numeric against a different cube's own
	// MultiDimensionalContext, used when a formula references a measure
	// defined in a foreign cube. Set is unused for this kind; CubeSeg
	// names the foreign cube instead.
	FnLookupCube
)

// ExpFunc aggregates Numeric (a per-tuple numeric expression) over
// every tuple produced by resolving Set. Count ignores Numeric.
// LookupCube repurposes Numeric as the expression to evaluate in the
// foreign cube's own context, and CubeSeg as that cube's identifying
// segment (SegGid or SegStr).
type ExpFunc struct {
	Kind    ExpFuncKind
	Set     SegChain
	Numeric *Expression
	CubeSeg *Segment
}

// DimFuncKind enumerates the hierarchy-introspection functions.
type DimFuncKind int

const (
	// FnDimension(member) resolves the DimensionRole the outer member
	// belongs to.
	FnDimension DimFuncKind = iota
	// FnDimensions(index) resolves the current cube's index'th
	// DimensionRole (no outer entity required).
	FnDimensions
	// FnHierarchy(member) resolves the DimensionRole carrying the
	// outer member's hierarchy. This model gives every dimension one
	// active hierarchy per cube (DimensionRole.DefaultHierarchyGid), so
	// Hierarchy and Dimension resolve to the same DimensionRole.
	FnHierarchy
)

type DimFunc struct {
	Kind DimFuncKind

	// Dimensions: 0-based ordinal into the cube's dimension role list,
	// in chained call form Dimensions(N).
	Index int
}
