// Package ast defines the typed MDX abstract syntax tree that the
// resolver walks. Construction of the tree (lexing/parsing MDX text)
// is outside this module's scope, matching the distilled spec: the
// tree arrives fully formed from an external front end.
package ast

// SegmentKind tags the concrete variant held by a Segment.
type SegmentKind int

const (
	SegGid SegmentKind = iota
	SegGidStr
	SegStr
	SegMemberFunc
	SegLevelFunc
	SegSetFunc
	SegExpFunc
	SegDimFunc
)

// Segment is one link in a dotted chain such as
// [Time].[2024].Parent.CurrentMember. Each variant is populated
// exclusively; Kind says which.
type Segment struct {
	Kind SegmentKind

	Gid    uint64 // SegGid
	GidStr string // SegGidStr: a gid carried as a quoted string literal
	Str    string // SegStr: a bare name segment, resolved by name lookup

	MemberFunc *MemberFunc // SegMemberFunc
	LevelFunc  *LevelFunc  // SegLevelFunc
	SetFunc    *SetFunc    // SegSetFunc
	ExpFunc    *ExpFunc    // SegExpFunc
	DimFunc    *DimFunc    // SegDimFunc
}

// SegChain is a non-empty dotted segment chain, the unit the resolver
// materializes against a MultiDimensionalContext.
type SegChain struct {
	Segments []Segment
}

func NewSegChain(segs ...Segment) SegChain {
	return SegChain{Segments: segs}
}

// First and Rest split a chain into its head segment and tail chain,
// mirroring the resolver's head/tail recursive materialization.
func (c SegChain) First() Segment {
	return c.Segments[0]
}

func (c SegChain) Rest() SegChain {
	return SegChain{Segments: c.Segments[1:]}
}

func (c SegChain) HasRest() bool {
	return len(c.Segments) > 1
}
