package domain

import "fmt"

// Gid is a globally unique identifier for every entity in the cube
// metadata graph. The leading decimal digit encodes the entity kind,
// so a bare uint64 is enough to tell a Member gid from a Level gid
// without a side lookup.
type Gid uint64

// GidKind enumerates the entity kinds encoded in a Gid's leading digit.
type GidKind int

const (
	GidKindInvalid       GidKind = 0
	GidKindDimension     GidKind = 1
	GidKindHierarchy     GidKind = 2
	GidKindMember        GidKind = 3
	GidKindLevel         GidKind = 4
	GidKindCube          GidKind = 5
	GidKindDimensionRole GidKind = 6
	GidKindFormulaMember GidKind = 7
)

const gidKindDivisor = 100_000_000_000_000 // 10^14

// Kind decodes the entity kind from g's leading digit. It returns
// GidKindInvalid (and a non-nil error) for any digit outside 1-7.
func (g Gid) Kind() (GidKind, error) {
	kind := GidKind(uint64(g) / gidKindDivisor)
	switch kind {
	case GidKindDimension, GidKindHierarchy, GidKindMember, GidKindLevel,
		GidKindCube, GidKindDimensionRole, GidKindFormulaMember:
		return kind, nil
	default:
		return GidKindInvalid, fmt.Errorf("domain: gid %d has unrecognized kind digit %d", g, kind)
	}
}

// MustKind is Kind but panics on an invalid gid. Reserved for call
// sites that have already validated the gid (e.g. immediately after
// MetaCache construction).
func (g Gid) MustKind() GidKind {
	k, err := g.Kind()
	if err != nil {
		panic(err)
	}
	return k
}

func (g Gid) String() string {
	return fmt.Sprintf("%d", uint64(g))
}

// ZeroGid is the sentinel used by the wire-transform to stand in for
// a level-0 ("all") member, matching the aggregation service's
// convention that gid 0 means "no distinguishing member, use the
// dimension's all-level rollup".
const ZeroGid Gid = 0
