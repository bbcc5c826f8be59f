// Package olapmetapb holds the wire messages for the Metadata
// service. Neither a .proto source nor generated *.pb.go code is
// checked into this tree, so the message shapes are declared here by
// hand to keep the client code that depends on them self-contained.
package olapmetapb

type CubeGidRequest struct {
	Gid uint64
}

type CubeNameRequest struct {
	Name string
}

type CubeMetaResponse struct {
	Gid  uint64
	Name string
}

type DimensionRolesByCubeGidRequest struct {
	CubeGid uint64
}

type DimensionRolesByCubeGidResponse struct {
	DimensionRoles []DimensionRoleMsg
}

type DimensionRoleMsg struct {
	Gid                 uint64
	Name                string
	CubeGid             uint64
	DimensionGid        uint64
	DefaultHierarchyGid uint64
	IsMeasure           bool
}

type DimensionRoleByGidRequest struct {
	DimensionRoleGid uint64
}

type DimensionRoleByNameRequest struct {
	CubeGid          uint64
	DimensionRoleName string
}

type DefaultDimensionMemberRequest struct {
	DimensionGid uint64
}

type MemberMsg struct {
	Gid          uint64
	Name         string
	LevelGid     uint64
	LevelOrdinal int32
	ParentGid    uint64
	MeasureIndex int32
	Leaf         bool
	FullPath     []uint64
}

type MemberByNameRequest struct {
	DimensionRoleGid uint64
	Name             string
}

type AllMembersRequest struct{}

type AllMembersResponse struct {
	Members []MemberMsg
}

type LevelMsg struct {
	Gid              uint64
	Name             string
	Ordinal          int32
	DimensionGid     uint64
	HierarchyGid     uint64
	OpeningPeriodGid uint64
	ClosingPeriodGid uint64
}

type AllLevelsRequest struct{}

type AllLevelsResponse struct {
	Levels []LevelMsg
}

type UserAccessRulesRequest struct {
	UserName string
}

type AccessRuleMsg struct {
	DimensionRoleGid uint64
	OlapEntityGid    uint64
	HasAccess        bool
}

type UserAccessRulesResponse struct {
	Rules []AccessRuleMsg
}
