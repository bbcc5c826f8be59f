// Package metaclient implements the Metadata service client facade:
// cube/dimension-role/member lookups by gid or name, default members,
// and the bulk AllMembers/AllLevels loads that seed MetaCache.
package metaclient

import (
	"context"

	"mdxgrid/evaluator/internal/domain"
)

// Client is the full Metadata RPC surface the rest of this module
// consumes, satisfying both evalctx.MetaClient and metacache.MetaClient.
type Client interface {
	CubeByGid(ctx context.Context, gid domain.Gid) (domain.Cube, error)
	CubeByName(ctx context.Context, name string) (domain.Cube, error)
	DimensionRolesOfCube(ctx context.Context, cubeGid domain.Gid) ([]domain.DimensionRole, error)
	DimensionRoleByGid(ctx context.Context, gid domain.Gid) (domain.DimensionRole, error)
	DimensionRoleByName(ctx context.Context, cubeGid domain.Gid, name string) (domain.DimensionRole, error)
	DefaultMemberOfDimension(ctx context.Context, dimensionGid domain.Gid) (domain.Member, error)
	MemberByGid(ctx context.Context, gid domain.Gid) (domain.Member, error)
	MemberByName(ctx context.Context, dimRoleGid domain.Gid, name string) (domain.Member, error)
	AllMembers(ctx context.Context) ([]domain.Member, error)
	AllLevels(ctx context.Context) ([]domain.Level, error)
	UserAccessRules(ctx context.Context, userName string) ([]AccessRuleRow, error)
}

// AccessRuleRow is the wire shape of one user access grant row, before
// it's wrapped into access.Rule by the query driver (which also knows
// the requesting user name).
type AccessRuleRow struct {
	DimensionRoleGid domain.Gid
	OlapEntityGid    domain.Gid
	HasAccess        bool
}
