package metaclient

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"mdxgrid/evaluator/internal/domain"
	"mdxgrid/evaluator/internal/rpc/olapmetapb"
	_ "mdxgrid/evaluator/internal/rpcutil" // registers the json grpc codec
)

// GrpcClient is a thin wrapper over a grpc.ClientConn, mirroring the
// original Rust GrpcClient's per-RPC methods one for one.
type GrpcClient struct {
	cc *grpc.ClientConn
}

// Dial connects to the metadata service at address using the JSON
// wire codec (see internal/rpcutil).
func Dial(address string, opts ...grpc.DialOption) (*GrpcClient, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")))
	cc, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("metaclient: dial %s: %w", address, err)
	}
	return &GrpcClient{cc: cc}, nil
}

func (c *GrpcClient) Close() error { return c.cc.Close() }

func (c *GrpcClient) CubeByGid(ctx context.Context, gid domain.Gid) (domain.Cube, error) {
	req := &olapmetapb.CubeGidRequest{Gid: uint64(gid)}
	resp := &olapmetapb.CubeMetaResponse{}
	if err := c.cc.Invoke(ctx, "/olapmeta.OlapMetaService/GetCubeByGid", req, resp); err != nil {
		return domain.Cube{}, fmt.Errorf("metaclient: CubeByGid(%s): %w", gid, err)
	}
	return domain.Cube{Gid: domain.Gid(resp.Gid), Name: resp.Name}, nil
}

func (c *GrpcClient) CubeByName(ctx context.Context, name string) (domain.Cube, error) {
	req := &olapmetapb.CubeNameRequest{Name: name}
	resp := &olapmetapb.CubeMetaResponse{}
	if err := c.cc.Invoke(ctx, "/olapmeta.OlapMetaService/GetCubeByName", req, resp); err != nil {
		return domain.Cube{}, fmt.Errorf("metaclient: CubeByName(%s): %w", name, err)
	}
	return domain.Cube{Gid: domain.Gid(resp.Gid), Name: resp.Name}, nil
}

func (c *GrpcClient) DimensionRolesOfCube(ctx context.Context, cubeGid domain.Gid) ([]domain.DimensionRole, error) {
	req := &olapmetapb.DimensionRolesByCubeGidRequest{CubeGid: uint64(cubeGid)}
	resp := &olapmetapb.DimensionRolesByCubeGidResponse{}
	if err := c.cc.Invoke(ctx, "/olapmeta.OlapMetaService/GetDimensionRolesByCubeGid", req, resp); err != nil {
		return nil, fmt.Errorf("metaclient: DimensionRolesOfCube(%s): %w", cubeGid, err)
	}
	out := make([]domain.DimensionRole, len(resp.DimensionRoles))
	for i, dr := range resp.DimensionRoles {
		out[i] = dimRoleFromMsg(dr)
	}
	return out, nil
}

func (c *GrpcClient) DimensionRoleByGid(ctx context.Context, gid domain.Gid) (domain.DimensionRole, error) {
	req := &olapmetapb.DimensionRoleByGidRequest{DimensionRoleGid: uint64(gid)}
	resp := &olapmetapb.DimensionRoleMsg{}
	if err := c.cc.Invoke(ctx, "/olapmeta.OlapMetaService/GetDimensionRoleByGid", req, resp); err != nil {
		return domain.DimensionRole{}, fmt.Errorf("metaclient: DimensionRoleByGid(%s): %w", gid, err)
	}
	return dimRoleFromMsg(*resp), nil
}

func (c *GrpcClient) DimensionRoleByName(ctx context.Context, cubeGid domain.Gid, name string) (domain.DimensionRole, error) {
	req := &olapmetapb.DimensionRoleByNameRequest{CubeGid: uint64(cubeGid), DimensionRoleName: name}
	resp := &olapmetapb.DimensionRoleMsg{}
	if err := c.cc.Invoke(ctx, "/olapmeta.OlapMetaService/GetDimensionRoleByName", req, resp); err != nil {
		return domain.DimensionRole{}, fmt.Errorf("metaclient: DimensionRoleByName(%s): %w", name, err)
	}
	return dimRoleFromMsg(*resp), nil
}

func (c *GrpcClient) DefaultMemberOfDimension(ctx context.Context, dimensionGid domain.Gid) (domain.Member, error) {
	req := &olapmetapb.DefaultDimensionMemberRequest{DimensionGid: uint64(dimensionGid)}
	resp := &olapmetapb.MemberMsg{}
	if err := c.cc.Invoke(ctx, "/olapmeta.OlapMetaService/GetDefaultDimensionMemberByDimensionGid", req, resp); err != nil {
		return domain.Member{}, fmt.Errorf("metaclient: DefaultMemberOfDimension(%s): %w", dimensionGid, err)
	}
	return memberFromMsg(*resp), nil
}

func (c *GrpcClient) MemberByGid(ctx context.Context, gid domain.Gid) (domain.Member, error) {
	req := &olapmetapb.CubeGidRequest{Gid: uint64(gid)}
	resp := &olapmetapb.MemberMsg{}
	if err := c.cc.Invoke(ctx, "/olapmeta.OlapMetaService/GetMemberByGid", req, resp); err != nil {
		return domain.Member{}, fmt.Errorf("metaclient: MemberByGid(%s): %w", gid, err)
	}
	return memberFromMsg(*resp), nil
}

func (c *GrpcClient) MemberByName(ctx context.Context, dimRoleGid domain.Gid, name string) (domain.Member, error) {
	req := &olapmetapb.MemberByNameRequest{DimensionRoleGid: uint64(dimRoleGid), Name: name}
	resp := &olapmetapb.MemberMsg{}
	if err := c.cc.Invoke(ctx, "/olapmeta.OlapMetaService/GetMemberByName", req, resp); err != nil {
		return domain.Member{}, fmt.Errorf("metaclient: MemberByName(%s): %w", name, err)
	}
	return memberFromMsg(*resp), nil
}

func (c *GrpcClient) AllMembers(ctx context.Context) ([]domain.Member, error) {
	req := &olapmetapb.AllMembersRequest{}
	resp := &olapmetapb.AllMembersResponse{}
	if err := c.cc.Invoke(ctx, "/olapmeta.OlapMetaService/GetAllMembers", req, resp); err != nil {
		return nil, fmt.Errorf("metaclient: AllMembers: %w", err)
	}
	out := make([]domain.Member, len(resp.Members))
	for i, m := range resp.Members {
		out[i] = memberFromMsg(m)
	}
	return out, nil
}

func (c *GrpcClient) AllLevels(ctx context.Context) ([]domain.Level, error) {
	req := &olapmetapb.AllLevelsRequest{}
	resp := &olapmetapb.AllLevelsResponse{}
	if err := c.cc.Invoke(ctx, "/olapmeta.OlapMetaService/GetAllLevels", req, resp); err != nil {
		return nil, fmt.Errorf("metaclient: AllLevels: %w", err)
	}
	out := make([]domain.Level, len(resp.Levels))
	for i, l := range resp.Levels {
		out[i] = domain.Level{
			Gid:              domain.Gid(l.Gid),
			Name:             l.Name,
			Ordinal:          int(l.Ordinal),
			DimensionGid:     domain.Gid(l.DimensionGid),
			HierarchyGid:     domain.Gid(l.HierarchyGid),
			OpeningPeriodGid: domain.Gid(l.OpeningPeriodGid),
			ClosingPeriodGid: domain.Gid(l.ClosingPeriodGid),
		}
	}
	return out, nil
}

func (c *GrpcClient) UserAccessRules(ctx context.Context, userName string) ([]AccessRuleRow, error) {
	req := &olapmetapb.UserAccessRulesRequest{UserName: userName}
	resp := &olapmetapb.UserAccessRulesResponse{}
	if err := c.cc.Invoke(ctx, "/olapmeta.OlapMetaService/GetUserAccessRules", req, resp); err != nil {
		return nil, fmt.Errorf("metaclient: UserAccessRules(%s): %w", userName, err)
	}
	out := make([]AccessRuleRow, len(resp.Rules))
	for i, r := range resp.Rules {
		out[i] = AccessRuleRow{
			DimensionRoleGid: domain.Gid(r.DimensionRoleGid),
			OlapEntityGid:    domain.Gid(r.OlapEntityGid),
			HasAccess:        r.HasAccess,
		}
	}
	return out, nil
}

func dimRoleFromMsg(m olapmetapb.DimensionRoleMsg) domain.DimensionRole {
	return domain.DimensionRole{
		Gid:                 domain.Gid(m.Gid),
		Name:                m.Name,
		CubeGid:             domain.Gid(m.CubeGid),
		DimensionGid:        domain.Gid(m.DimensionGid),
		DefaultHierarchyGid: domain.Gid(m.DefaultHierarchyGid),
		IsMeasure:           m.IsMeasure,
	}
}

func memberFromMsg(m olapmetapb.MemberMsg) domain.Member {
	fullPath := make([]domain.Gid, len(m.FullPath))
	for i, g := range m.FullPath {
		fullPath[i] = domain.Gid(g)
	}
	return domain.Member{
		Gid:          domain.Gid(m.Gid),
		Name:         m.Name,
		LevelGid:     domain.Gid(m.LevelGid),
		LevelOrdinal: int(m.LevelOrdinal),
		ParentGid:    domain.Gid(m.ParentGid),
		MeasureIndex: int(m.MeasureIndex),
		Leaf:         m.Leaf,
		FullPath:     fullPath,
	}
}
