// Package aggclient implements the Aggregation service client: the
// wire transform from a base-member Tuple to a VectorCoordinate (drop
// the measure role after extracting its index, sort the rest by
// dimension-role gid, substitute gid 0 for level-0 members) and the
// RPC dispatch itself.
package aggclient

import (
	"context"
	"fmt"
	"sort"

	"google.golang.org/grpc"

	"mdxgrid/evaluator/internal/domain"
	"mdxgrid/evaluator/internal/rpc/aggpb"
	_ "mdxgrid/evaluator/internal/rpcutil" // registers the json grpc codec
)

// Client is the Aggregation RPC facade. One call batches every base
// coordinate the Calculator needs for a single query pass.
type Client interface {
	Aggregate(ctx context.Context, cubeGid domain.Gid, tuples []domain.Tuple) (values []float64, nullFlags []bool, err error)
}

type GrpcClient struct {
	cc *grpc.ClientConn
}

func Dial(address string, opts ...grpc.DialOption) (*GrpcClient, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")))
	cc, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("aggclient: dial %s: %w", address, err)
	}
	return &GrpcClient{cc: cc}, nil
}

func (c *GrpcClient) Close() error { return c.cc.Close() }

// Aggregate expects every tuple to already be access-filtered and
// made up entirely of domain.MemberRole{IsFormula: false} entries —
// FormulaMember coordinates never reach the aggregation service,
// matching the original client's hard panic on that case (we return
// an error instead of panicking, per this module's error-handling
// convention).
func (c *GrpcClient) Aggregate(ctx context.Context, cubeGid domain.Gid, tuples []domain.Tuple) ([]float64, []bool, error) {
	if len(tuples) == 0 {
		return nil, nil, nil
	}

	coords := make([]aggpb.VectorCoordinate, len(tuples))
	for i, t := range tuples {
		vc, err := TransformCoordinate(t)
		if err != nil {
			return nil, nil, fmt.Errorf("aggclient: coordinate %d: %w", i, err)
		}
		coords[i] = vc
	}

	req := &aggpb.AggregationRequest{CubeGid: uint64(cubeGid), Coordinates: coords}
	resp := &aggpb.AggregationResponse{}
	if err := c.cc.Invoke(ctx, "/agg_service.AggService/Aggregates", req, resp); err != nil {
		return nil, nil, fmt.Errorf("aggclient: Aggregate: %w", err)
	}
	return resp.Values, resp.NullFlags, nil
}

// TransformCoordinate converts one fully-resolved base tuple into the
// wire form the aggregation service expects: drop the measure role
// (remembering its measure index), sort the remaining roles by
// dimension-role gid ascending, and substitute gid 0 for any member
// sitting at level 0 (the "all" rollup).
func TransformCoordinate(t domain.Tuple) (aggpb.VectorCoordinate, error) {
	var measureIndex uint32
	rest := make([]domain.MemberRole, 0, len(t.Roles))

	for _, role := range t.Roles {
		if role.IsFormula {
			return aggpb.VectorCoordinate{}, fmt.Errorf("aggclient: FormulaMember coordinates are not supported by the aggregation service")
		}
		if role.DimRole.IsMeasure {
			measureIndex = uint32(role.Member.MeasureIndex)
			continue
		}
		rest = append(rest, role)
	}

	sort.Slice(rest, func(i, j int) bool { return rest[i].DimRole.Gid < rest[j].DimRole.Gid })

	gids := make([]uint64, len(rest))
	for i, role := range rest {
		if role.Member.LevelOrdinal == 0 {
			gids[i] = 0
		} else {
			gids[i] = uint64(role.Member.Gid)
		}
	}

	return aggpb.VectorCoordinate{MemberGidArr: gids, MeasureIndex: measureIndex}, nil
}
