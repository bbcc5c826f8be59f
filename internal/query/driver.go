package query

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mdxgrid/evaluator/internal/access"
	"mdxgrid/evaluator/internal/ast"
	"mdxgrid/evaluator/internal/calculator"
	"mdxgrid/evaluator/internal/domain"
	"mdxgrid/evaluator/internal/evalctx"
	"mdxgrid/evaluator/internal/metaclient"
	"mdxgrid/evaluator/internal/queryerr"
	"mdxgrid/evaluator/internal/resolver"
)

var tracer = otel.Tracer("mdxgrid/evaluator/internal/query")

// MetaClient is the full metadata RPC surface the driver needs:
// everything evalctx.Context threads to the resolver plus the access
// rule load the driver itself performs. metaclient.Client implements
// this.
type MetaClient = metaclient.Client

// Aggregator is the subset of aggclient.Client the driver wires into
// the per-query Calculator.
type Aggregator = calculator.Aggregator

// DefaultFiducialCap bounds the fiducial axis-resolution loop (spec.md
// §9's open question on cyclic axis dependencies: cap rather than
// loop unboundedly).
const DefaultFiducialCap = 8

// Config tunes driver behavior the spec leaves as an open question or
// an external configuration concern.
type Config struct {
	FiducialCap int
	Access      access.Config
}

func DefaultConfig() Config {
	return Config{FiducialCap: DefaultFiducialCap, Access: access.DefaultConfig()}
}

// Driver is the top-level query orchestrator: one Execute call per
// incoming MDX statement.
type Driver struct {
	MetaClient MetaClient
	MetaCache  evalctx.MetaCache
	AggClient  Aggregator
	Cfg        Config
}

func New(metaClient MetaClient, metaCache evalctx.MetaCache, aggClient Aggregator, cfg Config) *Driver {
	return &Driver{MetaClient: metaClient, MetaCache: metaCache, AggClient: aggClient, Cfg: cfg}
}

// Execute evaluates stmt on behalf of userName: resolve the cube,
// build the default and slicer tuples, materialize every axis, form
// the Cartesian coordinate grid, and dispatch it to the Calculator.
func (d *Driver) Execute(ctx context.Context, userName string, stmt Statement) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Driver.Execute", trace.WithAttributes(
		attribute.String("mdx.user", userName),
		attribute.Int("mdx.axis_count", len(stmt.Axes)),
	))
	defer span.End()

	cube, err := d.resolveCube(ctx, stmt.Cube)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("mdx.cube", cube.Name))

	dimRoles, err := d.MetaClient.DimensionRolesOfCube(ctx, cube.Gid)
	if err != nil {
		return nil, queryerr.Wrap(queryerr.CodeTransport, fmt.Errorf("query: dimension roles of cube %s: %w", cube.Name, err))
	}

	defaultTuple, err := d.buildDefaultTuple(ctx, dimRoles)
	if err != nil {
		return nil, err
	}

	formulas := make(map[domain.Gid]domain.MemberRole, len(stmt.Formulas))
	for _, f := range stmt.Formulas {
		formulas[f.Gid] = domain.NewFormulaMemberRole(f.DimRoleGid, f.Gid, f.Expr)
	}

	accessCtrl, err := d.buildAccessControl(ctx, userName, dimRoles)
	if err != nil {
		return nil, err
	}

	calc := calculator.New(accessCtrl, d.AggClient, cube.Gid)

	ec := evalctx.Context{
		Ctx:        ctx,
		Cube:       cube,
		DimRoles:   dimRoles,
		SliceTuple: defaultTuple,
		Formulas:   formulas,
		MetaCache:  d.MetaCache,
		MetaClnt:   d.MetaClient,
		Access:     accessCtrl,
		Calc:       calc,
	}
	calc.Bind(&ec)

	queryTuple, err := d.mergeSlicer(ec, defaultTuple, stmt.Where)
	if err != nil {
		return nil, err
	}
	ec.SliceTuple = queryTuple

	runningSlice, err := d.runFiducialPasses(ec, stmt.Axes)
	if err != nil {
		return nil, err
	}

	axes, err := d.materializeAxes(ec, stmt.Axes, runningSlice)
	if err != nil {
		return nil, err
	}

	coords := cartesianProduct(axes, queryTuple)

	cells, err := calc.Calculate(ctx, coords)
	if err != nil {
		return nil, err
	}

	return &Result{Axes: axes, Cells: cells}, nil
}

func (d *Driver) resolveCube(ctx context.Context, seg ast.Segment) (domain.Cube, error) {
	switch seg.Kind {
	case ast.SegGid:
		cube, err := d.MetaClient.CubeByGid(ctx, domain.Gid(seg.Gid))
		if err != nil {
			return domain.Cube{}, queryerr.Wrap(queryerr.CodeTransport, fmt.Errorf("query: cube %d: %w", seg.Gid, err))
		}
		return cube, nil
	case ast.SegStr:
		cube, err := d.MetaClient.CubeByName(ctx, seg.Str)
		if err != nil {
			return domain.Cube{}, queryerr.Wrap(queryerr.CodeTransport, fmt.Errorf("query: cube %q: %w", seg.Str, err))
		}
		return cube, nil
	case ast.SegGidStr:
		var g uint64
		if _, err := fmt.Sscanf(seg.GidStr, "%d", &g); err != nil {
			return domain.Cube{}, queryerr.New(queryerr.CodeTypeMismatch, "query: malformed cube gid string %q", seg.GidStr)
		}
		return d.resolveCube(ctx, ast.Segment{Kind: ast.SegGid, Gid: g})
	default:
		return domain.Cube{}, queryerr.New(queryerr.CodeTypeMismatch, "query: statement's cube segment must be a gid or a name, got kind %d", seg.Kind)
	}
}

// buildDefaultTuple assigns every dimension role its dimension's
// default member (spec.md §4.8 step 2).
func (d *Driver) buildDefaultTuple(ctx context.Context, dimRoles []domain.DimensionRole) (domain.Tuple, error) {
	roles := make([]domain.MemberRole, 0, len(dimRoles))
	for _, dr := range dimRoles {
		member, err := d.MetaClient.DefaultMemberOfDimension(ctx, dr.DimensionGid)
		if err != nil {
			return domain.Tuple{}, queryerr.Wrap(queryerr.CodeTransport, fmt.Errorf("query: default member of dimension role %s: %w", dr.Name, err))
		}
		roles = append(roles, domain.NewBaseMemberRole(dr, member))
	}
	return domain.NewTuple(roles...), nil
}

// mergeSlicer resolves each WHERE segment chain to a MemberRole and
// merges the result into defaultTuple, WHERE winning per spec.md
// invariant 1 (b wins in merge(a,b)) and testable scenario 2.
func (d *Driver) mergeSlicer(ec evalctx.Context, defaultTuple domain.Tuple, where []ast.SegChain) (domain.Tuple, error) {
	if len(where) == 0 {
		return defaultTuple, nil
	}
	whereRoles := make([]domain.MemberRole, 0, len(where))
	for _, chain := range where {
		entity, err := resolver.Materialize(chain, ec)
		if err != nil {
			return domain.Tuple{}, fmt.Errorf("query: WHERE clause: %w", err)
		}
		role, err := entity.AsMemberRole()
		if err != nil {
			return domain.Tuple{}, fmt.Errorf("query: WHERE clause: %w", err)
		}
		whereRoles = append(whereRoles, role)
	}
	return defaultTuple.Merge(domain.NewTuple(whereRoles...)), nil
}

// runFiducialPasses stabilizes axes that reference another axis's
// current member by re-resolving each axis's first tuple N times (N
// = axis count) and folding it into a running slice, per spec.md §4.8
// step 5. The pass count is capped (spec.md §9 open question) rather
// than left unbounded for a cyclic axis dependency: a statement with
// more axes than FiducialCap fails with CodeNonConvergent up front,
// and a slice that is still changing after the last pass is returned
// as it stands, without an error.
func (d *Driver) runFiducialPasses(ec evalctx.Context, axes []AxisSpec) (domain.Tuple, error) {
	passes := len(axes)
	if d.Cfg.FiducialCap > 0 && passes > d.Cfg.FiducialCap {
		return domain.Tuple{}, queryerr.New(queryerr.CodeNonConvergent, "query: %d axes exceed the fiducial pass cap of %d", passes, d.Cfg.FiducialCap)
	}

	running := ec.SliceTuple
	for pass := 0; pass < passes; pass++ {
		before := running
		for _, axis := range axes {
			axisCtx := ec
			axisCtx.SliceTuple = running
			entity, err := resolver.Materialize(axis.Set, axisCtx)
			if err != nil {
				return domain.Tuple{}, fmt.Errorf("query: fiducial pass on axis %d: %w", axis.Number, err)
			}
			set, err := entity.AsSet()
			if err != nil {
				return domain.Tuple{}, fmt.Errorf("query: axis %d does not resolve to a set: %w", axis.Number, err)
			}
			if len(set.Tuples) > 0 {
				running = running.Merge(set.Tuples[0])
			}
		}
		if tuplesEqual(before, running) {
			break
		}
	}
	return running, nil
}

// materializeAxes resolves every axis's set expression one final time
// against the stabilized slice from the fiducial passes.
func (d *Driver) materializeAxes(ec evalctx.Context, specs []AxisSpec, slice domain.Tuple) ([]Axis, error) {
	ctx, span := tracer.Start(ec.Ctx, "Driver.materializeAxes", trace.WithAttributes(
		attribute.Int("mdx.axis_count", len(specs)),
	))
	defer span.End()
	ec.Ctx = ctx

	axes := make([]Axis, len(specs))
	for i, spec := range specs {
		axisCtx := ec
		axisCtx.SliceTuple = slice
		entity, err := resolver.Materialize(spec.Set, axisCtx)
		if err != nil {
			return nil, fmt.Errorf("query: materializing axis %d: %w", spec.Number, err)
		}
		set, err := entity.AsSet()
		if err != nil {
			return nil, fmt.Errorf("query: axis %d does not resolve to a set: %w", spec.Number, err)
		}
		axes[i] = Axis{Number: spec.Number, Set: set}
	}
	return axes, nil
}

// cartesianProduct left-folds axis sets into a growing coordinate
// (spec.md §4.8 step 7), then merges each resulting tuple with
// queryTuple so the slicer/default fills in every dimension role no
// axis mentions, while an axis's own member wins where it does
// (merge(a,b): b wins, so the axis-built coordinate is merged as b).
func cartesianProduct(axes []Axis, queryTuple domain.Tuple) []domain.Tuple {
	acc := []domain.Tuple{{}}
	for _, axis := range axes {
		next := make([]domain.Tuple, 0, len(acc)*len(axis.Set.Tuples))
		for _, a := range acc {
			for _, t := range axis.Set.Tuples {
				next = append(next, a.Merge(t))
			}
		}
		acc = next
	}

	out := make([]domain.Tuple, len(acc))
	for i, coord := range acc {
		out[i] = queryTuple.Merge(coord)
	}
	return out
}

func tuplesEqual(a, b domain.Tuple) bool {
	if len(a.Roles) != len(b.Roles) {
		return false
	}
	for i := range a.Roles {
		if a.Roles[i].DimRoleGid() != b.Roles[i].DimRoleGid() {
			return false
		}
		ar, br := a.Roles[i], b.Roles[i]
		if ar.IsFormula != br.IsFormula {
			return false
		}
		if ar.IsFormula {
			if ar.FormulaGid != br.FormulaGid {
				return false
			}
			continue
		}
		if ar.Member.Gid != br.Member.Gid {
			return false
		}
	}
	return true
}

// buildAccessControl loads userName's access rules and wraps them in
// an access.Control, precomputing the measure-dim-role and root-member
// sets the longest-path-wins check needs (spec.md §4.4).
func (d *Driver) buildAccessControl(ctx context.Context, userName string, dimRoles []domain.DimensionRole) (*access.Control, error) {
	rows, err := d.MetaClient.UserAccessRules(ctx, userName)
	if err != nil {
		return nil, queryerr.Wrap(queryerr.CodeAccessRules, fmt.Errorf("query: access rules for %q: %w", userName, err))
	}

	measureDimRoles := make(map[domain.Gid]bool, len(dimRoles))
	for _, dr := range dimRoles {
		if dr.IsMeasure {
			measureDimRoles[dr.Gid] = true
		}
	}

	rules := make([]access.Rule, len(rows))
	rootMembers := make(map[domain.Gid]bool)
	for i, r := range rows {
		rules[i] = access.Rule{
			UserName:         userName,
			DimensionRoleGid: r.DimensionRoleGid,
			OlapEntityGid:    r.OlapEntityGid,
			HasAccess:        r.HasAccess,
		}
		if member, err := d.MetaCache.GetMember(r.OlapEntityGid); err == nil && member.LevelOrdinal == 0 {
			rootMembers[r.OlapEntityGid] = true
		}
	}

	return access.New(d.Cfg.Access, rules, measureDimRoles, rootMembers), nil
}
