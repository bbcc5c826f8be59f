// Package calculator implements the cell calculation engine: for each
// coordinate in a result grid, decide whether it is a base
// aggregation (delegated to the Aggregation service) or a formula
// (calculated member) coordinate evaluated by recursive expression
// evaluation, gate base coordinates through AccessControl, and
// reassemble both paths back into original order.
package calculator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mdxgrid/evaluator/internal/domain"
	"mdxgrid/evaluator/internal/evalctx"
	"mdxgrid/evaluator/internal/resolver"
)

var tracer = otel.Tracer("mdxgrid/evaluator/internal/calculator")

// Aggregator is the subset of aggclient.Client the Calculator needs:
// one batched call per base-coordinate dispatch.
type Aggregator interface {
	Aggregate(ctx context.Context, cubeGid domain.Gid, tuples []domain.Tuple) (values []float64, nullFlags []bool, err error)
}

// Calculator partitions coordinates into base and formula paths and
// reassembles their results in original order. It implements
// evalctx.Valuer so the resolver's aggregator functions and formula
// arithmetic can recurse back into calculation without an import
// cycle: the query driver wires c into the evalctx.Context it builds,
// then calls Bind so the Calculator can thread that same context into
// its own recursive formula evaluation.
type Calculator struct {
	Access  evalctx.AccessControl
	Agg     Aggregator
	CubeGid domain.Gid

	evalCtx *evalctx.Context
}

func New(access evalctx.AccessControl, agg Aggregator, cubeGid domain.Gid) *Calculator {
	return &Calculator{Access: access, Agg: agg, CubeGid: cubeGid}
}

// Bind attaches the fully-built query evaluation context. Must be
// called once, after the MultiDimensionalContext's own Calc field has
// been set to this Calculator (evalctx.Context is built with a
// forward reference to it).
func (c *Calculator) Bind(ctx *evalctx.Context) {
	c.evalCtx = ctx
}

// Value evaluates a single tuple, satisfying evalctx.Valuer for
// recursive calls from aggregator functions (Sum/Avg/Count/Max/Min)
// and tuple-literal factors.
func (c *Calculator) Value(ctx context.Context, tuple domain.Tuple) (domain.CellValue, error) {
	values, err := c.Calculate(ctx, []domain.Tuple{tuple})
	if err != nil {
		return domain.CellValue{}, err
	}
	return values[0], nil
}

// Calculate evaluates every coordinate in coords and returns one
// CellValue per coordinate, in the same order as coords (spec.md
// invariant 2: |calculate(V,C)| == |V| and ordering matches input).
func (c *Calculator) Calculate(ctx context.Context, coords []domain.Tuple) ([]domain.CellValue, error) {
	ctx, span := tracer.Start(ctx, "Calculator.Calculate", trace.WithAttributes(
		attribute.Int("mdx.coordinate_count", len(coords)),
	))
	defer span.End()

	if c.evalCtx == nil {
		return nil, fmt.Errorf("calculator: Bind was never called with a query context")
	}

	results := make([]domain.CellValue, len(coords))

	var (
		baseIdx    []int
		baseTuples []domain.Tuple
	)
	for i, t := range coords {
		if isFormulaCoordinate(t) {
			v, err := c.evaluateFormula(ctx, t)
			if err != nil {
				return nil, err
			}
			results[i] = v
			continue
		}
		baseIdx = append(baseIdx, i)
		baseTuples = append(baseTuples, t)
	}

	if len(baseTuples) > 0 {
		if err := c.evaluateBase(ctx, baseIdx, baseTuples, results); err != nil {
			return nil, err
		}
	}

	return results, nil
}

// isFormulaCoordinate reports whether t carries any FormulaMember
// role (spec.md §4.7 step 1: partition by inspection).
func isFormulaCoordinate(t domain.Tuple) bool {
	for _, r := range t.Roles {
		if r.IsFormula {
			return true
		}
	}
	return false
}

// evaluateBase access-filters baseTuples, dispatches the accessible
// subset to the Aggregation service in one batched call, and writes
// each result back into results at its original position (out[i]
// for denied coordinates is set to CellNull via domain.NullVal).
func (c *Calculator) evaluateBase(ctx context.Context, idx []int, tuples []domain.Tuple, out []domain.CellValue) error {
	ctx, span := tracer.Start(ctx, "Calculator.evaluateBase", trace.WithAttributes(
		attribute.Int("mdx.base_coordinate_count", len(tuples)),
	))
	defer span.End()

	accessible := c.Access.Check(tuples)

	var (
		keptIdx    []int
		keptTuples []domain.Tuple
	)
	for i, t := range tuples {
		if accessible[i] {
			keptIdx = append(keptIdx, idx[i])
			keptTuples = append(keptTuples, t)
		} else {
			out[idx[i]] = domain.NullVal()
		}
	}

	if len(keptTuples) == 0 {
		return nil
	}

	values, nullFlags, err := c.Agg.Aggregate(ctx, c.CubeGid, keptTuples)
	if err != nil {
		return fmt.Errorf("calculator: base aggregation: %w", err)
	}
	if len(values) != len(keptTuples) || len(nullFlags) != len(keptTuples) {
		return fmt.Errorf("calculator: aggregation service returned %d/%d values for %d coordinates", len(values), len(nullFlags), len(keptTuples))
	}

	for i, pos := range keptIdx {
		if nullFlags[i] {
			out[pos] = domain.NullVal()
		} else {
			out[pos] = domain.DoubleVal(values[i])
		}
	}
	return nil
}

// evaluateFormula locates the rightmost FormulaMember role in t (the
// original scans from the end of the tuple so the most recently
// substituted calculated member wins when a tuple somehow carries more
// than one), merges t into the ambient slice to form the shifted
// evaluation context, and recurses through resolver.EvalExpression.
// That recursion may itself produce base coordinates, which flow back
// through Calculate/evaluateBase.
func (c *Calculator) evaluateFormula(ctx context.Context, t domain.Tuple) (domain.CellValue, error) {
	role, ok := rightmostFormula(t)
	if !ok {
		return domain.CellValue{}, fmt.Errorf("calculator: evaluateFormula called on a coordinate with no FormulaMember role")
	}

	shifted := c.evalCtx.Fork(ctx)
	shifted.SliceTuple = shifted.SliceTuple.Merge(t)

	return resolver.EvalExpression(role.Expr, shifted.SliceTuple, shifted)
}

func rightmostFormula(t domain.Tuple) (domain.MemberRole, bool) {
	for i := len(t.Roles) - 1; i >= 0; i-- {
		if t.Roles[i].IsFormula {
			return t.Roles[i], true
		}
	}
	return domain.MemberRole{}, false
}
