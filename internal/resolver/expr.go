package resolver

import (
	"fmt"

	"mdxgrid/evaluator/internal/ast"
	"mdxgrid/evaluator/internal/domain"
	"mdxgrid/evaluator/internal/evalctx"
)

// EvalExpression evaluates an arithmetic AST expression to a
// CellValue. baseTuple is the coordinate any member-role factor gets
// merged into before asking the Calculator (ctx.Calc) for its value,
// exactly the way the original evaluator folds a resolved member into
// the enclosing tuple before recursing into calculation.
func EvalExpression(expr ast.Expression, baseTuple domain.Tuple, ctx evalctx.Context) (domain.CellValue, error) {
	acc, err := EvalTerm(expr.First, baseTuple, ctx)
	if err != nil {
		return domain.CellValue{}, err
	}
	for _, st := range expr.Rest {
		v, err := EvalTerm(st.Term, baseTuple, ctx)
		if err != nil {
			return domain.CellValue{}, err
		}
		if st.Negative {
			acc = acc.Sub(v)
		} else {
			acc = acc.Add(v)
		}
	}
	return acc, nil
}

func EvalTerm(term ast.Term, baseTuple domain.Tuple, ctx evalctx.Context) (domain.CellValue, error) {
	acc, err := EvalFactor(term.First, baseTuple, ctx)
	if err != nil {
		return domain.CellValue{}, err
	}
	for _, of := range term.Rest {
		v, err := EvalFactor(of.Factor, baseTuple, ctx)
		if err != nil {
			return domain.CellValue{}, err
		}
		if of.Divide {
			acc = acc.Div(v)
		} else {
			acc = acc.Mul(v)
		}
	}
	return acc, nil
}

func EvalFactor(f ast.Factor, baseTuple domain.Tuple, ctx evalctx.Context) (domain.CellValue, error) {
	switch f.Kind {
	case ast.FactorNumber:
		return domain.DoubleVal(f.Number), nil
	case ast.FactorString:
		return domain.StrVal(f.String), nil
	case ast.FactorParenExpr:
		return EvalExpression(*f.Paren, baseTuple, ctx)
	case ast.FactorSegChain:
		entity, err := Materialize(f.Chain, ctx)
		if err != nil {
			return domain.CellValue{}, err
		}
		return valueOfEntity(entity, baseTuple, ctx)
	case ast.FactorTuple:
		tuple := baseTuple
		for _, chain := range f.Tuple {
			entity, err := Materialize(chain, ctx)
			if err != nil {
				return domain.CellValue{}, err
			}
			role, err := entity.AsMemberRole()
			if err != nil {
				return domain.CellValue{}, fmt.Errorf("resolver: tuple literal: %w", err)
			}
			tuple = tuple.Merge(domain.NewTuple(role))
		}
		return ctx.Calc.Value(ctx.Ctx, tuple)
	default:
		return domain.CellValue{}, fmt.Errorf("resolver: unknown factor kind %d", f.Kind)
	}
}

func valueOfEntity(entity domain.Entity, baseTuple domain.Tuple, ctx evalctx.Context) (domain.CellValue, error) {
	if entity.Cell != nil {
		return *entity.Cell, nil
	}
	if entity.MemberRl != nil {
		merged := baseTuple.Merge(domain.NewTuple(*entity.MemberRl))
		return ctx.Calc.Value(ctx.Ctx, merged)
	}
	return domain.CellValue{}, fmt.Errorf("resolver: %s cannot be coerced to a value", entity.Describe())
}
