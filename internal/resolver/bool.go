package resolver

import (
	"fmt"

	"mdxgrid/evaluator/internal/ast"
	"mdxgrid/evaluator/internal/domain"
	"mdxgrid/evaluator/internal/evalctx"
)

// EvalBoolExpr evaluates the OR-of-ANDs-of-NOT?primary boolean
// grammar of ast.BoolExpr. WHERE clauses do not go through it: a
// statement's WHERE is a list of member segment chains.
func EvalBoolExpr(expr ast.BoolExpr, baseTuple domain.Tuple, ctx evalctx.Context) (bool, error) {
	for _, term := range expr.Terms {
		v, err := evalBoolTerm(term, baseTuple, ctx)
		if err != nil {
			return false, err
		}
		if v {
			return true, nil
		}
	}
	return false, nil
}

func evalBoolTerm(term ast.BoolTerm, baseTuple domain.Tuple, ctx evalctx.Context) (bool, error) {
	for _, factor := range term.Factors {
		v, err := evalBoolFactor(factor, baseTuple, ctx)
		if err != nil {
			return false, err
		}
		if !v {
			return false, nil
		}
	}
	return true, nil
}

func evalBoolFactor(factor ast.BoolFactor, baseTuple domain.Tuple, ctx evalctx.Context) (bool, error) {
	v, err := evalBoolPrimary(factor.Primary, baseTuple, ctx)
	if err != nil {
		return false, err
	}
	if factor.Negate {
		return !v, nil
	}
	return v, nil
}

func evalBoolPrimary(p ast.BoolPrimary, baseTuple domain.Tuple, ctx evalctx.Context) (bool, error) {
	switch p.Kind {
	case ast.BoolPrimaryCompare:
		left, err := EvalExpression(*p.Left, baseTuple, ctx)
		if err != nil {
			return false, err
		}
		right, err := EvalExpression(*p.Right, baseTuple, ctx)
		if err != nil {
			return false, err
		}
		return left.LogicalCmp(p.Op, right), nil
	case ast.BoolPrimaryNested:
		return EvalBoolExpr(*p.Nested, baseTuple, ctx)
	case ast.BoolPrimaryFunc:
		return evalBoolFunc(*p.Func, ctx)
	default:
		return false, fmt.Errorf("resolver: unknown bool primary kind %d", p.Kind)
	}
}

func evalBoolFunc(f ast.BoolFunc, ctx evalctx.Context) (bool, error) {
	switch f.Kind {
	case ast.BoolFnIsLeaf:
		entity, err := Materialize(f.Member, ctx)
		if err != nil {
			return false, fmt.Errorf("resolver: IsLeaf: %w", err)
		}
		role, err := entity.AsMemberRole()
		if err != nil {
			return false, fmt.Errorf("resolver: IsLeaf: %w", err)
		}
		if role.IsFormula {
			return true, nil
		}
		return role.Member.Leaf, nil
	default:
		return false, fmt.Errorf("resolver: unsupported bool function %d", f.Kind)
	}
}
