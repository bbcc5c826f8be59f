package ast

// BoolExpr is an OR of BoolTerms.
type BoolExpr struct {
	Terms []BoolTerm
}

// BoolTerm is an AND of BoolFactors.
type BoolTerm struct {
	Factors []BoolFactor
}

// BoolFactor is an optionally-negated BoolPrimary.
type BoolFactor struct {
	Negate  bool
	Primary BoolPrimary
}

// BoolPrimaryKind tags the concrete variant held by a BoolPrimary.
type BoolPrimaryKind int

const (
	BoolPrimaryCompare BoolPrimaryKind = iota
	BoolPrimaryNested
	BoolPrimaryFunc
)

type BoolPrimary struct {
	Kind BoolPrimaryKind

	// BoolPrimaryCompare
	Left  *Expression
	Op    string // "=", "<>", ">", ">=", "<", "<="
	Right *Expression

	// BoolPrimaryNested
	Nested *BoolExpr

	// BoolPrimaryFunc
	Func *BoolFunc
}

// BoolFuncKind enumerates boolean-valued functions.
type BoolFuncKind int

const (
	BoolFnIsLeaf BoolFuncKind = iota
)

type BoolFunc struct {
	Kind   BoolFuncKind
	Member SegChain
}
