// Package query defines the serialized filter-expression tree submitted to
// the engine and its translation into parameterized SQL.
//
// A query arrives as JSON: a list of AST roots (AND-ed together), optional
// ordering, pagination, and an optional many-to-many join context. Values
// inside the tree are pre-serialized JSON primitives; the translator binds
// every one of them as a statement parameter and never interpolates.
package query

import (
	"encoding/json"

	"github.com/ferro-orm/ferro"
)

// Comparison and logical operators accepted in AST nodes.
const (
	OpEQ   = "=="
	OpNEQ  = "!="
	OpLT   = "<"
	OpLTE  = "<="
	OpGT   = ">"
	OpGTE  = ">="
	OpIn   = "IN"
	OpLike = "LIKE"
	OpAnd  = "AND"
	OpOr   = "OR"
)

// Node is one node of the filter tree: either a leaf comparison
// (Column/Operator/Value) or a compound expression (Left/Operator/Right).
type Node struct {
	IsCompound bool   `json:"is_compound"`
	Operator   string `json:"operator"`

	// Leaf fields.
	Column string `json:"column,omitempty"`
	Value  any    `json:"value,omitempty"`

	// Compound fields.
	Left  *Node `json:"left,omitempty"`
	Right *Node `json:"right,omitempty"`
}

// validate checks the structural invariants of the node and its children.
func (n *Node) validate() error {
	if n == nil {
		return ferro.NewTranslationError("nil node")
	}
	if n.IsCompound {
		if n.Operator != OpAnd && n.Operator != OpOr {
			return ferro.NewTranslationError("unknown logical operator %q", n.Operator)
		}
		if n.Left == nil || n.Right == nil {
			return ferro.NewTranslationError("compound %s node missing a child", n.Operator)
		}
		if err := n.Left.validate(); err != nil {
			return err
		}
		return n.Right.validate()
	}
	if n.Column == "" {
		return ferro.NewTranslationError("leaf node missing column")
	}
	switch n.Operator {
	case OpEQ, OpNEQ, OpLT, OpLTE, OpGT, OpGTE, OpIn, OpLike:
		return nil
	default:
		return ferro.NewTranslationError("unknown operator %q on column %q", n.Operator, n.Column)
	}
}

// OrderBy is one ordering key.
type OrderBy struct {
	Column    string `json:"column"`
	Direction string `json:"direction"` // "asc" or "desc" (any case)
}

// M2MContext scopes a query to rows linked to one source row through a
// join table.
type M2MContext struct {
	JoinTable    string `json:"join_table"`
	SourceColumn string `json:"source_col"`
	TargetColumn string `json:"target_col"`
	SourceID     any    `json:"source_id"`
}

// Def is a complete query definition: the table it targets, the AND-ed
// list of filter roots, ordering, pagination, and m2m scoping.
type Def struct {
	Model       string     `json:"model_name"`
	WhereClause []*Node    `json:"where_clause"`
	OrderBy     []OrderBy  `json:"order_by"`
	Limit       *uint64    `json:"limit"`
	Offset      *uint64    `json:"offset"`
	M2M         *M2MContext `json:"m2m"`
}

// ParseDef decodes a JSON query definition and validates its filter tree.
func ParseDef(queryJSON []byte) (*Def, error) {
	var def Def
	if err := json.Unmarshal(queryJSON, &def); err != nil {
		return nil, ferro.NewTranslationError("invalid query JSON: %v", err)
	}
	for _, root := range def.WhereClause {
		if err := root.validate(); err != nil {
			return nil, err
		}
	}
	return &def, nil
}

// Paginated reports whether the definition carries a limit or an offset.
func (d *Def) Paginated() bool {
	return d.Limit != nil || d.Offset != nil
}
