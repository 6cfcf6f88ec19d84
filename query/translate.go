package query

import (
	"strconv"
	"strings"

	"github.com/ferro-orm/ferro"
	"github.com/ferro-orm/ferro/dialect"
	"github.com/ferro-orm/ferro/schema"
)

// Assignment is one SET clause entry of an update statement.
type Assignment struct {
	Column string
	Value  any
}

// Translator compiles query definitions into parameterized SQL for one
// dialect. The zero value is not usable; construct with NewTranslator.
type Translator struct {
	dialect string
}

// NewTranslator returns a Translator for the given dialect name.
func NewTranslator(dialectName string) *Translator {
	return &Translator{dialect: dialectName}
}

// Select compiles def into a SELECT statement over all columns.
func (t *Translator) Select(def *Def, desc *schema.Descriptor) (string, []any, error) {
	c := &compiler{dialect: t.dialect}
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(c.ident(desc.Table))
	if err := t.writeWhere(c, &b, def, desc); err != nil {
		return "", nil, err
	}
	t.writeOrderBy(c, &b, def.OrderBy)
	t.writePagination(c, &b, def)
	return c.finish(b.String()), c.args, nil
}

// Count compiles def into a SELECT COUNT(*) statement. Ordering and
// pagination are ignored: a count has no row order to page through.
func (t *Translator) Count(def *Def, desc *schema.Descriptor) (string, []any, error) {
	c := &compiler{dialect: t.dialect}
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(c.ident(desc.Table))
	if err := t.writeWhere(c, &b, def, desc); err != nil {
		return "", nil, err
	}
	return c.finish(b.String()), c.args, nil
}

// Update compiles def plus the ordered assignments into an UPDATE statement.
// A paginated or ordered update is rewritten through a primary-key subquery,
// since none of the supported backends guarantees native LIMIT on UPDATE.
func (t *Translator) Update(def *Def, desc *schema.Descriptor, sets []Assignment) (string, []any, error) {
	if len(sets) == 0 {
		return "", nil, ferro.NewTranslationError("update with no assignments")
	}
	c := &compiler{dialect: t.dialect}
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(c.ident(desc.Table))
	b.WriteString(" SET ")
	for i, set := range sets {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.ident(set.Column))
		b.WriteString(" = ")
		b.WriteString(c.arg(set.Value))
	}
	if err := t.writeMutationWhere(c, &b, def, desc); err != nil {
		return "", nil, err
	}
	return c.finish(b.String()), c.args, nil
}

// Delete compiles def into a DELETE statement, applying the same
// primary-key subquery rewrite as Update for paginated definitions.
func (t *Translator) Delete(def *Def, desc *schema.Descriptor) (string, []any, error) {
	c := &compiler{dialect: t.dialect}
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(c.ident(desc.Table))
	if err := t.writeMutationWhere(c, &b, def, desc); err != nil {
		return "", nil, err
	}
	return c.finish(b.String()), c.args, nil
}

// writeWhere appends the WHERE clause for the definition's filter roots and
// m2m context, if any.
func (t *Translator) writeWhere(c *compiler, b *strings.Builder, def *Def, desc *schema.Descriptor) error {
	preds, err := t.predicates(c, def, desc)
	if err != nil {
		return err
	}
	if len(preds) == 0 {
		return nil
	}
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(preds, " AND "))
	return nil
}

// writeMutationWhere is writeWhere for UPDATE/DELETE: when the definition is
// paginated or ordered, the predicate is rewritten as a pk IN (subquery)
// filter so the row window is computed by a SELECT.
func (t *Translator) writeMutationWhere(c *compiler, b *strings.Builder, def *Def, desc *schema.Descriptor) error {
	if !def.Paginated() && len(def.OrderBy) == 0 {
		return t.writeWhere(c, b, def, desc)
	}
	pk := desc.PrimaryKey()
	if pk == nil {
		return ferro.NewTranslationError(
			"table %q has no primary key; limit/offset mutation cannot be rewritten", desc.Table)
	}
	preds, err := t.predicates(c, def, desc)
	if err != nil {
		return err
	}
	var sub strings.Builder
	sub.WriteString("SELECT ")
	sub.WriteString(c.ident(pk.Name))
	sub.WriteString(" FROM ")
	sub.WriteString(c.ident(desc.Table))
	if len(preds) > 0 {
		sub.WriteString(" WHERE ")
		sub.WriteString(strings.Join(preds, " AND "))
	}
	t.writeOrderBy(c, &sub, def.OrderBy)
	t.writePagination(c, &sub, def)

	b.WriteString(" WHERE ")
	b.WriteString(c.ident(pk.Name))
	b.WriteString(" IN (")
	b.WriteString(sub.String())
	b.WriteString(")")
	return nil
}

// predicates compiles the filter roots (AND-ed) plus the m2m membership
// predicate into a list of parenthesized SQL fragments.
func (t *Translator) predicates(c *compiler, def *Def, desc *schema.Descriptor) ([]string, error) {
	preds := make([]string, 0, len(def.WhereClause)+1)
	for _, root := range def.WhereClause {
		if err := root.validate(); err != nil {
			return nil, err
		}
		frag, err := t.node(c, root)
		if err != nil {
			return nil, err
		}
		preds = append(preds, frag)
	}
	if m2m := def.M2M; m2m != nil {
		pk := desc.PrimaryKey()
		if pk == nil {
			return nil, ferro.NewTranslationError(
				"table %q has no primary key; cannot scope through %q", desc.Table, m2m.JoinTable)
		}
		var sub strings.Builder
		sub.WriteString(c.ident(pk.Name))
		sub.WriteString(" IN (SELECT ")
		sub.WriteString(c.ident(m2m.TargetColumn))
		sub.WriteString(" FROM ")
		sub.WriteString(c.ident(m2m.JoinTable))
		sub.WriteString(" WHERE ")
		sub.WriteString(c.ident(m2m.SourceColumn))
		sub.WriteString(" = ")
		sub.WriteString(c.arg(m2m.SourceID))
		sub.WriteString(")")
		preds = append(preds, sub.String())
	}
	return preds, nil
}

// node compiles a single AST node into a parenthesized SQL fragment.
func (t *Translator) node(c *compiler, n *Node) (string, error) {
	if n.IsCompound {
		left, err := t.node(c, n.Left)
		if err != nil {
			return "", err
		}
		right, err := t.node(c, n.Right)
		if err != nil {
			return "", err
		}
		return "(" + left + " " + n.Operator + " " + right + ")", nil
	}

	col := c.ident(n.Column)
	switch n.Operator {
	case OpEQ:
		return "(" + col + " = " + c.arg(n.Value) + ")", nil
	case OpNEQ:
		return "(" + col + " <> " + c.arg(n.Value) + ")", nil
	case OpLT, OpLTE, OpGT, OpGTE:
		return "(" + col + " " + n.Operator + " " + c.arg(n.Value) + ")", nil
	case OpLike:
		return "(" + col + " LIKE " + c.arg(n.Value) + ")", nil
	case OpIn:
		values, ok := n.Value.([]any)
		if !ok {
			// A scalar IN degrades to equality, mirroring the builder's
			// tolerance for single values.
			return "(" + col + " = " + c.arg(n.Value) + ")", nil
		}
		if len(values) == 0 {
			// IN over the empty set matches nothing; emit a constant-false
			// predicate rather than malformed SQL.
			return "(1 = 0)", nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = c.arg(v)
		}
		return "(" + col + " IN (" + strings.Join(placeholders, ", ") + "))", nil
	default:
		return "", ferro.NewTranslationError("unknown operator %q on column %q", n.Operator, n.Column)
	}
}

func (t *Translator) writeOrderBy(c *compiler, b *strings.Builder, orders []OrderBy) {
	if len(orders) == 0 {
		return
	}
	b.WriteString(" ORDER BY ")
	for i, o := range orders {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.ident(o.Column))
		if strings.EqualFold(o.Direction, "desc") {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}
}

// writePagination appends LIMIT/OFFSET. SQLite and MySQL reject a bare
// OFFSET, so an offset without a limit gets the dialect's unbounded limit.
func (t *Translator) writePagination(c *compiler, b *strings.Builder, def *Def) {
	switch {
	case def.Limit != nil:
		b.WriteString(" LIMIT ")
		b.WriteString(c.arg(int64(*def.Limit)))
		if def.Offset != nil {
			b.WriteString(" OFFSET ")
			b.WriteString(c.arg(int64(*def.Offset)))
		}
	case def.Offset != nil:
		switch t.dialect {
		case dialect.SQLite:
			b.WriteString(" LIMIT -1 OFFSET ")
		case dialect.MySQL:
			b.WriteString(" LIMIT 18446744073709551615 OFFSET ")
		default:
			b.WriteString(" OFFSET ")
		}
		b.WriteString(c.arg(int64(*def.Offset)))
	}
}

// compiler accumulates bound parameters and renders placeholders for the
// target dialect: "?" for SQLite/MySQL, "$n" for Postgres.
type compiler struct {
	dialect string
	args    []any
}

func (c *compiler) arg(v any) string {
	c.args = append(c.args, v)
	if c.dialect == dialect.Postgres {
		return "$" + strconv.Itoa(len(c.args))
	}
	return "?"
}

func (c *compiler) ident(name string) string {
	return schema.QuoteIdent(name, c.dialect)
}

// finish returns the completed statement. Placeholders are emitted in final
// form during compilation, so this is currently the identity; it keeps one
// seam for dialects that need a post-pass.
func (c *compiler) finish(sql string) string {
	return sql
}
