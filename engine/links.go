package engine

import (
	"context"
	"strings"

	"github.com/ferro-orm/ferro/dialect"
	"github.com/ferro-orm/ferro/schema"
)

// Link names a many-to-many association's join table and its two key
// columns.
type Link struct {
	JoinTable    string
	SourceColumn string
	TargetColumn string
}

// LinkFor derives the conventional link for a relation field: join table
// "<source>_<field>", key columns "<source>_id" and "<target>_id".
func LinkFor(sourceModel, fieldName, targetModel string) Link {
	return Link{
		JoinTable:    schema.JoinTableName(sourceModel, fieldName),
		SourceColumn: tableName(sourceModel) + "_id",
		TargetColumn: tableName(targetModel) + "_id",
	}
}

// RegisterJoinTable registers the join-table schema for a link between two
// models, so CreateTables creates it alongside the model tables.
func (e *Engine) RegisterJoinTable(link Link, sourceModel, targetModel string) error {
	desc := schema.JoinTable(link.JoinTable,
		tableName(sourceModel), link.SourceColumn,
		tableName(targetModel), link.TargetColumn)
	return e.registry.Register(desc)
}

// AddLinks associates sourceID with each target id. Existing pairs are
// skipped, so re-adding a link is a no-op rather than a unique violation.
func (e *Engine) AddLinks(ctx context.Context, link Link, sourceID any, targetIDs []any, txHandle string) error {
	if len(targetIDs) == 0 {
		return nil
	}
	ex, dialectName, err := e.execer(txHandle)
	if err != nil {
		return err
	}
	b := &binder{dialect: dialectName}
	var sb strings.Builder
	sb.WriteString("INSERT ")
	if dialectName == dialect.MySQL {
		sb.WriteString("IGNORE ")
	}
	sb.WriteString("INTO ")
	sb.WriteString(schema.QuoteIdent(link.JoinTable, dialectName))
	sb.WriteString(" (")
	sb.WriteString(schema.QuoteIdent(link.SourceColumn, dialectName))
	sb.WriteString(", ")
	sb.WriteString(schema.QuoteIdent(link.TargetColumn, dialectName))
	sb.WriteString(") VALUES ")
	args := make([]any, 0, len(targetIDs)*2)
	for i, target := range targetIDs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		sb.WriteString(b.next())
		sb.WriteString(", ")
		sb.WriteString(b.next())
		sb.WriteString(")")
		args = append(args, sourceID, target)
	}
	if dialectName != dialect.MySQL {
		sb.WriteString(" ON CONFLICT (")
		sb.WriteString(schema.QuoteIdent(link.SourceColumn, dialectName))
		sb.WriteString(", ")
		sb.WriteString(schema.QuoteIdent(link.TargetColumn, dialectName))
		sb.WriteString(") DO NOTHING")
	}
	if err := ex.Exec(ctx, sb.String(), args, nil); err != nil {
		return e.classifyLink(link, err)
	}
	return nil
}

// RemoveLinks dissociates sourceID from each target id. Absent pairs are
// ignored.
func (e *Engine) RemoveLinks(ctx context.Context, link Link, sourceID any, targetIDs []any, txHandle string) error {
	if len(targetIDs) == 0 {
		return nil
	}
	ex, dialectName, err := e.execer(txHandle)
	if err != nil {
		return err
	}
	b := &binder{dialect: dialectName}
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(schema.QuoteIdent(link.JoinTable, dialectName))
	sb.WriteString(" WHERE ")
	sb.WriteString(schema.QuoteIdent(link.SourceColumn, dialectName))
	sb.WriteString(" = ")
	sb.WriteString(b.next())
	sb.WriteString(" AND ")
	sb.WriteString(schema.QuoteIdent(link.TargetColumn, dialectName))
	sb.WriteString(" IN (")
	args := make([]any, 0, len(targetIDs)+1)
	args = append(args, sourceID)
	for i, target := range targetIDs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(b.next())
		args = append(args, target)
	}
	sb.WriteString(")")
	if err := ex.Exec(ctx, sb.String(), args, nil); err != nil {
		return e.classifyLink(link, err)
	}
	return nil
}

// ClearLinks removes every association of sourceID in the join table.
func (e *Engine) ClearLinks(ctx context.Context, link Link, sourceID any, txHandle string) error {
	ex, dialectName, err := e.execer(txHandle)
	if err != nil {
		return err
	}
	b := &binder{dialect: dialectName}
	q := "DELETE FROM " + schema.QuoteIdent(link.JoinTable, dialectName) +
		" WHERE " + schema.QuoteIdent(link.SourceColumn, dialectName) + " = " + b.next()
	if err := ex.Exec(ctx, q, []any{sourceID}, nil); err != nil {
		return e.classifyLink(link, err)
	}
	return nil
}

func (e *Engine) classifyLink(link Link, err error) error {
	if desc, ok := e.registry.Lookup(link.JoinTable); ok {
		return e.classify(desc, err)
	}
	return e.classify(&schema.Descriptor{Table: link.JoinTable}, err)
}
