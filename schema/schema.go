// Package schema defines table descriptors, the descriptor registry, and
// DDL synthesis for the ferro engine.
//
// Descriptors arrive from the model layer as JSON documents shaped like a
// JSON schema: a "properties" map of column definitions extended with
// engine metadata (primary_key, autoincrement, unique, index, foreign_key).
// The package normalizes them into ordered Descriptor values that the DDL
// synthesizer and the query translator consume.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ferro-orm/ferro"
)

// Type is the semantic type of a column, independent of any backend.
type Type string

// Semantic column types.
const (
	TypeInteger  Type = "integer"
	TypeText     Type = "text"
	TypeReal     Type = "real"
	TypeBool     Type = "boolean"
	TypeBlob     Type = "blob"
	TypeJSON     Type = "json"
	TypeEnum     Type = "enum"
	TypeUUID     Type = "uuid"
	TypeDecimal  Type = "decimal"
	TypeDateTime Type = "datetime"
	TypeDate     Type = "date"
)

// ReferentialAction is a foreign-key ON DELETE action.
type ReferentialAction string

// Supported ON DELETE actions.
const (
	Cascade    ReferentialAction = "CASCADE"
	SetNull    ReferentialAction = "SET NULL"
	SetDefault ReferentialAction = "SET DEFAULT"
	Restrict   ReferentialAction = "RESTRICT"
	NoAction   ReferentialAction = "NO ACTION"
)

// ForeignKey describes a reference from one column to another table.
type ForeignKey struct {
	ToTable  string            `json:"to_table"`
	ToColumn string            `json:"to_column,omitempty"` // defaults to "id"
	OnDelete ReferentialAction `json:"on_delete,omitempty"` // defaults to CASCADE
	Unique   bool              `json:"unique,omitempty"`    // marks a 1:1 relationship
}

// Column describes a single table column.
type Column struct {
	Name          string
	Type          Type
	PrimaryKey    bool
	Autoincrement *bool // nil means "infer": true for integer primary keys
	Unique        bool
	Index         bool
	Nullable      bool
	HasDefault    bool
	Default       any
	Enum          []string
	ForeignKey    *ForeignKey
}

// AutoincrementInferred reports whether the column ends up autoincrementing,
// applying the inference rule: an integer primary key autoincrements unless
// explicitly disabled; nothing else ever does.
func (c *Column) AutoincrementInferred() bool {
	if !c.PrimaryKey || c.Type != TypeInteger {
		return false
	}
	if c.Autoincrement != nil {
		return *c.Autoincrement
	}
	return true
}

// Descriptor is the authoritative description of one table.
type Descriptor struct {
	Table   string
	Columns []Column
	// CompositeUnique lists column groups constrained unique together.
	// Join tables use it as their natural key over the two link columns.
	CompositeUnique [][]string
}

// Column returns the column with the given name, or nil.
func (d *Descriptor) Column(name string) *Column {
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return &d.Columns[i]
		}
	}
	return nil
}

// PrimaryKey returns the primary-key column, or nil if the table has none
// (join tables legitimately have none).
func (d *Descriptor) PrimaryKey() *Column {
	for i := range d.Columns {
		if d.Columns[i].PrimaryKey {
			return &d.Columns[i]
		}
	}
	return nil
}

// Validate checks descriptor invariants: a table name, at least one column,
// at most one primary key, and no autoincrement on non-integer keys.
func (d *Descriptor) Validate() error {
	if d.Table == "" {
		return ferro.NewSchemaError("", "missing table name")
	}
	if len(d.Columns) == 0 {
		return ferro.NewSchemaError(d.Table, "no columns defined")
	}
	pks := 0
	for i := range d.Columns {
		c := &d.Columns[i]
		if c.Name == "" {
			return ferro.NewSchemaError(d.Table, "column with empty name")
		}
		if c.PrimaryKey {
			pks++
		}
		if c.Autoincrement != nil && *c.Autoincrement && c.Type != TypeInteger {
			return ferro.NewSchemaError(d.Table,
				fmt.Sprintf("column %q: only integer columns can autoincrement", c.Name))
		}
	}
	if pks > 1 {
		return ferro.NewSchemaError(d.Table, "multiple primary key columns")
	}
	return nil
}

// jsonColumn mirrors the wire shape of one entry in the descriptor's
// "properties" map.
type jsonColumn struct {
	Type          string            `json:"type"`
	Format        string            `json:"format"`
	Enum          []string          `json:"enum"`
	AnyOf         []json.RawMessage `json:"anyOf"`
	PrimaryKey    bool              `json:"primary_key"`
	Autoincrement *bool             `json:"autoincrement"`
	Unique        bool              `json:"unique"`
	Index         bool              `json:"index"`
	Default       json.RawMessage   `json:"default"`
	ForeignKey    *ForeignKey       `json:"foreign_key"`
}

// jsonDescriptor mirrors the wire shape of a registered descriptor.
type jsonDescriptor struct {
	Properties map[string]jsonColumn `json:"properties"`
	Required   []string              `json:"required"`
}

// ParseDescriptor decodes a JSON descriptor for the given table into a
// normalized Descriptor. Column order is the sorted property-name order so
// synthesized DDL is deterministic regardless of the source map ordering.
func ParseDescriptor(table string, descriptorJSON []byte) (*Descriptor, error) {
	var raw jsonDescriptor
	if err := json.Unmarshal(descriptorJSON, &raw); err != nil {
		return nil, ferro.NewSchemaError(table, fmt.Sprintf("invalid JSON: %v", err))
	}
	if len(raw.Properties) == 0 {
		return nil, ferro.NewSchemaError(table, "descriptor has no properties")
	}
	required := make(map[string]bool, len(raw.Required))
	for _, name := range raw.Required {
		required[name] = true
	}

	names := make([]string, 0, len(raw.Properties))
	for name := range raw.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	d := &Descriptor{Table: strings.ToLower(table)}
	for _, name := range names {
		jc := raw.Properties[name]
		col := Column{
			Name:          name,
			Type:          columnType(&jc),
			PrimaryKey:    jc.PrimaryKey,
			Autoincrement: jc.Autoincrement,
			Unique:        jc.Unique,
			Index:         jc.Index,
			Nullable:      nullable(&jc, required[name]),
			Enum:          jc.Enum,
			ForeignKey:    jc.ForeignKey,
		}
		if len(jc.Default) > 0 && string(jc.Default) != "null" {
			col.HasDefault = true
			var v any
			if err := json.Unmarshal(jc.Default, &v); err == nil {
				col.Default = v
			}
		}
		if fk := col.ForeignKey; fk != nil {
			if fk.ToTable == "" {
				return nil, ferro.NewSchemaError(d.Table,
					fmt.Sprintf("column %q: foreign key missing to_table", name))
			}
			fk.ToTable = strings.ToLower(fk.ToTable)
			if fk.ToColumn == "" {
				fk.ToColumn = "id"
			}
			if fk.OnDelete == "" {
				fk.OnDelete = Cascade
			} else {
				fk.OnDelete = ReferentialAction(strings.ToUpper(string(fk.OnDelete)))
			}
		}
		d.Columns = append(d.Columns, col)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// columnType derives the semantic type from the JSON schema "type"/"format"
// pair, looking through anyOf unions the way optional fields are emitted.
func columnType(jc *jsonColumn) Type {
	typ, format, pattern := jc.Type, jc.Format, false
	if typ == "" {
		for _, alt := range jc.AnyOf {
			var member struct {
				Type    string `json:"type"`
				Format  string `json:"format"`
				Pattern string `json:"pattern"`
			}
			if err := json.Unmarshal(alt, &member); err != nil {
				continue
			}
			if member.Pattern != "" {
				pattern = true
			}
			if member.Type != "" && member.Type != "null" {
				typ = member.Type
				if member.Format != "" {
					format = member.Format
				}
			}
		}
	}
	// A pattern-constrained string union is how decimals are declared.
	if pattern && typ == "string" {
		return TypeDecimal
	}
	if len(jc.Enum) > 0 {
		return TypeEnum
	}
	switch typ {
	case "integer":
		return TypeInteger
	case "number":
		return TypeReal
	case "boolean":
		return TypeBool
	case "object", "array":
		return TypeJSON
	case "string":
		switch format {
		case "date-time":
			return TypeDateTime
		case "date":
			return TypeDate
		case "uuid":
			return TypeUUID
		case "binary":
			return TypeBlob
		}
		return TypeText
	default:
		return TypeText
	}
}

// nullable reports whether the column admits NULL: either the union carries
// a null member, or the field is not listed as required.
func nullable(jc *jsonColumn, required bool) bool {
	for _, alt := range jc.AnyOf {
		var member struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(alt, &member); err == nil && member.Type == "null" {
			return true
		}
	}
	return !required && len(jc.AnyOf) == 0 && !jc.PrimaryKey
}

// JoinTable builds the synthetic descriptor backing a many-to-many relation:
// two cascading integer foreign keys and a composite uniqueness constraint
// over the pair, with no independent primary key.
func JoinTable(name, sourceTable, sourceColumn, targetTable, targetColumn string) *Descriptor {
	return &Descriptor{
		Table: strings.ToLower(name),
		Columns: []Column{
			{
				Name: sourceColumn,
				Type: TypeInteger,
				ForeignKey: &ForeignKey{
					ToTable:  strings.ToLower(sourceTable),
					ToColumn: "id",
					OnDelete: Cascade,
				},
			},
			{
				Name: targetColumn,
				Type: TypeInteger,
				ForeignKey: &ForeignKey{
					ToTable:  strings.ToLower(targetTable),
					ToColumn: "id",
					OnDelete: Cascade,
				},
			},
		},
		CompositeUnique: [][]string{{sourceColumn, targetColumn}},
	}
}

// JoinTableName derives the default join table name for a many-to-many
// relation declared on sourceModel through the given field.
func JoinTableName(sourceModel, fieldName string) string {
	return strings.ToLower(sourceModel) + "_" + strings.ToLower(fieldName)
}
