package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ferro-orm/ferro"
	fsql "github.com/ferro-orm/ferro/dialect/sql"
	"github.com/ferro-orm/ferro/schema"
)

// Record is one hydrated row, keyed by column name. Fetches return *Record
// pointers; a pointer placed in the identity map is reused across fetches
// of the same row.
type Record map[string]any

// Get returns the value stored under column.
func (r Record) Get(column string) (any, bool) {
	v, ok := r[column]
	return v, ok
}

// PK returns the record's primary-key value per the descriptor, or nil.
func (r Record) PK(desc *schema.Descriptor) any {
	pk := desc.PrimaryKey()
	if pk == nil {
		return nil
	}
	return r[pk.Name]
}

// Timestamp layouts accepted when a backend hands datetimes back as text.
var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// scanRecords drains rows into hydrated records, decoding each column per
// the descriptor's declared type.
func scanRecords(rows *fsql.Rows, desc *schema.Descriptor) ([]*Record, error) {
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, ferro.NewEngineError("scan", err)
	}
	var out []*Record
	for rows.Next() {
		raw := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, ferro.NewEngineError("scan", err)
		}
		rec := make(Record, len(columns))
		for i, name := range columns {
			col := desc.Column(name)
			v, err := decodeColumn(raw[i], col)
			if err != nil {
				return nil, ferro.NewEngineError("decode "+desc.Table+"."+name, err)
			}
			rec[name] = v
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, ferro.NewEngineError("scan", err)
	}
	return out, nil
}

// decodeColumn maps a driver value onto the column's semantic type. Drivers
// disagree on representations (SQLite hands back TEXT for datetimes, MySQL
// []byte for strings, integers for booleans); the declared schema decides.
func decodeColumn(v any, col *schema.Column) (any, error) {
	if v == nil {
		return nil, nil
	}
	if col == nil {
		return decodeLoose(v), nil
	}
	switch col.Type {
	case schema.TypeBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		case []byte:
			return string(b) == "1" || string(b) == "true", nil
		}
	case schema.TypeDateTime, schema.TypeDate:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			return parseTimestamp(t)
		case []byte:
			return parseTimestamp(string(t))
		}
	case schema.TypeUUID:
		s, ok := stringValue(v)
		if !ok {
			break
		}
		id, err := uuid.Parse(s)
		if err != nil {
			// Tolerate free-form values in uuid columns on backends
			// without a native uuid type.
			return s, nil
		}
		return id.String(), nil
	case schema.TypeDecimal:
		if s, ok := stringValue(v); ok {
			return s, nil
		}
	case schema.TypeJSON:
		if s, ok := stringValue(v); ok {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err != nil {
				return nil, err
			}
			return decoded, nil
		}
	case schema.TypeBlob:
		if b, ok := v.([]byte); ok {
			out := make([]byte, len(b))
			copy(out, b)
			return out, nil
		}
	case schema.TypeText, schema.TypeEnum:
		if s, ok := stringValue(v); ok {
			return s, nil
		}
	case schema.TypeInteger:
		switch n := v.(type) {
		case int64:
			return n, nil
		case []byte:
			var parsed int64
			if _, err := fmt.Sscan(string(n), &parsed); err == nil {
				return parsed, nil
			}
		}
	}
	return decodeLoose(v), nil
}

// decodeLoose is the fallback for columns outside the registered schema.
func decodeLoose(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func stringValue(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

func parseTimestamp(s string) (any, error) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized timestamp %q", s)
}

// bindValue prepares a record value for parameter binding. JSON columns
// accept arbitrary structures and are serialized; everything else passes
// through to the driver.
func bindValue(v any, col *schema.Column) (any, error) {
	if v == nil {
		return nil, nil
	}
	if col != nil && col.Type == schema.TypeJSON {
		if s, ok := v.(string); ok {
			return s, nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case float64:
		// JSON numbers arrive as float64; keep integral values integral
		// so integer columns store exact values.
		if col != nil && col.Type == schema.TypeInteger && t == float64(int64(t)) {
			return int64(t), nil
		}
	}
	return v, nil
}
