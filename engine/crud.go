package engine

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/ferro-orm/ferro"
	"github.com/ferro-orm/ferro/dialect"
	fsql "github.com/ferro-orm/ferro/dialect/sql"
	"github.com/ferro-orm/ferro/identity"
	"github.com/ferro-orm/ferro/query"
	"github.com/ferro-orm/ferro/schema"
)

// binder renders placeholders for one statement: "?" on SQLite and MySQL,
// positional "$n" on Postgres.
type binder struct {
	dialect string
	n       int
}

func (b *binder) next() string {
	b.n++
	if b.dialect == dialect.Postgres {
		return "$" + strconv.Itoa(b.n)
	}
	return "?"
}

// SaveRecord inserts or upserts one record, given as a JSON object keyed by
// column name. When the primary key is present, or the key is not generated
// by the database, the statement upserts on primary-key conflict. The
// resolved primary key is returned: the provided value, the generated id,
// or nil when the backend reports none.
func (e *Engine) SaveRecord(ctx context.Context, model string, recordJSON []byte, txHandle string) (any, error) {
	desc, err := e.lookup(model)
	if err != nil {
		return nil, err
	}
	ex, dialectName, err := e.execer(txHandle)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(recordJSON, &fields); err != nil {
		return nil, ferro.NewEngineError("save "+desc.Table, err)
	}

	columns := sortedKeys(fields)
	args := make([]any, 0, len(columns))
	for _, name := range columns {
		v, err := bindValue(fields[name], desc.Column(name))
		if err != nil {
			return nil, ferro.NewEngineError("save "+desc.Table+"."+name, err)
		}
		args = append(args, v)
	}

	pk := desc.PrimaryKey()
	pkProvided := false
	if pk != nil {
		v, ok := fields[pk.Name]
		pkProvided = ok && v != nil
	}
	upsert := pk != nil && len(columns) > 0 && (pkProvided || !pk.AutoincrementInferred())

	b := &binder{dialect: dialectName}
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(schema.QuoteIdent(desc.Table, dialectName))
	if len(columns) == 0 {
		if dialectName == dialect.MySQL {
			sb.WriteString(" () VALUES ()")
		} else {
			sb.WriteString(" DEFAULT VALUES")
		}
	} else {
		sb.WriteString(" (")
		for i, name := range columns {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(schema.QuoteIdent(name, dialectName))
		}
		sb.WriteString(") VALUES (")
		for i := range columns {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(b.next())
		}
		sb.WriteString(")")
	}
	if upsert {
		writeUpsertClause(&sb, dialectName, pk.Name, columns)
	}

	returning := dialectName == dialect.Postgres && pk != nil
	if returning {
		sb.WriteString(" RETURNING ")
		sb.WriteString(schema.QuoteIdent(pk.Name, dialectName))
	}

	if returning {
		var rows fsql.Rows
		if err := ex.Query(ctx, sb.String(), args, &rows); err != nil {
			return nil, e.classify(desc, err)
		}
		recs, err := scanRecords(&rows, desc)
		if err != nil {
			return nil, err
		}
		var resolved any
		if len(recs) > 0 {
			resolved = (*recs[0])[pk.Name]
		}
		e.evictPK(desc, resolved)
		return resolved, nil
	}

	var res stdsql.Result
	if err := ex.Exec(ctx, sb.String(), args, &res); err != nil {
		return nil, e.classify(desc, err)
	}
	resolved, err := e.resolvePK(ctx, ex, dialectName, desc, fields, res, pkProvided)
	if err != nil {
		return nil, err
	}
	e.evictPK(desc, resolved)
	return resolved, nil
}

// writeUpsertClause appends the dialect's on-conflict update clause. Every
// non-key column takes the incoming value.
func writeUpsertClause(sb *strings.Builder, dialectName, pkName string, columns []string) {
	assigns := make([]string, 0, len(columns))
	for _, name := range columns {
		if name == pkName {
			continue
		}
		q := schema.QuoteIdent(name, dialectName)
		if dialectName == dialect.MySQL {
			assigns = append(assigns, q+" = VALUES("+q+")")
		} else {
			assigns = append(assigns, q+" = excluded."+q)
		}
	}
	if dialectName == dialect.MySQL {
		if len(assigns) == 0 {
			q := schema.QuoteIdent(pkName, dialectName)
			assigns = append(assigns, q+" = "+q)
		}
		sb.WriteString(" ON DUPLICATE KEY UPDATE ")
		sb.WriteString(strings.Join(assigns, ", "))
		return
	}
	sb.WriteString(" ON CONFLICT (")
	sb.WriteString(schema.QuoteIdent(pkName, dialectName))
	if len(assigns) == 0 {
		sb.WriteString(") DO NOTHING")
		return
	}
	sb.WriteString(") DO UPDATE SET ")
	sb.WriteString(strings.Join(assigns, ", "))
}

// resolvePK determines the saved row's primary key after a non-RETURNING
// insert. SQLite builds that report no insert id fall back to
// last_insert_rowid().
func (e *Engine) resolvePK(ctx context.Context, ex dialect.ExecQuerier, dialectName string, desc *schema.Descriptor, fields map[string]any, res stdsql.Result, pkProvided bool) (any, error) {
	pk := desc.PrimaryKey()
	if pk == nil {
		return nil, nil
	}
	if pkProvided {
		v, err := bindValue(fields[pk.Name], pk)
		if err != nil {
			return nil, ferro.NewEngineError("save "+desc.Table, err)
		}
		return v, nil
	}
	if !pk.AutoincrementInferred() {
		return nil, nil
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		return id, nil
	}
	if dialectName != dialect.SQLite {
		return nil, nil
	}
	var rows fsql.Rows
	if err := ex.Query(ctx, "SELECT last_insert_rowid()", []any{}, &rows); err != nil {
		return nil, ferro.NewEngineError("save "+desc.Table, err)
	}
	defer rows.Close()
	var id int64
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return nil, ferro.NewEngineError("save "+desc.Table, err)
		}
	}
	return id, nil
}

// SaveBulkRecords inserts a JSON array of records in one statement. The
// column list comes from the first record; later records fill missing keys
// with NULL. The statement is atomic: one bad row inserts nothing. Returns
// the number of inserted rows.
func (e *Engine) SaveBulkRecords(ctx context.Context, model string, recordsJSON []byte, txHandle string) (int64, error) {
	desc, err := e.lookup(model)
	if err != nil {
		return 0, err
	}
	ex, dialectName, err := e.execer(txHandle)
	if err != nil {
		return 0, err
	}
	var records []map[string]any
	if err := json.Unmarshal(recordsJSON, &records); err != nil {
		return 0, ferro.NewEngineError("bulk save "+desc.Table, err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	columns := sortedKeys(records[0])
	if len(columns) == 0 {
		return 0, ferro.NewEngineError("bulk save "+desc.Table,
			errEmptyRecord)
	}

	b := &binder{dialect: dialectName}
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(schema.QuoteIdent(desc.Table, dialectName))
	sb.WriteString(" (")
	for i, name := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(schema.QuoteIdent(name, dialectName))
	}
	sb.WriteString(") VALUES ")
	args := make([]any, 0, len(records)*len(columns))
	for i, rec := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j, name := range columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(b.next())
			v, err := bindValue(rec[name], desc.Column(name))
			if err != nil {
				return 0, ferro.NewEngineError("bulk save "+desc.Table+"."+name, err)
			}
			args = append(args, v)
		}
		sb.WriteString(")")
	}

	var res stdsql.Result
	if err := ex.Exec(ctx, sb.String(), args, &res); err != nil {
		return 0, e.classify(desc, err)
	}
	e.instances.EvictTable(desc.Table)
	n, err := res.RowsAffected()
	if err != nil {
		return int64(len(records)), nil
	}
	return n, nil
}

// FetchAll returns every row of the model's table, hydrated and registered
// in the identity map. A non-empty txHandle reads through that transaction,
// so its own uncommitted writes are visible.
func (e *Engine) FetchAll(ctx context.Context, model, txHandle string) ([]*Record, error) {
	desc, err := e.lookup(model)
	if err != nil {
		return nil, err
	}
	ex, dialectName, err := e.execer(txHandle)
	if err != nil {
		return nil, err
	}
	q := "SELECT * FROM " + schema.QuoteIdent(desc.Table, dialectName)
	var rows fsql.Rows
	if err := ex.Query(ctx, q, []any{}, &rows); err != nil {
		return nil, e.classify(desc, err)
	}
	recs, err := scanRecords(&rows, desc)
	if err != nil {
		return nil, err
	}
	return e.adoptAll(desc, recs), nil
}

// FetchOne returns the row with the given primary key. An identity-map hit
// short-circuits without issuing SQL; concurrent misses for the same key
// share one query. A non-empty txHandle reads through that transaction and
// bypasses the shared flight, since handles see different snapshots.
func (e *Engine) FetchOne(ctx context.Context, model string, pk any, txHandle string) (*Record, error) {
	desc, err := e.lookup(model)
	if err != nil {
		return nil, err
	}
	key := identity.KeyOf(desc.Table, pk)
	if cached, ok := e.instances.Lookup(key); ok {
		if rec, ok := cached.(*Record); ok {
			return rec, nil
		}
		// A foreign instance occupies the slot; hydrate without touching it.
		return e.fetchPK(ctx, desc, pk, txHandle, false)
	}
	if txHandle != "" {
		return e.fetchPK(ctx, desc, pk, txHandle, true)
	}
	v, err, _ := e.flight.Do(key.Table+"\x00"+key.PK, func() (any, error) {
		return e.fetchPK(ctx, desc, pk, "", true)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Record), nil
}

// Refresh re-hydrates the row with the given primary key, bypassing the
// identity map. This is the one path that rewrites a cached record in
// place, so existing holders observe the fresh values. A vanished row
// evicts the cache entry.
func (e *Engine) Refresh(ctx context.Context, model string, pk any, txHandle string) (*Record, error) {
	desc, err := e.lookup(model)
	if err != nil {
		return nil, err
	}
	rec, err := e.fetchPK(ctx, desc, pk, txHandle, false)
	if err != nil {
		if ferro.IsNotFound(err) {
			e.instances.Evict(identity.KeyOf(desc.Table, pk))
		}
		return nil, err
	}
	key := identity.KeyOf(desc.Table, rec.PK(desc))
	var out *Record
	e.instances.Upsert(key, func(cached any, ok bool) any {
		if existing, isRec := cached.(*Record); ok && isRec {
			for k := range *existing {
				delete(*existing, k)
			}
			for k, v := range *rec {
				(*existing)[k] = v
			}
			out = existing
			return existing
		}
		out = rec
		return rec
	})
	return out, nil
}

// fetchPK runs the by-pk select. With adopt set, the hydrated record is
// placed in the identity map unless a cached record already occupies the
// slot, in which case the cached pointer wins.
func (e *Engine) fetchPK(ctx context.Context, desc *schema.Descriptor, pk any, txHandle string, adopt bool) (*Record, error) {
	pkCol := desc.PrimaryKey()
	if pkCol == nil {
		return nil, ferro.NewSchemaError(desc.Table, "table has no primary key")
	}
	ex, dialectName, err := e.execer(txHandle)
	if err != nil {
		return nil, err
	}
	b := &binder{dialect: dialectName}
	q := "SELECT * FROM " + schema.QuoteIdent(desc.Table, dialectName) +
		" WHERE " + schema.QuoteIdent(pkCol.Name, dialectName) + " = " + b.next()
	pkArg, err := bindValue(pk, pkCol)
	if err != nil {
		return nil, ferro.NewEngineError("fetch "+desc.Table, err)
	}
	var rows fsql.Rows
	if err := ex.Query(ctx, q, []any{pkArg}, &rows); err != nil {
		return nil, e.classify(desc, err)
	}
	recs, err := scanRecords(&rows, desc)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ferro.NewNotFoundError(desc.Table, pk)
	}
	if !adopt {
		return recs[0], nil
	}
	return e.adopt(desc, recs[0]), nil
}

// FetchFiltered runs a JSON query definition and returns the hydrated rows.
// A non-empty txHandle reads through that transaction.
func (e *Engine) FetchFiltered(ctx context.Context, queryJSON []byte, txHandle string) ([]*Record, error) {
	def, desc, err := e.parseQuery(queryJSON)
	if err != nil {
		return nil, err
	}
	ex, dialectName, err := e.execer(txHandle)
	if err != nil {
		return nil, err
	}
	sqlStr, args, err := query.NewTranslator(dialectName).Select(def, desc)
	if err != nil {
		return nil, err
	}
	var rows fsql.Rows
	if err := ex.Query(ctx, sqlStr, args, &rows); err != nil {
		return nil, e.classify(desc, err)
	}
	recs, err := scanRecords(&rows, desc)
	if err != nil {
		return nil, err
	}
	return e.adoptAll(desc, recs), nil
}

// CountFiltered returns the number of rows matching a JSON query
// definition. Ordering and pagination in the definition are ignored. A
// non-empty txHandle reads through that transaction.
func (e *Engine) CountFiltered(ctx context.Context, queryJSON []byte, txHandle string) (int64, error) {
	def, desc, err := e.parseQuery(queryJSON)
	if err != nil {
		return 0, err
	}
	ex, dialectName, err := e.execer(txHandle)
	if err != nil {
		return 0, err
	}
	sqlStr, args, err := query.NewTranslator(dialectName).Count(def, desc)
	if err != nil {
		return 0, err
	}
	var rows fsql.Rows
	if err := ex.Query(ctx, sqlStr, args, &rows); err != nil {
		return 0, e.classify(desc, err)
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, ferro.NewEngineError("count "+desc.Table, err)
		}
	}
	return n, rows.Err()
}

// UpdateFiltered applies a JSON object of column assignments to every row
// matching the query definition and returns the affected row count. All of
// the table's identity-map entries are evicted: the affected key set is
// not re-queried.
func (e *Engine) UpdateFiltered(ctx context.Context, queryJSON, updatesJSON []byte, txHandle string) (int64, error) {
	def, desc, err := e.parseQuery(queryJSON)
	if err != nil {
		return 0, err
	}
	ex, dialectName, err := e.execer(txHandle)
	if err != nil {
		return 0, err
	}
	var updates map[string]any
	if err := json.Unmarshal(updatesJSON, &updates); err != nil {
		return 0, ferro.NewEngineError("update "+desc.Table, err)
	}
	sets := make([]query.Assignment, 0, len(updates))
	for _, name := range sortedKeys(updates) {
		v, err := bindValue(updates[name], desc.Column(name))
		if err != nil {
			return 0, ferro.NewEngineError("update "+desc.Table+"."+name, err)
		}
		sets = append(sets, query.Assignment{Column: name, Value: v})
	}
	sqlStr, args, err := query.NewTranslator(dialectName).Update(def, desc, sets)
	if err != nil {
		return 0, err
	}
	var res stdsql.Result
	if err := ex.Exec(ctx, sqlStr, args, &res); err != nil {
		return 0, e.classify(desc, err)
	}
	e.instances.EvictTable(desc.Table)
	return res.RowsAffected()
}

// DeleteFiltered deletes every row matching the query definition and
// returns the affected row count. Evicts the whole table's identity-map
// entries, like UpdateFiltered.
func (e *Engine) DeleteFiltered(ctx context.Context, queryJSON []byte, txHandle string) (int64, error) {
	def, desc, err := e.parseQuery(queryJSON)
	if err != nil {
		return 0, err
	}
	ex, dialectName, err := e.execer(txHandle)
	if err != nil {
		return 0, err
	}
	sqlStr, args, err := query.NewTranslator(dialectName).Delete(def, desc)
	if err != nil {
		return 0, err
	}
	var res stdsql.Result
	if err := ex.Exec(ctx, sqlStr, args, &res); err != nil {
		return 0, e.classify(desc, err)
	}
	e.instances.EvictTable(desc.Table)
	return res.RowsAffected()
}

// DeleteRecord deletes one row by primary key and evicts its identity-map
// entry. Deleting an absent row is a no-op.
func (e *Engine) DeleteRecord(ctx context.Context, model string, pk any, txHandle string) error {
	desc, err := e.lookup(model)
	if err != nil {
		return err
	}
	pkCol := desc.PrimaryKey()
	if pkCol == nil {
		return ferro.NewSchemaError(desc.Table, "table has no primary key")
	}
	ex, dialectName, err := e.execer(txHandle)
	if err != nil {
		return err
	}
	b := &binder{dialect: dialectName}
	q := "DELETE FROM " + schema.QuoteIdent(desc.Table, dialectName) +
		" WHERE " + schema.QuoteIdent(pkCol.Name, dialectName) + " = " + b.next()
	pkArg, err := bindValue(pk, pkCol)
	if err != nil {
		return ferro.NewEngineError("delete "+desc.Table, err)
	}
	if err := ex.Exec(ctx, q, []any{pkArg}, nil); err != nil {
		return e.classify(desc, err)
	}
	e.instances.Evict(identity.KeyOf(desc.Table, pk))
	return nil
}

// parseQuery decodes a JSON query definition and resolves its model.
func (e *Engine) parseQuery(queryJSON []byte) (*query.Def, *schema.Descriptor, error) {
	def, err := query.ParseDef(queryJSON)
	if err != nil {
		return nil, nil, err
	}
	desc, err := e.lookup(def.Model)
	if err != nil {
		return nil, nil, err
	}
	return def, desc, nil
}

// adopt places a freshly scanned record in the identity map. When a cached
// *Record exists for the same key the cached pointer wins and the fresh row
// is discarded, so a record a caller already holds is never rewritten
// behind its back. Refresh is the explicit path for in-place updates.
// Foreign cached values are overwritten.
func (e *Engine) adopt(desc *schema.Descriptor, rec *Record) *Record {
	pkv := rec.PK(desc)
	if pkv == nil {
		return rec
	}
	key := identity.KeyOf(desc.Table, pkv)
	var out *Record
	e.instances.Upsert(key, func(cached any, ok bool) any {
		if existing, isRec := cached.(*Record); ok && isRec {
			out = existing
			return existing
		}
		out = rec
		return rec
	})
	return out
}

func (e *Engine) adoptAll(desc *schema.Descriptor, recs []*Record) []*Record {
	out := make([]*Record, len(recs))
	for i, rec := range recs {
		out[i] = e.adopt(desc, rec)
	}
	return out
}

func (e *Engine) evictPK(desc *schema.Descriptor, pk any) {
	if pk == nil {
		e.instances.EvictTable(desc.Table)
		return
	}
	e.instances.Evict(identity.KeyOf(desc.Table, pk))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
