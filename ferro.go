// Package ferro is an embeddable object-relational persistence engine.
//
// Callers register schema descriptors for their models, connect to a
// relational backend (SQLite, PostgreSQL or MySQL), and submit row payloads
// and serialized filter-expression trees. The engine synthesizes DDL,
// compiles filters into parameterized SQL, executes CRUD and transactional
// operations, and deduplicates hydrated rows through a process-wide
// identity map.
//
// The entry point is the engine package:
//
//	eng := engine.New()
//	_ = eng.RegisterSchema("User", descriptorJSON)
//	_ = eng.Connect(ctx, "sqlite::memory:", engine.WithAutoMigrate())
//	pk, _ := eng.SaveRecord(ctx, "User", []byte(`{"name": "ada"}`), "")
//
// Sub-packages:
//
//   - dialect, dialect/sql: database driver abstraction
//   - schema: descriptors, registry and DDL synthesis
//   - query: filter AST and SQL translation
//   - identity: the concurrent identity map
//   - engine: connection lifecycle, transactions and the CRUD executor
package ferro

// Version is the engine version reported by diagnostics.
const Version = "0.4.1"
