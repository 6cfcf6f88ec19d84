// Package sql bridges the dialect driver interfaces to database/sql.
//
// A Driver wraps a *sql.DB and implements dialect.Driver, so the engine
// can execute statements and open transactions without touching the
// standard library types directly:
//
//	drv, err := sql.Open(dialect.SQLite, "file:app.db?_pragma=foreign_keys(1)")
//	if err != nil {
//	    return err
//	}
//	defer drv.Close()
//
//	var rows sql.Rows
//	if err := drv.Query(ctx, "SELECT `id`, `name` FROM `users`", []any{}, &rows); err != nil {
//	    return err
//	}
//	defer rows.Close()
//
// Exec scans its result into a *sql.Result and Query into a *sql.Rows;
// both reject other destination types.
//
// StatsDriver decorates a Driver with per-statement counters and slow
// query logging:
//
//	sd := sql.NewStatsDriver(drv, sql.WithSlowThreshold(100*time.Millisecond), sql.WithSlowQueryLog(logger))
//	snap := sd.QueryStats().Stats()
package sql
