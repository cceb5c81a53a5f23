// Package database provides SQLite connectivity for the miio device registry.
//
// This package manages:
//   - Opening the database file with busy timeout, foreign keys and optional WAL
//   - Schema migrations read from an fs.FS (normally migrations.FS)
//   - Health checks used by the daemon and the HTTP API
//
// The registry stores device tokens, so the database file is created with
// 0600 permissions and every query is parameterised.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql. Each is applied in its own transaction and recorded in
// the schema_migrations table.
package database
