// Package database provides SQLite connectivity for hublink.
//
// The database backs the persistent outbox: publishes that could not be
// delivered are stored here and replayed after the next successful connect.
//
// This package manages:
//   - Database connection with WAL mode
//   - Forward-only schema migrations from an fs.FS
//   - Single-writer connection pool settings
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
package database
