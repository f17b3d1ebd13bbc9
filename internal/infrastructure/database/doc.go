// Package database provides SQLite connectivity for the transition
// history store.
//
// It manages:
//   - A single-writer connection with WAL mode for concurrent reads
//   - Embedded schema migrations with up/down pairs
//   - A WAL checkpoint hook the power engine invokes before suspend
//   - Health checks and pool statistics
//
// The database file is created with 0600 permissions and all queries use
// parameterised statements.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: new columns are nullable or carry defaults,
// and columns are never dropped or renamed. Each migration ships as a
// .up.sql/.down.sql pair embedded in the binary by the migrations
// package.
package database
