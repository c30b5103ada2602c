// Package database provides SQLite connectivity for the Gray Logic Gateway.
//
// The gateway stores three things: user accounts, provisioned device
// credentials, and the user-to-device access grants. Everything else
// (connections, liveness, telemetry history) lives in memory.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. Each migration runs in its own transaction.
package database
