package executor

import (
	"database/sql"
	"fmt"
)

// Open opens a connection pool for the named dialect and DSN. Each
// dialect's driver is imported for side effects only in its own
// connect_<dialect>.go file, so a build that never touches e.g. SQL Server
// doesn't need its driver's transitive dependencies loaded at init time
// (they're still linked, but isolating the import keeps the wiring
// traceable per dialect).
func Open(dialectName, dsn string) (*sql.DB, error) {
	driverName, ok := driverFor(dialectName)
	if !ok {
		return nil, fmt.Errorf("executor: unsupported dialect %q", dialectName)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("executor: open %s: %w", dialectName, err)
	}
	return db, nil
}

func driverFor(dialectName string) (string, bool) {
	switch dialectName {
	case "postgres":
		return "pgx", true
	case "mysql", "mariadb":
		return "mysql", true
	case "sqlite":
		return "sqlite", true
	case "sqlserver":
		return "sqlserver", true
	default:
		return "", false
	}
}
