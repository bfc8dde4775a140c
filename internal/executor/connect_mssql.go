package executor

import (
	_ "github.com/denisenkom/go-mssqldb" // registers the "sqlserver" database/sql driver
)
