package executor

import (
	_ "github.com/go-sql-driver/mysql" // registers the "mysql" database/sql driver
)
