package executor

import (
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver, pure Go (no cgo)
)
