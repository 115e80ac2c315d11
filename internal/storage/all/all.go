// Package all registers every storage backend. Import it for side effects.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "moviesetl/internal/storage/mssql"
	_ "moviesetl/internal/storage/postgres"
	_ "moviesetl/internal/storage/sqlite"
)
