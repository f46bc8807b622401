package sqlite

import "database/sql"

// sqlNullString is an alias kept local to this package so convert.go's
// helpers don't need to import database/sql directly at every call site.
type sqlNullString = sql.NullString
