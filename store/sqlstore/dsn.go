package sqlstore

import (
	"fmt"
	"strings"
)

// buildDSN normalizes a database location into a driver DSN with WAL and
// busy-timeout pragmas applied, unless the caller already set them.
// In-memory databases are passed through untouched.
func buildDSN(location string, busyTimeoutMS int) string {
	if location == "" {
		return location
	}
	lower := strings.ToLower(location)
	if location == ":memory:" || strings.HasPrefix(lower, "file::memory:") {
		return location
	}
	dsn := location
	if !strings.HasPrefix(lower, "file:") {
		dsn = "file:" + dsn
	}
	if !strings.Contains(lower, "_pragma=journal_mode") {
		dsn = addPragma(dsn, "journal_mode(WAL)")
	}
	if busyTimeoutMS > 0 && !strings.Contains(lower, "_pragma=busy_timeout") {
		dsn = addPragma(dsn, fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	}
	return dsn
}

func addPragma(dsn, pragma string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=" + pragma
}
