// Package dbtest opens throwaway in-memory databases for package tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mind-engage/examportal/internal/db"
)

var seq atomic.Int64

// Open returns a fresh in-memory sqlite database with the schema applied.
// It is closed when the test ends.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dsn := fmt.Sprintf("file:examportal_test_%d_%d?mode=memory&cache=shared&_pragma=busy_timeout(5000)",
		time.Now().UnixNano(), seq.Add(1))
	dbh, err := db.Open(ctx, db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = dbh.Close() })
	return dbh
}
