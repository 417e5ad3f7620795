// Package dbtest opens migrated in-memory databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"entgo.io/ent/dialect"
	"github.com/google/uuid"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/stretchr/testify/require"
)

// Open returns a client on a fresh in-memory SQLite database with all migrations applied.
func Open(t testing.TB) *database.Client {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_fk=1"
	db, err := sql.Open(dialect.SQLite, dsn)
	require.NoError(t, err)

	client := database.New(db, dialect.SQLite, logger.Nop())
	require.NoError(t, client.Migrate(context.Background()))

	// A single connection keeps the shared in-memory database alive and serialises writers.
	db.SetMaxOpenConns(1)

	t.Cleanup(func() { _ = db.Close() })
	return client
}
