package account_test

import (
	"context"
	"database/sql"
	"io/fs"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	account "github.com/studyolle/go-account"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func TestGetMigrationsFS(t *testing.T) {
	for _, driver := range []string{"sqlite", "postgres"} {
		matches, err := fs.Glob(account.GetMigrationsFS(), "data/sql/migrations/"+driver+"/*.sql")
		require.NoError(t, err)
		assert.NotEmpty(t, matches, driver)
	}
}

func TestRunMigrations(t *testing.T) {
	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqldb.Close() })

	ctx := context.Background()
	require.NoError(t, account.RunMigrations(ctx, sqldb, "sqlite"))
	// already applied
	require.NoError(t, account.RunMigrations(ctx, sqldb, "sqlite3"))

	var count int
	require.NoError(t, sqldb.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count))
	assert.Zero(t, count)

	// second migration adds the delivery stamp
	require.NoError(t, sqldb.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts WHERE confirm_email_sent_at IS NULL").Scan(&count))

	assert.Error(t, account.RunMigrations(ctx, sqldb, "mysql"))
}
